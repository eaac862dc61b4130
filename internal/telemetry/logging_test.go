package telemetry_test

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/basket/planstore/internal/telemetry"
)

func TestNewLogger_WritesJSONLines(t *testing.T) {
	home := t.TempDir()
	logger, err := telemetry.NewLogger(home, "info", false)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Info("store opened", "path", "/tmp/x.db")
	logger.Debug("should be filtered at info level")
	if err := logger.Close(); err != nil {
		t.Fatalf("close logger: %v", err)
	}

	f, err := os.Open(filepath.Join(home, "logs", "system.jsonl"))
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v", err)
		}
		lines = append(lines, entry)
	}
	if len(lines) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(lines))
	}
	entry := lines[0]
	if entry["msg"] != "store opened" || entry["path"] != "/tmp/x.db" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["component"] != "planstore" {
		t.Fatalf("missing component attr: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("time key not renamed to timestamp: %v", entry)
	}
}

func TestLogger_SetLevelTakesEffectLive(t *testing.T) {
	home := t.TempDir()
	logger, err := telemetry.NewLogger(home, "info", false)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Debug("dropped")
	logger.SetLevel("debug")
	logger.Debug("kept")
	if err := logger.Close(); err != nil {
		t.Fatalf("close logger: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, "logs", "system.jsonl"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := countLines(data); got != 1 {
		t.Fatalf("expected one surviving debug line, got %d: %s", got, data)
	}
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		"INFO":     slog.LevelInfo,
		" warn ":   slog.LevelWarn,
		"warning":  slog.LevelWarn,
		"error":    slog.LevelError,
		"verbose?": slog.LevelInfo,
		"":         slog.LevelInfo,
	}
	for in, want := range cases {
		if got := telemetry.ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
