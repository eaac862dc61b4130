// Package telemetry owns structured logging for the planstore process.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logger bundles the slog handle with its level var (swapped live on config
// reload) and the file it appends to.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	file  io.Closer
}

// NewLogger opens <home>/logs/system.jsonl for appending and returns a JSON
// logger writing to it. When toStderr is set the stream is mirrored to
// stderr. stdout is never used: it belongs to the wire protocol.
func NewLogger(homeDir, level string, toStderr bool) (*Logger, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filepath.Join(logDir, "system.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	lvl := new(slog.LevelVar)
	lvl.Set(ParseLevel(level))

	var w io.Writer = file
	if toStderr {
		w = io.MultiWriter(os.Stderr, file)
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	})
	logger := slog.New(handler).With("component", "planstore")
	return &Logger{Logger: logger, level: lvl, file: file}, nil
}

// SetLevel changes the minimum level for all handlers sharing the logger.
func (l *Logger) SetLevel(level string) {
	l.level.Set(ParseLevel(level))
}

func (l *Logger) Close() error {
	return l.file.Close()
}

// ParseLevel maps the config log_level string to a slog level. Unknown
// values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
