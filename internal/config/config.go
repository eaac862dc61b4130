// Package config loads and watches the planstore configuration. Settings come
// from config.yaml under the planstore home, with env overrides on top.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/robfig/cron/v3"
)

// BackupConfig controls the scheduled snapshot job.
type BackupConfig struct {
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression (standard 5-field form). Default is
	// daily at 03:00.
	Schedule string `yaml:"schedule"`

	// Dir receives timestamped snapshot files. Empty means <home>/backups.
	Dir string `yaml:"dir"`

	// Keep is how many snapshots to retain; older ones are pruned after each
	// run. 0 keeps everything.
	Keep int `yaml:"keep"`
}

// TelemetryConfig controls the OpenTelemetry exporter.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "otlp-http", "stdout", or "none".
	Exporter string `yaml:"exporter"`

	// Endpoint for the otlp-http exporter, e.g. "localhost:4318".
	Endpoint string `yaml:"endpoint"`

	// SampleRatio in [0,1]; 0 defaults to 1.0 (sample everything).
	SampleRatio float64 `yaml:"sample_ratio"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	// DBPath overrides the database location. Empty means
	// <home>/planstore.db.
	DBPath string `yaml:"db_path"`

	LogLevel string `yaml:"log_level"`

	// LogToStderr mirrors the JSONL file log to stderr; useful when running
	// in a supervisor that collects stderr.
	LogToStderr bool `yaml:"log_to_stderr"`

	Backup    BackupConfig    `yaml:"backup"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Backup: BackupConfig{
			Schedule: "0 3 * * *",
			Keep:     7,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "none",
			SampleRatio: 1.0,
		},
	}
}

// HomeDir resolves the planstore home: PLANSTORE_HOME when set, otherwise
// ~/.planstore.
func HomeDir() string {
	if override := os.Getenv("PLANSTORE_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".planstore")
}

// Load reads config.yaml from the planstore home, applies env overrides, and
// normalizes defaults. A missing file is not an error; defaults apply.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create planstore home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.HomeDir, "planstore.db")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Backup.Schedule == "" {
		cfg.Backup.Schedule = "0 3 * * *"
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = filepath.Join(cfg.HomeDir, "backups")
	}
	if cfg.Backup.Keep < 0 {
		cfg.Backup.Keep = 0
	}
	if cfg.Telemetry.Exporter == "" {
		cfg.Telemetry.Exporter = "none"
	}
	if cfg.Telemetry.SampleRatio <= 0 || cfg.Telemetry.SampleRatio > 1 {
		cfg.Telemetry.SampleRatio = 1.0
	}
}

func validate(cfg *Config) error {
	if cfg.Backup.Enabled {
		if _, err := cron.ParseStandard(cfg.Backup.Schedule); err != nil {
			return fmt.Errorf("invalid backup schedule %q: %w", cfg.Backup.Schedule, err)
		}
	}
	switch cfg.Telemetry.Exporter {
	case "otlp-http", "stdout", "none":
	default:
		return fmt.Errorf("unknown telemetry exporter %q", cfg.Telemetry.Exporter)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("PLANSTORE_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("PLANSTORE_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("PLANSTORE_BACKUP_SCHEDULE"); raw != "" {
		cfg.Backup.Schedule = raw
	}
	if raw := os.Getenv("PLANSTORE_BACKUP_KEEP"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Backup.Keep = v
		}
	}
	if raw := os.Getenv("PLANSTORE_OTEL_EXPORTER"); raw != "" {
		cfg.Telemetry.Exporter = raw
		cfg.Telemetry.Enabled = true
	}
	if raw := os.Getenv("PLANSTORE_OTEL_ENDPOINT"); raw != "" {
		cfg.Telemetry.Endpoint = raw
	}
}

// Fingerprint returns a stable hash of the active config, logged at startup
// so operators can tell which settings a running process picked up.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "db=%s|log=%s|backup=%v/%s/%d|otel=%v/%s",
		c.DBPath, c.LogLevel, c.Backup.Enabled, c.Backup.Schedule, c.Backup.Keep,
		c.Telemetry.Enabled, c.Telemetry.Exporter)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}
