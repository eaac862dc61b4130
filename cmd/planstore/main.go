package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/basket/planstore/internal/config"
	"github.com/basket/planstore/internal/cron"
	"github.com/basket/planstore/internal/gate"
	otelPkg "github.com/basket/planstore/internal/otel"
	"github.com/basket/planstore/internal/persistence"
	"github.com/basket/planstore/internal/server"
	"github.com/basket/planstore/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

SERVE MODE (default):
  %s                          Serve the JSON-RPC tool protocol on stdio

SUBCOMMANDS:
  %s backup [dest]            Snapshot the database (default: timestamped
                              file in the configured backup dir)
  %s restore <src>            Replace the database with a snapshot
  %s export <table> <dest>    Export a table (plans|tasks) to CSV
  %s status                   Print database path, schema state, and counts

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  PLANSTORE_HOME          Data directory (default: ~/.planstore)
  PLANSTORE_DB_PATH       Database file override
  PLANSTORE_LOG_LEVEL     debug | info | warn | error
`)
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "backup":
			os.Exit(runBackupCommand(ctx, args[1:]))
		case "restore":
			os.Exit(runRestoreCommand(args[1:]))
		case "export":
			os.Exit(runExportCommand(ctx, args[1:]))
		case "status":
			os.Exit(runStatusCommand(ctx, args[1:]))
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	os.Exit(serve(ctx, stop))
}

func serve(ctx context.Context, stop context.CancelFunc) int {
	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	// stdout carries the wire protocol; logs go to the JSONL file, mirrored
	// to stderr when someone is watching.
	toStderr := cfg.LogToStderr || isatty.IsTerminal(os.Stderr.Fd())
	logger, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, toStderr)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)
	logger.Info("startup phase", "phase", "config_loaded", "fingerprint", cfg.Fingerprint(), "version", Version)

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		fatalStartup(logger.Logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger.Logger, "E_OTEL_METRICS", err)
	}

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		fatalStartup(logger.Logger, "E_STORE_OPEN", err)
	}
	defer store.Close()
	logger.Info("startup phase", "phase", "schema_migrated", "db_path", store.Path())

	g, err := gate.New()
	if err != nil {
		fatalStartup(logger.Logger, "E_GATE_COMPILE", err)
	}

	confWatcher := config.NewWatcher(cfg.HomeDir, logger.Logger)
	if err := confWatcher.Start(ctx); err != nil {
		fatalStartup(logger.Logger, "E_CONFIG_WATCHER_START", err)
	}
	go func() {
		for ev := range confWatcher.Events() {
			newCfg, err := config.Load()
			if err != nil {
				logger.Error("config.yaml reload failed", "path", ev.Path, "error", err)
				continue
			}
			// Only the log level is safe to apply live; everything else
			// needs a restart.
			if newCfg.LogLevel != cfg.LogLevel {
				logger.SetLevel(newCfg.LogLevel)
				cfg.LogLevel = newCfg.LogLevel
				logger.Info("log level hot-reloaded", "level", cfg.LogLevel)
			}
		}
	}()

	if cfg.Backup.Enabled {
		sched, err := cron.NewScheduler(cron.Config{
			Store:    store,
			Logger:   logger.Logger,
			Schedule: cfg.Backup.Schedule,
			Dir:      cfg.Backup.Dir,
			Keep:     cfg.Backup.Keep,
		})
		if err != nil {
			fatalStartup(logger.Logger, "E_BACKUP_SCHEDULER", err)
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	srv := server.New(store, g, os.Stdin, os.Stdout, server.Options{
		Logger:  logger.Logger,
		Tracer:  otelProvider.Tracer,
		Metrics: metrics,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx)
		stop()
	}()
	logger.Info("startup phase", "phase", "serving", "transport", "stdio")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && ctx.Err() == nil {
			logger.Error("serve loop error", "error", err)
			return 1
		}
	}
	logger.Info("shutdown complete")
	return 0
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"planstore","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}
