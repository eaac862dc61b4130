package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/basket/planstore/internal/config"
	"github.com/basket/planstore/internal/persistence"
)

// runBackupCommand snapshots the database. With no argument the snapshot
// lands in the configured backup dir under a timestamped name.
func runBackupCommand(ctx context.Context, args []string) int {
	if len(args) > 1 {
		fmt.Fprintln(os.Stderr, "usage: planstore backup [dest]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	dest := ""
	if len(args) == 1 {
		dest = args[0]
	} else {
		if err := os.MkdirAll(cfg.Backup.Dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create backup dir: %v\n", err)
			return 1
		}
		dest = filepath.Join(cfg.Backup.Dir, "planstore-"+time.Now().UTC().Format("20060102-150405")+".db")
	}

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return 1
	}
	defer store.Close()

	if err := store.Backup(ctx, dest); err != nil {
		fmt.Fprintf(os.Stderr, "backup: %v\n", err)
		return 1
	}
	fmt.Println(dest)
	return 0
}

// runRestoreCommand replaces the database file with a snapshot. It must run
// while no serve process holds the database open.
func runRestoreCommand(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: planstore restore <src>")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	if err := persistence.Restore(cfg.DBPath, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "restore: %v\n", err)
		return 1
	}
	fmt.Printf("restored %s from %s\n", cfg.DBPath, args[0])
	return 0
}

func runExportCommand(ctx context.Context, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: planstore export <plans|tasks> <dest.csv>")
		return 2
	}
	table, dest := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return 1
	}
	defer store.Close()

	if err := store.ExportCSV(ctx, table, dest); err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		return 1
	}
	fmt.Println(dest)
	return 0
}
