package main

import (
	"context"
	"fmt"
	"os"

	"github.com/basket/planstore/internal/config"
	"github.com/basket/planstore/internal/persistence"
)

// runStatusCommand prints where the database lives and what it holds.
func runStatusCommand(ctx context.Context, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: planstore status")
		return 2
	}

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

	plans, tasks, err := store.PlanCounts(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "counts: %v\n", err)
		return 1
	}

	var journal string
	_ = store.DB().QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&journal)

	fmt.Printf("db:        %s\n", store.Path())
	fmt.Printf("journal:   %s\n", journal)
	fmt.Printf("plans:     %d\n", plans)
	fmt.Printf("tasks:     %d\n", tasks)
	fmt.Printf("backups:   %s (enabled=%v, schedule=%q, keep=%d)\n",
		cfg.Backup.Dir, cfg.Backup.Enabled, cfg.Backup.Schedule, cfg.Backup.Keep)
	return 0
}
