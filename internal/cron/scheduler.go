// Package cron runs the scheduled backup job: on each due tick it snapshots
// the database into the backup directory and prunes old snapshots.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/planstore/internal/persistence"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

const snapshotPrefix = "planstore-"

// Config holds the dependencies for the backup scheduler.
type Config struct {
	Store    *persistence.Store
	Logger   *slog.Logger
	Schedule string        // cron expression; required
	Dir      string        // snapshot directory; required
	Keep     int           // snapshots to retain; 0 keeps everything
	Interval time.Duration // tick interval; defaults to 1 minute if zero
}

// Scheduler fires a backup whenever the cron schedule comes due.
type Scheduler struct {
	store    *persistence.Store
	logger   *slog.Logger
	schedule cronlib.Schedule
	dir      string
	keep     int
	interval time.Duration

	nextRun time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. The schedule expression is parsed here so
// a bad config fails startup, not the first tick.
func NewScheduler(cfg Config) (*Scheduler, error) {
	schedule, err := cronParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse backup schedule %q: %w", cfg.Schedule, err)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    cfg.Store,
		logger:   logger,
		schedule: schedule,
		dir:      cfg.Dir,
		keep:     cfg.Keep,
		interval: interval,
		nextRun:  schedule.Next(time.Now()),
	}, nil
}

// Start begins the scheduler loop. It runs in a background goroutine
// and respects the provided context for shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("backup scheduler started", "next_run", s.nextRun, "dir", s.dir, "keep", s.keep)
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("backup scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Before(s.nextRun) {
				continue
			}
			s.RunOnce(ctx, now)
			s.nextRun = s.schedule.Next(now)
		}
	}
}

// RunOnce takes one snapshot and prunes. Exposed so the CLI backup command
// and tests share the exact path the scheduler uses.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Error("backup: create snapshot dir", "dir", s.dir, "error", err)
		return
	}

	dest := filepath.Join(s.dir, snapshotPrefix+now.UTC().Format("20060102-150405")+".db")
	start := time.Now()
	if err := s.store.Backup(ctx, dest); err != nil {
		s.logger.Error("backup: snapshot failed", "dest", dest, "error", err)
		return
	}
	s.logger.Info("backup: snapshot written", "dest", dest, "elapsed_ms", time.Since(start).Milliseconds())

	if err := s.prune(); err != nil {
		s.logger.Error("backup: prune failed", "dir", s.dir, "error", err)
	}
}

// prune removes the oldest snapshots beyond the retention count. Snapshot
// names embed a UTC timestamp, so lexical order is age order.
func (s *Scheduler) prune() error {
	if s.keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	var snapshots []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, snapshotPrefix) && strings.HasSuffix(name, ".db") {
			snapshots = append(snapshots, name)
		}
	}
	if len(snapshots) <= s.keep {
		return nil
	}
	sort.Strings(snapshots)
	for _, name := range snapshots[:len(snapshots)-s.keep] {
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil {
			return err
		}
		s.logger.Info("backup: pruned old snapshot", "path", path)
	}
	return nil
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
