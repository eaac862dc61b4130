package cron_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basket/planstore/internal/cron"
	"github.com/basket/planstore/internal/persistence"
)

func openTestStore(t *testing.T) *persistence.Store {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "planstore.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func snapshotNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read snapshot dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	_, err := cron.NewScheduler(cron.Config{
		Store:    openTestStore(t),
		Schedule: "whenever",
		Dir:      t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected parse error for bad schedule")
	}
}

func TestScheduler_RunOnceWritesSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, err := store.InsertPlan(ctx, "a1", persistence.PlanInput{Title: "p"}); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "backups")
	s, err := cron.NewScheduler(cron.Config{
		Store:    store,
		Schedule: "0 3 * * *",
		Dir:      dir,
		Keep:     7,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	s.RunOnce(ctx, time.Date(2026, 7, 2, 3, 0, 0, 0, time.UTC))

	names := snapshotNames(t, dir)
	if len(names) != 1 {
		t.Fatalf("expected one snapshot, got %v", names)
	}
	if !strings.HasPrefix(names[0], "planstore-20260702-") || !strings.HasSuffix(names[0], ".db") {
		t.Fatalf("unexpected snapshot name: %s", names[0])
	}

	// The snapshot must open as a full copy.
	copyStore, err := persistence.Open(filepath.Join(dir, names[0]))
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer copyStore.Close()
	plans, _, err := copyStore.PlanCounts(ctx, "")
	if err != nil || plans != 1 {
		t.Fatalf("snapshot incomplete: plans=%d err=%v", plans, err)
	}
}

func TestScheduler_PrunesOldSnapshots(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "backups")
	s, err := cron.NewScheduler(cron.Config{
		Store:    store,
		Schedule: "0 3 * * *",
		Dir:      dir,
		Keep:     2,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	base := time.Date(2026, 7, 1, 3, 0, 0, 0, time.UTC)
	for day := 0; day < 4; day++ {
		s.RunOnce(ctx, base.AddDate(0, 0, day))
	}

	names := snapshotNames(t, dir)
	if len(names) != 2 {
		t.Fatalf("expected 2 retained snapshots, got %v", names)
	}
	for _, name := range names {
		if !strings.Contains(name, "2026070") {
			t.Fatalf("unexpected snapshot: %s", name)
		}
	}
	// Oldest two are gone; newest two remain.
	if !strings.HasPrefix(names[0], "planstore-20260703-") || !strings.HasPrefix(names[1], "planstore-20260704-") {
		t.Fatalf("pruned the wrong snapshots: %v", names)
	}
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, 7, 2, 2, 59, 0, 0, time.UTC)
	next, err := cron.NextRunTime("0 3 * * *", after)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 7, 2, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}

	if _, err := cron.NextRunTime("not cron", after); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}
