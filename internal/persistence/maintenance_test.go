package persistence_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basket/planstore/internal/persistence"
)

func TestBackup_SnapshotOpensAsFullCopy(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	if _, err := store.CreatePlanWithTasks(ctx, "agent-1", persistence.PlanInput{Title: "p"}, []persistence.TaskInput{
		{TaskNumber: 1, Title: "a"},
		{TaskNumber: 2, Title: "b"},
	}); err != nil {
		t.Fatalf("seed data: %v", err)
	}

	backupPath := filepath.Join(t.TempDir(), "snapshot.db")
	if err := store.Backup(ctx, backupPath); err != nil {
		t.Fatalf("backup: %v", err)
	}

	snap, err := persistence.Open(backupPath)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer snap.Close()

	plans, tasks, err := snap.PlanCounts(ctx, "")
	if err != nil {
		t.Fatalf("counts in backup: %v", err)
	}
	if plans != 1 || tasks != 2 {
		t.Fatalf("backup is incomplete: %d plans %d tasks", plans, tasks)
	}
}

func TestBackup_RefusesExistingDestination(t *testing.T) {
	store, _ := openTestStore(t)

	dest := filepath.Join(t.TempDir(), "already-there.db")
	if err := os.WriteFile(dest, []byte("occupied"), 0o644); err != nil {
		t.Fatalf("seed destination: %v", err)
	}

	err := store.Backup(context.Background(), dest)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already-exists refusal, got %v", err)
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	store, dbPath := openTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertPlan(ctx, "agent-1", persistence.PlanInput{Title: "survives"}); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	backupPath := filepath.Join(t.TempDir(), "snapshot.db")
	if err := store.Backup(ctx, backupPath); err != nil {
		t.Fatalf("backup: %v", err)
	}

	// Diverge, then close the handle before the file swap.
	if _, err := store.InsertPlan(ctx, "agent-1", persistence.PlanInput{Title: "lost on restore"}); err != nil {
		t.Fatalf("post-backup plan: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if err := persistence.Restore(dbPath, backupPath); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, err := persistence.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen after restore: %v", err)
	}
	defer restored.Close()

	plans, err := restored.ListPlans(ctx, "agent-1", "")
	if err != nil {
		t.Fatalf("list plans after restore: %v", err)
	}
	if len(plans) != 1 || plans[0].Title != "survives" {
		t.Fatalf("restore did not revert to the snapshot: %+v", plans)
	}
}

func TestRestore_RejectsNonSQLiteSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "garbage.db")
	if err := os.WriteFile(src, []byte("definitely not a database"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	err := persistence.Restore(filepath.Join(dir, "target.db"), src)
	if err == nil || !strings.Contains(err.Error(), "not a SQLite database") {
		t.Fatalf("expected magic-header rejection, got %v", err)
	}
}

func TestExportCSV_PlansHeaderAndRows(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertPlan(ctx, "agent-1", persistence.PlanInput{Title: "first", Status: "open"}); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	if _, err := store.InsertPlan(ctx, "agent-1", persistence.PlanInput{Title: "second"}); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "plans.csv")
	if err := store.ExportCSV(ctx, "plans", dest); err != nil {
		t.Fatalf("export csv: %v", err)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	header := strings.Join(records[0], ",")
	if header != "plan_id,agent_id,title,overall_goal,status,metadata,created_at,updated_at" {
		t.Fatalf("unexpected header: %s", header)
	}
	if records[1][2] != "first" || records[2][2] != "second" {
		t.Fatalf("rows not in insertion order: %v", records[1:])
	}
	// overall_goal was NULL; it must export as an empty field, not "<nil>".
	if records[1][3] != "" {
		t.Fatalf("NULL column must export empty, got %q", records[1][3])
	}
}

func TestExportCSV_RejectsUnknownTable(t *testing.T) {
	store, _ := openTestStore(t)

	err := store.ExportCSV(context.Background(), "sqlite_master", filepath.Join(t.TempDir(), "out.csv"))
	if err == nil || !strings.Contains(err.Error(), "not exportable") {
		t.Fatalf("expected allow-list rejection, got %v", err)
	}
}
