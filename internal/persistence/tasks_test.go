package persistence_test

import (
	"context"
	"testing"

	"github.com/basket/planstore/internal/persistence"
)

func mustCreatePlan(t *testing.T, store *persistence.Store, agentID, title string) string {
	t.Helper()
	planID, err := store.InsertPlan(context.Background(), agentID, persistence.PlanInput{Title: title})
	if err != nil {
		t.Fatalf("insert plan %q: %v", title, err)
	}
	return planID
}

func TestTasks_AddAndGetRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	planID := mustCreatePlan(t, store, "agent-1", "p")

	taskID, err := store.AddTaskToPlan(ctx, "agent-1", planID, persistence.TaskInput{
		TaskNumber:    3,
		Title:         "Wire the cache",
		Description:   "Add the read-through path",
		Status:        "pending",
		FilesInvolved: []string{"cache.go", "cache_test.go"},
		Notes:         map[string]any{"blocked_on": "review"},
	})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	task, err := store.GetTask(ctx, "agent-1", taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task == nil {
		t.Fatalf("expected task, got nil")
	}
	if task.PlanID != planID || task.TaskNumber != 3 || task.Title != "Wire the cache" {
		t.Fatalf("unexpected task fields: %+v", task)
	}
	if task.Description != "Add the read-through path" || task.Status != "pending" {
		t.Fatalf("unexpected task fields: %+v", task)
	}
	if len(task.FilesInvolved) != 2 || task.FilesInvolved[0] != "cache.go" {
		t.Fatalf("files_involved did not round-trip: %#v", task.FilesInvolved)
	}
	if task.Notes["blocked_on"] != "review" {
		t.Fatalf("notes did not round-trip: %#v", task.Notes)
	}
	if task.CompletedAt != nil {
		t.Fatalf("new task must not carry completed_at")
	}
}

func TestTasks_AddToMissingPlanIsNotFound(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.AddTaskToPlan(ctx, "agent-1", "no-such-plan", persistence.TaskInput{TaskNumber: 1, Title: "t"})
	if !persistence.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(1) FROM tasks;`).Scan(&count); err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero task rows, got %d", count)
	}
}

func TestTasks_AddToOtherAgentsPlanIsNotFound(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	planID := mustCreatePlan(t, store, "agent-1", "p")

	_, err := store.AddTaskToPlan(ctx, "agent-2", planID, persistence.TaskInput{TaskNumber: 1, Title: "t"})
	if !persistence.IsNotFound(err) {
		t.Fatalf("expected NotFoundError for cross-agent plan, got %v", err)
	}
}

func TestTasks_AddRejectsEmptyTitle(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	planID := mustCreatePlan(t, store, "agent-1", "p")

	_, err := store.AddTaskToPlan(ctx, "agent-1", planID, persistence.TaskInput{TaskNumber: 1, Title: ""})
	if !persistence.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTasks_DuplicateTaskNumberIsConstraint(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	planID := mustCreatePlan(t, store, "agent-1", "p")

	if _, err := store.AddTaskToPlan(ctx, "agent-1", planID, persistence.TaskInput{TaskNumber: 1, Title: "a"}); err != nil {
		t.Fatalf("add first task: %v", err)
	}
	_, err := store.AddTaskToPlan(ctx, "agent-1", planID, persistence.TaskInput{TaskNumber: 1, Title: "b"})
	if !persistence.IsConstraint(err) {
		t.Fatalf("expected ConstraintError for duplicate task_number, got %v", err)
	}
}

func TestTasks_ListOrderedByTaskNumber(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	planID := mustCreatePlan(t, store, "agent-1", "p")

	// Insert out of order; listing must come back by ordinal.
	for _, n := range []int{3, 1, 2} {
		if _, err := store.AddTaskToPlan(ctx, "agent-1", planID, persistence.TaskInput{TaskNumber: n, Title: "t", Status: "pending"}); err != nil {
			t.Fatalf("add task %d: %v", n, err)
		}
	}

	tasks, err := store.ListPlanTasks(ctx, "agent-1", planID, "")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	for i, task := range tasks {
		if task.TaskNumber != i+1 {
			t.Fatalf("task %d out of order: got number %d", i, task.TaskNumber)
		}
	}
}

func TestTasks_ListStatusFilter(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	planID := mustCreatePlan(t, store, "agent-1", "p")

	statuses := []string{"pending", "done", "pending"}
	for i, status := range statuses {
		if _, err := store.AddTaskToPlan(ctx, "agent-1", planID, persistence.TaskInput{TaskNumber: i + 1, Title: "t", Status: status}); err != nil {
			t.Fatalf("add task %d: %v", i, err)
		}
	}

	pending, err := store.ListPlanTasks(ctx, "agent-1", planID, "pending")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].TaskNumber != 1 || pending[1].TaskNumber != 3 {
		t.Fatalf("unexpected filtered tasks: %+v", pending)
	}
}

func TestTasks_UpdateStatusRecordsCompletedAt(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	planID := mustCreatePlan(t, store, "agent-1", "p")

	taskID, err := store.AddTaskToPlan(ctx, "agent-1", planID, persistence.TaskInput{TaskNumber: 1, Title: "t", Status: "pending"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	completedAt := int64(1751400000123)
	ok, err := store.UpdateTaskStatus(ctx, "agent-1", taskID, "done", &completedAt)
	if err != nil {
		t.Fatalf("update task status: %v", err)
	}
	if !ok {
		t.Fatalf("expected update to match the task")
	}

	task, err := store.GetTask(ctx, "agent-1", taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != "done" {
		t.Fatalf("expected status done, got %q", task.Status)
	}
	if task.CompletedAt == nil || *task.CompletedAt != completedAt {
		t.Fatalf("completed_at not persisted exactly: %v", task.CompletedAt)
	}

	// A later update without a completion time leaves the stamp untouched.
	ok, err = store.UpdateTaskStatus(ctx, "agent-1", taskID, "reviewed", nil)
	if err != nil || !ok {
		t.Fatalf("second update: ok=%v err=%v", ok, err)
	}
	task, err = store.GetTask(ctx, "agent-1", taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.CompletedAt == nil || *task.CompletedAt != completedAt {
		t.Fatalf("completed_at must survive status-only update: %v", task.CompletedAt)
	}
}

func TestTasks_UpdateStatusUnknownTaskReturnsFalse(t *testing.T) {
	store, _ := openTestStore(t)

	ok, err := store.UpdateTaskStatus(context.Background(), "agent-1", "no-such-task", "done", nil)
	if err != nil {
		t.Fatalf("update task status: %v", err)
	}
	if ok {
		t.Fatalf("expected false for unknown task")
	}
}

func TestTasks_UpdateStatusAfterPlanDeleteReturnsFalse(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	created, err := store.CreatePlanWithTasks(ctx, "agent-1", persistence.PlanInput{Title: "p"}, []persistence.TaskInput{
		{TaskNumber: 1, Title: "t", Status: "pending"},
	})
	if err != nil {
		t.Fatalf("create plan with tasks: %v", err)
	}
	taskID := created.TaskIDs[0]

	if ok, err := store.DeletePlan(ctx, "agent-1", created.PlanID); err != nil || !ok {
		t.Fatalf("delete plan: ok=%v err=%v", ok, err)
	}

	// Cascade already removed the task; the status update must degrade to a
	// clean false, not an error.
	ok, err := store.UpdateTaskStatus(ctx, "agent-1", taskID, "done", nil)
	if err != nil {
		t.Fatalf("update after plan delete: %v", err)
	}
	if ok {
		t.Fatalf("expected false after owning plan was deleted")
	}
}

func TestTasks_UpdateStatusKeepsUpdatedAtMonotonic(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	planID := mustCreatePlan(t, store, "agent-1", "p")

	taskID, err := store.AddTaskToPlan(ctx, "agent-1", planID, persistence.TaskInput{TaskNumber: 1, Title: "t"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	before, err := store.GetTask(ctx, "agent-1", taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}

	if ok, err := store.UpdateTaskStatus(ctx, "agent-1", taskID, "done", nil); err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	after, err := store.GetTask(ctx, "agent-1", taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if after.UpdatedAt < before.UpdatedAt {
		t.Fatalf("updated_at went backwards: %d -> %d", before.UpdatedAt, after.UpdatedAt)
	}
}
