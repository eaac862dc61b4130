package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Task is an ordered sub-unit of work under exactly one plan. task_number is
// the ordinal within the plan (unique per plan, not globally) and drives the
// default listing order. files_involved and notes are opaque payloads stored
// as JSON text.
type Task struct {
	TaskID        string         `json:"task_id"`
	PlanID        string         `json:"plan_id"`
	AgentID       string         `json:"agent_id"`
	TaskNumber    int            `json:"task_number"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Status        string         `json:"status"`
	FilesInvolved []string       `json:"files_involved,omitempty"`
	Notes         map[string]any `json:"notes,omitempty"`
	CreatedAt     int64          `json:"created_at"`
	UpdatedAt     int64          `json:"updated_at"`
	CompletedAt   *int64         `json:"completed_at,omitempty"`
}

// TaskInput carries caller-supplied fields for a new task.
type TaskInput struct {
	TaskNumber    int            `json:"task_number"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Status        string         `json:"status,omitempty"`
	FilesInvolved []string       `json:"files_involved,omitempty"`
	Notes         map[string]any `json:"notes,omitempty"`
}

func (in TaskInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return &ValidationError{Field: "title", Message: "must be a non-empty string"}
	}
	return nil
}

// insertTaskTx writes one task row under planID inside the caller's
// transaction. Shared between AddTaskToPlan and the orchestrator.
func insertTaskTx(ctx context.Context, tx *sql.Tx, agentID, planID string, in TaskInput, now int64) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}
	files, err := marshalOpaque(in.FilesInvolved)
	if err != nil {
		return "", err
	}
	notes, err := marshalOpaque(in.Notes)
	if err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (task_id, plan_id, agent_id, task_number, title, description, status, files_involved, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?);
	`, taskID, planID, agentID, in.TaskNumber, in.Title, in.Description, in.Status, files, notes, now, now)
	if err != nil {
		return "", wrapConstraint("insert task", err)
	}
	return taskID, nil
}

const taskColumns = `task_id, plan_id, agent_id, task_number, title, description, status, files_involved, notes, created_at, updated_at, completed_at`

func scanTask(scanFn func(dest ...any) error, task *Task) error {
	var description, files, notes sql.NullString
	var completedAt sql.NullInt64
	if err := scanFn(
		&task.TaskID,
		&task.PlanID,
		&task.AgentID,
		&task.TaskNumber,
		&task.Title,
		&description,
		&task.Status,
		&files,
		&notes,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	); err != nil {
		return err
	}
	if description.Valid {
		task.Description = description.String
	}
	if files.Valid && files.String != "" {
		if err := json.Unmarshal([]byte(files.String), &task.FilesInvolved); err != nil {
			return fmt.Errorf("unmarshal files_involved: %w", err)
		}
	}
	if notes.Valid && notes.String != "" {
		if err := json.Unmarshal([]byte(notes.String), &task.Notes); err != nil {
			return fmt.Errorf("unmarshal notes: %w", err)
		}
	}
	if completedAt.Valid {
		v := completedAt.Int64
		task.CompletedAt = &v
	}
	return nil
}

// GetTask returns the task for (agentID, taskID), or nil when absent.
func (s *Store) GetTask(ctx context.Context, agentID, taskID string) (*Task, error) {
	var task Task
	err := scanTask(s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE agent_id = ? AND task_id = ?;
	`, agentID, taskID).Scan, &task)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// ListPlanTasks returns the plan's tasks for the agent, ordered by ascending
// task_number, optionally filtered to an exact status match.
func (s *Store) ListPlanTasks(ctx context.Context, agentID, planID, statusFilter string) ([]Task, error) {
	var rows *sql.Rows
	var err error
	if statusFilter != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			WHERE agent_id = ? AND plan_id = ? AND status = ?
			ORDER BY task_number ASC;
		`, agentID, planID, statusFilter)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			WHERE agent_id = ? AND plan_id = ?
			ORDER BY task_number ASC;
		`, agentID, planID)
	}
	if err != nil {
		return nil, fmt.Errorf("query plan tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var task Task
		if err := scanTask(rows.Scan, &task); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task rows: %w", err)
	}
	return out, nil
}

// UpdateTaskStatus sets the status, refreshes updated_at, and records
// completedAt when supplied. Two conditions are checked independently inside
// one transaction: the task must exist for the agent, and its owning plan
// must still exist. The plan check is layered on top of cascade delete on
// purpose — it guards against races and against any future schema where
// cascade is not guaranteed. Either check failing returns false with zero
// writes performed.
func (s *Store) UpdateTaskStatus(ctx context.Context, agentID, taskID, status string, completedAt *int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update task status tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var planID string
	err = tx.QueryRowContext(ctx, `
		SELECT plan_id FROM tasks WHERE agent_id = ? AND task_id = ?;
	`, agentID, taskID).Scan(&planID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select task for status update: %w", err)
	}

	var planExists int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM plans WHERE agent_id = ? AND plan_id = ?;
	`, agentID, planID).Scan(&planExists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select owning plan for status update: %w", err)
	}

	completed := sql.NullInt64{}
	if completedAt != nil {
		completed.Valid = true
		completed.Int64 = *completedAt
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?,
			updated_at = MAX(updated_at, ?),
			completed_at = CASE WHEN ? THEN ? ELSE completed_at END
		WHERE agent_id = ? AND task_id = ?;
	`, status, nowMillis(), completed.Valid, completed.Int64, agentID, taskID)
	if err != nil {
		return false, wrapConstraint("update task status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update task status rows affected: %w", err)
	}
	if n != 1 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update task status tx: %w", err)
	}
	return true, nil
}

// AddTaskToPlan inserts one task under an existing plan and returns the
// generated id. The parent plan must exist for the agent (NotFoundError
// otherwise) and the title must be non-empty (ValidationError); neither
// failure writes a row.
func (s *Store) AddTaskToPlan(ctx context.Context, agentID, planID string, in TaskInput) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}

	var taskID string
	err := retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin add task tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var exists int
		err = tx.QueryRowContext(ctx, `
			SELECT 1 FROM plans WHERE agent_id = ? AND plan_id = ?;
		`, agentID, planID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Entity: "plan", ID: planID, AgentID: agentID}
		}
		if err != nil {
			return fmt.Errorf("select plan for add task: %w", err)
		}

		taskID, err = insertTaskTx(ctx, tx, agentID, planID, in, nowMillis())
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return "", err
	}
	return taskID, nil
}
