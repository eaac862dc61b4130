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

// Plan is a top-level agent work item owning zero or more tasks. Metadata is
// an opaque payload stored as JSON text and rehydrated on read.
type Plan struct {
	PlanID      string         `json:"plan_id"`
	AgentID     string         `json:"agent_id"`
	Title       string         `json:"title"`
	OverallGoal string         `json:"overall_goal,omitempty"`
	Status      string         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   int64          `json:"created_at"`
	UpdatedAt   int64          `json:"updated_at"`
}

// PlanInput carries caller-supplied fields for a new plan. Status is
// free-form; only the title is mandatory.
type PlanInput struct {
	Title       string         `json:"title"`
	OverallGoal string         `json:"overall_goal,omitempty"`
	Status      string         `json:"status,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (in PlanInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return &ValidationError{Field: "title", Message: "must be a non-empty string"}
	}
	return nil
}

func marshalOpaque(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal opaque field: %w", err)
	}
	return string(raw), nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return out, nil
}

// insertPlanTx writes one plan row inside the caller's transaction and
// returns the generated id. Shared between InsertPlan and the orchestrator.
func insertPlanTx(ctx context.Context, tx *sql.Tx, agentID string, in PlanInput, now int64) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}
	metadata, err := marshalOpaque(in.Metadata)
	if err != nil {
		return "", err
	}

	planID := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans (plan_id, agent_id, title, overall_goal, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), ?, ?);
	`, planID, agentID, in.Title, in.OverallGoal, in.Status, metadata, now, now)
	if err != nil {
		return "", wrapConstraint("insert plan", err)
	}
	return planID, nil
}

// InsertPlan persists a single plan with no tasks. The batch path is
// CreatePlanWithTasks.
func (s *Store) InsertPlan(ctx context.Context, agentID string, in PlanInput) (string, error) {
	var planID string
	err := retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin insert plan tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		planID, err = insertPlanTx(ctx, tx, agentID, in, nowMillis())
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return "", err
	}
	return planID, nil
}

func scanPlan(scanFn func(dest ...any) error, plan *Plan) error {
	var overallGoal sql.NullString
	var metadata sql.NullString
	if err := scanFn(
		&plan.PlanID,
		&plan.AgentID,
		&plan.Title,
		&overallGoal,
		&plan.Status,
		&metadata,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	); err != nil {
		return err
	}
	if overallGoal.Valid {
		plan.OverallGoal = overallGoal.String
	}
	meta, err := unmarshalMetadata(metadata)
	if err != nil {
		return err
	}
	plan.Metadata = meta
	return nil
}

const planColumns = `plan_id, agent_id, title, overall_goal, status, metadata, created_at, updated_at`

// GetPlan returns the plan for (agentID, planID), or nil when no such row
// exists. Absence is not an error.
func (s *Store) GetPlan(ctx context.Context, agentID, planID string) (*Plan, error) {
	var plan Plan
	err := scanPlan(s.db.QueryRowContext(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE agent_id = ? AND plan_id = ?;
	`, agentID, planID).Scan, &plan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return &plan, nil
}

// ListPlans returns all plans for the agent in creation order (created_at
// ascending, insertion order breaking ties). A non-empty statusFilter
// restricts the result to exact status matches.
func (s *Store) ListPlans(ctx context.Context, agentID, statusFilter string) ([]Plan, error) {
	var rows *sql.Rows
	var err error
	if statusFilter != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+planColumns+`
			FROM plans
			WHERE agent_id = ? AND status = ?
			ORDER BY created_at ASC, rowid ASC;
		`, agentID, statusFilter)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+planColumns+`
			FROM plans
			WHERE agent_id = ?
			ORDER BY created_at ASC, rowid ASC;
		`, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		var plan Plan
		if err := scanPlan(rows.Scan, &plan); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("plan rows: %w", err)
	}
	return out, nil
}

// UpdatePlanStatus sets the status and refreshes updated_at. Returns false
// when no plan matches (agentID, planID); status strings are not validated.
// MAX keeps updated_at monotonic even if the wall clock steps backwards.
func (s *Store) UpdatePlanStatus(ctx context.Context, agentID, planID, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans
		SET status = ?, updated_at = MAX(updated_at, ?)
		WHERE agent_id = ? AND plan_id = ?;
	`, status, nowMillis(), agentID, planID)
	if err != nil {
		return false, wrapConstraint("update plan status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update plan status rows affected: %w", err)
	}
	return n == 1, nil
}

// DeletePlan removes the plan row; the engine's ON DELETE CASCADE removes
// every task under it in the same statement. Returns false when no plan
// matches the agent-scoped id.
func (s *Store) DeletePlan(ctx context.Context, agentID, planID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM plans
		WHERE agent_id = ? AND plan_id = ?;
	`, agentID, planID)
	if err != nil {
		return false, fmt.Errorf("delete plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete plan rows affected: %w", err)
	}
	return n == 1, nil
}

// PlanCounts returns the number of plans and tasks owned by the agent.
// An empty agentID counts across all agents.
func (s *Store) PlanCounts(ctx context.Context, agentID string) (plans, tasks int, err error) {
	if agentID != "" {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM plans WHERE agent_id = ?;`, agentID).Scan(&plans); err != nil {
			return 0, 0, fmt.Errorf("count plans: %w", err)
		}
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE agent_id = ?;`, agentID).Scan(&tasks); err != nil {
			return 0, 0, fmt.Errorf("count tasks: %w", err)
		}
		return plans, tasks, nil
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM plans;`).Scan(&plans); err != nil {
		return 0, 0, fmt.Errorf("count plans: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks;`).Scan(&tasks); err != nil {
		return 0, 0, fmt.Errorf("count tasks: %w", err)
	}
	return plans, tasks, nil
}
