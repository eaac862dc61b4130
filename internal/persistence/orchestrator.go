package persistence

import (
	"context"
	"fmt"
)

// PlanCreation is the result of the atomic create path: the new plan id and
// the generated task ids in the same order as the input batch.
type PlanCreation struct {
	PlanID  string   `json:"plan_id"`
	TaskIDs []string `json:"task_ids"`
}

// CreatePlanWithTasks persists a plan and its initial task batch as one
// atomic unit. Either all 1+len(taskInputs) rows commit, or none do: the
// first failing insert — missing title, constraint violation, engine error —
// rolls back everything already written in the transaction and is returned
// to the caller unmodified in meaning.
//
// Inputs are validated up front so a malformed batch is rejected before the
// transaction even starts; the in-transaction rollback still covers failures
// that only the engine can detect.
func (s *Store) CreatePlanWithTasks(ctx context.Context, agentID string, plan PlanInput, taskInputs []TaskInput) (*PlanCreation, error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}
	for _, in := range taskInputs {
		if err := in.validate(); err != nil {
			return nil, err
		}
	}

	var result *PlanCreation
	err := retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin create plan tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := nowMillis()
		planID, err := insertPlanTx(ctx, tx, agentID, plan, now)
		if err != nil {
			return err
		}

		taskIDs := make([]string, 0, len(taskInputs))
		for _, in := range taskInputs {
			taskID, err := insertTaskTx(ctx, tx, agentID, planID, in, now)
			if err != nil {
				return err
			}
			taskIDs = append(taskIDs, taskID)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit create plan tx: %w", err)
		}
		result = &PlanCreation{PlanID: planID, TaskIDs: taskIDs}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
