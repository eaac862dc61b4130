package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/basket/planstore/internal/gate"
	"github.com/basket/planstore/internal/otel"
	"github.com/basket/planstore/internal/persistence"
)

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"list_operations":    s.handleListOperations,
		"create_plan":        s.handleCreatePlan,
		"get_plan":           s.handleGetPlan,
		"list_plans":         s.handleListPlans,
		"update_plan_status": s.handleUpdatePlanStatus,
		"delete_plan":        s.handleDeletePlan,
		"get_task":           s.handleGetTask,
		"list_plan_tasks":    s.handleListPlanTasks,
		"update_task_status": s.handleUpdateTaskStatus,
		"add_task":           s.handleAddTask,
		"backup":             s.handleBackup,
		"export_csv":         s.handleExportCSV,
	}
}

func decode(params json.RawMessage, into any) error {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(params, into); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

type operationInfo struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

func (s *Server) handleListOperations(_ context.Context, _ json.RawMessage) (any, error) {
	ops := s.gate.Operations()
	out := make([]operationInfo, 0, len(ops))
	for _, op := range ops {
		out = append(out, operationInfo{Name: op, Schema: json.RawMessage(gate.SchemaJSON(op))})
	}
	return map[string]any{"operations": out}, nil
}

type createPlanArgs struct {
	AgentID string                  `json:"agent_id"`
	Plan    persistence.PlanInput   `json:"plan"`
	Tasks   []persistence.TaskInput `json:"tasks"`
}

func (s *Server) handleCreatePlan(ctx context.Context, params json.RawMessage) (any, error) {
	var args createPlanArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	created, err := s.store.CreatePlanWithTasks(ctx, args.AgentID, args.Plan, args.Tasks)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PlansCreated.Add(ctx, 1)
		s.metrics.TasksCreated.Add(ctx, int64(len(created.TaskIDs)))
	}
	return created, nil
}

type planRefArgs struct {
	AgentID string `json:"agent_id"`
	PlanID  string `json:"plan_id"`
}

func (s *Server) handleGetPlan(ctx context.Context, params json.RawMessage) (any, error) {
	var args planRefArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	plan, err := s.store.GetPlan(ctx, args.AgentID, args.PlanID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"plan": plan}, nil
}

type listPlansArgs struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
}

func (s *Server) handleListPlans(ctx context.Context, params json.RawMessage) (any, error) {
	var args listPlansArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	plans, err := s.store.ListPlans(ctx, args.AgentID, args.Status)
	if err != nil {
		return nil, err
	}
	if plans == nil {
		plans = []persistence.Plan{}
	}
	return map[string]any{"plans": plans}, nil
}

type updatePlanStatusArgs struct {
	AgentID string `json:"agent_id"`
	PlanID  string `json:"plan_id"`
	Status  string `json:"status"`
}

func (s *Server) handleUpdatePlanStatus(ctx context.Context, params json.RawMessage) (any, error) {
	var args updatePlanStatusArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdatePlanStatus(ctx, args.AgentID, args.PlanID, args.Status)
	if err != nil {
		return nil, err
	}
	return map[string]any{"updated": updated}, nil
}

func (s *Server) handleDeletePlan(ctx context.Context, params json.RawMessage) (any, error) {
	var args planRefArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	deleted, err := s.store.DeletePlan(ctx, args.AgentID, args.PlanID)
	if err != nil {
		return nil, err
	}
	if deleted && s.metrics != nil {
		s.metrics.PlansDeleted.Add(ctx, 1)
	}
	return map[string]any{"deleted": deleted}, nil
}

type taskRefArgs struct {
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
}

func (s *Server) handleGetTask(ctx context.Context, params json.RawMessage) (any, error) {
	var args taskRefArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, args.AgentID, args.TaskID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": task}, nil
}

type listPlanTasksArgs struct {
	AgentID string `json:"agent_id"`
	PlanID  string `json:"plan_id"`
	Status  string `json:"status"`
}

func (s *Server) handleListPlanTasks(ctx context.Context, params json.RawMessage) (any, error) {
	var args listPlanTasksArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListPlanTasks(ctx, args.AgentID, args.PlanID, args.Status)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []persistence.Task{}
	}
	return map[string]any{"tasks": tasks}, nil
}

type updateTaskStatusArgs struct {
	AgentID     string `json:"agent_id"`
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	CompletedAt *int64 `json:"completed_at"`
}

func (s *Server) handleUpdateTaskStatus(ctx context.Context, params json.RawMessage) (any, error) {
	var args updateTaskStatusArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateTaskStatus(ctx, args.AgentID, args.TaskID, args.Status, args.CompletedAt)
	if err != nil {
		return nil, err
	}
	return map[string]any{"updated": updated}, nil
}

type addTaskArgs struct {
	AgentID string                `json:"agent_id"`
	PlanID  string                `json:"plan_id"`
	Task    persistence.TaskInput `json:"task"`
}

func (s *Server) handleAddTask(ctx context.Context, params json.RawMessage) (any, error) {
	var args addTaskArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	taskID, err := s.store.AddTaskToPlan(ctx, args.AgentID, args.PlanID, args.Task)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.TasksCreated.Add(ctx, 1)
	}
	return map[string]any{"task_id": taskID}, nil
}

type backupArgs struct {
	DestPath string `json:"dest_path"`
}

func (s *Server) handleBackup(ctx context.Context, params json.RawMessage) (any, error) {
	var args backupArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	ctx, span := otel.StartSpan(ctx, s.tracer, "planstore.backup")
	defer span.End()
	if err := s.store.Backup(ctx, args.DestPath); err != nil {
		if s.metrics != nil {
			s.metrics.BackupErrors.Add(ctx, 1)
		}
		return nil, err
	}
	return map[string]any{"dest_path": args.DestPath}, nil
}

type exportCSVArgs struct {
	Table    string `json:"table"`
	DestPath string `json:"dest_path"`
}

func (s *Server) handleExportCSV(ctx context.Context, params json.RawMessage) (any, error) {
	var args exportCSVArgs
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	ctx, span := otel.StartSpan(ctx, s.tracer, "planstore.export_csv",
		otel.AttrTable.String(args.Table),
	)
	defer span.End()
	if err := s.store.ExportCSV(ctx, args.Table, args.DestPath); err != nil {
		return nil, err
	}
	return map[string]any{"table": args.Table, "dest_path": args.DestPath}, nil
}
