package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all planstore metrics instruments.
type Metrics struct {
	ToolCallDuration metric.Float64Histogram
	ToolCallErrors   metric.Int64Counter
	PlansCreated     metric.Int64Counter
	TasksCreated     metric.Int64Counter
	PlansDeleted     metric.Int64Counter
	BackupDuration   metric.Float64Histogram
	BackupErrors     metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ToolCallDuration, err = meter.Float64Histogram("planstore.tool.duration",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("planstore.tool.errors",
		metric.WithDescription("Tool call error count"),
	)
	if err != nil {
		return nil, err
	}

	m.PlansCreated, err = meter.Int64Counter("planstore.plans.created",
		metric.WithDescription("Plans created"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCreated, err = meter.Int64Counter("planstore.tasks.created",
		metric.WithDescription("Tasks created"),
	)
	if err != nil {
		return nil, err
	}

	m.PlansDeleted, err = meter.Int64Counter("planstore.plans.deleted",
		metric.WithDescription("Plans deleted, tasks removed by cascade included"),
	)
	if err != nil {
		return nil, err
	}

	m.BackupDuration, err = meter.Float64Histogram("planstore.backup.duration",
		metric.WithDescription("Backup snapshot duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.BackupErrors, err = meter.Int64Counter("planstore.backup.errors",
		metric.WithDescription("Backup failures"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
