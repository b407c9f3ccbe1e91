package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskNotificationEmail delivers one notification by email.
	TaskNotificationEmail = "notify:email"
	// TaskInsightsWarmup pre-generates coaching insights for active agents.
	TaskInsightsWarmup = "insights:warmup"
	// TaskMetricsRollup aggregates scorecard metrics into monthly summaries.
	TaskMetricsRollup = "metrics:rollup"
)

// NotificationEmailPayload describes one notification email.
type NotificationEmailPayload struct {
	UserID  int64  `json:"userId"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewNotificationEmailTask constructs an Asynq task.
func NewNotificationEmailTask(payload NotificationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationEmail, data), nil
}

// InsightsWarmupPayload scopes the warmup run.
type InsightsWarmupPayload struct {
	// Scope is "active" (default) or "all".
	Scope string `json:"scope"`
}

// NewInsightsWarmupTask constructs an Asynq task.
func NewInsightsWarmupTask(scope string) (*asynq.Task, error) {
	data, err := json.Marshal(InsightsWarmupPayload{Scope: scope})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInsightsWarmup, data), nil
}

// MetricsRollupPayload scopes the rollup to one period. The handler defaults
// an empty period to the current month.
type MetricsRollupPayload struct {
	Period string `json:"period"`
}

// NewMetricsRollupTask constructs an Asynq task.
func NewMetricsRollupTask(period string) (*asynq.Task, error) {
	data, err := json.Marshal(MetricsRollupPayload{Period: period})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMetricsRollup, data), nil
}
