package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdesk/coachdesk/internal/insights"
	jobmetrics "github.com/coachdesk/coachdesk/internal/jobs"
)

// InsightsWarmupJob pre-generates coaching insights so the first dashboard
// view of the day is served from cache.
type InsightsWarmupJob struct {
	Insights *insights.Service
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewInsightsWarmupJob wires dependencies for the warmup handler.
func NewInsightsWarmupJob(svc *insights.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *InsightsWarmupJob {
	return &InsightsWarmupJob{Insights: svc, Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes warmup tasks. A single failing agent stops the run so the
// retry picks up where the provider started erroring.
func (j *InsightsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("insights warmup: handler not configured")
	}
	var payload InsightsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Scope == "" {
		payload.Scope = "active"
	}

	tracker := j.metrics().Track(TaskInsightsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("scope", payload.Scope))
	logger.Info("starting insights warmup")
	start := time.Now()

	agentIDs, err := j.fetchAgentIDs(ctx, payload.Scope)
	if err != nil {
		resultErr = err
		logger.Error("load warmup agents", slog.Any("error", err))
		return resultErr
	}
	if len(agentIDs) == 0 {
		logger.Info("no agents discovered for warmup")
		return resultErr
	}

	warmed := 0
	for _, agentID := range agentIDs {
		if err := j.warmAgent(ctx, agentID); err != nil {
			resultErr = err
			logger.Error("warm agent", slog.Int64("agent_id", agentID), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed insights warmup", slog.Int("agents", warmed), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *InsightsWarmupJob) warmAgent(ctx context.Context, agentID int64) error {
	if j.Insights == nil {
		return nil
	}
	// Bound each generation so one slow provider call cannot stall the run.
	agentCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()
	return j.Insights.Warm(agentCtx, agentID)
}

func (j *InsightsWarmupJob) fetchAgentIDs(ctx context.Context, scope string) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("insights warmup: pool not configured")
	}
	query := `SELECT id FROM users WHERE role = 'AGENT' AND is_active ORDER BY id`
	if scope == "all" {
		query = `SELECT id FROM users WHERE role = 'AGENT' ORDER BY id`
	}
	rows, err := j.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *InsightsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInsightsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskInsightsWarmup))
}

func (j *InsightsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
