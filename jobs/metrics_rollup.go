package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/coachdesk/coachdesk/internal/jobs"
)

// MetricsRollupJob aggregates raw scorecard metrics into per-agent monthly
// composites so dashboards can query one row instead of rescoring.
type MetricsRollupJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMetricsRollupJob wires dependencies for the rollup handler.
func NewMetricsRollupJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *MetricsRollupJob {
	return &MetricsRollupJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes rollup tasks. An empty period rolls up the current month.
func (j *MetricsRollupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("metrics rollup: handler not configured")
	}
	var payload MetricsRollupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Period == "" {
		payload.Period = time.Now().UTC().Format("2006-01")
	}

	tracker := j.metrics().Track(TaskMetricsRollup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("period", payload.Period))
	logger.Info("starting metrics rollup")

	tag, err := j.Pool.Exec(ctx, `
		INSERT INTO agent_metric_rollups (agent_id, period, composite, metric_count, computed_at)
		SELECT agent_id,
		       period,
		       CASE WHEN sum(weight) > 0
		            THEN sum(score * weight) / sum(weight)
		            ELSE avg(score)
		       END,
		       count(*),
		       NOW()
		FROM agent_metrics
		WHERE period = $1
		GROUP BY agent_id, period
		ON CONFLICT (agent_id, period)
		DO UPDATE SET composite = EXCLUDED.composite,
		              metric_count = EXCLUDED.metric_count,
		              computed_at = EXCLUDED.computed_at`, payload.Period)
	if err != nil {
		resultErr = err
		logger.Error("rollup metrics", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed metrics rollup", slog.Int64("agents", tag.RowsAffected()))
	return resultErr
}

func (j *MetricsRollupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMetricsRollup))
	}
	return slog.Default().With(slog.String("job", TaskMetricsRollup))
}

func (j *MetricsRollupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
