package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/coachdesk/coachdesk/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// EmailSender delivers a single message. Implemented against SMTP in
// production, stubbed in tests.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NotificationEmailJob delivers notification emails to users.
type NotificationEmailJob struct {
	Pool    *pgxpool.Pool
	Sender  EmailSender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNotificationEmailJob wires dependencies for the email handler.
func NewNotificationEmailJob(pool *pgxpool.Pool, sender EmailSender, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationEmailJob {
	return &NotificationEmailJob{Pool: pool, Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle processes notification email tasks. Inactive or missing users skip
// delivery without retrying.
func (j *NotificationEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("notification email: handler not configured")
	}
	var payload NotificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskNotificationEmail)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("user_id", payload.UserID))

	var email string
	err := j.Pool.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1 AND is_active`, payload.UserID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Info("skipping email for inactive user")
			return nil
		}
		resultErr = err
		return resultErr
	}

	if j.Sender == nil {
		logger.Info("no email sender configured, dropping message")
		return nil
	}
	if err := j.Sender.Send(ctx, email, payload.Subject, payload.Body); err != nil {
		resultErr = err
		logger.Error("send notification email", slog.Any("error", err))
		return resultErr
	}
	logger.Info("notification email sent")
	return resultErr
}

func (j *NotificationEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskNotificationEmail))
	}
	return slog.Default().With(slog.String("job", TaskNotificationEmail))
}

func (j *NotificationEmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
