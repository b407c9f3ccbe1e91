package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/coachdesk/coachdesk/internal/coaching"
	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/shared"
)

// EmailEnqueuer schedules asynchronous email delivery. Implemented by the
// jobs client; nil disables email.
type EmailEnqueuer interface {
	EnqueueNotificationEmail(ctx context.Context, userID int64, subject, body string) error
}

// Service creates notifications and fans them out over Redis pub/sub.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	redis  *redis.Client
	email  EmailEnqueuer
}

// NewService builds a Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, client *redis.Client, email EmailEnqueuer) *Service {
	return &Service{logger: logger, repo: repo, redis: client, email: email}
}

// Notify persists a notification and publishes it to the user's live
// channel. Publish and email failures are logged, not surfaced; the stored
// record is the source of truth.
func (s *Service) Notify(ctx context.Context, n *Notification) error {
	if err := s.repo.Insert(ctx, n); err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := s.redis.Publish(ctx, Channel(n.UserID), payload).Err(); err != nil {
		s.logger.Warn("notification publish", slog.Int64("user_id", n.UserID), slog.Any("error", err))
	}
	if s.email != nil {
		if err := s.email.EnqueueNotificationEmail(ctx, n.UserID, n.Title, n.Body); err != nil {
			s.logger.Warn("notification email enqueue", slog.Int64("user_id", n.UserID), slog.Any("error", err))
		}
	}
	return nil
}

// SessionCompleted satisfies coaching.Notifier. The agent is told their
// coaching session was wrapped up.
func (s *Service) SessionCompleted(ctx context.Context, session coaching.Session) {
	n := &Notification{
		UserID: session.AgentID,
		Kind:   KindSessionCompleted,
		Title:  "Coaching session completed",
		Body:   fmt.Sprintf("Your coaching session from %s has been completed.", session.ScheduledAt.Format("2006-01-02")),
	}
	if err := s.Notify(ctx, n); err != nil {
		s.logger.Error("session completed notification", slog.Int64("agent_id", session.AgentID), slog.Any("error", err))
	}
}

// ListForUser pages through a user's notifications.
func (s *Service) ListForUser(ctx context.Context, userID int64, page, perPage int) ([]Notification, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, userID, perPage, shared.Offset(page, perPage))
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// MarkRead acknowledges one notification for the user.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		if err == shared.ErrNotFound {
			return httpx.ErrNotFound
		}
		return err
	}
	return nil
}

// Subscribe opens the user's live channel. The caller must Close the
// returned subscription when done.
func (s *Service) Subscribe(ctx context.Context, userID int64) *redis.PubSub {
	return s.redis.Subscribe(ctx, Channel(userID))
}
