package notifications_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/coachdesk/coachdesk/internal/coaching"
	"github.com/coachdesk/coachdesk/internal/notifications"
	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/shared"
	_ "github.com/coachdesk/coachdesk/testing"
)

type stubNotificationRepo struct {
	stored []notifications.Notification
	read   []int64
	nextID int64
}

func (s *stubNotificationRepo) List(ctx context.Context, userID int64, limit, offset int) ([]notifications.Notification, int, error) {
	var out []notifications.Notification
	for _, n := range s.stored {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (s *stubNotificationRepo) Insert(ctx context.Context, n *notifications.Notification) error {
	s.nextID++
	n.ID = s.nextID
	n.CreatedAt = time.Now().UTC()
	s.stored = append(s.stored, *n)
	return nil
}

func (s *stubNotificationRepo) MarkRead(ctx context.Context, userID, id int64) error {
	for _, n := range s.stored {
		if n.ID == id && n.UserID == userID {
			s.read = append(s.read, id)
			return nil
		}
	}
	return shared.ErrNotFound
}

type stubEnqueuer struct {
	enqueued []string
	err      error
}

func (s *stubEnqueuer) EnqueueNotificationEmail(ctx context.Context, userID int64, subject, body string) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, subject)
	return nil
}

func newNotificationService(t *testing.T, email notifications.EmailEnqueuer) (*notifications.Service, *stubNotificationRepo, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &stubNotificationRepo{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return notifications.NewService(logger, repo, client, email), repo, client
}

func TestNotifyStoresPublishesAndEnqueues(t *testing.T) {
	email := &stubEnqueuer{}
	svc, repo, client := newNotificationService(t, email)
	ctx := context.Background()

	sub := svc.Subscribe(ctx, 100)
	defer func() {
		_ = sub.Close()
	}()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	n := &notifications.Notification{
		UserID: 100,
		Kind:   notifications.KindScorecardUpdated,
		Title:  "Scorecard updated",
		Body:   "Your August scorecard has new entries.",
	}
	if err := svc.Notify(ctx, n); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(repo.stored) != 1 || repo.stored[0].ID == 0 {
		t.Fatalf("expected stored notification, got %+v", repo.stored)
	}
	if len(email.enqueued) != 1 || email.enqueued[0] != "Scorecard updated" {
		t.Fatalf("expected email enqueued, got %v", email.enqueued)
	}

	select {
	case msg := <-sub.Channel():
		var got notifications.Notification
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("decode published payload: %v", err)
		}
		if got.UserID != 100 || got.Kind != notifications.KindScorecardUpdated {
			t.Fatalf("unexpected payload %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected message on user channel")
	}
	_ = client.Close()
}

func TestNotifySurvivesEmailFailure(t *testing.T) {
	email := &stubEnqueuer{err: errors.New("queue down")}
	svc, repo, _ := newNotificationService(t, email)

	n := &notifications.Notification{UserID: 7, Kind: notifications.KindSystem, Title: "Maintenance"}
	if err := svc.Notify(context.Background(), n); err != nil {
		t.Fatalf("expected notify to succeed despite email failure, got %v", err)
	}
	if len(repo.stored) != 1 {
		t.Fatalf("expected stored notification")
	}
}

func TestSessionCompletedNotifiesAgent(t *testing.T) {
	svc, repo, _ := newNotificationService(t, nil)

	session := coaching.Session{
		ID:          3,
		AgentID:     100,
		ScheduledAt: time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC),
	}
	svc.SessionCompleted(context.Background(), session)

	if len(repo.stored) != 1 {
		t.Fatalf("expected one notification, got %d", len(repo.stored))
	}
	got := repo.stored[0]
	if got.UserID != 100 || got.Kind != notifications.KindSessionCompleted {
		t.Fatalf("unexpected notification %+v", got)
	}
	if got.Body != "Your coaching session from 2026-08-20 has been completed." {
		t.Fatalf("unexpected body %q", got.Body)
	}
}

func TestMarkReadScopedToUser(t *testing.T) {
	svc, repo, _ := newNotificationService(t, nil)
	ctx := context.Background()

	n := &notifications.Notification{UserID: 100, Kind: notifications.KindSystem, Title: "Hello"}
	if err := repo.Insert(ctx, n); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.MarkRead(ctx, 999, n.ID); !errors.Is(err, httpx.ErrNotFound) {
		t.Fatalf("expected not found for foreign user, got %v", err)
	}
	if err := svc.MarkRead(ctx, 100, n.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(repo.read) != 1 {
		t.Fatalf("expected one acknowledged notification")
	}
}
