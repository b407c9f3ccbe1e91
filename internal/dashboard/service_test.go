package dashboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/coachdesk/coachdesk/internal/dashboard"
	"github.com/coachdesk/coachdesk/internal/platform/cache"
	"github.com/coachdesk/coachdesk/internal/rbac"
	_ "github.com/coachdesk/coachdesk/testing"
)

type stubDashboardRepo struct {
	lastVisible []int64
	builds      int
}

func (s *stubDashboardRepo) CountAgents(ctx context.Context, visibleIDs []int64) (int, error) {
	s.builds++
	s.lastVisible = visibleIDs
	return 12, nil
}

func (s *stubDashboardRepo) CountUpcomingSessions(ctx context.Context, visibleIDs []int64, from time.Time) (int, error) {
	return 3, nil
}

func (s *stubDashboardRepo) AverageComposite(ctx context.Context, visibleIDs []int64, period string) (float64, error) {
	return 81.5, nil
}

func (s *stubDashboardRepo) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	return 4, nil
}

type teamDirectory struct{}

func (teamDirectory) AgentIDs(ctx context.Context, teamLeaderID int64) ([]int64, error) {
	return []int64{100, 101}, nil
}

func (teamDirectory) OrgMemberIDs(ctx context.Context, managerID int64) ([]int64, error) {
	return []int64{10, 100, 101}, nil
}

func newDashboardService(t *testing.T) (*dashboard.Service, *stubDashboardRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cache.NewStore(client, nil)
	store.Start(context.Background())
	repo := &stubDashboardRepo{}
	return dashboard.NewService(repo, teamDirectory{}, store), repo
}

func TestSummaryAggregatesAndCaches(t *testing.T) {
	svc, repo := newDashboardService(t)
	ctx := context.Background()
	leader := rbac.Principal{ID: 10, Role: rbac.RoleTeamLeader}

	first, err := svc.Summary(ctx, leader)
	if err != nil {
		t.Fatalf("first summary: %v", err)
	}
	if first.AgentCount != 12 || first.UpcomingSessions != 3 || first.AverageComposite != 81.5 || first.UnreadNotifications != 4 {
		t.Fatalf("unexpected summary %+v", first)
	}
	if first.Period != time.Now().UTC().Format("2006-01") {
		t.Fatalf("unexpected period %q", first.Period)
	}
	if len(repo.lastVisible) != 2 {
		t.Fatalf("expected team scope, got %v", repo.lastVisible)
	}

	if _, err := svc.Summary(ctx, leader); err != nil {
		t.Fatalf("second summary: %v", err)
	}
	if repo.builds != 1 {
		t.Fatalf("expected cached second read, built %d times", repo.builds)
	}
}

func TestSummaryScopesByRole(t *testing.T) {
	svc, repo := newDashboardService(t)
	ctx := context.Background()

	if _, err := svc.Summary(ctx, rbac.Principal{ID: 5, Role: rbac.RoleAdmin}); err != nil {
		t.Fatalf("admin summary: %v", err)
	}
	if repo.lastVisible != nil {
		t.Fatalf("expected unrestricted admin scope, got %v", repo.lastVisible)
	}

	if _, err := svc.Summary(ctx, rbac.Principal{ID: 100, Role: rbac.RoleAgent}); err != nil {
		t.Fatalf("agent summary: %v", err)
	}
	if len(repo.lastVisible) != 1 || repo.lastVisible[0] != 100 {
		t.Fatalf("expected self scope, got %v", repo.lastVisible)
	}
}
