package dashboard

import (
	"context"
	"time"

	"github.com/coachdesk/coachdesk/internal/platform/cache"
	"github.com/coachdesk/coachdesk/internal/rbac"
)

const summaryCacheTTL = 2 * time.Minute

// Summary is the role-scoped dashboard payload.
type Summary struct {
	Role                rbac.Role `json:"role"`
	AgentCount          int       `json:"agentCount"`
	UpcomingSessions    int       `json:"upcomingSessions"`
	AverageComposite    float64   `json:"averageComposite"`
	UnreadNotifications int       `json:"unreadNotifications"`
	Period              string    `json:"period"`
}

// Service assembles dashboard summaries scoped to what the principal may
// see.
type Service struct {
	repo      RepositoryPort
	directory rbac.TeamDirectory
	cache     *cache.Store
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, directory rbac.TeamDirectory, store *cache.Store) *Service {
	return &Service{repo: repo, directory: directory, cache: store}
}

// Summary returns the principal's dashboard, served through the cache.
func (s *Service) Summary(ctx context.Context, principal rbac.Principal) (*Summary, error) {
	var summary Summary
	err := s.cache.Fetch(ctx, cache.DashboardKey(principal.ID), summaryCacheTTL, &summary, func(ctx context.Context) (any, error) {
		return s.build(ctx, principal)
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Service) build(ctx context.Context, principal rbac.Principal) (*Summary, error) {
	visible, err := s.visibleSet(ctx, principal)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	period := now.Format("2006-01")

	agentCount, err := s.repo.CountAgents(ctx, visible)
	if err != nil {
		return nil, err
	}
	upcoming, err := s.repo.CountUpcomingSessions(ctx, visible, now)
	if err != nil {
		return nil, err
	}
	composite, err := s.repo.AverageComposite(ctx, visible, period)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnreadNotifications(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Role:                principal.Role,
		AgentCount:          agentCount,
		UpcomingSessions:    upcoming,
		AverageComposite:    composite,
		UnreadNotifications: unread,
		Period:              period,
	}, nil
}

func (s *Service) visibleSet(ctx context.Context, principal rbac.Principal) ([]int64, error) {
	switch principal.Role {
	case rbac.RoleAdmin:
		return nil, nil
	case rbac.RoleManager:
		return s.directory.OrgMemberIDs(ctx, principal.ID)
	case rbac.RoleTeamLeader:
		return s.directory.AgentIDs(ctx, principal.ID)
	default:
		return []int64{principal.ID}, nil
	}
}
