package agents

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/coachdesk/coachdesk/internal/platform/cache"
	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
)

const scorecardCacheTTL = 10 * time.Minute

// MetricInput is one scorecard entry submitted by a coach.
type MetricInput struct {
	Metric string  `json:"metric" validate:"required,max=80"`
	Score  float64 `json:"score" validate:"gte=0,lte=100"`
	Weight float64 `json:"weight" validate:"gte=0,lte=10"`
}

// Service coordinates agent visibility, scorecard reads through the cache,
// and invalidation on writes.
type Service struct {
	repo      RepositoryPort
	gate      *rbac.Gate
	directory rbac.TeamDirectory
	cache     *cache.Store
	audit     *shared.AuditLogger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, gate *rbac.Gate, directory rbac.TeamDirectory, store *cache.Store, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, gate: gate, directory: directory, cache: store, audit: audit}
}

// VisibleAgents lists the agents the principal may see: agents see only
// themselves, team leaders their team, managers their organisation, admins
// everyone.
func (s *Service) VisibleAgents(ctx context.Context, principal rbac.Principal, page, perPage int) ([]Agent, shared.Pagination, error) {
	var visible []int64
	switch principal.Role {
	case rbac.RoleAdmin:
		visible = nil
	case rbac.RoleManager:
		ids, err := s.directory.OrgMemberIDs(ctx, principal.ID)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		visible = ids
	case rbac.RoleTeamLeader:
		ids, err := s.directory.AgentIDs(ctx, principal.ID)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		visible = append(ids, principal.ID)
	default:
		visible = []int64{principal.ID}
	}
	agents, total, err := s.repo.ListAgents(ctx, visible, perPage, shared.Offset(page, perPage))
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return agents, shared.NewPagination(page, perPage, total), nil
}

// GetAgent returns one agent profile. The ownership check runs before the
// profile is fetched, so callers outside the hierarchy get a 403 without
// learning whether the agent exists.
func (s *Service) GetAgent(ctx context.Context, principal rbac.Principal, agentID int64) (*Agent, error) {
	if err := s.requireOwnership(ctx, principal, agentID); err != nil {
		return nil, err
	}
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		if err == shared.ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return agent, nil
}

// Scorecard returns an agent's metrics for a period, served through the
// cache when the backend is healthy.
func (s *Service) Scorecard(ctx context.Context, principal rbac.Principal, agentID int64, period string) (Scorecard, error) {
	if err := s.requireOwnership(ctx, principal, agentID); err != nil {
		return Scorecard{}, err
	}
	var card Scorecard
	err := s.cache.Fetch(ctx, cache.AgentMetricsKey(agentID, period), scorecardCacheTTL, &card, func(ctx context.Context) (any, error) {
		return s.loadScorecard(ctx, agentID, period)
	})
	return card, err
}

// RecordMetrics upserts scorecard entries and invalidates every cache key
// derived from the agent's data.
func (s *Service) RecordMetrics(ctx context.Context, principal rbac.Principal, agentID int64, period string, entries []MetricInput) (Scorecard, error) {
	if err := s.requireOwnership(ctx, principal, agentID); err != nil {
		return Scorecard{}, err
	}
	if period == "" || len(entries) == 0 {
		return Scorecard{}, fmt.Errorf("%w: period and at least one metric required", httpx.ErrValidation)
	}
	if _, err := s.repo.GetAgent(ctx, agentID); err != nil {
		if err == shared.ErrNotFound {
			return Scorecard{}, httpx.ErrNotFound
		}
		return Scorecard{}, err
	}
	metrics := make([]ScorecardMetric, len(entries))
	for i, e := range entries {
		metrics[i] = ScorecardMetric{
			AgentID:    agentID,
			Metric:     e.Metric,
			Score:      e.Score,
			Weight:     e.Weight,
			Period:     period,
			RecordedBy: principal.ID,
		}
	}
	if err := s.repo.InsertMetrics(ctx, metrics); err != nil {
		return Scorecard{}, err
	}
	cache.InvalidateAgent(ctx, s.cache, agentID)
	s.recordAudit(ctx, principal.ID, "scorecard.record", agentID, map[string]any{"period": period, "metrics": len(metrics)})
	card, err := s.loadScorecard(ctx, agentID, period)
	if err != nil {
		return Scorecard{}, err
	}
	return card, nil
}

// DeleteScorecard removes an agent's metrics for a period (or all periods
// when period is empty) and invalidates the agent's cache prefix.
func (s *Service) DeleteScorecard(ctx context.Context, principal rbac.Principal, agentID int64, period string) error {
	if err := s.requireOwnership(ctx, principal, agentID); err != nil {
		return err
	}
	removed, err := s.repo.DeleteMetrics(ctx, agentID, period)
	if err != nil {
		return err
	}
	if removed == 0 {
		return httpx.ErrNotFound
	}
	cache.InvalidateAgent(ctx, s.cache, agentID)
	s.recordAudit(ctx, principal.ID, "scorecard.delete", agentID, map[string]any{"period": period, "removed": removed})
	return nil
}

func (s *Service) loadScorecard(ctx context.Context, agentID int64, period string) (Scorecard, error) {
	metrics, err := s.repo.ListMetrics(ctx, agentID, period)
	if err != nil {
		return Scorecard{}, err
	}
	if len(metrics) == 0 {
		// Distinguish "no metrics yet" from "no such agent".
		if _, err := s.repo.GetAgent(ctx, agentID); err != nil {
			if err == shared.ErrNotFound {
				return Scorecard{}, httpx.ErrNotFound
			}
			return Scorecard{}, err
		}
	}
	return Scorecard{
		AgentID:   agentID,
		Period:    period,
		Metrics:   metrics,
		Composite: CompositeScore(metrics),
	}, nil
}

func (s *Service) requireOwnership(ctx context.Context, principal rbac.Principal, agentID int64) error {
	ok, err := s.gate.HasOwnershipAccess(ctx, principal, agentID)
	if err != nil {
		return err
	}
	if !ok {
		return httpx.ErrForbidden
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, agentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "agent",
		EntityID: strconv.FormatInt(agentID, 10),
		Meta:     meta,
	})
}
