package insights

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/coachdesk/coachdesk/internal/agents"
	"github.com/coachdesk/coachdesk/internal/coaching"
	"github.com/coachdesk/coachdesk/internal/platform/cache"
	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
)

const (
	insightCacheTTL = 24 * time.Hour

	snapshotSessionLimit = 5
	snapshotNoteLimit    = 10
	snapshotMetricLimit  = 40
)

// MetricsSource provides the agent profile and scorecard history. Satisfied
// by the agents repository.
type MetricsSource interface {
	GetAgent(ctx context.Context, id int64) (*agents.Agent, error)
	ListMetrics(ctx context.Context, agentID int64, period string) ([]agents.ScorecardMetric, error)
}

// SessionSource provides coaching history. Satisfied by the coaching
// repository.
type SessionSource interface {
	ListSessions(ctx context.Context, agentIDs []int64, status coaching.SessionStatus, limit, offset int) ([]coaching.Session, int, error)
	ListNotes(ctx context.Context, agentID int64, limit int) ([]coaching.QuickNote, error)
}

// Service generates and caches per-agent coaching insights. Generation is
// expensive so concurrent requests for the same agent collapse into one
// provider call.
type Service struct {
	logger   *slog.Logger
	metrics  MetricsSource
	sessions SessionSource
	provider Provider
	gate     *rbac.Gate
	cache    *cache.Store

	group singleflight.Group
}

// NewService builds a Service instance.
func NewService(logger *slog.Logger, metrics MetricsSource, sessions SessionSource, provider Provider, gate *rbac.Gate, store *cache.Store) *Service {
	return &Service{logger: logger, metrics: metrics, sessions: sessions, provider: provider, gate: gate, cache: store}
}

// AgentInsight returns the cached insight for an agent, generating one on a
// cache miss.
func (s *Service) AgentInsight(ctx context.Context, principal rbac.Principal, agentID int64) (*Insight, error) {
	ok, err := s.gate.HasOwnershipAccess(ctx, principal, agentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, httpx.ErrForbidden
	}

	key := cache.AgentInsightsKey(agentID)
	var cached Insight
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	resultChan := s.group.DoChan(key, func() (any, error) {
		return s.generate(context.WithoutCancel(ctx), agentID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Insight), nil
	}
}

// Warm regenerates and caches the insight for one agent. Used by the
// nightly warmup job.
func (s *Service) Warm(ctx context.Context, agentID int64) error {
	_, err := s.generate(ctx, agentID)
	return err
}

func (s *Service) generate(ctx context.Context, agentID int64) (*Insight, error) {
	snapshot, err := s.buildSnapshot(ctx, agentID)
	if err != nil {
		return nil, err
	}
	insight, err := s.provider.Generate(ctx, agentID, *snapshot)
	if err != nil {
		return nil, fmt.Errorf("insights: generate for agent %d: %w", agentID, err)
	}
	s.cache.SetJSON(ctx, cache.AgentInsightsKey(agentID), insight, insightCacheTTL)
	return insight, nil
}

func (s *Service) buildSnapshot(ctx context.Context, agentID int64) (*Snapshot, error) {
	agent, err := s.metrics.GetAgent(ctx, agentID)
	if err != nil {
		if err == shared.ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}

	metrics, err := s.metrics.ListMetrics(ctx, agentID, "")
	if err != nil {
		return nil, err
	}
	if len(metrics) > snapshotMetricLimit {
		metrics = metrics[:snapshotMetricLimit]
	}

	sessions, _, err := s.sessions.ListSessions(ctx, []int64{agentID}, coaching.StatusCompleted, snapshotSessionLimit, 0)
	if err != nil {
		return nil, err
	}
	notes, err := s.sessions.ListNotes(ctx, agentID, snapshotNoteLimit)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{AgentName: agent.Name}
	for _, m := range metrics {
		snapshot.Metrics = append(snapshot.Metrics, MetricPoint{Metric: m.Metric, Score: m.Score, Weight: m.Weight, Period: m.Period})
	}
	for _, sess := range sessions {
		snapshot.Sessions = append(snapshot.Sessions, SessionBrief{
			Status:      string(sess.Status),
			ScheduledAt: sess.ScheduledAt,
			FocusAreas:  sess.FocusAreas,
			Summary:     sess.Summary,
		})
	}
	for _, n := range notes {
		snapshot.RecentNotes = append(snapshot.RecentNotes, n.Body)
	}
	if composite := agents.CompositeScore(metrics); composite > 0 {
		snapshot.CompositeNote = fmt.Sprintf("composite score %.2f across %d metrics", composite, len(metrics))
	}
	return snapshot, nil
}
