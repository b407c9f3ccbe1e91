package cache

import (
	"context"
	"strconv"
)

// Key namespaces used across the application. Writes that change an agent's
// underlying records bulk-invalidate the agent's whole prefix instead of
// chasing individual keys.
const (
	PrefixAgentMetrics = "agent_metrics"
	PrefixQuickNotes   = "quick_notes"
	PrefixInsights     = "insights"
	PrefixDashboard    = "dashboard"
)

// AgentMetricsKey addresses one agent's scorecard for a period.
func AgentMetricsKey(agentID int64, period string) string {
	if period == "" {
		period = "all"
	}
	return Key(PrefixAgentMetrics, strconv.FormatInt(agentID, 10), period)
}

// QuickNotesKey addresses one agent's quick-note listing.
func QuickNotesKey(agentID int64) string {
	return Key(PrefixQuickNotes, strconv.FormatInt(agentID, 10))
}

// AgentInsightsKey addresses one agent's generated coaching insight.
func AgentInsightsKey(agentID int64) string {
	return Key(PrefixInsights, "agent", strconv.FormatInt(agentID, 10))
}

// DashboardKey addresses one user's dashboard summary.
func DashboardKey(userID int64) string {
	return Key(PrefixDashboard, strconv.FormatInt(userID, 10))
}

// InvalidateAgent removes every cached entry derived from the agent's data.
func InvalidateAgent(ctx context.Context, s *Store, agentID int64) {
	id := strconv.FormatInt(agentID, 10)
	s.DeleteByPattern(ctx, Key(PrefixAgentMetrics, id)+":*")
	s.Delete(ctx, QuickNotesKey(agentID))
	s.DeleteByPattern(ctx, Key(PrefixInsights, "agent", id)+"*")
}
