package agents

import "time"

// Agent is a coached agent profile as exposed by the API. The team leader
// backreference mirrors the users table hierarchy.
type Agent struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	TeamLeaderID *int64    `json:"teamLeaderId,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ScorecardMetric is one recorded measurement on an agent's scorecard.
type ScorecardMetric struct {
	ID         int64     `json:"id"`
	AgentID    int64     `json:"agentId"`
	Metric     string    `json:"metric"`
	Score      float64   `json:"score"`
	Weight     float64   `json:"weight"`
	Period     string    `json:"period"`
	RecordedBy int64     `json:"recordedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Scorecard aggregates an agent's metrics for one period together with the
// weighted composite score.
type Scorecard struct {
	AgentID   int64             `json:"agentId"`
	Period    string            `json:"period"`
	Metrics   []ScorecardMetric `json:"metrics"`
	Composite float64           `json:"composite"`
}

// CompositeScore computes the weighted average of the metrics. Weights of
// zero fall back to an unweighted mean.
func CompositeScore(metrics []ScorecardMetric) float64 {
	if len(metrics) == 0 {
		return 0
	}
	var weighted, totalWeight float64
	for _, m := range metrics {
		weighted += m.Score * m.Weight
		totalWeight += m.Weight
	}
	if totalWeight == 0 {
		var sum float64
		for _, m := range metrics {
			sum += m.Score
		}
		return sum / float64(len(metrics))
	}
	return weighted / totalWeight
}
