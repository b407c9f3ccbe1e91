package insights

import "time"

// Insight is a generated coaching summary for a single agent.
type Insight struct {
	AgentID         int64     `json:"agentId"`
	Summary         string    `json:"summary"`
	Strengths       []string  `json:"strengths"`
	Risks           []string  `json:"risks"`
	Recommendations []string  `json:"recommendations"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

// Snapshot is the performance context handed to the provider. It carries
// recent scorecard metrics, coaching history and quick notes in a shape the
// provider prompt is built from.
type Snapshot struct {
	AgentName     string         `json:"agentName"`
	Metrics       []MetricPoint  `json:"metrics"`
	Sessions      []SessionBrief `json:"sessions"`
	RecentNotes   []string       `json:"recentNotes"`
	CompositeNote string         `json:"compositeNote,omitempty"`
}

// MetricPoint is one scorecard measurement.
type MetricPoint struct {
	Metric string  `json:"metric"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Period string  `json:"period"`
}

// SessionBrief summarises one coaching session for the prompt.
type SessionBrief struct {
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduledAt"`
	FocusAreas  []string  `json:"focusAreas"`
	Summary     string    `json:"summary,omitempty"`
}
