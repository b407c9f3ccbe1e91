package coaching

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus enumerates the lifecycle of a coaching session.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "SCHEDULED"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusCancelled SessionStatus = "CANCELLED"
)

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (SessionStatus, error) {
	status := SessionStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("coaching: unknown status %q", raw)
}

// Session is a one-on-one coaching session between a coach (team leader or
// manager) and an agent.
type Session struct {
	ID          int64         `json:"id"`
	AgentID     int64         `json:"agentId"`
	CoachID     int64         `json:"coachId"`
	ScheduledAt time.Time     `json:"scheduledAt"`
	Status      SessionStatus `json:"status"`
	FocusAreas  []string      `json:"focusAreas"`
	ActionItems []string      `json:"actionItems"`
	Summary     string        `json:"summary"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// QuickNote is a short free-form coaching observation about an agent.
type QuickNote struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agentId"`
	AuthorID  int64     `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
