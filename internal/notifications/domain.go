package notifications

import (
	"fmt"
	"time"
)

// Kind labels what a notification is about.
type Kind string

const (
	KindSessionCompleted Kind = "SESSION_COMPLETED"
	KindScorecardUpdated Kind = "SCORECARD_UPDATED"
	KindSystem           Kind = "SYSTEM"
)

// Notification is one message delivered to a user.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Channel returns the pub/sub channel name for a user's live feed.
func Channel(userID int64) string {
	return fmt.Sprintf("notify:%d", userID)
}
