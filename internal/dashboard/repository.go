package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines the aggregate queries behind the dashboard.
type RepositoryPort interface {
	CountAgents(ctx context.Context, visibleIDs []int64) (int, error)
	CountUpcomingSessions(ctx context.Context, visibleIDs []int64, from time.Time) (int, error)
	AverageComposite(ctx context.Context, visibleIDs []int64, period string) (float64, error)
	CountUnreadNotifications(ctx context.Context, userID int64) (int, error)
}

// Repository provides PostgreSQL backed aggregates.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountAgents counts active agents in the visible set. A nil set means
// unrestricted.
func (r *Repository) CountAgents(ctx context.Context, visibleIDs []int64) (int, error) {
	if visibleIDs != nil && len(visibleIDs) == 0 {
		return 0, nil
	}
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM users
		WHERE role = 'AGENT' AND is_active AND ($1::bigint[] IS NULL OR id = ANY($1))`,
		visibleIDs).Scan(&count)
	return count, err
}

// CountUpcomingSessions counts scheduled sessions from the given time on.
func (r *Repository) CountUpcomingSessions(ctx context.Context, visibleIDs []int64, from time.Time) (int, error) {
	if visibleIDs != nil && len(visibleIDs) == 0 {
		return 0, nil
	}
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM coaching_sessions
		WHERE status = 'SCHEDULED' AND scheduled_at >= $2
		AND ($1::bigint[] IS NULL OR agent_id = ANY($1))`,
		visibleIDs, from).Scan(&count)
	return count, err
}

// AverageComposite computes the mean monthly composite over the visible set
// from the rollup table. Returns zero when no rollups exist yet.
func (r *Repository) AverageComposite(ctx context.Context, visibleIDs []int64, period string) (float64, error) {
	if visibleIDs != nil && len(visibleIDs) == 0 {
		return 0, nil
	}
	var avg float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(avg(composite), 0) FROM agent_metric_rollups
		WHERE period = $2 AND ($1::bigint[] IS NULL OR agent_id = ANY($1))`,
		visibleIDs, period).Scan(&avg)
	return avg, err
}

// CountUnreadNotifications counts a user's unread notifications.
func (r *Repository) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID).Scan(&count)
	return count, err
}

var _ RepositoryPort = (*Repository)(nil)
