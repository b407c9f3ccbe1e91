package agents

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdesk/coachdesk/internal/shared"
)

// RepositoryPort defines data access for agent profiles and scorecards.
type RepositoryPort interface {
	ListAgents(ctx context.Context, visibleIDs []int64, limit, offset int) ([]Agent, int, error)
	GetAgent(ctx context.Context, id int64) (*Agent, error)
	ListMetrics(ctx context.Context, agentID int64, period string) ([]ScorecardMetric, error)
	InsertMetrics(ctx context.Context, metrics []ScorecardMetric) error
	DeleteMetrics(ctx context.Context, agentID int64, period string) (int64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListAgents returns active agents, restricted to visibleIDs when non-nil.
// A nil slice means unrestricted; an empty slice means nothing is visible.
func (r *Repository) ListAgents(ctx context.Context, visibleIDs []int64, limit, offset int) ([]Agent, int, error) {
	if visibleIDs != nil && len(visibleIDs) == 0 {
		return nil, 0, nil
	}
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM users
		WHERE role = 'AGENT' AND is_active AND ($1::bigint[] IS NULL OR id = ANY($1))`,
		visibleIDs).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, name, team_leader_id, is_active, created_at, updated_at
		FROM users
		WHERE role = 'AGENT' AND is_active AND ($1::bigint[] IS NULL OR id = ANY($1))
		ORDER BY name, id
		LIMIT $2 OFFSET $3`, visibleIDs, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Email, &a.Name, &a.TeamLeaderID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, err
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return agents, total, nil
}

// GetAgent fetches one agent profile.
func (r *Repository) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	var a Agent
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, team_leader_id, is_active, created_at, updated_at
		FROM users WHERE id = $1 AND role = 'AGENT'`, id).
		Scan(&a.ID, &a.Email, &a.Name, &a.TeamLeaderID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListMetrics returns scorecard metrics for an agent, optionally filtered by period.
func (r *Repository) ListMetrics(ctx context.Context, agentID int64, period string) ([]ScorecardMetric, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agent_id, metric, score, weight, period, recorded_by, created_at
		FROM agent_metrics
		WHERE agent_id = $1 AND ($2 = '' OR period = $2)
		ORDER BY period DESC, metric`, agentID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var metrics []ScorecardMetric
	for rows.Next() {
		var m ScorecardMetric
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Metric, &m.Score, &m.Weight, &m.Period, &m.RecordedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return metrics, nil
}

// InsertMetrics stores a batch of metrics in one transaction.
func (r *Repository) InsertMetrics(ctx context.Context, metrics []ScorecardMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO agent_metrics (agent_id, metric, score, weight, period, recorded_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (agent_id, metric, period)
			DO UPDATE SET score = EXCLUDED.score, weight = EXCLUDED.weight, recorded_by = EXCLUDED.recorded_by`,
			m.AgentID, m.Metric, m.Score, m.Weight, m.Period, m.RecordedBy)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range metrics {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMetrics removes an agent's metrics, optionally scoped to a period.
// Returns the number of rows removed.
func (r *Repository) DeleteMetrics(ctx context.Context, agentID int64, period string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM agent_metrics WHERE agent_id = $1 AND ($2 = '' OR period = $2)`,
		agentID, period)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ RepositoryPort = (*Repository)(nil)
