package coaching

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdesk/coachdesk/internal/shared"
)

// RepositoryPort defines persistence for sessions and quick notes.
type RepositoryPort interface {
	ListSessions(ctx context.Context, agentIDs []int64, status SessionStatus, limit, offset int) ([]Session, int, error)
	GetSession(ctx context.Context, id int64) (*Session, error)
	CreateSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, id int64) error
	ListNotes(ctx context.Context, agentID int64, limit int) ([]QuickNote, error)
	InsertNote(ctx context.Context, n *QuickNote) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `id, agent_id, coach_id, scheduled_at, status, focus_areas, action_items, summary, created_at, updated_at`

// ListSessions returns sessions for the given agents, newest first. A nil
// agentIDs slice means unrestricted.
func (r *Repository) ListSessions(ctx context.Context, agentIDs []int64, status SessionStatus, limit, offset int) ([]Session, int, error) {
	if agentIDs != nil && len(agentIDs) == 0 {
		return nil, 0, nil
	}
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM coaching_sessions
		WHERE ($1::bigint[] IS NULL OR agent_id = ANY($1)) AND ($2 = '' OR status = $2)`,
		agentIDs, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM coaching_sessions
		WHERE ($1::bigint[] IS NULL OR agent_id = ANY($1)) AND ($2 = '' OR status = $2)
		ORDER BY scheduled_at DESC, id DESC
		LIMIT $3 OFFSET $4`, agentIDs, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// GetSession fetches one session.
func (r *Repository) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM coaching_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a session and fills in generated fields.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO coaching_sessions (agent_id, coach_id, scheduled_at, status, focus_areas, action_items, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		s.AgentID, s.CoachID, s.ScheduledAt, string(s.Status), s.FocusAreas, s.ActionItems, s.Summary).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// UpdateSession persists mutable fields of an existing session.
func (r *Repository) UpdateSession(ctx context.Context, s *Session) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE coaching_sessions
		SET scheduled_at = $2, status = $3, focus_areas = $4, action_items = $5, summary = $6, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.ScheduledAt, string(s.Status), s.FocusAreas, s.ActionItems, s.Summary)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteSession removes a session.
func (r *Repository) DeleteSession(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coaching_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListNotes returns the most recent quick notes for an agent.
func (r *Repository) ListNotes(ctx context.Context, agentID int64, limit int) ([]QuickNote, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agent_id, author_id, body, created_at
		FROM quick_notes WHERE agent_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var notes []QuickNote
	for rows.Next() {
		var n QuickNote
		if err := rows.Scan(&n.ID, &n.AgentID, &n.AuthorID, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}

// InsertNote stores a quick note.
func (r *Repository) InsertNote(ctx context.Context, n *QuickNote) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO quick_notes (agent_id, author_id, body, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at`,
		n.AgentID, n.AuthorID, n.Body).
		Scan(&n.ID, &n.CreatedAt)
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		s      Session
		status string
	)
	if err := row.Scan(&s.ID, &s.AgentID, &s.CoachID, &s.ScheduledAt, &status, &s.FocusAreas, &s.ActionItems, &s.Summary, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Session{}, err
	}
	s.Status = SessionStatus(status)
	return s, nil
}

var _ RepositoryPort = (*Repository)(nil)
