package notifications

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdesk/coachdesk/internal/shared"
)

// RepositoryPort defines notification persistence.
type RepositoryPort interface {
	List(ctx context.Context, userID int64, limit, offset int) ([]Notification, int, error)
	Insert(ctx context.Context, n *Notification) error
	MarkRead(ctx context.Context, userID, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns a user's notifications, newest first, with the total count.
func (r *Repository) List(ctx context.Context, userID int64, limit, offset int) ([]Notification, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, kind, title, body, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var (
			n    Notification
			kind string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		n.Kind = Kind(kind)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Insert stores a notification and fills in generated fields.
func (r *Repository) Insert(ctx context.Context, n *Notification) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, kind, title, body, read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		RETURNING id, created_at`,
		n.UserID, string(n.Kind), n.Title, n.Body).
		Scan(&n.ID, &n.CreatedAt)
}

// MarkRead flags a notification as read. The user scope keeps one user from
// acknowledging another's notifications.
func (r *Repository) MarkRead(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
