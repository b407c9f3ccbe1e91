package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
)

// User is the admin view of an account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         rbac.Role `json:"role"`
	TeamLeaderID *int64    `json:"teamLeaderId,omitempty"`
	ManagedBy    *int64    `json:"managedBy,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RepositoryPort defines persistence for user administration.
type RepositoryPort interface {
	List(ctx context.Context, limit, offset int) ([]User, int, error)
	Create(ctx context.Context, u *User, passwordHash string) error
	UpdateRole(ctx context.Context, id int64, role rbac.Role) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, team_leader_id, managed_by, is_active, created_at, updated_at`

// List pages through all accounts.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY name, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Create inserts a new account and fills in generated fields.
func (r *Repository) Create(ctx context.Context, u *User, passwordHash string) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role, team_leader_id, managed_by, is_active, created_at, updated_at)
		VALUES (lower($1), $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		u.Email, u.Name, passwordHash, string(u.Role), u.TeamLeaderID, u.ManagedBy).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// UpdateRole changes an account's role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, role rbac.Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetActive toggles the account. Deactivation invalidates logins without
// destroying history.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.TeamLeaderID, &u.ManagedBy, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	u.Role = rbac.Role(role)
	return u, nil
}

var _ RepositoryPort = (*Repository)(nil)
