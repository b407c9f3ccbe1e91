package roles

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdesk/coachdesk/internal/platform/db"
	"github.com/coachdesk/coachdesk/internal/rbac"
)

// RepositoryPort defines persistence for role and permission administration.
type RepositoryPort interface {
	UserCounts(ctx context.Context) (map[rbac.Role]int, error)
	PermissionsForRole(ctx context.Context, role rbac.Role) ([]rbac.Permission, error)
	ReplaceRolePermissions(ctx context.Context, role rbac.Role, permissionIDs []int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UserCounts returns active user counts per role.
func (r *Repository) UserCounts(ctx context.Context) (map[rbac.Role]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role, count(*) FROM users WHERE is_active GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[rbac.Role]int)
	for rows.Next() {
		var (
			role  string
			count int
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[rbac.Role(role)] = count
	}
	return counts, rows.Err()
}

// PermissionsForRole returns every known permission with its enabled flag
// for the given role.
func (r *Repository) PermissionsForRole(ctx context.Context, role rbac.Role) ([]rbac.Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.description, rp.role IS NOT NULL AS enabled
		FROM permissions p
		LEFT JOIN role_permissions rp ON rp.permission_id = p.id AND rp.role = $1
		ORDER BY p.name`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Enabled); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ReplaceRolePermissions swaps the role's permission associations in one
// transaction.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, role rbac.Role, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM role_permissions WHERE role = $1`, string(role)); err != nil {
			return err
		}
		for _, id := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role, permission_id) VALUES ($1, $2)`,
				string(role), id); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ RepositoryPort = (*Repository)(nil)
