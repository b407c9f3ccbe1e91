package rbac

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// memoTTL bounds how long role->permission associations are served from the
// in-process memo. Short enough that admin edits land quickly, long enough
// to keep the hot path off the database.
const memoTTL = 30 * time.Second

// Service backs the gate with PostgreSQL lookups. Role permission sets are
// memoized in a small expiring LRU; directory reads are always fresh.
type Service struct {
	pool *pgxpool.Pool
	memo *lru.LRU[Role, []string]
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{
		pool: pool,
		memo: lru.NewLRU[Role, []string](len(AllRoles()), nil, memoTTL),
	}
}

// RolePermissions returns the capability names associated with a role.
func (s *Service) RolePermissions(ctx context.Context, role Role) ([]string, error) {
	if cached, ok := s.memo.Get(role); ok {
		return cached, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role = $1
		ORDER BY p.name`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.memo.Add(role, names)
	return names, nil
}

// AgentIDs returns the agents reporting to the given team leader.
func (s *Service) AgentIDs(ctx context.Context, teamLeaderID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM users WHERE team_leader_id = $1 AND role = $2 AND is_active`,
		teamLeaderID, string(RoleAgent))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// OrgMemberIDs returns the team leaders managed by managerID plus those
// leaders' agents, in one query.
func (s *Service) OrgMemberIDs(ctx context.Context, managerID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM users
		WHERE is_active AND (
			managed_by = $1
			OR team_leader_id IN (SELECT id FROM users WHERE managed_by = $1)
		)`, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// PrincipalByID loads the gate's view of a user.
func (s *Service) PrincipalByID(ctx context.Context, id int64) (Principal, error) {
	var (
		p       Principal
		rawRole string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, role, team_leader_id, managed_by FROM users WHERE id = $1 AND is_active`,
		id).Scan(&p.ID, &rawRole, &p.TeamLeaderID, &p.ManagedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, err
	}
	role, err := ParseRole(rawRole)
	if err != nil {
		return Principal{}, err
	}
	p.Role = role
	return p, nil
}

// InvalidateRole drops the memoized permission set for one role.
func (s *Service) InvalidateRole(role Role) {
	s.memo.Remove(role)
}

// InvalidateAll drops every memoized permission set.
func (s *Service) InvalidateAll() {
	s.memo.Purge()
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
