package roles

import (
	"context"
	"fmt"

	"github.com/coachdesk/coachdesk/internal/platform/cache"
	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
)

// PermissionInvalidator drops memoized role permission lookups after an
// association change. Satisfied by the rbac service.
type PermissionInvalidator interface {
	InvalidateRole(role rbac.Role)
}

var roleDescriptions = map[rbac.Role]string{
	rbac.RoleAdmin:      "Full administrative access to every feature and setting.",
	rbac.RoleManager:    "Oversees team leaders and their agents across the organization.",
	rbac.RoleTeamLeader: "Coaches and evaluates the agents on their own team.",
	rbac.RoleAgent:      "Views their own dashboard, scorecards and coaching history.",
}

// RoleSummary is the admin view of one role.
type RoleSummary struct {
	Role        rbac.Role         `json:"role"`
	DisplayName string            `json:"displayName"`
	Description string            `json:"description"`
	UserCount   int               `json:"userCount"`
	Permissions []rbac.Permission `json:"permissions"`
}

// Service backs role administration.
type Service struct {
	repo        RepositoryPort
	invalidator PermissionInvalidator
	cache       *cache.Store
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, invalidator PermissionInvalidator, store *cache.Store) *Service {
	return &Service{repo: repo, invalidator: invalidator, cache: store}
}

// Summaries returns every role with its user count and permission matrix.
func (s *Service) Summaries(ctx context.Context) ([]RoleSummary, error) {
	counts, err := s.repo.UserCounts(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]RoleSummary, 0, len(rbac.AllRoles()))
	for _, role := range rbac.AllRoles() {
		perms, err := s.repo.PermissionsForRole(ctx, role)
		if err != nil {
			return nil, err
		}
		if perms == nil {
			perms = []rbac.Permission{}
		}
		summaries = append(summaries, RoleSummary{
			Role:        role,
			DisplayName: role.DisplayName(),
			Description: roleDescriptions[role],
			UserCount:   counts[role],
			Permissions: perms,
		})
	}
	return summaries, nil
}

// ReplacePermissions swaps a role's permission set and invalidates every
// cache derived from it.
func (s *Service) ReplacePermissions(ctx context.Context, role rbac.Role, permissionIDs []int64) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role", httpx.ErrValidation)
	}
	if err := s.repo.ReplaceRolePermissions(ctx, role, permissionIDs); err != nil {
		return err
	}
	s.invalidator.InvalidateRole(role)
	s.cache.DeleteByPattern(ctx, cache.PrefixDashboard+":*")
	return nil
}
