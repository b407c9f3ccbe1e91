package roles_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/coachdesk/coachdesk/internal/platform/cache"
	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/roles"
	_ "github.com/coachdesk/coachdesk/testing"
)

type stubRolesRepo struct {
	counts   map[rbac.Role]int
	perms    map[rbac.Role][]rbac.Permission
	replaced map[rbac.Role][]int64
}

func (s *stubRolesRepo) UserCounts(ctx context.Context) (map[rbac.Role]int, error) {
	return s.counts, nil
}

func (s *stubRolesRepo) PermissionsForRole(ctx context.Context, role rbac.Role) ([]rbac.Permission, error) {
	return s.perms[role], nil
}

func (s *stubRolesRepo) ReplaceRolePermissions(ctx context.Context, role rbac.Role, permissionIDs []int64) error {
	if s.replaced == nil {
		s.replaced = map[rbac.Role][]int64{}
	}
	s.replaced[role] = permissionIDs
	return nil
}

type recordingInvalidator struct {
	roles []rbac.Role
}

func (r *recordingInvalidator) InvalidateRole(role rbac.Role) {
	r.roles = append(r.roles, role)
}

func newRolesService(t *testing.T, repo *stubRolesRepo) (*roles.Service, *recordingInvalidator, *miniredis.Miniredis, *cache.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cache.NewStore(client, nil)
	store.Start(context.Background())
	invalidator := &recordingInvalidator{}
	return roles.NewService(repo, invalidator, store), invalidator, mr, store
}

func TestSummariesCoverEveryRole(t *testing.T) {
	repo := &stubRolesRepo{
		counts: map[rbac.Role]int{rbac.RoleAgent: 42, rbac.RoleTeamLeader: 6},
		perms: map[rbac.Role][]rbac.Permission{
			rbac.RoleTeamLeader: {{ID: 1, Name: "view_agents", Enabled: true}},
		},
	}
	svc, _, _, _ := newRolesService(t, repo)

	summaries, err := svc.Summaries(context.Background())
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != len(rbac.AllRoles()) {
		t.Fatalf("expected %d summaries, got %d", len(rbac.AllRoles()), len(summaries))
	}
	byRole := map[rbac.Role]roles.RoleSummary{}
	for _, s := range summaries {
		byRole[s.Role] = s
	}
	if byRole[rbac.RoleAgent].UserCount != 42 {
		t.Fatalf("expected agent count 42, got %d", byRole[rbac.RoleAgent].UserCount)
	}
	if byRole[rbac.RoleTeamLeader].DisplayName != "Team Leader" {
		t.Fatalf("unexpected display name %q", byRole[rbac.RoleTeamLeader].DisplayName)
	}
	if len(byRole[rbac.RoleTeamLeader].Permissions) != 1 {
		t.Fatalf("expected one permission for team leader")
	}
	// Roles with no stored associations render an empty list, not null.
	if byRole[rbac.RoleManager].Permissions == nil {
		t.Fatalf("expected empty permission slice for manager")
	}
}

func TestReplacePermissionsInvalidatesDerivedCaches(t *testing.T) {
	repo := &stubRolesRepo{}
	svc, invalidator, mr, store := newRolesService(t, repo)
	ctx := context.Background()

	store.Set(ctx, cache.DashboardKey(7), []byte("stale"), 0)
	store.Set(ctx, cache.QuickNotesKey(7), []byte("keep"), 0)

	if err := svc.ReplacePermissions(ctx, rbac.RoleTeamLeader, []int64{1, 2, 3}); err != nil {
		t.Fatalf("replace permissions: %v", err)
	}
	if got := repo.replaced[rbac.RoleTeamLeader]; len(got) != 3 {
		t.Fatalf("expected replacement persisted, got %v", got)
	}
	if len(invalidator.roles) != 1 || invalidator.roles[0] != rbac.RoleTeamLeader {
		t.Fatalf("expected role memo invalidated, got %v", invalidator.roles)
	}
	if mr.Exists(cache.DashboardKey(7)) {
		t.Fatalf("expected dashboard cache invalidated")
	}
	if !mr.Exists(cache.QuickNotesKey(7)) {
		t.Fatalf("expected unrelated keys untouched")
	}
}

func TestReplacePermissionsRejectsUnknownRole(t *testing.T) {
	svc, _, _, _ := newRolesService(t, &stubRolesRepo{})

	err := svc.ReplacePermissions(context.Background(), rbac.Role("SUPERVISOR"), nil)
	if !errors.Is(err, httpx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
