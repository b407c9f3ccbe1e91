package users_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
	"github.com/coachdesk/coachdesk/internal/users"
	_ "github.com/coachdesk/coachdesk/testing"
)

type stubUserRepo struct {
	created      []*users.User
	createdHash  string
	roleChanges  map[int64]rbac.Role
	activeStates map[int64]bool
	missing      bool
}

func (s *stubUserRepo) List(ctx context.Context, limit, offset int) ([]users.User, int, error) {
	return nil, 0, nil
}

func (s *stubUserRepo) Create(ctx context.Context, u *users.User, passwordHash string) error {
	u.ID = int64(len(s.created) + 1)
	s.created = append(s.created, u)
	s.createdHash = passwordHash
	return nil
}

func (s *stubUserRepo) UpdateRole(ctx context.Context, id int64, role rbac.Role) error {
	if s.missing {
		return shared.ErrNotFound
	}
	if s.roleChanges == nil {
		s.roleChanges = map[int64]rbac.Role{}
	}
	s.roleChanges[id] = role
	return nil
}

func (s *stubUserRepo) SetActive(ctx context.Context, id int64, active bool) error {
	if s.missing {
		return shared.ErrNotFound
	}
	if s.activeStates == nil {
		s.activeStates = map[int64]bool{}
	}
	s.activeStates[id] = active
	return nil
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateAll() {
	c.calls++
}

var admin = rbac.Principal{ID: 1, Role: rbac.RoleAdmin}

func TestCreateHashesPasswordAndDefaultsActive(t *testing.T) {
	repo := &stubUserRepo{}
	svc := users.NewService(repo, &countingInvalidator{}, nil)

	tl := int64(10)
	user, err := svc.Create(context.Background(), admin, users.CreateInput{
		Email:        "new.agent@test.local",
		Name:         "New Agent",
		Password:     "long-enough-password",
		Role:         "agent",
		TeamLeaderID: &tl,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Role != rbac.RoleAgent || !user.IsActive {
		t.Fatalf("unexpected user %+v", user)
	}
	if repo.createdHash == "long-enough-password" {
		t.Fatalf("expected hashed password, got plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(repo.createdHash), []byte("long-enough-password")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestCreateAgentRequiresTeamLeader(t *testing.T) {
	svc := users.NewService(&stubUserRepo{}, &countingInvalidator{}, nil)

	_, err := svc.Create(context.Background(), admin, users.CreateInput{
		Email:    "orphan@test.local",
		Name:     "Orphan",
		Password: "long-enough-password",
		Role:     "AGENT",
	})
	if !errors.Is(err, httpx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChangeRoleInvalidatesPermissionMemo(t *testing.T) {
	repo := &stubUserRepo{}
	invalidator := &countingInvalidator{}
	svc := users.NewService(repo, invalidator, nil)

	if err := svc.ChangeRole(context.Background(), admin, 42, "team_leader"); err != nil {
		t.Fatalf("change role: %v", err)
	}
	if repo.roleChanges[42] != rbac.RoleTeamLeader {
		t.Fatalf("expected role persisted, got %v", repo.roleChanges)
	}
	if invalidator.calls != 1 {
		t.Fatalf("expected permission memo invalidated")
	}
}

func TestChangeRoleRejectsSelf(t *testing.T) {
	svc := users.NewService(&stubUserRepo{}, &countingInvalidator{}, nil)

	err := svc.ChangeRole(context.Background(), admin, admin.ID, "MANAGER")
	if !errors.Is(err, httpx.ErrValidation) {
		t.Fatalf("expected validation error for self role change, got %v", err)
	}
}

func TestSetActiveRejectsSelfDeactivation(t *testing.T) {
	svc := users.NewService(&stubUserRepo{}, &countingInvalidator{}, nil)

	err := svc.SetActive(context.Background(), admin, admin.ID, false)
	if !errors.Is(err, httpx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetActiveUnknownUser(t *testing.T) {
	svc := users.NewService(&stubUserRepo{missing: true}, &countingInvalidator{}, nil)

	err := svc.SetActive(context.Background(), admin, 42, false)
	if !errors.Is(err, httpx.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
