package users

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/coachdesk/coachdesk/internal/platform/db"
	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
)

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"required,max=120"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	Role         string `json:"role" validate:"required"`
	TeamLeaderID *int64 `json:"teamLeaderId"`
	ManagedBy    *int64 `json:"managedBy"`
}

// PermissionInvalidator drops memoized role lookups after account changes.
type PermissionInvalidator interface {
	InvalidateAll()
}

// Service backs admin user management.
type Service struct {
	repo        RepositoryPort
	invalidator PermissionInvalidator
	audit       *shared.AuditLogger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, invalidator PermissionInvalidator, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, invalidator: invalidator, audit: audit}
}

// List pages through all accounts.
func (s *Service) List(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	users, total, err := s.repo.List(ctx, perPage, shared.Offset(page, perPage))
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(page, perPage, total), nil
}

// Create registers a new account with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, input CreateInput) (*User, error) {
	role, err := rbac.ParseRole(input.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown role", httpx.ErrValidation)
	}
	if role == rbac.RoleAgent && input.TeamLeaderID == nil {
		return nil, fmt.Errorf("%w: agents need a team leader", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &User{
		Email:        input.Email,
		Name:         input.Name,
		Role:         role,
		TeamLeaderID: input.TeamLeaderID,
		ManagedBy:    input.ManagedBy,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user, string(hash)); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already registered", httpx.ErrDuplicate)
		}
		return nil, err
	}
	s.recordAudit(ctx, actor.ID, "user.create", user.ID, map[string]any{"role": string(role)})
	return user, nil
}

// ChangeRole moves an account to a different role and drops cached
// permission lookups so the change takes effect immediately.
func (s *Service) ChangeRole(ctx context.Context, actor rbac.Principal, id int64, rawRole string) error {
	role, err := rbac.ParseRole(rawRole)
	if err != nil {
		return fmt.Errorf("%w: unknown role", httpx.ErrValidation)
	}
	if actor.ID == id {
		return fmt.Errorf("%w: cannot change own role", httpx.ErrValidation)
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		if err == shared.ErrNotFound {
			return httpx.ErrNotFound
		}
		return err
	}
	s.invalidator.InvalidateAll()
	s.recordAudit(ctx, actor.ID, "user.change_role", id, map[string]any{"role": string(role)})
	return nil
}

// SetActive enables or disables an account.
func (s *Service) SetActive(ctx context.Context, actor rbac.Principal, id int64, active bool) error {
	if actor.ID == id {
		return fmt.Errorf("%w: cannot deactivate own account", httpx.ErrValidation)
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if err == shared.ErrNotFound {
			return httpx.ErrNotFound
		}
		return err
	}
	action := "user.deactivate"
	if active {
		action = "user.activate"
	}
	s.recordAudit(ctx, actor.ID, action, id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	})
}
