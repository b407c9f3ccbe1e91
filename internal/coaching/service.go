package coaching

import (
	"context"
	"fmt"
	"time"

	"github.com/coachdesk/coachdesk/internal/platform/cache"
	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
)

const (
	notesCacheTTL = 5 * time.Minute
	notesLimit    = 50
)

// Notifier is told about session lifecycle events worth surfacing to the
// agent. Implemented by the notifications service.
type Notifier interface {
	SessionCompleted(ctx context.Context, session Session)
}

// SessionInput carries the mutable fields of a coaching session.
type SessionInput struct {
	AgentID     int64     `json:"agentId" validate:"required,gt=0"`
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
	FocusAreas  []string  `json:"focusAreas" validate:"max=10,dive,max=120"`
	ActionItems []string  `json:"actionItems" validate:"max=20,dive,max=240"`
	Summary     string    `json:"summary" validate:"max=4000"`
}

// Service handles coaching session and quick-note business rules.
type Service struct {
	repo      RepositoryPort
	gate      *rbac.Gate
	directory rbac.TeamDirectory
	cache     *cache.Store
	notifier  Notifier
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, gate *rbac.Gate, directory rbac.TeamDirectory, store *cache.Store, notifier Notifier) *Service {
	return &Service{repo: repo, gate: gate, directory: directory, cache: store, notifier: notifier}
}

// VisibleSessions lists sessions for agents the principal may see.
func (s *Service) VisibleSessions(ctx context.Context, principal rbac.Principal, status SessionStatus, page, perPage int) ([]Session, shared.Pagination, error) {
	var visible []int64
	switch principal.Role {
	case rbac.RoleAdmin:
		visible = nil
	case rbac.RoleManager:
		ids, err := s.directory.OrgMemberIDs(ctx, principal.ID)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		visible = ids
	case rbac.RoleTeamLeader:
		ids, err := s.directory.AgentIDs(ctx, principal.ID)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		visible = ids
	default:
		visible = []int64{principal.ID}
	}
	sessions, total, err := s.repo.ListSessions(ctx, visible, status, perPage, shared.Offset(page, perPage))
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return sessions, shared.NewPagination(page, perPage, total), nil
}

// GetSession fetches one session after an ownership check against the
// session's agent. The session's coach always has access to it.
func (s *Service) GetSession(ctx context.Context, principal rbac.Principal, id int64) (*Session, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		if err == shared.ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	if err := s.requireSessionAccess(ctx, principal, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Schedule creates a new session for an agent within the coach's scope.
func (s *Service) Schedule(ctx context.Context, principal rbac.Principal, input SessionInput) (*Session, error) {
	if err := s.requireAgentAccess(ctx, principal, input.AgentID); err != nil {
		return nil, err
	}
	session := &Session{
		AgentID:     input.AgentID,
		CoachID:     principal.ID,
		ScheduledAt: input.ScheduledAt,
		Status:      StatusScheduled,
		FocusAreas:  input.FocusAreas,
		ActionItems: input.ActionItems,
		Summary:     input.Summary,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Update modifies a session. Completed sessions are immutable coaching
// records; transitioning into COMPLETED notifies the agent and invalidates
// derived insight caches.
func (s *Service) Update(ctx context.Context, principal rbac.Principal, id int64, input SessionInput, status SessionStatus) (*Session, error) {
	session, err := s.GetSession(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusCompleted {
		return nil, fmt.Errorf("%w: completed sessions cannot be modified", httpx.ErrValidation)
	}
	completing := status == StatusCompleted && session.Status != StatusCompleted

	session.ScheduledAt = input.ScheduledAt
	session.FocusAreas = input.FocusAreas
	session.ActionItems = input.ActionItems
	session.Summary = input.Summary
	if status != "" {
		session.Status = status
	}
	if err := s.repo.UpdateSession(ctx, session); err != nil {
		if err == shared.ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	if completing {
		s.cache.DeleteByPattern(ctx, cache.AgentInsightsKey(session.AgentID)+"*")
		if s.notifier != nil {
			s.notifier.SessionCompleted(ctx, *session)
		}
	}
	return session, nil
}

// Delete removes a scheduled or cancelled session. Completed sessions stay.
func (s *Service) Delete(ctx context.Context, principal rbac.Principal, id int64) error {
	session, err := s.GetSession(ctx, principal, id)
	if err != nil {
		return err
	}
	if session.Status == StatusCompleted {
		return fmt.Errorf("%w: completed sessions cannot be deleted", httpx.ErrValidation)
	}
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		if err == shared.ErrNotFound {
			return httpx.ErrNotFound
		}
		return err
	}
	return nil
}

// NotesForAgent returns recent quick notes, served through the cache.
func (s *Service) NotesForAgent(ctx context.Context, principal rbac.Principal, agentID int64) ([]QuickNote, error) {
	if err := s.requireAgentAccess(ctx, principal, agentID); err != nil {
		return nil, err
	}
	var notes []QuickNote
	err := s.cache.Fetch(ctx, cache.QuickNotesKey(agentID), notesCacheTTL, &notes, func(ctx context.Context) (any, error) {
		return s.repo.ListNotes(ctx, agentID, notesLimit)
	})
	return notes, err
}

// AddNote stores a quick note and invalidates the agent's note cache.
func (s *Service) AddNote(ctx context.Context, principal rbac.Principal, agentID int64, body string) (*QuickNote, error) {
	if err := s.requireAgentAccess(ctx, principal, agentID); err != nil {
		return nil, err
	}
	if body == "" || len(body) > 2000 {
		return nil, fmt.Errorf("%w: note body must be 1-2000 characters", httpx.ErrValidation)
	}
	note := &QuickNote{AgentID: agentID, AuthorID: principal.ID, Body: body}
	if err := s.repo.InsertNote(ctx, note); err != nil {
		return nil, err
	}
	s.cache.Delete(ctx, cache.QuickNotesKey(agentID))
	s.cache.DeleteByPattern(ctx, cache.AgentInsightsKey(agentID)+"*")
	return note, nil
}

func (s *Service) requireAgentAccess(ctx context.Context, principal rbac.Principal, agentID int64) error {
	ok, err := s.gate.HasOwnershipAccess(ctx, principal, agentID)
	if err != nil {
		return err
	}
	if !ok {
		return httpx.ErrForbidden
	}
	return nil
}

func (s *Service) requireSessionAccess(ctx context.Context, principal rbac.Principal, session *Session) error {
	if session.CoachID == principal.ID {
		return nil
	}
	return s.requireAgentAccess(ctx, principal, session.AgentID)
}
