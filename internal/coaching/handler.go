package coaching

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
)

// Handler wires coaching session and quick-note endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validator: validator.New()}
}

// MountRoutes registers session routes. Callers mount this under a subtree
// already guarded by RequireAuth.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(shared.PermViewSessions)).Get("/", h.list)
	r.With(h.rbac.Require(shared.PermManageSessions)).Post("/", h.create)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.With(h.rbac.Require(shared.PermViewSessions)).Get("/", h.get)
		r.With(h.rbac.Require(shared.PermManageSessions)).Put("/", h.update)
		r.With(h.rbac.Require(shared.PermManageSessions)).Delete("/", h.delete)
	})
}

// MountAgentNotes attaches quick-note routes under the per-agent subtree.
// Satisfies agents.NotesMounter.
func (h *Handler) MountAgentNotes(r chi.Router) {
	r.Route("/notes", func(r chi.Router) {
		r.With(h.rbac.Require(shared.PermViewAgents)).Get("/", h.listNotes)
		r.With(h.rbac.Require(shared.PermManageSessions)).Post("/", h.addNote)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var status SessionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := ParseStatus(raw)
		if err != nil {
			httpx.ValidationError(w, []string{"status must be SCHEDULED, COMPLETED or CANCELLED"})
			return
		}
		status = parsed
	}
	page, perPage := shared.PageParams(r)
	sessions, pagination, err := h.service.VisibleSessions(r.Context(), principal, status, page, perPage)
	if err != nil {
		h.logger.Error("list sessions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": sessions, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, sessionID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	session, err := h.service.GetSession(r.Context(), principal, sessionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var input SessionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if issues := h.validationIssues(input); len(issues) > 0 {
		httpx.ValidationError(w, issues)
		return
	}
	session, err := h.service.Schedule(r.Context(), principal, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"session": session})
}

type updateRequest struct {
	SessionInput
	Status string `json:"status" validate:"omitempty,oneof=SCHEDULED COMPLETED CANCELLED"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, sessionID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if issues := h.validationIssues(req); len(issues) > 0 {
		httpx.ValidationError(w, issues)
		return
	}
	session, err := h.service.Update(r.Context(), principal, sessionID, req.SessionInput, SessionStatus(req.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	principal, sessionID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), principal, sessionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	principal, agentID, ok := h.agentScope(w, r)
	if !ok {
		return
	}
	notes, err := h.service.NotesForAgent(r.Context(), principal, agentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if notes == nil {
		notes = []QuickNote{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notes": notes})
}

type noteRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	principal, agentID, ok := h.agentScope(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if issues := h.validationIssues(req); len(issues) > 0 {
		httpx.ValidationError(w, issues)
		return
	}
	note, err := h.service.AddNote(r.Context(), principal, agentID, req.Body)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"note": note})
}

func (h *Handler) requestScope(w http.ResponseWriter, r *http.Request) (rbac.Principal, int64, bool) {
	return h.pathScope(w, r, "sessionID", "Invalid session id")
}

func (h *Handler) agentScope(w http.ResponseWriter, r *http.Request) (rbac.Principal, int64, bool) {
	return h.pathScope(w, r, "agentID", "Invalid agent id")
}

func (h *Handler) pathScope(w http.ResponseWriter, r *http.Request, param, invalidMsg string) (rbac.Principal, int64, bool) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
		return rbac.Principal{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, invalidMsg)
		return rbac.Principal{}, 0, false
	}
	return principal, id, true
}

func (h *Handler) validationIssues(v any) []string {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"invalid payload"}
	}
	issues := make([]string, 0, len(verrs))
	for _, fieldErr := range verrs {
		issues = append(issues, fieldErr.Namespace()+": "+fieldErr.Tag())
	}
	return issues
}
