package agents

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
)

// NotesMounter lets the coaching module attach its quick-note routes under
// the per-agent subtree without the two packages importing each other.
type NotesMounter interface {
	MountAgentNotes(r chi.Router)
}

// Handler wires agent and scorecard endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	notes     NotesMounter
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware, notes NotesMounter) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, notes: notes, validator: validator.New()}
}

// MountRoutes registers agent routes. Callers mount this under a subtree
// already guarded by RequireAuth.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(shared.PermViewAgents)).Get("/", h.list)
	r.Route("/{agentID}", func(r chi.Router) {
		r.With(h.rbac.Require(shared.PermViewAgents)).Get("/", h.get)
		r.Route("/scorecard", func(r chi.Router) {
			r.With(h.rbac.Require(shared.PermViewScorecards)).Get("/", h.getScorecard)
			r.With(h.rbac.Require(shared.PermRecordScorecards)).Post("/", h.recordScorecard)
			r.With(h.rbac.Require(shared.PermRecordScorecards)).Delete("/", h.deleteScorecard)
			r.With(h.rbac.Require(shared.PermExportScorecards)).Get("/export.csv", h.exportScorecard)
			r.With(h.rbac.Require(shared.PermRecordScorecards)).Post("/import", h.importScorecard)
		})
		if h.notes != nil {
			h.notes.MountAgentNotes(r)
		}
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	page, perPage := shared.PageParams(r)
	agents, pagination, err := h.service.VisibleAgents(r.Context(), principal, page, perPage)
	if err != nil {
		h.logger.Error("list agents", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"agents": agents, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, agentID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	agent, err := h.service.GetAgent(r.Context(), principal, agentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"agent": agent})
}

func (h *Handler) getScorecard(w http.ResponseWriter, r *http.Request) {
	principal, agentID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	card, err := h.service.Scorecard(r.Context(), principal, agentID, r.URL.Query().Get("period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}

type scorecardRequest struct {
	Period  string        `json:"period" validate:"required,len=7"`
	Metrics []MetricInput `json:"metrics" validate:"required,min=1,max=50,dive"`
}

func (h *Handler) recordScorecard(w http.ResponseWriter, r *http.Request) {
	principal, agentID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	var req scorecardRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if issues := h.validationIssues(req); len(issues) > 0 {
		httpx.ValidationError(w, issues)
		return
	}
	card, err := h.service.RecordMetrics(r.Context(), principal, agentID, req.Period, req.Metrics)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, card)
}

func (h *Handler) deleteScorecard(w http.ResponseWriter, r *http.Request) {
	principal, agentID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteScorecard(r.Context(), principal, agentID, r.URL.Query().Get("period")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) exportScorecard(w http.ResponseWriter, r *http.Request) {
	principal, agentID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	card, err := h.service.Scorecard(r.Context(), principal, agentID, r.URL.Query().Get("period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=scorecard-%d.csv", agentID))
	if err := WriteScorecardCSV(w, card); err != nil {
		h.logger.Error("write scorecard csv", slog.Any("error", err))
	}
}

func (h *Handler) importScorecard(w http.ResponseWriter, r *http.Request) {
	principal, agentID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		httpx.ValidationError(w, []string{"period query parameter required"})
		return
	}
	inputs, issues := ParseScorecardCSV(r.Body)
	if len(issues) > 0 {
		httpx.ValidationError(w, issues)
		return
	}
	if len(inputs) == 0 {
		httpx.ValidationError(w, []string{"no metric rows found"})
		return
	}
	card, err := h.service.RecordMetrics(r.Context(), principal, agentID, period, inputs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, card)
}

// requestScope resolves the principal and path agent ID shared by every
// per-agent endpoint.
func (h *Handler) requestScope(w http.ResponseWriter, r *http.Request) (rbac.Principal, int64, bool) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
		return rbac.Principal{}, 0, false
	}
	agentID, err := strconv.ParseInt(chi.URLParam(r, "agentID"), 10, 64)
	if err != nil || agentID <= 0 {
		httpx.Error(w, http.StatusBadRequest, "Invalid agent id")
		return rbac.Principal{}, 0, false
	}
	return principal, agentID, true
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
