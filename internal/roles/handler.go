package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/rbac"
)

// Handler wires role administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers role routes. Admin only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireRole(rbac.RoleAdmin))
	r.Get("/", h.list)
	r.Put("/{role}/permissions", h.replacePermissions)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.Summaries(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": summaries})
}

type replacePermissionsRequest struct {
	PermissionIDs []int64 `json:"permissionIds"`
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	role, err := rbac.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid role")
		return
	}
	var req replacePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if err := h.service.ReplacePermissions(r.Context(), role, req.PermissionIDs); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
