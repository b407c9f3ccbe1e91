package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"log/slog"

	"github.com/coachdesk/coachdesk/internal/agents"
	"github.com/coachdesk/coachdesk/internal/auth"
	"github.com/coachdesk/coachdesk/internal/coaching"
	"github.com/coachdesk/coachdesk/internal/dashboard"
	"github.com/coachdesk/coachdesk/internal/insights"
	"github.com/coachdesk/coachdesk/internal/notifications"
	"github.com/coachdesk/coachdesk/internal/observability"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/roles"
	"github.com/coachdesk/coachdesk/internal/shared"
	"github.com/coachdesk/coachdesk/internal/users"
	"github.com/coachdesk/coachdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware

	AuthHandler          *auth.Handler
	AgentsHandler        *agents.Handler
	CoachingHandler      *coaching.Handler
	InsightsHandler      *insights.Handler
	NotificationsHandler *notifications.Handler
	RolesHandler         *roles.Handler
	UsersHandler         *users.Handler
	DashboardHandler     *dashboard.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with CoachDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAuth)

			if params.DashboardHandler != nil {
				r.Route("/dashboard", params.DashboardHandler.MountRoutes)
			}
			r.Route("/agents", params.AgentsHandler.MountRoutes)
			r.Route("/sessions", params.CoachingHandler.MountRoutes)
			if params.InsightsHandler != nil {
				r.Route("/insights", params.InsightsHandler.MountRoutes)
			}
			r.Route("/notifications", params.NotificationsHandler.MountRoutes)
			r.Route("/roles", params.RolesHandler.MountRoutes)
			r.Route("/users", params.UsersHandler.MountRoutes)
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}
