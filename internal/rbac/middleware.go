package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coachdesk/coachdesk/internal/platform/httpx"
	"github.com/coachdesk/coachdesk/internal/shared"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal resolved by RequireAuth.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// PrincipalLoader resolves a user ID into the gate's principal view.
type PrincipalLoader interface {
	PrincipalByID(ctx context.Context, id int64) (Principal, error)
}

// Middleware wires authorization for HTTP handlers. RequireAuth resolves the
// principal once per request; Require layers capability checks on top.
// Authorization failures are terminal: 401 before any lookup when the caller
// is unauthenticated, 403 when a capability or ownership check fails.
type Middleware struct {
	Gate       *Gate
	Principals PrincipalLoader
	Logger     *slog.Logger
}

// RequireAuth rejects unauthenticated requests and stashes the principal.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || !sess.Authenticated() {
			httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		principal, err := m.Principals.PrincipalByID(r.Context(), sess.UserID())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Session outlived the account; treat as unauthenticated.
				httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if m.Logger != nil {
				m.Logger.Error("rbac resolve principal", slog.Any("error", err))
			}
			httpx.Error(w, http.StatusInternalServerError, "Internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// Require ensures the current principal carries the named capability.
func (m Middleware) Require(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			allowed, err := m.Gate.HasPermission(r.Context(), principal.Role, capability)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac capability check", slog.String("capability", capability), slog.Any("error", err))
				}
				httpx.Error(w, http.StatusInternalServerError, "Internal error")
				return
			}
			if !allowed {
				httpx.Error(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole restricts a subtree to the given roles. Admin always passes.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if principal.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[principal.Role]; !ok {
				httpx.Error(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
