package access

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/beaconhq/beacon/internal/observability"
	"github.com/beaconhq/beacon/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Require ensures the current user holds the permission with no
// project context.
func (m Middleware) Require(permission string) func(http.Handler) http.Handler {
	return m.require(permission, "")
}

// RequireForProject ensures the current user holds the permission for
// the project identified by the named chi URL parameter.
func (m Middleware) RequireForProject(permission, urlParam string) func(http.Handler) http.Handler {
	return m.require(permission, urlParam)
}

func (m Middleware) require(permission, urlParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			projectID := ""
			if urlParam != "" {
				projectID = chi.URLParam(r, urlParam)
			}
			granted, err := m.Service.HasPermission(r.Context(), userID, permission, projectID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			m.Metrics.ObserveAccessDecision(granted)
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := sess.User()
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("parse session user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}
