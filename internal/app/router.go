package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/beaconhq/beacon/internal/access"
	"github.com/beaconhq/beacon/internal/auth"
	"github.com/beaconhq/beacon/internal/observability"
	"github.com/beaconhq/beacon/internal/projects"
	"github.com/beaconhq/beacon/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	AuthHandler     *auth.Handler
	AccessHandler   *access.Handler
	ProjectsHandler *projects.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Beacon defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
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
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/api/admin", params.AccessHandler.MountRoutes)
	r.Route("/api/projects", params.ProjectsHandler.MountRoutes)

	return r
}
