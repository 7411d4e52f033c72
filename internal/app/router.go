package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/carelink-hms/carelink/internal/audit"
	"github.com/carelink-hms/carelink/internal/auth"
	"github.com/carelink-hms/carelink/internal/authz"
	"github.com/carelink-hms/carelink/internal/identity"
	"github.com/carelink-hms/carelink/internal/observability"
	"github.com/carelink-hms/carelink/internal/shared"
	"github.com/carelink-hms/carelink/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	AuthHandler     *auth.Handler
	IdentityHandler *identity.Handler
	AccessHandler   *authz.Handler
	AuditHandler    *audit.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with CareLink defaults.
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

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.IdentityHandler != nil {
		r.Route("/me", params.IdentityHandler.MountProfileRoutes)
		r.Route("/users", func(r chi.Router) {
			params.IdentityHandler.MountRoutes(r)
			params.AccessHandler.MountUserAccessRoutes(r)
		})
	}
	if params.AccessHandler != nil {
		r.Route("/roles", params.AccessHandler.MountRoleRoutes)
		r.Route("/permissions", params.AccessHandler.MountPermissionRoutes)
		r.Route("/functions", params.AccessHandler.MountFunctionRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
