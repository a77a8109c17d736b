package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"coursepulse/internal/types"
)

// RouterConfig collects the handlers mounted under /v1 and the admin key
// guarding them.
type RouterConfig struct {
	AdminKey  types.SecretString
	Templates *TemplateHandler
	Instances *InstanceHandler
	Schedules *ScheduleHandler
}

// NewRouter builds the admin API router: request ID, recovery and timeout
// middleware, an unauthenticated health endpoint, and the versioned admin
// surface behind the API key.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"status": "ok"}})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireAdminKey(cfg.AdminKey))

		cfg.Templates.RegisterRoutes(r)
		cfg.Instances.RegisterRoutes(r)
		cfg.Schedules.RegisterRoutes(r)
	})

	return r
}
