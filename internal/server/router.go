package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openjobspec/ojs-cron/internal/api"
	"github.com/openjobspec/ojs-cron/internal/core"
	"github.com/openjobspec/ojs-cron/internal/runlog"
)

// RouterDeps are the components the HTTP API serves.
type RouterDeps struct {
	Registry *core.Registry
	Store    runlog.Store
	Runner   api.JobRunner
	Metrics  http.Handler
	Checks   map[string]api.HealthCheck
}

// NewRouter creates the HTTP router. /health and /metrics are open; /v1
// requires the API key when one is configured.
func NewRouter(cfg Config, deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(api.RequestID)
	r.Use(api.RequestLogger)
	r.Use(api.LimitBody)

	systemH := api.NewSystemHandler(core.Version, cfg.Store, deps.Checks)
	r.Get("/health", systemH.Health)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	jobH := api.NewJobHandler(deps.Registry, deps.Store, deps.Runner)
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.APIKeyAuth(cfg.APIKey))

		r.Get("/jobs", jobH.List)
		r.Get("/jobs/{code}", jobH.Get)
		r.Get("/jobs/{code}/runs", jobH.Runs)
		r.Post("/jobs/{code}/run", jobH.Run)
	})

	return r
}
