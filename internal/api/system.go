package api

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// SystemHandler serves the health endpoint.
type SystemHandler struct {
	version string
	store   string
	checks  map[string]HealthCheck
	started time.Time
}

// NewSystemHandler creates a SystemHandler. checks are keyed by dependency
// name.
func NewSystemHandler(version, store string, checks map[string]HealthCheck) *SystemHandler {
	return &SystemHandler{version: version, store: store, checks: checks, started: time.Now()}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Store         string            `json:"store"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:        "ok",
		Version:       h.version,
		Store:         h.store,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	WriteJSON(w, status, resp)
}
