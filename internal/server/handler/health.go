package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks one backing dependency.
type Pinger func(ctx context.Context) error

// HealthHandler reports process liveness and dependency reachability.
type HealthHandler struct {
	mode      string
	startedAt time.Time
	checks    map[string]Pinger
}

// NewHealthHandler creates a HealthHandler. checks maps a dependency name to
// its ping; nil values are skipped.
func NewHealthHandler(mode string, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		startedAt: time.Now().UTC(),
		checks:    checks,
	}
}

// Health returns process status and per-dependency reachability. The endpoint
// stays 200 as long as the process answers; degraded dependencies show up in
// the body so probes can alert without flapping the load balancer.
// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	status := "ok"
	for name, ping := range h.checks {
		if ping == nil {
			continue
		}
		if err := ping(ctx); err != nil {
			deps[name] = "unreachable"
			status = "degraded"
		} else {
			deps[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"dependencies":   deps,
	})
}
