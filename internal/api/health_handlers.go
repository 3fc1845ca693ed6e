package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/plaques/internal/health"
)

// readyCheckTimeout bounds each dependency check of the readiness probe.
const readyCheckTimeout = 5 * time.Second

// DegradedReporter reports whether the served view fell back to the
// catalog alone.
type DegradedReporter interface {
	Degraded() bool
}

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	checkers map[string]health.Checker
	view     DegradedReporter
}

// HealthHandlersConfig configures the health check handlers. Nil checkers
// are reported as "ok" (the in-memory fallback is in use).
type HealthHandlersConfig struct {
	DBChecker      health.Checker
	RedisChecker   health.Checker
	StorageChecker health.Checker
	View           DegradedReporter
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		checkers: map[string]health.Checker{
			"database": config.DBChecker,
			"redis":    config.RedisChecker,
			"storage":  config.StorageChecker,
		},
		view: config.View,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe). It returns 503 when a
// configured dependency fails its check. A degraded view is reported but
// does not fail readiness.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	results := health.CheckAll(ctx, h.checkers, readyCheckTimeout)

	checks := make(map[string]string, len(h.checkers)+1)
	healthy := true
	for name := range h.checkers {
		err, checked := results[name]
		switch {
		case !checked:
			checks[name] = "ok"
		case err != nil:
			checks[name] = "error"
			healthy = false
			slog.WarnContext(ctx, "health check failed", "check", name, "error", err)
		default:
			checks[name] = "ok"
		}
	}

	if h.view != nil {
		if h.view.Degraded() {
			checks["view"] = "degraded"
		} else {
			checks["view"] = "ok"
		}
	}

	status, statusCode := "healthy", http.StatusOK
	if !healthy {
		status, statusCode = "unhealthy", http.StatusServiceUnavailable
	}

	writeJSON(w, r, statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
