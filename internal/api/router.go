package api

import (
	"net/http"

	"github.com/onnwee/plaques/internal/middleware"
)

// RouterConfig holds the handlers and per-route middleware of the API.
// Nil limiters disable rate limiting for their routes; a nil Metrics
// handler leaves /metrics unregistered and nil Photos leaves /photos/
// unregistered.
type RouterConfig struct {
	Plaques *PlaqueHandlers
	Visits  *VisitHandlers
	Auth    *AuthHandlers
	Events  *EventHandlers
	Health  *HealthHandlers
	Photos  *PhotoHandlers
	Metrics http.Handler

	LoginLimiter    func(http.Handler) http.Handler
	MutationLimiter func(http.Handler) http.Handler
}

// NewRouter registers every route on a new ServeMux. Global middleware
// (request ID, tracing, logging, metrics, authentication) is applied by
// the caller around the returned handler.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /plaques", cfg.Plaques.List)
	mux.HandleFunc("GET /plaques/{id}", cfg.Plaques.Get)

	mutation := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(limit(cfg.MutationLimiter, h))
	}
	mux.Handle("POST /plaques/{id}/visit", mutation(cfg.Visits.Record))
	mux.Handle("DELETE /plaques/{id}/visit", mutation(cfg.Visits.Delete))

	mux.Handle("POST /auth/login", limit(cfg.LoginLimiter, http.HandlerFunc(cfg.Auth.Login)))
	mux.Handle("POST /auth/logout", middleware.RequireAuth(http.HandlerFunc(cfg.Auth.Logout)))
	mux.HandleFunc("GET /auth/session", cfg.Auth.Session)

	mux.HandleFunc("GET /events/ws", cfg.Events.Stream)

	if cfg.Photos != nil {
		mux.HandleFunc("GET /photos/{key...}", cfg.Photos.Get)
	}

	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	return mux
}

func limit(limiter func(http.Handler) http.Handler, h http.Handler) http.Handler {
	if limiter == nil {
		return h
	}
	return limiter(h)
}
