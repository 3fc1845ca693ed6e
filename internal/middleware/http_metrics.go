// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"net/http"
	"time"
)

// unmeteredRoutes are probes and scrapes; recording them would drown the
// API traffic they sit next to.
var unmeteredRoutes = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// HTTPMetrics records request count, latency, response size and in-flight
// requests, labelled by route template. A nil metrics disables it.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeOf(r.URL.Path)
			if unmeteredRoutes[route] {
				next.ServeHTTP(w, r)
				return
			}

			metrics.inFlight.Inc()
			defer metrics.inFlight.Dec()

			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			metrics.ObserveHTTPRequest(r.Method, route, rw.statusCode, time.Since(start), rw.size)
		})
	}
}
