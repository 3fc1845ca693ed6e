package middleware

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPRequestsInFlight  = "http_requests_in_flight"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
	MetricRateLimitRequests     = "rate_limit_requests_total"
	MetricRateLimitBlocked      = "rate_limit_blocked_total"
	MetricRateLimitRedisErrors  = "rate_limit_redis_errors_total"
)

// Metrics holds the HTTP layer collectors: request traffic and rate
// limiting. Safe for concurrent use.
type Metrics struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	inFlight     prometheus.Gauge
	responseSize *prometheus.HistogramVec

	limitChecks  *prometheus.CounterVec
	limitBlocked *prometheus.CounterVec
	limitErrors  prometheus.Counter
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "HTTP requests by method, route template and status",
		}, []string{"method", "route", "status"}),
		// Upload latency includes the photo round trip to object storage.
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "HTTP request latency by method and route template",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricHTTPRequestsInFlight,
			Help: "HTTP requests currently being served",
		}),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPResponseSizeBytes,
			Help:    "HTTP response body size by route template",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"route"}),
		limitChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitRequests,
			Help: "Requests checked by a rate limiter",
		}, []string{"route", "key_type"}),
		limitBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitBlocked,
			Help: "Requests rejected by a rate limiter",
		}, []string{"route", "key_type"}),
		limitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitRedisErrors,
			Help: "Redis failures while rate limiting; each one let the request through",
		}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveHTTPRequest records one finished request. route must be a
// template from routeOf, never a raw path.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration, responseSize int) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
	m.responseSize.WithLabelValues(route).Observe(float64(responseSize))
}

// IncRateLimitRequests counts a rate limit check. keyType is "user" or "ip".
func (m *Metrics) IncRateLimitRequests(route, keyType string) {
	m.limitChecks.WithLabelValues(route, keyType).Inc()
}

// IncRateLimitBlocked counts a request rejected with 429.
func (m *Metrics) IncRateLimitBlocked(route, keyType string) {
	m.limitBlocked.WithLabelValues(route, keyType).Inc()
}

// IncRateLimitRedisErrors counts a fail-open caused by Redis.
func (m *Metrics) IncRateLimitRedisErrors() {
	m.limitErrors.Inc()
}

// Collectors returns all collectors, for registration and tests.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requests, m.latency, m.inFlight, m.responseSize,
		m.limitChecks, m.limitBlocked, m.limitErrors,
	}
}
