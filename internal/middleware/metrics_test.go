package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestMetrics_RateLimitCounters(t *testing.T) {
	m := NewMetrics()

	m.IncRateLimitRequests("/auth/login", "ip")
	m.IncRateLimitRequests("/auth/login", "ip")
	m.IncRateLimitRequests("/plaques/{id}/visit", "user")
	m.IncRateLimitBlocked("/auth/login", "ip")
	m.IncRateLimitRedisErrors()

	if got := testutil.ToFloat64(m.limitChecks.WithLabelValues("/auth/login", "ip")); got != 2 {
		t.Errorf("login checks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.limitChecks.WithLabelValues("/plaques/{id}/visit", "user")); got != 1 {
		t.Errorf("visit checks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.limitBlocked.WithLabelValues("/auth/login", "ip")); got != 1 {
		t.Errorf("blocked = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.limitErrors); got != 1 {
		t.Errorf("redis errors = %v, want 1", got)
	}
}

func TestMetrics_ObserveHTTPRequest(t *testing.T) {
	m := NewMetrics()

	m.ObserveHTTPRequest("GET", "/plaques", 200, 120*time.Millisecond, 500)
	m.ObserveHTTPRequest("POST", "/plaques/{id}/visit", 201, 450*time.Millisecond, 300)
	m.ObserveHTTPRequest("GET", "/plaques", 200, 80*time.Millisecond, 600)

	if got := testutil.CollectAndCount(m.requests); got != 2 {
		t.Errorf("distinct request series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/plaques", "200")); got != 2 {
		t.Errorf("GET /plaques count = %v, want 2", got)
	}
	// Latency is not split by status.
	if got := testutil.CollectAndCount(m.latency); got != 2 {
		t.Errorf("distinct latency series = %d, want 2", got)
	}
}
