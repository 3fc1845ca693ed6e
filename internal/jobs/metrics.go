// Package jobs instruments the background view refresh: how often the
// ledger is re-read, how long it takes, and the trail progress it found.
package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricViewRefreshes       = "plaques_view_refreshes_total"
	MetricViewRefreshDuration = "plaques_view_refresh_duration_seconds"
	MetricViewLastSuccess     = "plaques_view_last_success_timestamp_seconds"
	MetricPlaquesVisited      = "plaques_visited"
	MetricPlaquesInCatalog    = "plaques_in_catalog"
)

// Refresh outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
)

// Reporter receives view refresh results. *Metrics implements it.
type Reporter interface {
	ObserveRefresh(outcome string, elapsed time.Duration)
	SetProgress(visited, total int)
}

// Metrics holds the view refresh collectors.
type Metrics struct {
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	lastSuccess     prometheus.Gauge
	visited         prometheus.Gauge
	total           prometheus.Gauge
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricViewRefreshes,
				Help: "View refreshes by outcome; degraded means the ledger could not be read",
			},
			[]string{"outcome"},
		),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricViewRefreshDuration,
			Help:    "Time to read the ledger and reconcile it with the catalog",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricViewLastSuccess,
			Help: "Unix time of the last refresh that read the ledger",
		}),
		visited: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPlaquesVisited,
			Help: "Plaques with a recorded visit as of the last refresh",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPlaquesInCatalog,
			Help: "Plaques in the catalog",
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

// ObserveRefresh counts a refresh. Only successful refreshes are timed and
// move the last-success gauge.
func (m *Metrics) ObserveRefresh(outcome string, elapsed time.Duration) {
	m.refreshes.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSuccess {
		return
	}
	m.refreshDuration.Observe(elapsed.Seconds())
	m.lastSuccess.SetToCurrentTime()
}

// SetProgress records the visited and catalog counts.
func (m *Metrics) SetProgress(visited, total int) {
	m.visited.Set(float64(visited))
	m.total.Set(float64(total))
}

// Collectors returns all collectors, for registration and tests.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.refreshes, m.refreshDuration, m.lastSuccess, m.visited, m.total}
}
