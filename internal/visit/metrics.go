package visit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricVisitUploads          = "visit_uploads_total"
	MetricVisitDeletes          = "visit_deletes_total"
	MetricVisitUploadDuration   = "visit_upload_duration_seconds"
	MetricOrphanedObjects       = "visit_orphaned_objects_total"
	MetricStorageRemoveFailures = "visit_storage_remove_failures_total"
)

// Workflow outcomes used as the result label.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics contains Prometheus metrics for the visit workflow.
// All operations are thread-safe.
type Metrics struct {
	uploads               *prometheus.CounterVec
	deletes               *prometheus.CounterVec
	uploadDuration        prometheus.Histogram
	orphanedObjects       prometheus.Counter
	storageRemoveFailures prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricVisitUploads,
				Help: "Total number of visit upload attempts by result",
			},
			[]string{"result"},
		),
		deletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricVisitDeletes,
				Help: "Total number of visit delete attempts by result",
			},
			[]string{"result"},
		),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricVisitUploadDuration,
			Help:    "Duration of the upload workflow from photo store to ledger insert, in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		}),
		orphanedObjects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricOrphanedObjects,
			Help: "Photos left in the object store after the ledger insert failed",
		}),
		storageRemoveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricStorageRemoveFailures,
			Help: "Photo removals that failed after the ledger row was deleted",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncUploads increments the upload counter for a result.
func (m *Metrics) IncUploads(result string) {
	m.uploads.WithLabelValues(result).Inc()
}

// IncDeletes increments the delete counter for a result.
func (m *Metrics) IncDeletes(result string) {
	m.deletes.WithLabelValues(result).Inc()
}

// ObserveUploadDuration records an upload workflow duration sample.
func (m *Metrics) ObserveUploadDuration(seconds float64) {
	m.uploadDuration.Observe(seconds)
}

// IncOrphanedObjects increments the orphaned photo counter.
func (m *Metrics) IncOrphanedObjects() {
	m.orphanedObjects.Inc()
}

// IncStorageRemoveFailures increments the failed photo removal counter.
func (m *Metrics) IncStorageRemoveFailures() {
	m.storageRemoveFailures.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.uploads,
		m.deletes,
		m.uploadDuration,
		m.orphanedObjects,
		m.storageRemoveFailures,
	}
}
