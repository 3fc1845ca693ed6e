// Package viewmodel holds the last reconciliation of the catalog with the
// visit ledger and serves filtered views of it.
package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/plaques/internal/catalog"
	"github.com/onnwee/plaques/internal/jobs"
	"github.com/onnwee/plaques/internal/plaque"
	"github.com/onnwee/plaques/internal/visit"
)

// ErrLedgerUnavailable is returned by Refresh when the ledger could not be
// read and the view fell back to the catalog alone.
var ErrLedgerUnavailable = errors.New("visit ledger unavailable")

// View is a filtered projection plus the progress over its location scope.
type View struct {
	Plaques []plaque.Enriched `json:"plaques"`
	Summary plaque.Summary    `json:"summary"`
}

// Store caches the enriched plaque list. It is rebuilt in full on every
// Refresh and never patched in place.
type Store struct {
	catalog *catalog.Catalog
	ledger  visit.Ledger
	metrics jobs.Reporter
	logger  *slog.Logger

	mu          sync.RWMutex
	plaques     []plaque.Enriched
	degraded    bool
	refreshedAt time.Time
}

// NewStore creates a Store whose initial view is the catalog with every
// plaque unvisited. Call Refresh to load the ledger.
func NewStore(cat *catalog.Catalog, ledger visit.Ledger, metrics jobs.Reporter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		catalog:  cat,
		ledger:   ledger,
		metrics:  metrics,
		logger:   logger,
		plaques:  plaque.Reconcile(cat.Plaques(), nil),
		degraded: true,
	}
}

// Refresh reads the whole ledger and replaces the cached view. If the
// ledger cannot be read the view falls back to catalog-only, every plaque
// unvisited, and ErrLedgerUnavailable is returned.
func (s *Store) Refresh(ctx context.Context) error {
	start := time.Now()

	visits, err := s.ledger.SelectAll(ctx)
	degraded := err != nil
	if degraded {
		s.logger.ErrorContext(ctx, "failed to read visit ledger, serving catalog only",
			slog.String("error", err.Error()))
		visits = nil
	}

	next := plaque.Reconcile(s.catalog.Plaques(), visits)

	s.mu.Lock()
	s.plaques = next
	s.degraded = degraded
	s.refreshedAt = time.Now()
	s.mu.Unlock()

	s.report(next, degraded, time.Since(start))

	if degraded {
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	return nil
}

func (s *Store) report(plaques []plaque.Enriched, degraded bool, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	if degraded {
		// Progress gauges keep their last known values.
		s.metrics.ObserveRefresh(jobs.OutcomeDegraded, elapsed)
		return
	}
	s.metrics.ObserveRefresh(jobs.OutcomeSuccess, elapsed)
	sum := plaque.Summarize(plaques, plaque.LocationAll)
	s.metrics.SetProgress(sum.Visited, sum.Total)
}

// Snapshot returns the current enriched plaques in catalog order.
// The returned slice is a copy; the pointed-to visit fields are shared and
// must not be modified.
func (s *Store) Snapshot() []plaque.Enriched {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]plaque.Enriched, len(s.plaques))
	copy(out, s.plaques)
	return out
}

// Get returns the enriched plaque with the given id.
func (s *Store) Get(id int) (plaque.Enriched, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.plaques {
		if p.ID == id {
			return p, true
		}
	}
	return plaque.Enriched{}, false
}

// View projects the current plaques through f. The summary covers the
// location scope of f only.
func (s *Store) View(f plaque.Filter) View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return View{
		Plaques: plaque.Project(s.plaques, f),
		Summary: plaque.Summarize(s.plaques, f.Location),
	}
}

// Degraded reports whether the current view was built without the ledger.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// RefreshedAt returns when the view was last rebuilt; zero before the first Refresh.
func (s *Store) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// Run refreshes the view every interval until ctx is cancelled, picking up
// changes made by other clients of the ledger. It blocks.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "view refresh stopping due to context cancellation")
			return
		case <-ticker.C:
			// Errors are logged by Refresh.
			_ = s.Refresh(ctx)
		}
	}
}
