package visit

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Ledger errors.
var (
	ErrNotFound       = errors.New("visit not found")
	ErrDuplicateVisit = errors.New("plaque already has a visit")
)

// Ledger is the external store of visit records.
type Ledger interface {
	// SelectAll returns every visit ordered by visit date, newest first.
	SelectAll(ctx context.Context) ([]Record, error)

	// SelectOne returns the visit for a plaque, or ErrNotFound.
	SelectOne(ctx context.Context, plaqueID int) (*Record, error)

	// Insert stores a new visit. Returns ErrDuplicateVisit if the plaque
	// already has one. The record's ID is set on success.
	Insert(ctx context.Context, record *Record) error

	// DeleteWhere removes the visit for a plaque. Returns ErrNotFound if
	// there was nothing to delete.
	DeleteWhere(ctx context.Context, plaqueID int) error
}

// InMemoryLedger is an in-memory implementation of Ledger.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryLedger struct {
	mu      sync.RWMutex
	records []*Record
	nextID  int64
}

// NewInMemoryLedger creates an empty in-memory ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{nextID: 1}
}

// SelectAll returns copies of all records, newest visit first.
func (l *InMemoryLedger) SelectAll(ctx context.Context) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, *r.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].VisitDate.After(out[j].VisitDate)
	})
	return out, nil
}

// SelectOne returns a copy of the record for the plaque.
func (l *InMemoryLedger) SelectOne(ctx context.Context, plaqueID int) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, r := range l.records {
		if r.PlaqueID == plaqueID {
			return r.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Insert stores a copy of the record, enforcing one visit per plaque.
func (l *InMemoryLedger) Insert(ctx context.Context, record *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.records {
		if r.PlaqueID == record.PlaqueID {
			return ErrDuplicateVisit
		}
	}

	record.ID = l.nextID
	l.nextID++
	l.records = append(l.records, record.Clone())
	return nil
}

// DeleteWhere removes the record for the plaque.
func (l *InMemoryLedger) DeleteWhere(ctx context.Context, plaqueID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, r := range l.records {
		if r.PlaqueID == plaqueID {
			l.records = append(l.records[:i], l.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
