package visit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/plaques/internal/catalog"
	"github.com/onnwee/plaques/internal/tracing"
	"github.com/onnwee/plaques/internal/upload"
)

// Workflow errors.
var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrUnknownPlaque      = errors.New("plaque not in catalog")
	ErrImageRequired      = errors.New("image is required")
	ErrAlreadyVisited     = errors.New("plaque already visited")
	ErrNotVisited         = errors.New("plaque has no visit")
	ErrMutationInProgress = errors.New("another change to this plaque is in progress")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// State is the mutation state of a single plaque.
type State string

// Mutation states.
const (
	StateIdle      State = "idle"
	StateUploading State = "uploading"
	StateDeleting  State = "deleting"
)

// Sanitizer re-encodes a photo before it is stored and reports the
// content type of the result.
type Sanitizer interface {
	Sanitize(data []byte) ([]byte, string, error)
}

// UploadRequest is a photo visit submitted by an actor.
type UploadRequest struct {
	PlaqueID    int
	Image       []byte
	ContentType string
	Notes       string
}

// ServiceConfig holds the collaborators of the visit workflow.
type ServiceConfig struct {
	Catalog *catalog.Catalog
	Ledger  Ledger
	Store   upload.ObjectStore

	// Sanitizer is optional; without it photos are stored as submitted.
	Sanitizer Sanitizer
	// Metrics is optional.
	Metrics *Metrics
	Logger  *slog.Logger

	// MaxImageBytes limits the submitted photo size (0 = no limit).
	MaxImageBytes int64

	// OnChange is called after every successful mutation, typically to
	// rebuild the view model and notify subscribers.
	OnChange func(ctx context.Context, plaqueID int)
}

// Service runs the upload and delete workflows against the ledger and the
// object store. Mutations of one plaque are serialized: a second request
// while one is running is rejected, not queued.
type Service struct {
	catalog   *catalog.Catalog
	ledger    Ledger
	store     upload.ObjectStore
	sanitizer Sanitizer
	metrics   *Metrics
	logger    *slog.Logger
	maxBytes  int64
	onChange  func(ctx context.Context, plaqueID int)
	now       func() time.Time

	mu     sync.Mutex
	states map[int]State
}

// NewService creates a new visit Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("object store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		catalog:   cfg.Catalog,
		ledger:    cfg.Ledger,
		store:     cfg.Store,
		sanitizer: cfg.Sanitizer,
		metrics:   cfg.Metrics,
		logger:    logger,
		maxBytes:  cfg.MaxImageBytes,
		onChange:  cfg.OnChange,
		now:       time.Now,
		states:    make(map[int]State),
	}, nil
}

// State returns the current mutation state of a plaque.
func (s *Service) State(plaqueID int) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[plaqueID]; ok {
		return st
	}
	return StateIdle
}

func (s *Service) begin(plaqueID int, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.states[plaqueID]; ok && cur != StateIdle {
		return ErrMutationInProgress
	}
	s.states[plaqueID] = st
	return nil
}

func (s *Service) end(plaqueID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, plaqueID)
}

// RecordVisit stores the photo and then inserts the ledger row that
// references it. The steps run in order under a context detached from the
// caller's cancellation.
//
// If the photo is stored but the insert fails, the photo is left in the
// object store and ErrUploadFailed is returned; the plaque stays unvisited.
func (s *Service) RecordVisit(ctx context.Context, actorID string, req UploadRequest) (record *Record, err error) {
	start := s.now()
	defer func() {
		s.recordUploadResult(err, start)
	}()

	if actorID == "" {
		return nil, ErrUnauthenticated
	}
	if !s.catalog.Contains(req.PlaqueID) {
		return nil, ErrUnknownPlaque
	}
	if len(req.Image) == 0 {
		return nil, ErrImageRequired
	}
	if err := upload.ValidateFileSize(int64(len(req.Image)), s.maxBytes); err != nil {
		return nil, err
	}
	if err := upload.ValidateContentType(req.ContentType); err != nil {
		return nil, err
	}

	if err := s.begin(req.PlaqueID, StateUploading); err != nil {
		return nil, err
	}
	defer s.end(req.PlaqueID)

	ctx = context.WithoutCancel(ctx)
	ctx, endSpan := tracing.StartSpan(ctx, "visit.record", tracing.PlaqueID(req.PlaqueID))
	defer func() { endSpan(err) }()

	logger := s.logger.With(slog.Int("plaque_id", req.PlaqueID), slog.String("user_id", actorID))

	_, err = s.ledger.SelectOne(ctx, req.PlaqueID)
	switch {
	case err == nil:
		return nil, ErrAlreadyVisited
	case !errors.Is(err, ErrNotFound):
		logger.ErrorContext(ctx, "failed to check existing visit", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	data, contentType := req.Image, req.ContentType
	if s.sanitizer != nil {
		data, contentType, err = s.sanitizer.Sanitize(req.Image)
		if err != nil {
			logger.WarnContext(ctx, "failed to sanitize photo", slog.String("error", err.Error()))
			return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
		}
	}

	key, err := upload.GenerateObjectKey(contentType, req.PlaqueID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	if err = s.store.Upload(ctx, key, contentType, data); err != nil {
		logger.ErrorContext(ctx, "failed to store photo",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	url := s.store.PublicURL(key)
	record = &Record{
		PlaqueID:   req.PlaqueID,
		ImageURL:   &url,
		ImagePath:  key,
		UploadedBy: actorID,
		VisitDate:  s.now().UTC(),
	}
	if req.Notes != "" {
		notes := req.Notes
		record.Notes = &notes
	}

	if err = s.ledger.Insert(ctx, record); err != nil {
		// The stored photo is not removed; it is counted so it can be swept.
		if s.metrics != nil {
			s.metrics.IncOrphanedObjects()
		}
		logger.ErrorContext(ctx, "failed to insert visit, photo orphaned",
			slog.String("key", key),
			slog.String("error", err.Error()))
		if errors.Is(err, ErrDuplicateVisit) {
			return nil, ErrAlreadyVisited
		}
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	logger.InfoContext(ctx, "visit recorded", slog.Int64("visit_id", record.ID))
	s.changed(ctx, req.PlaqueID)
	return record.Clone(), nil
}

// RemoveVisit deletes the visit of a plaque. Removing the stored photo is
// best effort: a failure is logged and the ledger row is deleted anyway.
func (s *Service) RemoveVisit(ctx context.Context, actorID string, plaqueID int) (err error) {
	defer func() {
		if s.metrics != nil {
			s.metrics.IncDeletes(resultOf(err))
		}
	}()

	if actorID == "" {
		return ErrUnauthenticated
	}
	if !s.catalog.Contains(plaqueID) {
		return ErrUnknownPlaque
	}

	if err := s.begin(plaqueID, StateDeleting); err != nil {
		return err
	}
	defer s.end(plaqueID)

	ctx = context.WithoutCancel(ctx)
	ctx, endSpan := tracing.StartSpan(ctx, "visit.remove", tracing.PlaqueID(plaqueID))
	defer func() { endSpan(err) }()

	logger := s.logger.With(slog.Int("plaque_id", plaqueID), slog.String("user_id", actorID))

	existing, err := s.ledger.SelectOne(ctx, plaqueID)
	if errors.Is(err, ErrNotFound) {
		return ErrNotVisited
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to fetch visit", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}

	if existing.ImagePath != "" {
		if rmErr := s.store.Remove(ctx, existing.ImagePath); rmErr != nil {
			if s.metrics != nil {
				s.metrics.IncStorageRemoveFailures()
			}
			logger.WarnContext(ctx, "failed to remove photo, deleting visit anyway",
				slog.String("key", existing.ImagePath),
				slog.String("error", rmErr.Error()))
		}
	}

	err = s.ledger.DeleteWhere(ctx, plaqueID)
	if errors.Is(err, ErrNotFound) {
		// Deleted by another client in the meantime; the end state is the same.
		logger.DebugContext(ctx, "visit already deleted")
		err = nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete visit", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}

	logger.InfoContext(ctx, "visit removed")
	s.changed(ctx, plaqueID)
	return nil
}

func (s *Service) changed(ctx context.Context, plaqueID int) {
	if s.onChange != nil {
		s.onChange(ctx, plaqueID)
	}
}

func (s *Service) recordUploadResult(err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	result := resultOf(err)
	s.metrics.IncUploads(result)
	if result == ResultSuccess {
		s.metrics.ObserveUploadDuration(s.now().Sub(start).Seconds())
	}
}

// resultOf classifies a workflow error for the result label. Failures of
// the ledger or object store are "failed"; everything else the caller can
// fix is "rejected".
func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrUploadFailed), errors.Is(err, ErrDeleteFailed):
		return ResultFailed
	default:
		return ResultRejected
	}
}
