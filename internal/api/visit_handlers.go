package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/onnwee/plaques/internal/catalog"
	"github.com/onnwee/plaques/internal/middleware"
	"github.com/onnwee/plaques/internal/plaque"
	"github.com/onnwee/plaques/internal/upload"
	"github.com/onnwee/plaques/internal/validate"
	"github.com/onnwee/plaques/internal/viewmodel"
	"github.com/onnwee/plaques/internal/visit"
)

// multipartOverhead is the body allowance for form fields and boundaries
// on top of the photo size limit.
const multipartOverhead = 1 << 20

// VisitWorkflow is the upload and delete workflow behind the visit endpoints.
type VisitWorkflow interface {
	RecordVisit(ctx context.Context, actorID string, req visit.UploadRequest) (*visit.Record, error)
	RemoveVisit(ctx context.Context, actorID string, plaqueID int) error
	State(plaqueID int) visit.State
}

// VisitHandlers serves POST and DELETE /plaques/{id}/visit.
type VisitHandlers struct {
	visits   VisitWorkflow
	views    *viewmodel.Store
	maxBytes int64
}

// NewVisitHandlers creates visit handlers. maxImageBytes bounds the photo;
// zero selects upload.DefaultMaxSizeMB.
func NewVisitHandlers(visits VisitWorkflow, views *viewmodel.Store, maxImageBytes int64) *VisitHandlers {
	if maxImageBytes <= 0 {
		maxImageBytes = upload.DefaultMaxSizeMB * 1024 * 1024
	}
	return &VisitHandlers{visits: visits, views: views, maxBytes: maxImageBytes}
}

// Record handles POST /plaques/{id}/visit with a multipart "image" file and
// optional "notes" field. It returns 201 with the plaque as now visited.
func (h *VisitHandlers) Record(w http.ResponseWriter, r *http.Request) {
	id, err := plaqueID(r)
	if err != nil {
		writeErrorCode(w, r, ErrCodeValidation, "Plaque id must be a positive integer")
		return
	}
	current, ok := h.views.Get(id)
	if !ok {
		writeErrorCode(w, r, ErrCodeUnknownPlaque, "Plaque not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorCode(w, r, ErrCodeFileTooLarge, "Photo exceeds the upload limit")
			return
		}
		writeErrorCode(w, r, ErrCodeBadRequest, "Expected a multipart form")
		return
	}

	data, contentType, err := readImage(r, h.maxBytes)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeErrorCode(w, r, ErrCodeImageRequired, "A photo is required")
			return
		}
		writeErrorCode(w, r, ErrCodeBadRequest, "Could not read the photo")
		return
	}

	notes, err := validate.Notes(r.FormValue("notes"))
	if err != nil {
		writeErrorCode(w, r, ErrCodeValidation, "Notes must be at most 1000 characters of text")
		return
	}

	actor := middleware.GetSession(r.Context())
	actorID := ""
	if actor.Authenticated() {
		actorID = actor.User.ID
	}

	record, err := h.visits.RecordVisit(r.Context(), actorID, visit.UploadRequest{
		PlaqueID:    id,
		Image:       data,
		ContentType: contentType,
		Notes:       notes,
	})
	if err != nil {
		h.writeWorkflowError(w, r, err, ErrCodeUploadFailed)
		return
	}

	enriched := plaque.Reconcile([]catalog.Plaque{current.Plaque}, []visit.Record{*record})[0]
	writeJSON(w, r, http.StatusCreated, PlaqueResponse{Enriched: enriched, State: h.visits.State(id)})
}

// Delete handles DELETE /plaques/{id}/visit and returns the plaque as now
// unvisited.
func (h *VisitHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := plaqueID(r)
	if err != nil {
		writeErrorCode(w, r, ErrCodeValidation, "Plaque id must be a positive integer")
		return
	}
	current, ok := h.views.Get(id)
	if !ok {
		writeErrorCode(w, r, ErrCodeUnknownPlaque, "Plaque not found")
		return
	}

	actor := middleware.GetSession(r.Context())
	actorID := ""
	if actor.Authenticated() {
		actorID = actor.User.ID
	}

	if err := h.visits.RemoveVisit(r.Context(), actorID, id); err != nil {
		h.writeWorkflowError(w, r, err, ErrCodeDeleteFailed)
		return
	}

	enriched := plaque.Reconcile([]catalog.Plaque{current.Plaque}, nil)[0]
	writeJSON(w, r, http.StatusOK, PlaqueResponse{Enriched: enriched, State: h.visits.State(id)})
}

// writeWorkflowError maps a workflow error to a single failure notice.
func (h *VisitHandlers) writeWorkflowError(w http.ResponseWriter, r *http.Request, err error, failedCode string) {
	switch {
	case errors.Is(err, visit.ErrUnauthenticated):
		writeErrorCode(w, r, ErrCodeAuthRequired, "Sign in to continue")
	case errors.Is(err, visit.ErrUnknownPlaque):
		writeErrorCode(w, r, ErrCodeUnknownPlaque, "Plaque not found")
	case errors.Is(err, visit.ErrImageRequired), errors.Is(err, upload.ErrEmptyFile):
		writeErrorCode(w, r, ErrCodeImageRequired, "A photo is required")
	case errors.Is(err, upload.ErrFileTooLarge):
		writeErrorCode(w, r, ErrCodeFileTooLarge, "Photo exceeds the upload limit")
	case errors.Is(err, upload.ErrUnsupportedType):
		writeErrorCode(w, r, ErrCodeUnsupportedType,
			"Unsupported photo type. Allowed types: image/jpeg, image/png, image/webp, image/gif")
	case errors.Is(err, visit.ErrAlreadyVisited):
		writeErrorCode(w, r, ErrCodeAlreadyVisited, "Plaque already visited")
	case errors.Is(err, visit.ErrNotVisited):
		writeErrorCode(w, r, ErrCodeNotVisited, "Plaque has no visit to delete")
	case errors.Is(err, visit.ErrMutationInProgress):
		writeErrorCode(w, r, ErrCodeMutationInProgress, "Another change to this plaque is in progress")
	case errors.Is(err, visit.ErrUploadFailed):
		writeErrorCode(w, r, ErrCodeUploadFailed, "Could not save the visit, please try again")
	case errors.Is(err, visit.ErrDeleteFailed):
		writeErrorCode(w, r, ErrCodeDeleteFailed, "Could not delete the visit, please try again")
	default:
		slog.ErrorContext(r.Context(), "visit workflow failed", "error", err)
		writeErrorCode(w, r, failedCode, "Something went wrong, please try again")
	}
}

// readImage returns the "image" part and its media type. A missing or
// generic part type is sniffed from the content.
func readImage(r *http.Request, maxBytes int64) ([]byte, string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	// One byte past the limit lets the workflow report the size.
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", err
	}

	contentType := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
