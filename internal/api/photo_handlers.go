package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/plaques/internal/upload"
)

// PhotoSource returns stored photos by object key.
type PhotoSource interface {
	Get(key string) (upload.Object, error)
}

// PhotoHandlers serves photos kept by the in-memory object store. With R2
// configured, photo URLs point at the bucket and these handlers are not
// registered.
type PhotoHandlers struct {
	photos PhotoSource
}

// NewPhotoHandlers creates photo handlers over photos.
func NewPhotoHandlers(photos PhotoSource) *PhotoHandlers {
	return &PhotoHandlers{photos: photos}
}

// Get handles GET /photos/{key...}.
func (h *PhotoHandlers) Get(w http.ResponseWriter, r *http.Request) {
	obj, err := h.photos.Get(r.PathValue("key"))
	if errors.Is(err, upload.ErrObjectNotFound) {
		writeErrorCode(w, r, ErrCodeNotFound, "Photo not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read photo", "error", err)
		writeErrorCode(w, r, ErrCodeInternal, "Could not load photo")
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	// Keys are unique per upload, so content never changes.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(obj.Data); err != nil {
		slog.ErrorContext(r.Context(), "failed to write photo", "error", err)
	}
}
