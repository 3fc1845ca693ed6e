// Package api provides the HTTP handlers of the plaques API and its
// standardized error envelope.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/plaques/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeAuthRequired indicates the endpoint needs a signed-in user.
	ErrCodeAuthRequired = "auth_required"

	// ErrCodeInvalidCredentials indicates a rejected email/password pair.
	ErrCodeInvalidCredentials = "invalid_credentials"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeUnknownPlaque indicates the plaque id is not in the catalog.
	ErrCodeUnknownPlaque = "unknown_plaque"

	// ErrCodeInvalidFilter indicates an unknown status or location filter.
	ErrCodeInvalidFilter = "invalid_filter"

	// ErrCodeImageRequired indicates a visit upload without a photo.
	ErrCodeImageRequired = "image_required"

	// ErrCodeFileTooLarge indicates the photo exceeds the upload limit.
	ErrCodeFileTooLarge = "file_too_large"

	// ErrCodeUnsupportedType indicates an unsupported content type for upload.
	ErrCodeUnsupportedType = "unsupported_type"

	// ErrCodeAlreadyVisited indicates the plaque already has a visit.
	ErrCodeAlreadyVisited = "already_visited"

	// ErrCodeNotVisited indicates there is no visit to delete.
	ErrCodeNotVisited = "not_visited"

	// ErrCodeMutationInProgress indicates another change to the plaque is running.
	ErrCodeMutationInProgress = "mutation_in_progress"

	// ErrCodeUploadFailed indicates the photo or ledger write failed.
	ErrCodeUploadFailed = "upload_failed"

	// ErrCodeDeleteFailed indicates the visit could not be deleted.
	ErrCodeDeleteFailed = "delete_failed"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error code reaches the request log when ctx carries it:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Plaque not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// writeErrorCode sets the error code on the request context and writes the
// envelope with the status from StatusCodeMapping.
func writeErrorCode(w http.ResponseWriter, r *http.Request, code, message string) {
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeInvalidFilter, ErrCodeImageRequired:
		return http.StatusBadRequest
	case ErrCodeAuthRequired, ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case ErrCodeNotFound, ErrCodeUnknownPlaque:
		return http.StatusNotFound
	case ErrCodeAlreadyVisited, ErrCodeNotVisited, ErrCodeMutationInProgress:
		return http.StatusConflict
	case ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeUnsupportedType:
		return http.StatusUnsupportedMediaType
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
