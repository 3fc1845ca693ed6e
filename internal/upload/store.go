// Package upload stores visit photos in an S3-compatible object store (R2)
// and provides the key and content validation shared by every store.
package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Allowed MIME types for visit photos.
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
	MIMEImageWebP = "image/webp"
	MIMEImageGIF  = "image/gif"
)

// DefaultMaxSizeMB is used when no upload limit is configured.
const DefaultMaxSizeMB = 10

// Validation and storage errors.
var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrFileTooLarge    = errors.New("file size exceeds maximum allowed")
	ErrEmptyFile       = errors.New("file is empty")
	ErrInvalidPlaqueID = errors.New("invalid plaque ID")
	ErrObjectNotFound  = errors.New("object not found")
)

// AllowedMIMETypes maps allowed MIME types to their file extensions.
var AllowedMIMETypes = map[string]string{
	MIMEImageJPEG: ".jpg",
	MIMEImagePNG:  ".png",
	MIMEImageWebP: ".webp",
	MIMEImageGIF:  ".gif",
}

// ObjectStore is the external photo store.
type ObjectStore interface {
	// Upload stores data under key.
	Upload(ctx context.Context, key, contentType string, data []byte) error

	// PublicURL returns the retrievable URL for key. It does not check
	// that the object exists.
	PublicURL(key string) string

	// Remove deletes the object stored under key.
	Remove(ctx context.Context, key string) error
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	if _, ok := AllowedMIMETypes[contentType]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// ValidateFileSize checks that sizeBytes is positive and within maxBytes.
// A non-positive maxBytes disables the upper bound.
func ValidateFileSize(sizeBytes, maxBytes int64) error {
	if sizeBytes <= 0 {
		return ErrEmptyFile
	}
	if maxBytes > 0 && sizeBytes > maxBytes {
		return ErrFileTooLarge
	}
	return nil
}

// GenerateObjectKey creates a unique object key for a visit photo.
// Pattern: visits/{plaqueId}/uuid.ext
func GenerateObjectKey(contentType string, plaqueID int) (string, error) {
	ext, ok := AllowedMIMETypes[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}
	if plaqueID <= 0 {
		return "", ErrInvalidPlaqueID
	}

	return fmt.Sprintf("visits/%d/%s%s", plaqueID, uuid.New().String(), ext), nil
}
