// Package image sanitizes visit photos before they reach the object store:
// metadata (GPS position, camera, timestamps) is stripped, the photo is
// oriented and bounded in size, and it is re-encoded to a single format.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/h2non/bimg"
)

// ErrInvalidImage is returned when the input cannot be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

// Output formats.
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
	FormatPNG  = "png"
)

// Config holds configuration for photo processing.
type Config struct {
	// Quality for JPEG/WebP encoding (1-100, default: 85)
	Quality int
	// Format is the output format (jpeg, webp, png)
	Format string
	// MaxDimension bounds the longest edge in pixels (0 = no limit)
	MaxDimension int
}

// DefaultConfig returns the settings used for visit photos.
func DefaultConfig() Config {
	return Config{
		Quality:      85,
		Format:       FormatJPEG,
		MaxDimension: 2048,
	}
}

// Processor re-encodes photos with a fixed Config.
type Processor struct {
	config Config
}

// NewProcessor creates a new photo processor with the given config.
func NewProcessor(config Config) *Processor {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultConfig().Quality
	}
	if config.Format == "" {
		config.Format = FormatJPEG
	}
	return &Processor{config: config}
}

// Sanitize returns the processed photo and its content type.
func (p *Processor) Sanitize(data []byte) ([]byte, string, error) {
	out, err := ProcessWithConfig(bytes.NewReader(data), p.config)
	if err != nil {
		return nil, "", err
	}
	return out, ContentType(p.config.Format), nil
}

// Process sanitizes a photo with DefaultConfig.
func Process(r io.Reader) ([]byte, error) {
	return ProcessWithConfig(r, DefaultConfig())
}

// ProcessWithConfig reads a photo, strips its metadata, applies the EXIF
// orientation, bounds its size and re-encodes it.
func ProcessWithConfig(r io.Reader, config Config) ([]byte, error) {
	input, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input image: %w", err)
	}

	img := bimg.NewImage(input)
	metadata, err := img.Metadata()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	options := bimg.Options{
		Quality:       config.Quality,
		StripMetadata: true,
		Type:          imageType(config.Format),
	}

	// Resize on the longest edge; bimg keeps the aspect ratio when only one
	// dimension is set.
	if limit := config.MaxDimension; limit > 0 {
		width, height := metadata.Size.Width, metadata.Size.Height
		if metadata.Orientation >= 5 {
			width, height = height, width
		}
		switch {
		case width >= height && width > limit:
			options.Width = limit
		case height > width && height > limit:
			options.Height = limit
		}
	}

	out, err := img.Process(options)
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}
	return out, nil
}

// ContentType returns the MIME type of an output format.
func ContentType(format string) string {
	switch format {
	case FormatWebP:
		return "image/webp"
	case FormatPNG:
		return "image/png"
	default:
		return "image/jpeg"
	}
}

func imageType(format string) bimg.ImageType {
	switch format {
	case FormatWebP:
		return bimg.WEBP
	case FormatPNG:
		return bimg.PNG
	default:
		return bimg.JPEG
	}
}

// HasLocationOrDevice reports whether the photo still carries EXIF fields
// that identify where or with what it was taken.
func HasLocationOrDevice(data []byte) (bool, error) {
	metadata, err := bimg.NewImage(data).Metadata()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	exif := metadata.EXIF
	return exif.Make != "" || exif.Model != "" ||
		exif.GPSLatitude != "" || exif.GPSLongitude != "" ||
		exif.DateTimeOriginal != "" || exif.Software != "", nil
}
