package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/h2non/bimg"
)

// testPhoto encodes a gradient JPEG of the given size.
func testPhoto(t testing.TB, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / width),
				G: uint8(y * 255 / height),
				B: 128,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestProcess_StripsMetadata(t *testing.T) {
	out, err := Process(bytes.NewReader(testPhoto(t, 100, 100)))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("processed image is empty")
	}

	found, err := HasLocationOrDevice(out)
	if err != nil {
		t.Fatalf("HasLocationOrDevice failed: %v", err)
	}
	if found {
		t.Error("EXIF metadata still present after processing")
	}

	metadata, err := bimg.NewImage(out).Metadata()
	if err != nil {
		t.Fatalf("failed to read processed metadata: %v", err)
	}
	if metadata.Size.Width != 100 || metadata.Size.Height != 100 {
		t.Errorf("dimensions changed: got %dx%d", metadata.Size.Width, metadata.Size.Height)
	}
}

func TestProcessWithConfig_BoundsLongestEdge(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		height     int
		wantWidth  int
		wantHeight int
	}{
		{"landscape", 400, 200, 100, 50},
		{"portrait", 200, 400, 50, 100},
		{"already small", 80, 40, 80, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.MaxDimension = 100

			out, err := ProcessWithConfig(bytes.NewReader(testPhoto(t, tt.width, tt.height)), config)
			if err != nil {
				t.Fatalf("ProcessWithConfig failed: %v", err)
			}

			size, err := bimg.NewImage(out).Size()
			if err != nil {
				t.Fatalf("failed to read size: %v", err)
			}
			if size.Width != tt.wantWidth || size.Height != tt.wantHeight {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantWidth, tt.wantHeight, size.Width, size.Height)
			}
		})
	}
}

func TestProcessor_Sanitize(t *testing.T) {
	tests := []struct {
		format   string
		wantType string
		wantMIME string
	}{
		{FormatJPEG, "jpeg", "image/jpeg"},
		{FormatWebP, "webp", "image/webp"},
		{FormatPNG, "png", "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			p := NewProcessor(Config{Quality: 80, Format: tt.format})

			out, contentType, err := p.Sanitize(testPhoto(t, 50, 50))
			if err != nil {
				t.Fatalf("Sanitize failed: %v", err)
			}
			if contentType != tt.wantMIME {
				t.Errorf("expected content type %s, got %s", tt.wantMIME, contentType)
			}
			if got := bimg.DetermineImageTypeName(out); got != tt.wantType {
				t.Errorf("expected %s output, got %s", tt.wantType, got)
			}
		})
	}
}

func TestProcessor_SanitizeInvalidImage(t *testing.T) {
	p := NewProcessor(DefaultConfig())

	_, _, err := p.Sanitize([]byte("not an image"))
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestNewProcessor_Defaults(t *testing.T) {
	p := NewProcessor(Config{})
	if p.config.Quality != 85 {
		t.Errorf("expected default quality 85, got %d", p.config.Quality)
	}
	if p.config.Format != FormatJPEG {
		t.Errorf("expected default format jpeg, got %s", p.config.Format)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		FormatJPEG: "image/jpeg",
		FormatWebP: "image/webp",
		FormatPNG:  "image/png",
		"":         "image/jpeg",
	}
	for format, want := range tests {
		if got := ContentType(format); got != want {
			t.Errorf("ContentType(%q) = %s, want %s", format, got, want)
		}
	}
}

// BenchmarkProcess benchmarks sanitizing a phone-sized photo.
func BenchmarkProcess(b *testing.B) {
	photo := testPhoto(b, 1024, 768)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Process(bytes.NewReader(photo)); err != nil {
			b.Fatalf("Process failed: %v", err)
		}
	}
}
