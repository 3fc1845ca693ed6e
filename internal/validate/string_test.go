package validate

import (
	"errors"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		constraints StringConstraints
		want        string
		wantErr     error
	}{
		{
			name:        "within length",
			input:       "Hello World",
			constraints: StringConstraints{MaxLength: 20},
			want:        "Hello World",
		},
		{
			name:        "too long counts characters not bytes",
			input:       strings.Repeat("é", 11),
			constraints: StringConstraints{MaxLength: 10},
			wantErr:     ErrStringTooLong,
		},
		{
			name:        "multibyte at limit",
			input:       strings.Repeat("é", 10),
			constraints: StringConstraints{MaxLength: 10},
			want:        strings.Repeat("é", 10),
		},
		{
			name:    "empty not allowed",
			input:   "",
			wantErr: ErrEmpty,
		},
		{
			name:        "empty allowed",
			input:       "   ",
			constraints: StringConstraints{AllowEmpty: true},
			want:        "",
		},
		{
			name:  "whitespace trimmed",
			input: "  Hello  ",
			want:  "Hello",
		},
		{
			name:    "control character rejected",
			input:   "Hello\x00World",
			wantErr: ErrInvalidCharacters,
		},
		{
			name:    "newline rejected on single line",
			input:   "Hello\nWorld",
			wantErr: ErrInvalidCharacters,
		},
		{
			name:        "newline allowed when multiline",
			input:       "Hello\nWorld",
			constraints: StringConstraints{Multiline: true},
			want:        "Hello\nWorld",
		},
		{
			name:    "invalid utf-8",
			input:   "bad\xffbyte",
			wantErr: ErrInvalidCharacters,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := String(tt.input, tt.constraints)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("String() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("String() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotes(t *testing.T) {
	if got, err := Notes(""); err != nil || got != "" {
		t.Errorf("Notes(\"\") = %q, %v; want empty, nil", got, err)
	}

	got, err := Notes("  Sunny afternoon.\nBlue plaque by the door.  ")
	if err != nil {
		t.Fatalf("Notes() unexpected error = %v", err)
	}
	if got != "Sunny afternoon.\nBlue plaque by the door." {
		t.Errorf("Notes() = %q", got)
	}

	// HTML is stored as text, not escaped.
	if got, _ := Notes("Fish & chips <3"); got != "Fish & chips <3" {
		t.Errorf("Notes() altered text: %q", got)
	}

	if _, err := Notes(strings.Repeat("a", MaxNotesLength+1)); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("expected ErrStringTooLong, got %v", err)
	}
}

func TestSearchTerm(t *testing.T) {
	if got, err := SearchTerm("  abbey "); err != nil || got != "abbey" {
		t.Errorf("SearchTerm() = %q, %v", got, err)
	}
	if _, err := SearchTerm(strings.Repeat("a", MaxSearchTermLength+1)); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("expected ErrStringTooLong, got %v", err)
	}
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"valid", "correct horse battery staple", nil},
		{"leading spaces kept", "  secret", nil},
		{"empty", "", ErrEmpty},
		{"over bcrypt limit", strings.Repeat("a", MaxPasswordBytes+1), ErrStringTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Password(tt.password); !errors.Is(err, tt.wantErr) {
				t.Errorf("Password() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
