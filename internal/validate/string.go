// Package validate normalizes and checks user input at the HTTP boundary:
// sign-in credentials, visit notes and search terms.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation errors.
var (
	ErrEmpty             = errors.New("value is empty")
	ErrStringTooLong     = errors.New("value is too long")
	ErrInvalidCharacters = errors.New("value contains invalid characters")
	ErrInvalidEmail      = errors.New("invalid email format")
)

// Field limits.
const (
	MaxNotesLength      = 1000
	MaxSearchTermLength = 100
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordBytes = 72
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MaxLength  int  // Maximum length in characters (0 = no maximum)
	AllowEmpty bool // Whether empty strings are allowed
	Multiline  bool // Whether newlines and tabs are allowed
}

// String trims s and checks it against the constraints.
// Control characters are always rejected, except newlines and tabs when
// Multiline is set.
func String(s string, c StringConstraints) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if c.AllowEmpty {
			return "", nil
		}
		return "", ErrEmpty
	}

	if !utf8.ValidString(s) {
		return "", ErrInvalidCharacters
	}
	if n := utf8.RuneCountInString(s); c.MaxLength > 0 && n > c.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, n, c.MaxLength)
	}

	for _, r := range s {
		if !unicode.IsControl(r) {
			continue
		}
		if c.Multiline && (r == '\n' || r == '\r' || r == '\t') {
			continue
		}
		return "", ErrInvalidCharacters
	}
	return s, nil
}

// Notes validates the optional free text attached to a visit.
func Notes(notes string) (string, error) {
	return String(notes, StringConstraints{
		MaxLength:  MaxNotesLength,
		AllowEmpty: true,
		Multiline:  true,
	})
}

// SearchTerm validates the plaque search query. Empty matches everything.
func SearchTerm(q string) (string, error) {
	return String(q, StringConstraints{
		MaxLength:  MaxSearchTermLength,
		AllowEmpty: true,
	})
}

// Password checks a sign-in password without trimming it.
func Password(password string) error {
	if password == "" {
		return ErrEmpty
	}
	if len(password) > MaxPasswordBytes {
		return ErrStringTooLong
	}
	return nil
}
