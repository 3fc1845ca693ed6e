package validate

import (
	"net/mail"
	"regexp"
	"strings"
)

// Length limits from RFC 5321.
const (
	maxEmailLength = 254
	maxLocalLength = 64
)

var emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// Email returns the normalized (trimmed, lowercased) address, which is the
// key accounts are stored under.
func Email(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmpty
	}
	if len(email) > maxEmailLength {
		return "", ErrStringTooLong
	}
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}

	// Rejects forms the pattern lets through, such as "a..b@example.com".
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}

	local, _, _ := strings.Cut(email, "@")
	if len(local) > maxLocalLength {
		return "", ErrStringTooLong
	}
	return email, nil
}
