package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/crypto/bcrypt"
)

// User errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserExists         = errors.New("user already exists")
)

// User is an account that can sign in.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserStore authenticates users by email and password.
type UserStore interface {
	Authenticate(ctx context.Context, email, password string) (*User, error)
}

type account struct {
	user User
	hash []byte
}

// InMemoryUserStore keeps accounts with bcrypt password hashes in memory.
type InMemoryUserStore struct {
	mu       sync.RWMutex
	accounts map[string]account // keyed by normalized email
	// dummyHash is compared against when the email is unknown so both
	// paths cost one bcrypt comparison.
	dummyHash []byte
}

// NewInMemoryUserStore creates an empty user store.
func NewInMemoryUserStore() *InMemoryUserStore {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("plaques-dummy-password"), bcrypt.MinCost)
	return &InMemoryUserStore{
		accounts:  make(map[string]account),
		dummyHash: dummy,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AddUser hashes the password and stores the account.
func (s *InMemoryUserStore) AddUser(user User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.AddUserWithHash(user, string(hash))
}

// AddUserWithHash stores an account with an existing bcrypt hash.
func (s *InMemoryUserStore) AddUserWithHash(user User, hash string) error {
	if user.ID == "" {
		return ErrEmptyUserID
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("invalid password hash for %s: %w", user.ID, err)
	}

	key := normalizeEmail(user.Email)
	if key == "" {
		return fmt.Errorf("email is required for %s", user.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[key]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, key)
	}
	s.accounts[key] = account{user: user, hash: []byte(hash)}
	return nil
}

// Authenticate returns the user when the password matches.
func (s *InMemoryUserStore) Authenticate(_ context.Context, email, password string) (*User, error) {
	s.mu.RLock()
	acct, ok := s.accounts[normalizeEmail(email)]
	s.mu.RUnlock()

	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	u := acct.user
	return &u, nil
}

// Len returns the number of accounts.
func (s *InMemoryUserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

type userEntry struct {
	ID           string `koanf:"id"`
	Email        string `koanf:"email"`
	PasswordHash string `koanf:"password_hash"`
}

// LoadUsersFile reads seeded accounts from a YAML file of the form:
//
//	users:
//	  - id: walker
//	    email: walker@example.com
//	    password_hash: $2a$10$...
func LoadUsersFile(path string, store *InMemoryUserStore) (int, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return 0, fmt.Errorf("failed to load users file: %w", err)
	}

	var entries []userEntry
	if err := k.Unmarshal("users", &entries); err != nil {
		return 0, fmt.Errorf("failed to parse users file: %w", err)
	}

	for _, e := range entries {
		if err := store.AddUserWithHash(User{ID: e.ID, Email: e.Email}, e.PasswordHash); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}
