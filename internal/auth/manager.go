package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Session is the identity behind a request. A nil User means anonymous.
type Session struct {
	Token     string    `json:"token,omitempty"`
	ID        string    `json:"id"`
	User      *User     `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether the session belongs to a user.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil
}

// SessionEventKind is the kind of a session change.
type SessionEventKind string

// Session change kinds.
const (
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionSignedOut SessionEventKind = "signed_out"
)

// SessionEvent is delivered to subscribers when a session starts or ends.
type SessionEvent struct {
	Kind    SessionEventKind
	Session *Session
}

// Manager signs users in and out and resolves tokens to sessions.
type Manager struct {
	users   UserStore
	jwt     *JWTService
	revoked RevocationStore
	logger  *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(SessionEvent)
}

// NewManager creates a session manager. revoked may be nil, in which case
// sign-out does not invalidate the token.
func NewManager(users UserStore, jwtService *JWTService, revoked RevocationStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		users:   users,
		jwt:     jwtService,
		revoked: revoked,
		logger:  logger,
		subs:    make(map[int]func(SessionEvent)),
	}
}

// SignInWithPassword authenticates the user and issues a new session.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	user, err := m.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	token, claims, err := m.jwt.GenerateSessionToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	session := &Session{
		Token:     token,
		ID:        claims.ID,
		User:      user,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	m.logger.InfoContext(ctx, "user signed in", slog.String("user_id", user.ID))
	m.publish(SessionEvent{Kind: SessionSignedIn, Session: session})
	return session, nil
}

// GetSession resolves a token. Any failure, including a revocation lookup
// error, yields nil.
func (m *Manager) GetSession(ctx context.Context, token string) *Session {
	if token == "" {
		return nil
	}

	claims, err := m.jwt.ValidateToken(token)
	if err != nil {
		m.logger.DebugContext(ctx, "session token rejected", slog.String("error", err.Error()))
		return nil
	}

	if m.revoked != nil {
		revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			m.logger.WarnContext(ctx, "session check failed", slog.String("error", err.Error()))
			return nil
		}
		if revoked {
			return nil
		}
	}

	return &Session{
		Token:     token,
		ID:        claims.ID,
		User:      &User{ID: claims.Subject, Email: claims.Email},
		ExpiresAt: claims.ExpiresAt.Time,
	}
}

// SignOut revokes the session behind token.
func (m *Manager) SignOut(ctx context.Context, token string) error {
	session := m.GetSession(ctx, token)
	if session == nil {
		return ErrInvalidToken
	}

	if m.revoked != nil {
		if err := m.revoked.Revoke(ctx, session.ID, session.ExpiresAt); err != nil {
			return err
		}
	}

	m.logger.InfoContext(ctx, "user signed out", slog.String("user_id", session.User.ID))
	m.publish(SessionEvent{Kind: SessionSignedOut, Session: session})
	return nil
}

// Subscribe registers fn for session events and returns a function that
// removes it. fn runs synchronously on the signing goroutine.
func (m *Manager) Subscribe(fn func(SessionEvent)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) publish(ev SessionEvent) {
	m.mu.RLock()
	fns := make([]func(SessionEvent), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

