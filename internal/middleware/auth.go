package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/onnwee/plaques/internal/auth"
)

// sessionKey is the context key for the resolved session.
type sessionKey struct{}

// SessionResolver maps a bearer token to a session.
type SessionResolver interface {
	GetSession(ctx context.Context, token string) *auth.Session
}

// SetSession stores the session in the context.
func SetSession(ctx context.Context, session *auth.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// GetSession returns the session from context, or nil for anonymous requests.
func GetSession(ctx context.Context) *auth.Session {
	if s, ok := ctx.Value(sessionKey{}).(*auth.Session); ok {
		return s
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// Authenticate resolves the bearer token, if any, into a session on the
// request context. A missing or invalid token leaves the request anonymous;
// it is never rejected here.
func Authenticate(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			session := resolver.GetSession(r.Context(), token)
			if !session.Authenticated() {
				next.ServeHTTP(w, r)
				return
			}

			ctx := SetSession(r.Context(), session)
			ctx = SetUserID(ctx, session.User.ID)
			UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetSession(r.Context()).Authenticated() {
			w.Header().Set("WWW-Authenticate", `Bearer realm="plaques"`)
			writeError(w, r, http.StatusUnauthorized, "auth_required", "Sign in to continue")
			return
		}
		next.ServeHTTP(w, r)
	})
}
