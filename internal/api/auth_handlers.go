package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/plaques/internal/auth"
	"github.com/onnwee/plaques/internal/middleware"
	"github.com/onnwee/plaques/internal/validate"
)

// SessionManager signs users in and out.
type SessionManager interface {
	SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, token string) error
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse wraps the current session; Session is null when anonymous.
type SessionResponse struct {
	Session *auth.Session `json:"session"`
}

// AuthHandlers serves the identity endpoints.
type AuthHandlers struct {
	sessions SessionManager
}

// NewAuthHandlers creates auth handlers.
func NewAuthHandlers(sessions SessionManager) *AuthHandlers {
	return &AuthHandlers{sessions: sessions}
}

// Login handles POST /auth/login and returns the new session with its token.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	email, err := validate.Email(req.Email)
	if err != nil {
		writeErrorCode(w, r, ErrCodeValidation, "A valid email address is required")
		return
	}
	if err := validate.Password(req.Password); err != nil {
		writeErrorCode(w, r, ErrCodeValidation, "Password is required and must be at most 72 bytes")
		return
	}

	session, err := h.sessions.SignInWithPassword(r.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeErrorCode(w, r, ErrCodeInvalidCredentials, "Email or password is incorrect")
			return
		}
		slog.ErrorContext(r.Context(), "sign-in failed", "error", err)
		writeErrorCode(w, r, ErrCodeInternal, "Could not sign in, please try again")
		return
	}

	middleware.UpdateResponseContext(w, middleware.SetUserID(r.Context(), session.User.ID))
	writeJSON(w, r, http.StatusOK, SessionResponse{Session: session})
}

// Logout handles POST /auth/logout and revokes the caller's token.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.SignOut(r.Context(), middleware.BearerToken(r))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrInvalidToken):
		writeErrorCode(w, r, ErrCodeAuthRequired, "Session is no longer valid")
	default:
		slog.ErrorContext(r.Context(), "sign-out failed", "error", err)
		writeErrorCode(w, r, ErrCodeInternal, "Could not sign out, please try again")
	}
}

// Session handles GET /auth/session. The token itself is not echoed back.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	if !session.Authenticated() {
		writeJSON(w, r, http.StatusOK, SessionResponse{})
		return
	}

	out := *session
	out.Token = ""
	writeJSON(w, r, http.StatusOK, SessionResponse{Session: &out})
}
