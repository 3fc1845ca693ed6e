// Package auth signs users in with email and password and manages the
// resulting sessions as signed JWTs that can be revoked on sign-out.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session token defaults.
const (
	DefaultSessionExpiry = 24 * time.Hour
	DefaultLeeway        = 30 * time.Second
)

const issuer = "plaques"

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrEmptyUserID  = errors.New("userID cannot be empty")
)

// Claims are the JWT claims of a session token. RegisteredClaims.ID is the
// session ID used for revocation.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWTService issues and validates session tokens.
// Supports dual-key rotation: tokens are signed with currentSecret,
// but can be validated with either currentSecret or previousSecret.
type JWTService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
	expiry         time.Duration
	now            func() time.Time
}

// NewJWTService creates a JWTService with the default expiry and leeway.
// Set previousSecret to empty string if no rotation is in progress.
func NewJWTService(currentSecret, previousSecret string) *JWTService {
	return NewJWTServiceWithOptions(currentSecret, previousSecret, DefaultLeeway, DefaultSessionExpiry)
}

// NewJWTServiceWithOptions creates a JWTService with custom leeway and expiry.
func NewJWTServiceWithOptions(currentSecret, previousSecret string, leeway, expiry time.Duration) *JWTService {
	if expiry <= 0 {
		expiry = DefaultSessionExpiry
	}
	svc := &JWTService{
		currentSecret: []byte(currentSecret),
		leeway:        leeway,
		expiry:        expiry,
		now:           time.Now,
	}
	if previousSecret != "" {
		svc.previousSecret = []byte(previousSecret)
	}
	return svc
}

// GenerateSessionToken signs a new session for the user and returns the
// token with its claims.
func (s *JWTService) GenerateSessionToken(userID, email string) (string, *Claims, error) {
	if userID == "" {
		return "", nil, ErrEmptyUserID
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		Email: email,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.currentSecret)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ValidateToken parses and validates a session token, returning its claims.
// Tries currentSecret first, then previousSecret if available.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, s.currentSecret)
	if err == nil {
		return claims, nil
	}

	if s.previousSecret != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		claims, err = s.parse(tokenString, s.previousSecret)
		if err == nil {
			return claims, nil
		}
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}

func (s *JWTService) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
