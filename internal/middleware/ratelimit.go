package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig is a fixed window limit: at most RequestsPerWindow
// requests per key in each WindowDuration.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate rejects non-positive limits and windows.
func (c RateLimitConfig) Validate() error {
	switch {
	case c.RequestsPerWindow <= 0:
		return fmt.Errorf("rate limit: requests per window must be positive, got %d", c.RequestsPerWindow)
	case c.WindowDuration <= 0:
		return fmt.Errorf("rate limit: window must be positive, got %s", c.WindowDuration)
	}
	return nil
}

// DefaultLoginLimit is 10 sign-in attempts per client IP per minute.
func DefaultLoginLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}
}

// DefaultMutationLimit is 30 visit uploads or deletes per user per minute.
func DefaultMutationLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 30, WindowDuration: time.Minute}
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the window resets; zero when allowed.
	RetryAfter time.Duration
}

// RateLimitStore counts requests per key.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, cfg RateLimitConfig) Decision
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys by client IP: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote address.
func IPKeyFunc() KeyFunc {
	return clientIP
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// UserKeyFunc keys by signed-in user, falling back to client IP for
// anonymous requests.
func UserKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if s := GetSession(r.Context()); s.Authenticated() {
			return "user:" + s.User.ID
		}
		return "ip:" + clientIP(r)
	}
}

func keyType(key string) string {
	if strings.HasPrefix(key, "user:") {
		return "user"
	}
	return "ip"
}

// RateLimiter rejects requests over cfg with 429 and the standard error
// envelope. Every response carries X-RateLimit-Limit and
// X-RateLimit-Remaining. metrics may be nil.
func RateLimiter(store RateLimitStore, cfg RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	limit := strconv.Itoa(cfg.RequestsPerWindow)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			route := routeOf(r.URL.Path)
			if metrics != nil {
				metrics.IncRateLimitRequests(route, keyType(key))
			}

			d := store.Allow(r.Context(), key, cfg)
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			if metrics != nil {
				metrics.IncRateLimitBlocked(route, keyType(key))
			}
			wait := retrySeconds(d.RetryAfter)
			w.Header().Set("Retry-After", strconv.Itoa(wait))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Unix()+int64(wait), 10))
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "Too many requests, try again later")
		})
	}
}

// retrySeconds rounds up to whole seconds, never below one.
func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// writeError writes the API error envelope for rejections made before a
// handler runs, and records the code for the request log.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	UpdateResponseContext(w, SetErrorCode(r.Context(), code))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%q,"message":%q}}`, code, message)
}
