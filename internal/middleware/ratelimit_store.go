package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type window struct {
	count int
	ends  time.Time
}

// InMemoryRateLimitStore keeps fixed window counters in process memory.
// Limits are per instance; use RedisRateLimitStore to share them.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
}

// NewInMemoryRateLimitStore creates an empty store. Call Cleanup
// periodically to drop expired windows.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		windows: make(map[string]window),
		now:     time.Now,
	}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, cfg RateLimitConfig) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.ends) {
		w = window{ends: now.Add(cfg.WindowDuration)}
	}
	if w.count >= cfg.RequestsPerWindow {
		return Decision{RetryAfter: w.ends.Sub(now)}
	}
	w.count++
	s.windows[key] = w
	return Decision{Allowed: true, Remaining: cfg.RequestsPerWindow - w.count}
}

// Cleanup drops windows that have ended.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if !now.Before(w.ends) {
			delete(s.windows, key)
		}
	}
}

// Len returns the number of live windows.
func (s *InMemoryRateLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// rateLimitScript increments the window counter, starting the window on the
// first hit, and returns the count with the window's remaining milliseconds.
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

const rateLimitKeyPrefix = "plaques:ratelimit:"

// RedisRateLimitStore keeps fixed window counters in Redis, so every API
// instance shares one limit. It fails open: when Redis is unavailable the
// request is allowed and the failure counted.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
	logger  *slog.Logger
}

// NewRedisRateLimitStore creates a Redis-backed store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, logger: slog.Default()}
}

// WithMetrics sets the metrics used to count fail-open events.
func (s *RedisRateLimitStore) WithMetrics(m *Metrics) *RedisRateLimitStore {
	s.metrics = m
	return s
}

// WithLogger sets the logger.
func (s *RedisRateLimitStore) WithLogger(logger *slog.Logger) *RedisRateLimitStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Allow implements RateLimitStore.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, cfg RateLimitConfig) Decision {
	res, err := rateLimitScript.Run(ctx, s.client, []string{rateLimitKeyPrefix + key}, cfg.WindowDuration.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		if s.metrics != nil {
			s.metrics.IncRateLimitRedisErrors()
		}
		s.logger.WarnContext(ctx, "rate limit check failed, allowing request", slog.Any("error", err))
		return Decision{Allowed: true, Remaining: cfg.RequestsPerWindow}
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if count > cfg.RequestsPerWindow {
		return Decision{RetryAfter: ttl}
	}
	return Decision{Allowed: true, Remaining: cfg.RequestsPerWindow - count}
}
