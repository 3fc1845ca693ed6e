package middleware

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

// newRedisClient connects to localhost:6379 or skips the test.
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRateLimitStore_Allow(t *testing.T) {
	client := newRedisClient(t)
	store := NewRedisRateLimitStore(client)
	config := RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute}
	ctx := context.Background()

	key := "test-redis-key-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	defer client.Del(ctx, rateLimitKeyPrefix+key)

	for i := 0; i < 5; i++ {
		if d := store.Allow(ctx, key, config); !d.Allowed || d.Remaining != 4-i {
			t.Errorf("request %d: %+v", i+1, d)
		}
	}

	d := store.Allow(ctx, key, config)
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("6th request: %+v", d)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within the window", d.RetryAfter)
	}

	other := key + "-other"
	defer client.Del(ctx, rateLimitKeyPrefix+other)
	if !store.Allow(ctx, other, config).Allowed {
		t.Error("independent key should be allowed")
	}
}

func TestRedisRateLimitStore_WindowExpiry(t *testing.T) {
	client := newRedisClient(t)
	store := NewRedisRateLimitStore(client)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 100 * time.Millisecond}
	ctx := context.Background()

	key := "test-redis-expiry-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	defer client.Del(ctx, rateLimitKeyPrefix+key)

	if !store.Allow(ctx, key, config).Allowed {
		t.Error("first request should be allowed")
	}
	if store.Allow(ctx, key, config).Allowed {
		t.Error("second request should be blocked")
	}

	time.Sleep(150 * time.Millisecond)

	if !store.Allow(ctx, key, config).Allowed {
		t.Error("request after window expiry should be allowed")
	}
}

func TestRedisRateLimitStore_FailOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:9999",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	metrics := NewMetrics()
	store := NewRedisRateLimitStore(client).WithMetrics(metrics)
	config := RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute}

	d := store.Allow(context.Background(), "walker", config)
	if !d.Allowed {
		t.Error("should fail open when Redis is unavailable")
	}
	if d.Remaining != config.RequestsPerWindow {
		t.Errorf("remaining = %d, want full quota", d.Remaining)
	}
	if got := testutil.ToFloat64(metrics.limitErrors); got != 1 {
		t.Errorf("redis errors = %v, want 1", got)
	}
}
