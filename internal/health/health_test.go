package health

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func TestCheckAll(t *testing.T) {
	errDown := errors.New("down")

	results := CheckAll(context.Background(), map[string]Checker{
		"database": CheckerFunc(func(context.Context) error { return nil }),
		"redis":    CheckerFunc(func(context.Context) error { return errDown }),
		"storage": CheckerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
		"skipped": nil,
	}, 50*time.Millisecond)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %v", len(results), results)
	}
	if results["database"] != nil {
		t.Errorf("database = %v, want nil", results["database"])
	}
	if !errors.Is(results["redis"], errDown) {
		t.Errorf("redis = %v, want %v", results["redis"], errDown)
	}
	if !errors.Is(results["storage"], context.DeadlineExceeded) {
		t.Errorf("storage = %v, want deadline exceeded", results["storage"])
	}
	if _, ok := results["skipped"]; ok {
		t.Error("nil checker should be skipped")
	}
}

func TestDBChecker_Unreachable(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://nobody@127.0.0.1:1/plaques?sslmode=disable&connect_timeout=1")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()

	if err := NewDBChecker(db).HealthCheck(context.Background()); err == nil {
		t.Error("expected error for unreachable database")
	}
}

func TestRedisChecker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	if err := NewRedisChecker(client).HealthCheck(context.Background()); err == nil {
		t.Error("expected error for unreachable redis")
	}
}

var (
	_ Checker = (*DBChecker)(nil)
	_ Checker = (*RedisChecker)(nil)
)
