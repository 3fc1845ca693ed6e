// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"sync"
	"time"
)

// Checker is a dependency that can report its health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f(ctx).
func (f CheckerFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// CheckAll runs every checker concurrently, each bounded by timeout, and
// returns the error of each by name (nil when healthy). Nil checkers are
// skipped.
func CheckAll(ctx context.Context, checkers map[string]Checker, timeout time.Duration) map[string]error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]error, len(checkers))
	)

	for name, checker := range checkers {
		if checker == nil {
			continue
		}
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			err := checker.HealthCheck(checkCtx)

			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name, checker)
	}

	wg.Wait()
	return results
}
