// Package resilience implements the three pieces of spec §4.E that protect
// every backend call: a per-call timeout derived from tool category, a
// process-global consecutive-failure circuit breaker, and a full-jitter
// backoff calculator for peer reconnects. It generalizes the teacher's
// internal/embedder/retry.go (RetryConfig + retryWithBackoff[T]) from
// "retry one embedding call" into these three standalone pieces; unlike the
// teacher's retry loop, the timeout wrapper here never retries internally.
package resilience

import (
	"context"
	"time"

	"github.com/gitnexus/gateway/internal/registry"
)

// Timeouts holds the two category deadlines of spec §4.E, normally sourced
// from config.Config at startup.
type Timeouts struct {
	Quick time.Duration
	Heavy time.Duration
}

// For returns the deadline for cat.
func (t Timeouts) For(cat registry.Category) time.Duration {
	if cat == registry.CategoryHeavy {
		return t.Heavy
	}
	return t.Quick
}

type timeoutResult[T any] struct {
	val T
	err error
}

// Run executes fn under a deadline of d, derived from the caller's tool
// category. If fn does not return before the deadline, Run returns
// context.DeadlineExceeded and fn's goroutine is abandoned: any late result
// is dropped on the floor, exactly as spec §5 requires ("a matching entry
// is no longer present").
func Run[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	resultCh := make(chan timeoutResult[T], 1)
	go func() {
		v, err := fn(ctx)
		resultCh <- timeoutResult[T]{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-resultCh:
		return r.val, r.err
	}
}
