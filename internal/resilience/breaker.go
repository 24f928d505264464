package resilience

import (
	"sync"
	"time"

	"github.com/gitnexus/gateway/internal/metrics"
)

// State is one of the three circuit-breaker states of spec §4.E.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// BreakerConfig configures a Breaker, in the same "Default*Config
// constructor" idiom as the teacher's embedder.DefaultRetryConfig.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultBreakerConfig returns spec §4.E's defaults: trip after 5
// consecutive failures, reset 30s after opening.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

// Breaker is a single mutex-guarded state machine shared by every backend
// call in the process (spec §3 Circuit-breaker state: one instance per
// daemon, protecting all backend calls uniformly).
type Breaker struct {
	mu sync.Mutex

	cfg                 BreakerConfig
	state               State
	consecutiveFailures int
	openedAt            time.Time
}

// NewBreaker constructs a Breaker in the closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed. When it returns false, retryAfter
// is the number of seconds the caller should wait before retrying (spec §4.E
// CIRCUIT_OPEN retry_after). Allow performs the open→half_open transition
// itself and admits exactly the one call that triggers it as the probe;
// concurrent callers that observe half_open are rejected until that probe
// resolves, satisfying "the next call is admitted as a probe".
func (b *Breaker) Allow() (ok bool, retryAfter float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, 0
	case StateHalfOpen:
		return false, 0
	case StateOpen:
		remaining := b.cfg.ResetTimeout - time.Since(b.openedAt)
		if remaining <= 0 {
			b.transition(StateHalfOpen)
			return true, 0
		}
		return false, remaining.Seconds()
	default:
		return true, 0
	}
}

// RecordSuccess resets the failure count and closes the breaker. Any
// successful call — including a half_open probe — resets
// consecutive_failures to zero per spec §4.E.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.transition(StateClosed)
}

// RecordFailure increments the failure count (or, for a failed half_open
// probe, immediately reopens the breaker) and trips the breaker once the
// threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.transition(StateOpen)
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.transition(StateOpen)
		b.openedAt = time.Now()
	}
}

// transition moves the breaker to next and records the edge, if any actual
// change occurred. Callers must hold b.mu.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	metrics.Default().IncBreakerTransition(string(b.state), string(next))
	b.state = next
}

// State returns the breaker's current state, for observability and tests.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current failure count, for observability
// and tests.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
