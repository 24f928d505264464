package bridge

import (
	"sync"
	"time"
)

// RateLimit is the per-connection messages-per-second cap of spec §3/§5.
const RateLimit = 50

// rateLimiter tracks messages_this_second/window_start for one connection
// (spec §3 Rate-limit state), the same sliding-window-reset idiom as
// lydakis-mcpx/internal/daemon.Keepalive's per-server bookkeeping,
// generalized here from an idle timer to a fixed-window counter.
type rateLimiter struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{windowStart: time.Now()}
}

// Allow reports whether one more message may be processed in the current
// one-second window. Once the limit is exceeded, further messages in that
// window are silently dropped per spec §4.F — Allow returning false is the
// caller's signal to drop, not to error.
func (r *rateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.windowStart) >= time.Second {
		r.windowStart = now
		r.count = 0
	}
	if r.count >= RateLimit {
		return false
	}
	r.count++
	return true
}
