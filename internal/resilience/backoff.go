package resilience

import (
	"math"
	"math/rand"
	"time"
)

// BaseDelay and MaxDelay are spec §4.E's backoff bounds, used only by the
// bridge's peer reconnect loop — never inside Run, which does not retry
// internally per spec §5.
const (
	BaseDelay = 500 * time.Millisecond
	MaxDelay  = 60 * time.Second
)

// FullJitterBackoff returns a delay uniformly distributed in
// [0, min(MaxDelay, BaseDelay·2^attempt)]. Full jitter (not a ± percentage)
// is mandated to avoid synchronized reconnect storms when multiple peers
// reconnect at once.
func FullJitterBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	capped := float64(BaseDelay) * math.Pow(2, float64(attempt))
	if capped > float64(MaxDelay) || capped <= 0 {
		capped = float64(MaxDelay)
	}
	return time.Duration(rand.Float64() * capped)
}
