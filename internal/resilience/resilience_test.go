package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitnexus/gateway/internal/registry"
)

func TestTimeouts_For(t *testing.T) {
	tm := Timeouts{Quick: 60 * time.Second, Heavy: 120 * time.Second}
	assert.Equal(t, tm.Quick, tm.For(registry.CategoryQuick))
	assert.Equal(t, tm.Heavy, tm.For(registry.CategoryHeavy))
}

func TestRun_ReturnsResultBeforeDeadline(t *testing.T) {
	v, err := Run(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestRun_ScenarioE_TimesOutAndDropsLateResult(t *testing.T) {
	lateDelivered := make(chan struct{}, 1)

	// The fake backend ignores ctx and answers late, so Run must time out on
	// its own and drop the result that arrives afterwards.
	_, err := Run(context.Background(), 20*time.Millisecond, func(ctx context.Context) (string, error) {
		time.Sleep(200 * time.Millisecond)
		lateDelivered <- struct{}{}
		return "too late", nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-lateDelivered:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("background goroutine never completed")
	}
}

func TestBreaker_ScenarioD_OpensAfterFiveConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second})

	for i := 0; i < 5; i++ {
		ok, _ := b.Allow()
		require.True(t, ok, "call %d should be admitted", i+1)
		b.RecordFailure()
	}

	assert.Equal(t, StateOpen, b.State())

	ok, retryAfter := b.Allow()
	assert.False(t, ok)
	assert.InDelta(t, 30, retryAfter, 1)
}

func TestBreaker_HalfOpenAdmitsExactlyOneProbe(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})

	ok, _ := b.Allow()
	require.True(t, ok)
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)

	ok, _ = b.Allow()
	require.True(t, ok, "first call after reset window should be admitted as the probe")
	assert.Equal(t, StateHalfOpen, b.State())

	ok, _ = b.Allow()
	assert.False(t, ok, "a concurrent call during half_open must not also be admitted")
}

func TestBreaker_SuccessfulProbeClosesBreaker(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 1 * time.Millisecond})

	b.Allow()
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	ok, _ := b.Allow()
	require.True(t, ok)
	b.RecordSuccess()

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.ConsecutiveFailures())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 1 * time.Millisecond})

	b.Allow()
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	ok, _ := b.Allow()
	require.True(t, ok)
	b.RecordFailure()

	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())
	b.Allow()
	b.RecordFailure()
	b.Allow()
	b.RecordFailure()
	require.Equal(t, 2, b.ConsecutiveFailures())

	b.Allow()
	b.RecordSuccess()
	assert.Equal(t, 0, b.ConsecutiveFailures())
}

func TestFullJitterBackoff_InvariantEight(t *testing.T) {
	for attempt := 0; attempt < 12; attempt++ {
		capped := float64(BaseDelay) * pow2(attempt)
		if capped > float64(MaxDelay) {
			capped = float64(MaxDelay)
		}
		for i := 0; i < 20; i++ {
			d := FullJitterBackoff(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, time.Duration(capped))
		}
	}
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}

func TestRun_PropagatesFunctionError(t *testing.T) {
	wantErr := errors.New("backend failed")
	_, err := Run(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
