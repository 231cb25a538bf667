package client

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Jitter scales each delay by a random factor in [0.5, 1.5).
	Jitter bool
}

// Delay returns the wait before retry number attempt (1-based). A nil rng
// with Jitter set uses the low end of the jitter range.
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	delay := float64(b.InitialDelay)
	if attempt > 1 {
		delay *= math.Pow(max(b.Multiplier, 1.0), float64(attempt-1))
	}
	if b.MaxDelay > 0 {
		delay = min(delay, float64(b.MaxDelay))
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// sleep waits out the delay for attempt or returns early with ctx's error.
func (b BackoffConfig) sleep(ctx context.Context, attempt int, rng *rand.Rand) error {
	d := b.Delay(attempt, rng)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
