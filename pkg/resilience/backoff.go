package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy maps a zero-based retry number to the wait before it
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per retry, caps it at
// MaxDelay and then spreads it by ±Jitter so workers that failed together do
// not retry together.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64 // fraction of the delay, 0.1 = ±10%
}

// JobRetryBackoff spaces dispatch job retries: ~5s, ~10s, ... up to 2m
func JobRetryBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  5 * time.Second,
		MaxDelay:   2 * time.Minute,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// WebhookBackoff spaces merchant webhook retries: ~1s, ~2s, ~4s, up to 30s
func WebhookBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// NextDelay returns BaseDelay*Multiplier^attempt capped at MaxDelay, with
// jitter applied after the cap
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt))
	if eb.MaxDelay > 0 && (delay > float64(eb.MaxDelay) || math.IsInf(delay, 1)) {
		delay = float64(eb.MaxDelay)
	}

	if eb.Jitter > 0 {
		delay += delay * eb.Jitter * (2*rand.Float64() - 1)
	}
	if delay <= 0 {
		return eb.BaseDelay
	}
	return time.Duration(delay)
}

// FixedBackoff waits Delay before every retry. Zero makes a failed job
// eligible again at once.
type FixedBackoff struct {
	Delay time.Duration
}

func (fb *FixedBackoff) NextDelay(int) time.Duration {
	return fb.Delay
}
