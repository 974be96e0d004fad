package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_NextDelay(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1 * time.Second}, // capped
		{10, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoff_JitterStaysInBounds(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}

	for i := 0; i < 200; i++ {
		delay := backoff.NextDelay(1)
		assert.GreaterOrEqual(t, delay, 1800*time.Millisecond)
		assert.LessOrEqual(t, delay, 2200*time.Millisecond)
	}
}

func TestJobRetryBackoff(t *testing.T) {
	backoff := JobRetryBackoff()
	backoff.Jitter = 0

	assert.Equal(t, 5*time.Second, backoff.NextDelay(0))
	assert.Equal(t, 10*time.Second, backoff.NextDelay(1))
	assert.Equal(t, 2*time.Minute, backoff.NextDelay(8))
}

func TestWebhookBackoff(t *testing.T) {
	backoff := WebhookBackoff()
	backoff.Jitter = 0

	assert.Equal(t, 1*time.Second, backoff.NextDelay(0))
	assert.Equal(t, 4*time.Second, backoff.NextDelay(2))
	assert.Equal(t, 30*time.Second, backoff.NextDelay(6))
}

func TestFixedBackoff(t *testing.T) {
	backoff := &FixedBackoff{Delay: 250 * time.Millisecond}
	for attempt := 0; attempt < 5; attempt++ {
		assert.Equal(t, 250*time.Millisecond, backoff.NextDelay(attempt))
	}
	assert.Zero(t, (&FixedBackoff{}).NextDelay(3))
}
