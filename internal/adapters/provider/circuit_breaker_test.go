package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:         2,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	now := time.Now()
	cb.now = func() time.Time { return now }

	boom := errors.New("connection refused")
	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, MaxRequestsHalfOpen: 1})
	boom := errors.New("timeout")

	_ = cb.Call(func() error { return boom })
	_ = cb.Call(func() error { return nil })
	_ = cb.Call(func() error { return boom })
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Second, MaxRequestsHalfOpen: 1})
	now := time.Now()
	cb.now = func() time.Time { return now }
	boom := errors.New("503")

	_ = cb.Call(func() error { return boom })
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Second)
	_ = cb.Call(func() error { return boom })
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_StaleOutcomeIgnored(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Minute, MaxRequestsHalfOpen: 1})
	boom := errors.New("connection reset")

	// A slow call admitted while closed finishes after another call opened the circuit
	slow := make(chan struct{})
	admitted := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Call(func() error {
			close(admitted)
			<-slow
			return nil
		})
	}()
	<-admitted

	_ = cb.Call(func() error { return boom })
	assert.Equal(t, CircuitOpen, cb.State())

	close(slow)
	assert.NoError(t, <-done)
	assert.Equal(t, CircuitOpen, cb.State(), "success from before the trip does not close the circuit")
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Second, MaxRequestsHalfOpen: 1})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return errors.New("502") })
	now = now.Add(2 * time.Second)

	release := make(chan struct{})
	probing := make(chan struct{})
	go func() {
		_ = cb.Call(func() error {
			close(probing)
			<-release
			return nil
		})
	}()
	<-probing

	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrTooManyRequests)
	close(release)
	assert.Eventually(t, func() bool { return cb.State() == CircuitClosed }, time.Second, time.Millisecond)
}
