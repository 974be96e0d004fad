package provider

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is the breaker position for one provider
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	ErrCircuitOpen     = errors.New("provider circuit open")
	ErrTooManyRequests = errors.New("provider circuit probing, request rejected")
)

// CircuitBreakerConfig tunes one provider breaker. OnStateChange runs under
// the breaker lock and must not call back into it.
type CircuitBreakerConfig struct {
	OnStateChange       func(from, to CircuitState)
	MaxFailures         uint32        // consecutive transport failures that open the circuit
	Timeout             time.Duration // time open before a probe is let through
	MaxRequestsHalfOpen uint32        // concurrent probes while half-open
}

// DefaultCircuitBreakerConfig opens after 5 straight failures and probes
// again after 30s
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

// CircuitBreaker fails dispatches fast while a provider is unreachable. Only
// transport-level errors and 5xx answers count as failures; a provider that
// declines a transaction is healthy.
//
// Every state change starts a new generation. An outcome reported for an
// older generation is dropped, so a slow call that began before the circuit
// opened cannot close it again.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu         sync.Mutex
	state      CircuitState
	generation uint64
	failures   uint32
	probes     uint32
	openedAt   time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 1
	}
	if cfg.MaxRequestsHalfOpen == 0 {
		cfg.MaxRequestsHalfOpen = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Call runs fn unless the circuit rejects it, and records fn's outcome
func (cb *CircuitBreaker) Call(fn func() error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(gen, err == nil)
	return err
}

// State reports the current position, moving open to half-open once the
// timeout has passed
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expireOpen()
	return cb.state
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.expireOpen()
	switch cb.state {
	case CircuitOpen:
		return 0, ErrCircuitOpen
	case CircuitHalfOpen:
		if cb.probes >= cb.cfg.MaxRequestsHalfOpen {
			return 0, ErrTooManyRequests
		}
		cb.probes++
	}
	return cb.generation, nil
}

func (cb *CircuitBreaker) record(gen uint64, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen != cb.generation {
		return
	}
	switch {
	case ok && cb.state == CircuitHalfOpen:
		cb.transition(CircuitClosed)
	case ok:
		cb.failures = 0
	case cb.state == CircuitHalfOpen:
		cb.transition(CircuitOpen)
	default:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.transition(CircuitOpen)
		}
	}
}

func (cb *CircuitBreaker) expireOpen() {
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) > cb.cfg.Timeout {
		cb.transition(CircuitHalfOpen)
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.generation++
	cb.failures = 0
	cb.probes = 0
	if to == CircuitOpen {
		cb.openedAt = cb.now()
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
