package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the timeout hierarchy of the engine
//
//	Intake / callback handler (15s)
//	  ↓
//	Database transaction (5s)
//
//	Job attempt (60s)
//	  ↓
//	Provider call (20s)
//	  ↓
//	Database transaction (5s)
//
//	Webhook delivery attempt (10s), reconciliation sweep (5m)
//
// Each inner budget is smaller than its parent so the parent can still
// persist a terminal or retryable state after the child times out.
type TimeoutConfig struct {
	HTTPHandler     time.Duration
	JobAttempt      time.Duration
	ProviderCall    time.Duration
	WebhookDelivery time.Duration
	CronSweep       time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:     15 * time.Second,
		JobAttempt:      60 * time.Second,
		ProviderCall:    20 * time.Second,
		WebhookDelivery: 10 * time.Second,
		CronSweep:       5 * time.Minute,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:     2 * time.Second,
		JobAttempt:      2 * time.Second,
		ProviderCall:    500 * time.Millisecond,
		WebhookDelivery: 500 * time.Millisecond,
		CronSweep:       5 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// JobAttemptContext bounds one worker attempt at a job
func (tc *TimeoutConfig) JobAttemptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.JobAttempt)
}

// ProviderContext bounds one outbound provider call
func (tc *TimeoutConfig) ProviderContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.ProviderCall)
}

// WebhookContext creates a context for a single merchant webhook attempt
func (tc *TimeoutConfig) WebhookContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.WebhookDelivery)
}

// CronContext creates a context with timeout for the reconciliation sweep
func (tc *TimeoutConfig) CronContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CronSweep)
}
