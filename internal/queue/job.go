// Package queue is the durable at-least-once job queue and the worker pool
// that drains it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// State is a job's position in the queue lifecycle
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateStalled   State = "stalled"
)

// DefaultMaxAttempts bounds delivery attempts per job
const DefaultMaxAttempts = 3

// Job kinds
const (
	KindDispatch = "dispatch"
)

// Job is one unit of work keyed by the transaction reference
type Job struct {
	RunAt       time.Time       `json:"run_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	HeartbeatAt *time.Time      `json:"heartbeat_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	ReferenceID string          `json:"reference_id"`
	LockedBy    string          `json:"locked_by,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	State       State           `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
}

// Exhausted reports whether the job has used every attempt
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

var (
	// ErrJobExists is returned when a job with the same kind and reference exists
	ErrJobExists = errors.New("job already exists")
	// ErrJobNotFound is returned by Get when no job matches
	ErrJobNotFound = errors.New("job not found")
	// ErrLeaseLost means another worker now owns the job or it was reaped as stalled
	ErrLeaseLost = errors.New("job lease lost")
)

// Queue is the durable store behind the worker pool. Claim hands a job to
// exactly one worker; the worker keeps its lease alive with Heartbeat.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error

	// Claim takes the next ready job and marks it active for workerID,
	// incrementing its attempt count. Returns nil, nil when nothing is ready.
	Claim(ctx context.Context, workerID string) (*Job, error)

	Heartbeat(ctx context.Context, jobID, workerID string) error
	Complete(ctx context.Context, jobID, workerID string) error
	Retry(ctx context.Context, jobID, workerID string, runAt time.Time, lastErr string) error
	Fail(ctx context.Context, jobID, workerID string, lastErr string) error

	// RequeueStalled marks active jobs whose heartbeat is older than timeout as
	// stalled, or failed when they have no attempts left. The failed jobs are
	// returned so their exhaustion can be handled.
	RequeueStalled(ctx context.Context, timeout time.Duration) (requeued int, failed []*Job, err error)

	Get(ctx context.Context, kind, referenceID string) (*Job, error)
	ListByState(ctx context.Context, state State, limit int) ([]*Job, error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as unretryable: the job fails immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Handler processes one job attempt
type Handler func(ctx context.Context, job *Job) error

// ExhaustedHandler runs once when a job is permanently failed
type ExhaustedHandler func(ctx context.Context, job *Job, cause error)
