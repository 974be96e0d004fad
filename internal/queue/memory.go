package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kevin07696/payment-gateway/pkg/timeutil"
)

// MemoryQueue is an in-process Queue for single-node development and tests.
// Jobs do not survive a restart.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
	keys map[string]string // kind/reference -> id
	now  func() time.Time
}

// NewMemoryQueue creates an empty in-memory queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs: make(map[string]*Job),
		keys: make(map[string]string),
		now:  timeutil.Now,
	}
}

var _ Queue = (*MemoryQueue)(nil)

func jobKey(kind, referenceID string) string {
	return kind + "/" + referenceID
}

func (q *MemoryQueue) Enqueue(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := jobKey(job.Kind, job.ReferenceID)
	if _, ok := q.keys[key]; ok {
		return ErrJobExists
	}

	now := q.now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	job.State = StateWaiting
	job.Attempts = 0
	job.CreatedAt = now
	job.UpdatedAt = now

	stored := *job
	q.jobs[job.ID] = &stored
	q.keys[key] = job.ID
	return nil
}

func (q *MemoryQueue) Claim(_ context.Context, workerID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var ready []*Job
	for _, j := range q.jobs {
		if (j.State == StateWaiting || j.State == StateStalled) && !j.RunAt.After(now) {
			ready = append(ready, j)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}
	sort.Slice(ready, func(i, k int) bool { return ready[i].RunAt.Before(ready[k].RunAt) })

	j := ready[0]
	j.State = StateActive
	j.Attempts++
	j.LockedBy = workerID
	j.HeartbeatAt = &now
	j.UpdatedAt = now

	claimed := *j
	return &claimed, nil
}

// owned returns the job when workerID holds its active lease
func (q *MemoryQueue) owned(jobID, workerID string) (*Job, error) {
	j, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if j.State != StateActive || j.LockedBy != workerID {
		return nil, ErrLeaseLost
	}
	return j, nil
}

func (q *MemoryQueue) Heartbeat(_ context.Context, jobID, workerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, err := q.owned(jobID, workerID)
	if err != nil {
		return err
	}
	now := q.now()
	j.HeartbeatAt = &now
	return nil
}

func (q *MemoryQueue) Complete(_ context.Context, jobID, workerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, err := q.owned(jobID, workerID)
	if err != nil {
		return err
	}
	q.finish(j, StateCompleted, "")
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, jobID, workerID string, runAt time.Time, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, err := q.owned(jobID, workerID)
	if err != nil {
		return err
	}
	j.State = StateWaiting
	j.RunAt = runAt
	j.LockedBy = ""
	j.LastError = lastErr
	j.UpdatedAt = q.now()
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, jobID, workerID string, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, err := q.owned(jobID, workerID)
	if err != nil {
		return err
	}
	q.finish(j, StateFailed, lastErr)
	return nil
}

func (q *MemoryQueue) finish(j *Job, state State, lastErr string) {
	now := q.now()
	j.State = state
	j.LockedBy = ""
	if lastErr != "" {
		j.LastError = lastErr
	}
	j.FinishedAt = &now
	j.UpdatedAt = now
}

func (q *MemoryQueue) RequeueStalled(_ context.Context, timeout time.Duration) (int, []*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-timeout)
	requeued := 0
	var failed []*Job
	for _, j := range q.jobs {
		if j.State != StateActive || j.HeartbeatAt == nil || !j.HeartbeatAt.Before(cutoff) {
			continue
		}
		if j.Exhausted() {
			q.finish(j, StateFailed, "stalled: max attempts exceeded")
			copied := *j
			failed = append(failed, &copied)
			continue
		}
		j.State = StateStalled
		j.LockedBy = ""
		j.LastError = "stalled: heartbeat lapsed"
		j.UpdatedAt = q.now()
		requeued++
	}
	return requeued, failed, nil
}

func (q *MemoryQueue) Get(_ context.Context, kind, referenceID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, ok := q.keys[jobKey(kind, referenceID)]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *q.jobs[id]
	return &copied, nil
}

func (q *MemoryQueue) ListByState(_ context.Context, state State, limit int) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Job
	for _, j := range q.jobs {
		if j.State == state {
			copied := *j
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.After(out[k].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
