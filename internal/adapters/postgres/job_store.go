package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/payment-gateway/internal/queue"
)

// JobStore is the durable queue.Queue. Workers claim with FOR UPDATE SKIP
// LOCKED so any number of worker processes can share the table.
type JobStore struct {
	db *DBExecutor
}

// NewJobStore creates a new job store
func NewJobStore(db *DBExecutor) *JobStore {
	return &JobStore{db: db}
}

var _ queue.Queue = (*JobStore)(nil)

const jobColumns = `
id, kind, reference_id, payload, state, attempts, max_attempts, run_at,
locked_by, heartbeat_at, last_error, created_at, updated_at, finished_at`

// Enqueue returns queue.ErrJobExists when a job for the same kind and
// reference was already enqueued.
func (s *JobStore) Enqueue(ctx context.Context, job *queue.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = queue.DefaultMaxAttempts
	}
	if job.RunAt.IsZero() {
		job.RunAt = time.Now()
	}
	payload := job.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err := s.db.GetDB().QueryRow(ctx,
		`INSERT INTO jobs (id, kind, reference_id, payload, state, max_attempts, run_at)
		 VALUES ($1, $2, $3, $4, 'waiting', $5, $6)
		 RETURNING created_at, updated_at`,
		job.ID, job.Kind, job.ReferenceID, payload, job.MaxAttempts, job.RunAt,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if isUniqueViolation(err) {
		return queue.ErrJobExists
	}
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	job.State = queue.StateWaiting
	job.Attempts = 0
	return nil
}

const claimJobSQL = `
UPDATE jobs
SET state = 'active',
    attempts = attempts + 1,
    locked_by = $1,
    heartbeat_at = NOW(),
    updated_at = NOW()
WHERE id = (
    SELECT id FROM jobs
    WHERE state IN ('waiting', 'stalled') AND run_at <= NOW()
    ORDER BY run_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

func (s *JobStore) Claim(ctx context.Context, workerID string) (*queue.Job, error) {
	job, err := scanJob(s.db.GetDB().QueryRow(ctx, claimJobSQL, workerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// leased runs an update that only matches while workerID holds the lease
func (s *JobStore) leased(ctx context.Context, jobID, workerID, set string, args ...interface{}) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return queue.ErrJobNotFound
	}

	params := append([]interface{}{id, workerID}, args...)
	tag, err := s.db.GetDB().Exec(ctx,
		`UPDATE jobs SET `+set+`, updated_at = NOW()
		 WHERE id = $1 AND state = 'active' AND locked_by = $2`,
		params...,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.db.GetDB().QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return queue.ErrJobNotFound
	}
	return queue.ErrLeaseLost
}

func (s *JobStore) Heartbeat(ctx context.Context, jobID, workerID string) error {
	return s.leased(ctx, jobID, workerID, `heartbeat_at = NOW()`)
}

func (s *JobStore) Complete(ctx context.Context, jobID, workerID string) error {
	return s.leased(ctx, jobID, workerID, `state = 'completed', locked_by = NULL, finished_at = NOW()`)
}

func (s *JobStore) Retry(ctx context.Context, jobID, workerID string, runAt time.Time, lastErr string) error {
	return s.leased(ctx, jobID, workerID,
		`state = 'waiting', locked_by = NULL, run_at = $3, last_error = $4`,
		runAt, lastErr,
	)
}

func (s *JobStore) Fail(ctx context.Context, jobID, workerID string, lastErr string) error {
	return s.leased(ctx, jobID, workerID,
		`state = 'failed', locked_by = NULL, finished_at = NOW(), last_error = $3`,
		lastErr,
	)
}

// RequeueStalled runs in one transaction so a job is either re-delivered or
// failed, never both.
func (s *JobStore) RequeueStalled(ctx context.Context, timeout time.Duration) (int, []*queue.Job, error) {
	cutoff := time.Now().Add(-timeout)
	var (
		requeued int
		failed   []*queue.Job
	)

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		failed = nil

		rows, err := tx.Query(ctx,
			`UPDATE jobs
			 SET state = 'failed', locked_by = NULL, finished_at = NOW(), updated_at = NOW(),
			     last_error = 'stalled: max attempts exceeded'
			 WHERE state = 'active' AND heartbeat_at < $1 AND attempts >= max_attempts
			 RETURNING `+jobColumns,
			cutoff,
		)
		if err != nil {
			return fmt.Errorf("fail stalled jobs: %w", err)
		}
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan stalled job: %w", err)
			}
			failed = append(failed, job)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`UPDATE jobs
			 SET state = 'stalled', locked_by = NULL, updated_at = NOW(),
			     last_error = 'stalled: heartbeat lapsed'
			 WHERE state = 'active' AND heartbeat_at < $1`,
			cutoff,
		)
		if err != nil {
			return fmt.Errorf("requeue stalled jobs: %w", err)
		}
		requeued = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return requeued, failed, nil
}

func (s *JobStore) Get(ctx context.Context, kind, referenceID string) (*queue.Job, error) {
	job, err := scanJob(s.db.GetDB().QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE kind = $1 AND reference_id = $2`,
		kind, referenceID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, queue.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListByState returns the most recently updated jobs in state
func (s *JobStore) ListByState(ctx context.Context, state queue.State, limit int) ([]*queue.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.GetDB().Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE state = $1 ORDER BY updated_at DESC LIMIT $2`,
		string(state), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*queue.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		job                 queue.Job
		id                  uuid.UUID
		state               string
		lockedBy, lastError pgtype.Text
		heartbeat, finished pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &job.Kind, &job.ReferenceID, &job.Payload, &state, &job.Attempts, &job.MaxAttempts, &job.RunAt,
		&lockedBy, &heartbeat, &lastError, &job.CreatedAt, &job.UpdatedAt, &finished,
	)
	if err != nil {
		return nil, err
	}

	job.ID = id.String()
	job.State = queue.State(state)
	job.LockedBy = lockedBy.String
	job.LastError = lastError.String
	if heartbeat.Valid {
		t := heartbeat.Time
		job.HeartbeatAt = &t
	}
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	return &job, nil
}
