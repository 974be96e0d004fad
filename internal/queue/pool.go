package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/pkg/observability"
	"github.com/kevin07696/payment-gateway/pkg/resilience"
)

// PoolConfig configures the worker pool
type PoolConfig struct {
	Timeouts          *resilience.TimeoutConfig
	Backoff           resilience.BackoffStrategy
	Concurrency       int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	// StallTimeout is how long an active job may go without a heartbeat
	// before it is re-delivered
	StallTimeout time.Duration
	ReapInterval time.Duration
}

// DefaultPoolConfig returns production defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Timeouts:          resilience.DefaultTimeoutConfig(),
		Backoff:           resilience.JobRetryBackoff(),
		Concurrency:       4,
		PollInterval:      500 * time.Millisecond,
		HeartbeatInterval: 5 * time.Second,
		StallTimeout:      30 * time.Second,
		ReapInterval:      15 * time.Second,
	}
}

// Pool runs workers that each own one job at a time
type Pool struct {
	queue     Queue
	cfg       PoolConfig
	handlers  map[string]Handler
	exhausted map[string]ExhaustedHandler
	logger    *zap.Logger
	nodeID    string

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewPool creates a worker pool over q
func NewPool(q Queue, cfg PoolConfig, logger *zap.Logger) *Pool {
	if cfg.Timeouts == nil {
		cfg.Timeouts = resilience.DefaultTimeoutConfig()
	}
	if cfg.Backoff == nil {
		cfg.Backoff = resilience.JobRetryBackoff()
	}
	defaults := DefaultPoolConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = defaults.StallTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = defaults.ReapInterval
	}

	host, _ := os.Hostname()
	return &Pool{
		queue:     q,
		cfg:       cfg,
		handlers:  make(map[string]Handler),
		exhausted: make(map[string]ExhaustedHandler),
		logger:    logger,
		nodeID:    fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8]),
	}
}

// Register sets the handler for a job kind
func (p *Pool) Register(kind string, h Handler) {
	p.handlers[kind] = h
}

// OnExhausted sets the hook run once a job of kind is permanently failed
func (p *Pool) OnExhausted(kind string, h ExhaustedHandler) {
	p.exhausted[kind] = h
}

// WorkerID returns the lease owner id for worker n of this process
func (p *Pool) WorkerID(n int) string {
	return fmt.Sprintf("%s/%d", p.nodeID, n)
}

// Start launches the workers and the stall reaper. They stop claiming new
// jobs when ctx is cancelled or Shutdown is called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.work(runCtx, p.WorkerID(i))
	}

	p.wg.Add(1)
	go p.reap(runCtx)

	p.logger.Info("Worker pool started",
		zap.String("node_id", p.nodeID),
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Duration("stall_timeout", p.cfg.StallTimeout),
	)
}

// Shutdown stops claiming and waits for in-flight jobs to finish or ctx to expire
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool drain: %w", ctx.Err())
	}
}

func (p *Pool) work(ctx context.Context, workerID string) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := p.ProcessNext(ctx, workerID)
		if err != nil && ctx.Err() == nil {
			p.logger.Error("Worker failed to process job",
				zap.String("worker_id", workerID),
				zap.Error(err),
			)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

func (p *Pool) reap(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ReapStalled(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("Failed to reap stalled jobs", zap.Error(err))
			}
		}
	}
}

// ReapStalled re-delivers jobs whose heartbeat lapsed and fails the ones that
// have no attempts left.
func (p *Pool) ReapStalled(ctx context.Context) (int, error) {
	requeued, failed, err := p.queue.RequeueStalled(ctx, p.cfg.StallTimeout)
	if err != nil {
		return 0, err
	}

	if requeued > 0 || len(failed) > 0 {
		p.logger.Warn("Stalled jobs detected",
			zap.Int("requeued", requeued),
			zap.Int("failed", len(failed)),
		)
		observability.RecordStalledJobs(requeued, len(failed))
	}

	for _, job := range failed {
		p.exhaust(job, errors.New(job.LastError))
	}
	return requeued, nil
}

// ProcessNext claims and runs one job. It reports false when no job was ready.
func (p *Pool) ProcessNext(ctx context.Context, workerID string) (bool, error) {
	job, err := p.queue.Claim(ctx, workerID)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	p.process(job, workerID)
	return true, nil
}

// process runs the handler detached from the pool context: a claimed job runs
// to completion, failure or its attempt timeout even during shutdown.
func (p *Pool) process(job *Job, workerID string) {
	start := time.Now()
	logger := p.logger.With(
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.String("reference_id", job.ReferenceID),
		zap.Int("attempt", job.Attempts),
		zap.Int("max_attempts", job.MaxAttempts),
		zap.String("worker_id", workerID),
	)

	attemptCtx, cancel := p.cfg.Timeouts.JobAttemptContext(context.Background())
	defer cancel()

	hbCtx, stopHeartbeat := context.WithCancel(attemptCtx)
	go p.heartbeat(hbCtx, job.ID, workerID, logger)

	err := p.runHandler(attemptCtx, job)
	stopHeartbeat()

	// Queue bookkeeping gets its own budget; the attempt context may be spent
	opCtx, opCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer opCancel()

	var outcome string
	switch {
	case err == nil:
		outcome = "completed"
		if qErr := p.queue.Complete(opCtx, job.ID, workerID); qErr != nil {
			logger.Warn("Failed to mark job completed", zap.Error(qErr))
		}
		logger.Info("Job completed", zap.Duration("duration", time.Since(start)))

	case IsPermanent(err), job.Exhausted():
		outcome = "failed"
		if qErr := p.queue.Fail(opCtx, job.ID, workerID, err.Error()); qErr != nil {
			logger.Warn("Failed to mark job failed", zap.Error(qErr))
			if errors.Is(qErr, ErrLeaseLost) {
				// The reaper owns the job now and will re-deliver or fail it
				break
			}
		}
		logger.Error("Job permanently failed",
			zap.Bool("permanent", IsPermanent(err)),
			zap.Error(err),
		)
		p.exhaust(job, err)

	default:
		outcome = "retried"
		delay := p.cfg.Backoff.NextDelay(job.Attempts - 1)
		if qErr := p.queue.Retry(opCtx, job.ID, workerID, time.Now().Add(delay), err.Error()); qErr != nil {
			logger.Warn("Failed to schedule job retry", zap.Error(qErr))
		}
		logger.Warn("Job attempt failed, retry scheduled",
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
	}

	observability.RecordJobOutcome(job.Kind, outcome, time.Since(start))
}

func (p *Pool) runHandler(ctx context.Context, job *Job) (err error) {
	handler, ok := p.handlers[job.Kind]
	if !ok {
		return Permanent(fmt.Errorf("no handler registered for job kind %q", job.Kind))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()

	return handler(ctx, job)
}

func (p *Pool) heartbeat(ctx context.Context, jobID, workerID string, logger *zap.Logger) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.Heartbeat(ctx, jobID, workerID); err != nil {
				if errors.Is(err, ErrLeaseLost) {
					logger.Warn("Job lease lost during processing")
					return
				}
				if ctx.Err() == nil {
					logger.Warn("Job heartbeat failed", zap.Error(err))
				}
			}
		}
	}
}

func (p *Pool) exhaust(job *Job, cause error) {
	hook, ok := p.exhausted[job.Kind]
	if !ok {
		return
	}

	ctx, cancel := p.cfg.Timeouts.JobAttemptContext(context.Background())
	defer cancel()
	hook(ctx, job, cause)
}
