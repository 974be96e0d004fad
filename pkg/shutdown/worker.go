package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackgroundWorker owns one long-running goroutine and its cancellation. It
// satisfies ShutdownFunc through Shutdown, so it can be handed straight to
// Manager.Register.
type BackgroundWorker struct {
	name     string
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  sync.Once
	stopping sync.Once
}

// NewBackgroundWorker creates a worker that has not started yet
func NewBackgroundWorker(name string, logger *zap.Logger) *BackgroundWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundWorker{
		name:   name,
		logger: logger.With(zap.String("worker", name)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start runs work in its own goroutine. work must return once ctx is done.
// Calls after the first are ignored.
func (bw *BackgroundWorker) Start(work func(ctx context.Context)) {
	bw.started.Do(func() {
		go func() {
			defer close(bw.done)
			bw.logger.Info("Background worker running")
			work(bw.ctx)
			bw.logger.Info("Background worker exited")
		}()
	})
}

// Shutdown cancels the worker and waits until it exits or ctx expires. A
// worker that was never started returns immediately.
func (bw *BackgroundWorker) Shutdown(ctx context.Context) error {
	bw.stopping.Do(bw.cancel)
	// never started: nothing to wait for
	bw.started.Do(func() { close(bw.done) })

	select {
	case <-bw.done:
		return nil
	case <-ctx.Done():
		bw.logger.Warn("Background worker still running at shutdown deadline")
		return ctx.Err()
	}
}

// Context is cancelled when Shutdown is called
func (bw *BackgroundWorker) Context() context.Context {
	return bw.ctx
}

// PeriodicWorker calls work every interval until shut down
type PeriodicWorker struct {
	*BackgroundWorker
	interval   time.Duration
	runOnStart bool
}

// NewPeriodicWorker creates a ticker-driven worker. With runOnStart the first
// run happens immediately instead of after one interval.
func NewPeriodicWorker(name string, interval time.Duration, runOnStart bool, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		BackgroundWorker: NewBackgroundWorker(name, logger),
		interval:         interval,
		runOnStart:       runOnStart,
	}
}

// Start begins ticking. A run that overruns the interval delays the next one
// rather than overlapping it.
func (pw *PeriodicWorker) Start(work func(ctx context.Context)) {
	pw.BackgroundWorker.Start(func(ctx context.Context) {
		if pw.runOnStart {
			work(ctx)
		}

		ticker := time.NewTicker(pw.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				work(ctx)
			}
		}
	})
}
