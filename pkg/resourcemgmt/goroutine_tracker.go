// Package resourcemgmt keeps track of work the gateway runs outside a request
// so that shutdown can wait for it.
package resourcemgmt

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	processGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_process_goroutines",
		Help: "Goroutines in the process at the last monitor tick",
	})

	runningTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_background_tasks",
		Help: "Tracked background tasks currently running",
	}, []string{"kind"})

	overdueTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_background_tasks_overdue",
		Help: "Tracked background tasks running longer than the overdue limit",
	}, []string{"kind"})

	taskPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_background_task_panics_total",
		Help: "Tracked background tasks that panicked",
	}, []string{"kind"})
)

type task struct {
	id      uint64
	kind    string
	started time.Time
}

// Config controls the monitor loop
type Config struct {
	CheckInterval    time.Duration
	LongRunningLimit time.Duration
}

// DefaultConfig reports every 30s and flags tasks older than 5m
func DefaultConfig() *Config {
	return &Config{
		CheckInterval:    30 * time.Second,
		LongRunningLimit: 5 * time.Minute,
	}
}

// GoroutineTracker runs fire-and-forget tasks such as merchant webhook
// deliveries. Once Drain is called it refuses new tasks and waits for the
// running ones.
type GoroutineTracker struct {
	logger *zap.Logger
	cfg    Config

	mu       sync.Mutex
	wg       sync.WaitGroup
	nextID   uint64
	running  map[uint64]task
	draining bool
}

func NewGoroutineTracker(logger *zap.Logger, cfg *Config) *GoroutineTracker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &GoroutineTracker{
		logger:  logger,
		cfg:     *cfg,
		running: make(map[uint64]task),
	}
}

// Go starts fn as a task of the given kind. It reports false, without running
// fn, once the tracker is draining. A panic in fn is logged and contained.
func (gt *GoroutineTracker) Go(kind string, fn func()) bool {
	gt.mu.Lock()
	if gt.draining {
		gt.mu.Unlock()
		gt.logger.Warn("Background task refused during drain", zap.String("kind", kind))
		return false
	}
	gt.nextID++
	t := task{id: gt.nextID, kind: kind, started: time.Now()}
	gt.running[t.id] = t
	gt.wg.Add(1)
	gt.mu.Unlock()

	runningTasks.WithLabelValues(kind).Inc()
	go gt.run(t, fn)
	return true
}

func (gt *GoroutineTracker) run(t task, fn func()) {
	defer gt.finish(t)
	defer func() {
		if r := recover(); r != nil {
			taskPanics.WithLabelValues(t.kind).Inc()
			gt.logger.Error("Background task panicked",
				zap.String("kind", t.kind),
				zap.Uint64("task", t.id),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}

func (gt *GoroutineTracker) finish(t task) {
	gt.mu.Lock()
	delete(gt.running, t.id)
	gt.mu.Unlock()

	runningTasks.WithLabelValues(t.kind).Dec()
	gt.wg.Done()
}

// Drain refuses new tasks and waits for running ones until ctx is done
func (gt *GoroutineTracker) Drain(ctx context.Context) error {
	gt.mu.Lock()
	gt.draining = true
	pending := len(gt.running)
	gt.mu.Unlock()

	if pending > 0 {
		gt.logger.Info("Draining background tasks", zap.Int("pending", pending))
	}

	done := make(chan struct{})
	go func() {
		gt.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		gt.logger.Warn("Background tasks abandoned at drain deadline", zap.Int("pending", gt.Count()))
		return ctx.Err()
	}
}

// Count is the number of running tasks
func (gt *GoroutineTracker) Count() int {
	gt.mu.Lock()
	defer gt.mu.Unlock()
	return len(gt.running)
}

// StartMonitoring publishes task gauges every CheckInterval until ctx is done
func (gt *GoroutineTracker) StartMonitoring(ctx context.Context) {
	ticker := time.NewTicker(gt.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processGoroutines.Set(float64(runtime.NumGoroutine()))
			gt.reportOverdue(time.Now())
		}
	}
}

// reportOverdue returns the overdue count per kind it published
func (gt *GoroutineTracker) reportOverdue(now time.Time) map[string]int {
	gt.mu.Lock()
	overdue := make(map[string]int)
	var late []task
	for _, t := range gt.running {
		if _, seen := overdue[t.kind]; !seen {
			overdue[t.kind] = 0
		}
		if now.Sub(t.started) > gt.cfg.LongRunningLimit {
			overdue[t.kind]++
			late = append(late, t)
		}
	}
	gt.mu.Unlock()

	for _, t := range late {
		gt.logger.Warn("Background task overdue",
			zap.String("kind", t.kind),
			zap.Uint64("task", t.id),
			zap.Duration("age", now.Sub(t.started)),
		)
	}
	for kind, n := range overdue {
		overdueTasks.WithLabelValues(kind).Set(float64(n))
	}
	return overdue
}
