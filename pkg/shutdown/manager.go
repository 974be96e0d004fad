package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_shutdown_duration_seconds",
		Help:    "Time from shutdown signal to the last component stopping",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	componentShutdownDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_component_shutdown_duration_seconds",
		Help:    "Time one component took to stop",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 20, 25, 30},
	}, []string{"component"})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_shutdown_errors_total",
		Help: "Components that failed to stop cleanly",
	}, []string{"component"})
)

// ShutdownFunc stops one component within ctx
type ShutdownFunc func(context.Context) error

type component struct {
	name string
	stop ShutdownFunc
}

// Manager stops registered components one at a time in reverse registration
// order. A gateway process registers its stores first and its HTTP servers
// last, so intake closes before the worker pool drains and the pools close
// after everything that uses them:
//
//	postgres, mongo -> webhook drain -> monitors, sweeper -> worker pool -> HTTP
type Manager struct {
	logger     *zap.Logger
	components []component
	mu         sync.Mutex
	once       sync.Once
	timeout    time.Duration
	err        error
}

// NewManager creates a manager that gives all components timeout in total
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a component to stop during shutdown
func (m *Manager) Register(name string, fn ShutdownFunc) {
	m.mu.Lock()
	m.components = append(m.components, component{name: name, stop: fn})
	n := len(m.components)
	m.mu.Unlock()

	m.logger.Debug("Registered shutdown component",
		zap.String("component", name),
		zap.Int("order", n),
	)
}

// RegisterHTTPServer registers an *http.Server or anything stopping like one
func (m *Manager) RegisterHTTPServer(name string, server interface{ Shutdown(context.Context) error }) {
	m.Register(name, server.Shutdown)
}

// RegisterCloser registers a component with a Close() error method
func (m *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	m.Register(name, func(context.Context) error {
		return closer.Close()
	})
}

// RegisterNoErr registers a stop function that cannot fail
func (m *Manager) RegisterNoErr(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// WaitForShutdown blocks until SIGINT, SIGTERM or ctx is done, then stops
// every registered component
func (m *Manager) WaitForShutdown(ctx context.Context) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		m.logger.Info("Process context done, shutting down")
	}
	return m.Shutdown()
}

// Shutdown stops every component. Only the first call does the work; later
// calls return its result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.err = m.stopAll()
	})
	return m.err
}

func (m *Manager) stopAll() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	components := append([]component(nil), m.components...)
	m.mu.Unlock()

	m.logger.Info("Graceful shutdown started",
		zap.Int("components", len(components)),
		zap.Duration("timeout", m.timeout),
	)

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		if err := m.stop(ctx, components[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", components[i].name, err))
		}
	}

	elapsed := time.Since(start)
	shutdownDuration.Observe(elapsed.Seconds())
	if len(errs) > 0 {
		m.logger.Error("Graceful shutdown finished with errors",
			zap.Int("failed", len(errs)),
			zap.Duration("elapsed", elapsed),
		)
		return errors.Join(errs...)
	}
	m.logger.Info("Graceful shutdown finished", zap.Duration("elapsed", elapsed))
	return nil
}

// stop runs even past the deadline so every pool is still closed
func (m *Manager) stop(ctx context.Context, c component) error {
	start := time.Now()
	err := c.stop(ctx)
	elapsed := time.Since(start)
	componentShutdownDuration.WithLabelValues(c.name).Observe(elapsed.Seconds())

	if err != nil {
		shutdownErrors.WithLabelValues(c.name).Inc()
		m.logger.Error("Component did not stop cleanly",
			zap.String("component", c.name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}
	m.logger.Info("Component stopped",
		zap.String("component", c.name),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
