package observability

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsRouter serves the scrape and probe endpoints kept off the public port
func MetricsRouter(health *HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", LiveHandler())
	if health != nil {
		r.Get("/ready", health.ReadyHandler())
	}
	return r
}

// StartMetricsServer listens on port in the background. The returned server
// is registered with the shutdown manager by the caller.
func StartMetricsServer(port string, health *HealthChecker, logger *zap.Logger) *http.Server {
	server := &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           MetricsRouter(health),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		logger.Info("Metrics listener up", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics listener stopped", zap.Error(err))
		}
	}()
	return server
}
