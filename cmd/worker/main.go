// Command worker runs the dispatch worker pool and the reconciliation
// sweeper without the public API.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/app"
	"github.com/kevin07696/payment-gateway/internal/config"
	"github.com/kevin07696/payment-gateway/pkg/observability"
	"github.com/kevin07696/payment-gateway/pkg/shutdown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Queue.Backend == "memory" {
		fmt.Fprintln(os.Stderr, "the worker binary needs a shared queue; set QUEUE_BACKEND=postgres")
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	mgr := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)
	a.StartBackground(ctx, mgr)

	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), a.Health, logger)
	mgr.RegisterHTTPServer("metrics_server", metricsServer)

	a.Pool.Start(ctx)
	mgr.Register("worker_pool", a.Pool.Shutdown)

	logger.Info("Dispatch worker running",
		zap.Int("concurrency", cfg.Queue.Concurrency),
		zap.Bool("reconcile_enabled", cfg.Reconcile.Enabled),
	)

	if err := mgr.WaitForShutdown(ctx); err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
		os.Exit(1)
	}
}
