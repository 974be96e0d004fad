package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/app"
	"github.com/kevin07696/payment-gateway/internal/config"
	"github.com/kevin07696/payment-gateway/internal/handlers"
	callbackHandler "github.com/kevin07696/payment-gateway/internal/handlers/callback"
	cronHandler "github.com/kevin07696/payment-gateway/internal/handlers/cron"
	paymentHandler "github.com/kevin07696/payment-gateway/internal/handlers/payment"
	"github.com/kevin07696/payment-gateway/internal/middleware"
	pkgmiddleware "github.com/kevin07696/payment-gateway/pkg/middleware"
	"github.com/kevin07696/payment-gateway/pkg/observability"
	"github.com/kevin07696/payment-gateway/pkg/shutdown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting payment gateway",
		zap.String("version", "0.1.0"),
		zap.String("environment", cfg.Server.Environment),
		zap.Bool("run_workers", cfg.Server.RunWorkers),
	)

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// LIFO: registered first, stopped last
	mgr := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)
	a.StartBackground(ctx, mgr)

	if cfg.Server.RunWorkers {
		a.Pool.Start(ctx)
		mgr.Register("worker_pool", a.Pool.Shutdown)
	}

	callbackAuth := middleware.NewCallbackAuth(a.CallbackAudit, middleware.CallbackAuthConfig{
		Secrets:           cfg.Callback.Secrets,
		AllowPrivateIPs:   cfg.Callback.AllowPrivateIPs,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		RefreshInterval:   cfg.Callback.RefreshInterval,
	}, logger)

	rateLimiter := pkgmiddleware.NewRateLimiter(pkgmiddleware.RateLimitConfig{
		RequestsPerSecond: cfg.Server.RateLimitRPS,
		Burst:             cfg.Server.RateLimitBurst,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	}, logger)
	mgr.RegisterNoErr("rate_limiter", rateLimiter.Shutdown)

	router := handlers.NewRouter(handlers.RouterConfig{
		Transactions: paymentHandler.NewTransactionHandler(a.Payments, paymentHandler.HandlerConfig{
			Timeouts:          a.Timeouts,
			TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
			TrustBodyClientIP: cfg.Server.TrustBodyClientIP,
		}, logger),
		Callbacks:       callbackHandler.NewHandler(a.Reconciler, a.Timeouts, logger),
		Cron:            cronHandler.NewReconcileHandler(a.Reconciler, a.Timeouts, logger, cfg.Server.CronSecret),
		Health:          a.Health,
		IntakeLimiter:   rateLimiter.Middleware,
		CallbackAuth:    callbackAuth.Middleware,
		SecurityHeaders: middleware.SecurityHeaders(!cfg.IsDevelopment()),
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})

	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), a.Health, logger)
	mgr.RegisterHTTPServer("metrics_server", metricsServer)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	mgr.RegisterHTTPServer("http_server", httpServer)

	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	if err := mgr.WaitForShutdown(ctx); err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
		os.Exit(1)
	}
}
