// Package app wires the stores, providers and services shared by the server,
// worker and operator binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/payment-gateway/internal/adapters/database"
	"github.com/kevin07696/payment-gateway/internal/adapters/mongostore"
	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
	"github.com/kevin07696/payment-gateway/internal/adapters/postgres"
	"github.com/kevin07696/payment-gateway/internal/adapters/provider"
	"github.com/kevin07696/payment-gateway/internal/adapters/secrets"
	"github.com/kevin07696/payment-gateway/internal/config"
	"github.com/kevin07696/payment-gateway/internal/queue"
	"github.com/kevin07696/payment-gateway/internal/services/payment"
	"github.com/kevin07696/payment-gateway/internal/services/reconcile"
	"github.com/kevin07696/payment-gateway/internal/services/webhook"
	pkghttp "github.com/kevin07696/payment-gateway/pkg/http"
	"github.com/kevin07696/payment-gateway/pkg/observability"
	"github.com/kevin07696/payment-gateway/pkg/resilience"
	"github.com/kevin07696/payment-gateway/pkg/resourcemgmt"
	"github.com/kevin07696/payment-gateway/pkg/security"
	"github.com/kevin07696/payment-gateway/pkg/shutdown"
)

// App holds every long-lived dependency of a gateway process
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	Timeouts      *resilience.TimeoutConfig
	Postgres      *database.PostgreSQLAdapter
	Mongo         *database.MongoAdapter
	Queue         queue.Queue
	Pool          *queue.Pool
	Payments      *payment.Service
	Reconciler    *reconcile.Service
	Notifier      *webhook.Notifier
	CallbackAudit *postgres.CallbackAuditRepository
	Health        *observability.HealthChecker
	Tracker       *resourcemgmt.GoroutineTracker

	secretStore ports.SecretStore
}

// NewLogger builds the process logger
func NewLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// New connects both stores and builds the services. The caller owns the
// returned App and must register it with a shutdown manager.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	timeouts := resilience.DefaultTimeoutConfig()
	timeouts.ProviderCall = cfg.Providers.CallTimeout
	timeouts.WebhookDelivery = cfg.Webhook.Timeout

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Timeouts: timeouts,
		Health:   observability.NewHealthChecker(),
		Tracker:  resourcemgmt.NewGoroutineTracker(logger, nil),
	}

	pgCfg := database.DefaultPostgreSQLConfig(cfg.Database.ConnectionString())
	pgCfg.MaxConns = cfg.Database.MaxConns
	pgCfg.MinConns = cfg.Database.MinConns
	pg, err := database.NewPostgreSQLAdapter(ctx, pgCfg, logger)
	if err != nil {
		return nil, err
	}
	a.Postgres = pg

	mongoCfg := database.DefaultMongoConfig(cfg.Mongo.URI, cfg.Mongo.Database)
	mongoCfg.MaxPoolSize = cfg.Mongo.MaxPoolSize
	mdb, err := database.NewMongoAdapter(ctx, mongoCfg, logger)
	if err != nil {
		pg.Close()
		return nil, err
	}
	a.Mongo = mdb

	a.Health.
		Register("postgres", pg.HealthCheck).
		Register("mongo", mdb.HealthCheck)

	records := mongostore.NewRecordStore(mdb.Database(), logger)
	if err := records.EnsureIndexes(ctx); err != nil {
		a.closeStores()
		return nil, fmt.Errorf("ensure record indexes: %w", err)
	}

	executor := postgres.NewDBExecutor(pg.Pool())
	ledger := postgres.NewLedgerRepository(executor, logger)
	merchants := postgres.NewMerchantDirectory(pg.Pool())
	deliveries := postgres.NewWebhookDeliveryRepository(pg.Pool())
	a.CallbackAudit = postgres.NewCallbackAuditRepository(pg.Pool())

	switch cfg.Queue.Backend {
	case "memory":
		logger.Warn("Using in-memory dispatch queue - jobs are lost on restart")
		a.Queue = queue.NewMemoryQueue()
	default:
		a.Queue = postgres.NewJobStore(executor)
	}

	secretStore, err := newSecretStore(ctx, cfg.Secrets, logger)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.secretStore = secretStore
	creds := secrets.NewProviderCredentialStore(secretStore, logger)

	providerClient := pkghttp.NewClient(pkghttp.ProviderProfile(), timeouts.ProviderCall)
	providerLogger := security.NewRedactingLogger(logger.Named("provider"))
	registry := provider.NewRegistry(
		provider.NewUPIQR(provider.Config{BaseURL: cfg.Providers.UPIQRBaseURL}, providerClient, providerLogger),
		provider.NewIMPSBank(provider.Config{BaseURL: cfg.Providers.IMPSBankBaseURL}, providerClient, providerLogger),
	)
	logger.Info("Settlement providers registered", zap.Strings("providers", registry.Names()))

	dispatcher := provider.NewDispatcher(registry, creds, provider.DispatcherConfig{
		Timeouts:        timeouts,
		CallbackBaseURL: cfg.Providers.CallbackBaseURL,
	}, logger)

	webhookCfg := webhook.DefaultConfig()
	webhookCfg.Timeouts = timeouts
	webhookCfg.MaxAttempts = cfg.Webhook.MaxAttempts
	a.Notifier = webhook.NewNotifier(
		merchants,
		deliveries,
		pkghttp.NewClient(pkghttp.WebhookProfile(), timeouts.WebhookDelivery),
		a.Tracker,
		webhookCfg,
		logger,
	)

	a.Payments = payment.NewService(payment.Dependencies{
		Merchants:  merchants,
		Ledger:     ledger,
		Records:    records,
		Deliveries: deliveries,
		Queue:      a.Queue,
		Providers:  registry,
		Dispatcher: dispatcher,
		Notifier:   a.Notifier,
	}, payment.Config{MaxAttempts: cfg.Queue.MaxAttempts}, logger)

	a.Reconciler = reconcile.NewService(records, ledger, a.Queue, registry, a.Payments, reconcile.Config{
		StaleAfter: cfg.Reconcile.StaleAfter,
		SweepBatch: cfg.Reconcile.SweepBatch,
	}, logger)

	a.Pool = queue.NewPool(a.Queue, queue.PoolConfig{
		Timeouts:     timeouts,
		Concurrency:  cfg.Queue.Concurrency,
		PollInterval: cfg.Queue.PollInterval,
		StallTimeout: cfg.Queue.StallTimeout,
	}, logger)
	a.Payments.RegisterJobs(a.Pool)

	return a, nil
}

// StartBackground launches the periodic sweeper and resource monitors and
// registers them, the webhook drain and both stores with mgr. Register the
// HTTP servers and the worker pool after this call so they stop first.
func (a *App) StartBackground(ctx context.Context, mgr *shutdown.Manager) {
	mgr.RegisterNoErr("postgres", a.Postgres.Close)
	mgr.Register("mongo", a.Mongo.Close)
	if closer, ok := a.secretStore.(io.Closer); ok {
		mgr.RegisterCloser("secret_store", closer)
	}
	mgr.Register("webhook_notifier", a.Notifier.Drain)

	poolMonitor := shutdown.NewBackgroundWorker("ledger_pool_monitor", a.Logger)
	poolMonitor.Start(func(ctx context.Context) {
		a.Postgres.MonitorPool(ctx, 30*time.Second)
	})
	mgr.Register("ledger_pool_monitor", poolMonitor.Shutdown)

	goroutineMonitor := shutdown.NewBackgroundWorker("goroutine_monitor", a.Logger)
	goroutineMonitor.Start(a.Tracker.StartMonitoring)
	mgr.Register("goroutine_monitor", goroutineMonitor.Shutdown)

	if a.Config.Reconcile.Enabled {
		sweeper := shutdown.NewPeriodicWorker("reconcile_sweeper", a.Config.Reconcile.Interval, false, a.Logger)
		sweeper.Start(func(ctx context.Context) {
			sweepCtx, cancel := a.Timeouts.CronContext(ctx)
			defer cancel()
			a.Reconciler.RunSweep(sweepCtx)
		})
		mgr.Register("reconcile_sweeper", sweeper.Shutdown)
	}
}

// Close releases both stores. Processes using a shutdown manager rely on
// StartBackground instead.
func (a *App) Close() {
	a.closeStores()
}

func (a *App) closeStores() {
	if closer, ok := a.secretStore.(io.Closer); ok {
		_ = closer.Close()
	}
	if a.Mongo != nil {
		_ = a.Mongo.Close(context.Background())
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}

func newSecretStore(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretStore, error) {
	switch cfg.Backend {
	case "vault":
		vs, err := secrets.NewVaultStore(ctx, secrets.VaultConfig{
			Address:   cfg.VaultAddress,
			MountPath: cfg.VaultMountPath,
			Token:     cfg.VaultToken,
			RoleID:    cfg.VaultRoleID,
			SecretID:  cfg.VaultSecretID,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init vault secret store: %w", err)
		}
		return secrets.NewCachedStore(vs, cfg.CacheTTL), nil

	case "aws":
		as, err := secrets.NewAWSStore(ctx, secrets.AWSConfig{
			Region:   cfg.AWSRegion,
			Endpoint: cfg.AWSEndpoint,
			Prefix:   cfg.AWSPrefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init aws secret store: %w", err)
		}
		return secrets.NewCachedStore(as, cfg.CacheTTL), nil

	case "gcp":
		gs, err := secrets.NewGCPStore(ctx, secrets.GCPConfig{ProjectID: cfg.GCPProjectID}, logger)
		if err != nil {
			return nil, fmt.Errorf("init gcp secret store: %w", err)
		}
		return secrets.NewCachedStore(gs, cfg.CacheTTL), nil
	}

	logger.Warn("Reading provider credentials from local files - NOT for production use",
		zap.String("path", cfg.LocalPath),
	)
	return secrets.NewFileStore(cfg.LocalPath, logger), nil
}
