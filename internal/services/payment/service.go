// Package payment accepts payin and payout intents, dispatches them from the
// worker pool and drives both transaction mirrors to their terminal status.
package payment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/adapters/provider"
	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/domain/ports"
	"github.com/kevin07696/payment-gateway/internal/queue"
	"github.com/kevin07696/payment-gateway/pkg/timeutil"
)

// Dispatcher sends a transaction to its settlement provider
type Dispatcher interface {
	Dispatch(ctx context.Context, txn *domain.Transaction) provider.Result
}

// ProviderLookup resolves a provider by name
type ProviderLookup interface {
	Get(name string) (provider.SettlementProvider, error)
}

// Notifier tells the merchant about a transaction that reached a terminal status
type Notifier interface {
	Notify(txn *domain.Transaction)
}

// Config tunes the intake and dispatch paths
type Config struct {
	// MaxAttempts bounds dispatch job deliveries
	MaxAttempts int
	// PersistTimeout bounds store writes made after a job attempt context expired
	PersistTimeout time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    queue.DefaultMaxAttempts,
		PersistTimeout: 10 * time.Second,
	}
}

// Dependencies are the collaborators of Service
type Dependencies struct {
	Merchants  ports.MerchantDirectory
	Ledger     ports.TransactionLedger
	Records    ports.RecordStore
	Deliveries ports.WebhookDeliveryStore
	Queue      queue.Queue
	Providers  ProviderLookup
	Dispatcher Dispatcher
	Notifier   Notifier
}

// Service implements intake, dispatch and settlement of transactions
type Service struct {
	merchants  ports.MerchantDirectory
	ledger     ports.TransactionLedger
	records    ports.RecordStore
	deliveries ports.WebhookDeliveryStore
	queue      queue.Queue
	providers  ProviderLookup
	dispatcher Dispatcher
	notifier   Notifier
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new payment service
func NewService(deps Dependencies, cfg Config, logger *zap.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaults.PersistTimeout
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}

	return &Service{
		merchants:  deps.Merchants,
		ledger:     deps.Ledger,
		records:    deps.Records,
		deliveries: deps.Deliveries,
		queue:      deps.Queue,
		providers:  deps.Providers,
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		cfg:        cfg,
		logger:     logger,
		now:        timeutil.Now,
	}
}

// RegisterJobs wires the dispatch handler and its exhaustion hook into pool
func (s *Service) RegisterJobs(pool *queue.Pool) {
	pool.Register(queue.KindDispatch, s.HandleDispatch)
	pool.OnExhausted(queue.KindDispatch, s.HandleDispatchExhausted)
}

// persistContext detaches from ctx so that bookkeeping survives an expired
// attempt deadline, bounded by its own timeout
func (s *Service) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
}

type noopNotifier struct{}

func (noopNotifier) Notify(*domain.Transaction) {}
