// Package reconcile applies provider callbacks to both transaction mirrors and
// repairs mirrors that drifted apart.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/domain/ports"
	"github.com/kevin07696/payment-gateway/internal/queue"
	"github.com/kevin07696/payment-gateway/internal/services/payment"
	"github.com/kevin07696/payment-gateway/pkg/observability"
	"github.com/kevin07696/payment-gateway/pkg/timeutil"
)

// Settler drives a transaction to a terminal status in both mirrors
type Settler interface {
	Settle(ctx context.Context, referenceID string, status domain.TransactionStatus, gw domain.GatewayResponse) (*domain.Transaction, *domain.FinalizeResult, error)
}

// Config tunes the sweep
type Config struct {
	// StaleAfter is how long a non-terminal ledger row may sit untouched
	StaleAfter time.Duration
	SweepBatch int
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		StaleAfter: 10 * time.Minute,
		SweepBatch: 100,
	}
}

// Service reconciles provider callbacks
type Service struct {
	records   ports.RecordStore
	ledger    ports.TransactionLedger
	queue     queue.Queue
	providers payment.ProviderLookup
	settler   Settler
	cfg       Config
	logger    *zap.Logger
}

// NewService creates a reconciliation service
func NewService(
	records ports.RecordStore,
	ledger ports.TransactionLedger,
	q queue.Queue,
	providers payment.ProviderLookup,
	settler Settler,
	cfg Config,
	logger *zap.Logger,
) *Service {
	defaults := DefaultConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaults.StaleAfter
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = defaults.SweepBatch
	}
	return &Service{
		records:   records,
		ledger:    ledger,
		queue:     q,
		providers: providers,
		settler:   settler,
		cfg:       cfg,
		logger:    logger,
	}
}

// Callback is a provider's asynchronous result for one transaction
type Callback struct {
	Amount        *decimal.Decimal
	Provider      string
	ReferenceID   string
	TransactionID string
	StatusCode    string
	UTR           string
	Message       string
	Raw           string
}

// Validate checks that the callback can be attributed
func (c *Callback) Validate() error {
	if c.Provider == "" {
		return domain.ErrValidationMissingField.WithDetail("field", "provider")
	}
	if c.ReferenceID == "" && c.TransactionID == "" {
		return domain.ErrValidationMissingField.WithDetail("field", "reference_id")
	}
	if strings.TrimSpace(c.StatusCode) == "" {
		return domain.ErrValidationMissingField.WithDetail("field", "status_code")
	}
	return nil
}

// Outcome reports what a callback did
type Outcome struct {
	Transaction *domain.Transaction
	Status      domain.TransactionStatus
	// Applied is false when the transaction was already terminal
	Applied bool
}

// HandleCallback applies a provider callback. Repeating a callback for a
// terminal transaction changes nothing and reports Applied false.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (*Outcome, error) {
	if err := cb.Validate(); err != nil {
		return nil, err
	}
	logger := s.logger.With(
		zap.String("provider", cb.Provider),
		zap.String("reference_id", cb.ReferenceID),
		zap.String("transaction_id", cb.TransactionID),
		zap.String("status_code", cb.StatusCode),
	)

	p, err := s.providers.Get(cb.Provider)
	if err != nil {
		return nil, err
	}
	status := p.NormalizeCallback(cb.StatusCode)

	doc, err := s.lookup(ctx, cb)
	if err != nil {
		observability.RecordReconciliation(cb.Provider, "unmatched")
		return nil, err
	}
	if doc.Provider != cb.Provider {
		observability.RecordReconciliation(cb.Provider, "unmatched")
		return nil, domain.ErrReconciliation.
			WithDetail("reference_id", doc.ReferenceID).
			WithDetail("reason", "callback provider does not match transaction")
	}

	row, err := s.ledger.GetByReference(ctx, doc.ReferenceID)
	if err != nil {
		observability.RecordReconciliation(cb.Provider, "unmatched")
		return nil, err
	}

	if cb.Amount != nil && !cb.Amount.Equal(doc.Amount) {
		observability.RecordReconciliation(cb.Provider, "amount_mismatch")
		return nil, domain.ErrTxnAmountMismatch.
			WithDetail("reference_id", doc.ReferenceID).
			WithDetail("expected", doc.Amount.StringFixed(2)).
			WithDetail("received", cb.Amount.StringFixed(2))
	}

	if doc.Status.IsTerminal() && row.Status.IsTerminal() {
		logger.Info("Callback for settled transaction ignored",
			zap.String("status", string(doc.Status)),
		)
		observability.RecordReconciliation(cb.Provider, "duplicate")
		return &Outcome{Transaction: doc, Status: doc.Status}, nil
	}

	gw := domain.GatewayResponse{
		Code:    cb.StatusCode,
		Message: cb.Message,
		UTR:     cb.UTR,
		Raw:     cb.Raw,
	}
	txn, result, err := s.settler.Settle(ctx, doc.ReferenceID, status, gw)
	if err != nil {
		observability.RecordReconciliation(cb.Provider, "error")
		logger.Error("Callback reconciliation failed", zap.Error(err))
		return nil, domain.WrapError(domain.ErrorCodeReconciliationError, "callback reconciliation failed", err).
			WithDetail("reference_id", doc.ReferenceID)
	}

	outcome := "duplicate"
	if result.Applied {
		outcome = "applied"
	}
	observability.RecordReconciliation(cb.Provider, outcome)
	logger.Info("Callback reconciled",
		zap.String("requested_status", string(status)),
		zap.String("status", string(txn.Status)),
		zap.Bool("applied", result.Applied),
	)

	return &Outcome{Transaction: txn, Status: txn.Status, Applied: result.Applied}, nil
}

func (s *Service) lookup(ctx context.Context, cb Callback) (*domain.Transaction, error) {
	if cb.ReferenceID != "" {
		return s.records.Get(ctx, cb.ReferenceID)
	}
	return s.records.GetByTransactionID(ctx, cb.TransactionID)
}

// SweepReport counts what one sweep found and repaired
type SweepReport struct {
	Scanned  int `json:"scanned"`
	Repaired int `json:"repaired"`
	Awaiting int `json:"awaiting"`
	Diverged int `json:"diverged"`
	Errors   int `json:"errors"`
}

// Sweep scans non-terminal ledger rows older than StaleAfter and repairs the
// mirror that fell behind:
//   - a terminal or dispatched document whose ledger row lags is replayed
//   - a ledger row without a document is failed, releasing any reservation
//   - a pending transaction whose dispatch job failed or vanished is failed
//
// Transactions still waiting on a provider callback are counted and left alone.
func (s *Service) Sweep(ctx context.Context) (*SweepReport, error) {
	rows, err := s.ledger.ListStale(ctx, s.cfg.StaleAfter, s.cfg.SweepBatch)
	if err != nil {
		return nil, fmt.Errorf("list stale transactions: %w", err)
	}

	report := &SweepReport{Scanned: len(rows)}
	for _, row := range rows {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		repair, err := s.repair(ctx, row)
		if err != nil {
			report.Errors++
			s.logger.Error("Sweep repair failed",
				zap.String("reference_id", row.ReferenceID),
				zap.Duration("age", timeutil.Age(row.UpdatedAt)),
				zap.Error(err),
			)
			continue
		}
		switch repair {
		case "":
			report.Awaiting++
		case "diverged":
			report.Diverged++
		default:
			report.Repaired++
			observability.RecordSweepRepairs(repair, 1)
		}
	}

	s.logger.Info("Reconciliation sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("repaired", report.Repaired),
		zap.Int("awaiting", report.Awaiting),
		zap.Int("diverged", report.Diverged),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// repair returns the kind of repair made, "" when nothing was due
func (s *Service) repair(ctx context.Context, row *domain.Transaction) (string, error) {
	doc, err := s.records.Get(ctx, row.ReferenceID)
	if err != nil && !errors.Is(err, domain.ErrTxnNotFound) {
		return "", err
	}

	switch payment.CompareMirrors(doc, row) {
	case payment.ConsistencyDocumentMissing:
		gw := domain.GatewayResponse{
			Code:    string(domain.ErrorCodeReconciliationError),
			Message: "transaction record missing",
		}
		if _, err := s.ledger.Finalize(ctx, row.ReferenceID, domain.StatusFailed, gw, row.CompletionDelta(domain.StatusFailed)); err != nil {
			return "", fmt.Errorf("fail orphaned ledger row: %w", err)
		}
		return "orphaned_ledger_row", nil

	case payment.ConsistencyLedgerBehind:
		if doc.Status.IsTerminal() {
			if _, _, err := s.settler.Settle(ctx, doc.ReferenceID, doc.Status, doc.Gateway); err != nil {
				return "", err
			}
			return "ledger_finalized", nil
		}
		if _, err := s.ledger.MarkDispatched(ctx, doc.ReferenceID, doc.Status, doc.Gateway); err != nil {
			return "", fmt.Errorf("ledger dispatched status: %w", err)
		}
		return "ledger_dispatched", nil

	case payment.ConsistencyDocumentBehind:
		if _, err := s.records.UpdateStatus(ctx, row.ReferenceID, row.Status, row.Gateway); err != nil {
			return "", fmt.Errorf("record dispatched status: %w", err)
		}
		return "document_dispatched", nil

	case payment.ConsistencyDiverged:
		s.logger.Error("Transaction mirrors diverged",
			zap.String("reference_id", row.ReferenceID),
			zap.String("document_status", string(doc.Status)),
			zap.String("ledger_status", string(row.Status)),
			zap.Duration("age", timeutil.Age(row.UpdatedAt)),
		)
		return "diverged", nil
	}

	// In sync and not terminal
	if doc.Status != domain.StatusPending {
		return "", nil
	}
	return s.repairStuckPending(ctx, doc)
}

// repairStuckPending fails a pending transaction that no job will dispatch
func (s *Service) repairStuckPending(ctx context.Context, doc *domain.Transaction) (string, error) {
	job, err := s.queue.Get(ctx, queue.KindDispatch, doc.ReferenceID)
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
	case err != nil:
		return "", fmt.Errorf("load dispatch job: %w", err)
	case job.State != queue.StateFailed:
		return "", nil
	}

	gw := domain.GatewayResponse{
		Code:    string(domain.ErrorCodeDispatchFailure),
		Message: "no dispatch job will run",
	}
	if _, _, err := s.settler.Settle(ctx, doc.ReferenceID, domain.StatusFailed, gw); err != nil {
		return "", err
	}
	return "stuck_pending_failed", nil
}

// RunSweep runs one sweep and logs its failure. It is the tick function of
// the periodic sweeper.
func (s *Service) RunSweep(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Reconciliation sweep failed", zap.Error(err))
	}
}
