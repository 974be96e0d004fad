package ports

import (
	"context"
	"time"

	"github.com/kevin07696/payment-gateway/internal/domain"
)

// MerchantDirectory reads merchant configuration owned by the account subsystem
type MerchantDirectory interface {
	GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error)

	// ListBrackets returns the merchant's brackets for a transaction type ordered by start_amount
	ListBrackets(ctx context.Context, merchantID string, txnType domain.TransactionType) ([]domain.ChargeBracket, error)

	// GetActivePlatformFee returns the active platform fee config, or nil when none is active
	GetActivePlatformFee(ctx context.Context) (*domain.PlatformFeeConfig, error)
}

// TransactionLedger is the relational mirror of transactions together with the
// merchant balances it moves. Every balance change goes through it.
type TransactionLedger interface {
	// CreatePending inserts the pending mirror. A non-nil reserve is applied in
	// the same database transaction and fails with ErrInsufficientFunds when the
	// account cannot cover it.
	CreatePending(ctx context.Context, txn *domain.Transaction, reserve *domain.LedgerDelta) error

	GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error)

	// MarkDispatched moves a pending row to a dispatched status. Returns false
	// when the row was no longer pending.
	MarkDispatched(ctx context.Context, referenceID string, status domain.TransactionStatus, gw domain.GatewayResponse) (bool, error)

	// Finalize writes a terminal status and applies delta (may be nil) at most
	// once. A row that is already terminal is left untouched.
	Finalize(ctx context.Context, referenceID string, status domain.TransactionStatus, gw domain.GatewayResponse, delta *domain.LedgerDelta) (*domain.FinalizeResult, error)

	GetFinancialDetail(ctx context.Context, merchantID string) (*domain.FinancialDetail, error)

	// ListStale returns non-terminal rows not updated within olderThan
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Transaction, error)
}

// RecordStore is the document mirror of transactions and the source of truth
// for status.
type RecordStore interface {
	// Create fails with ErrDuplicateReference when reference_id exists
	Create(ctx context.Context, txn *domain.Transaction) error

	Get(ctx context.Context, referenceID string) (*domain.Transaction, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// UpdateStatus moves the record to status when its current status is a
	// legal predecessor. Returns false when nothing changed.
	UpdateStatus(ctx context.Context, referenceID string, status domain.TransactionStatus, gw domain.GatewayResponse) (bool, error)

	AppendAttempt(ctx context.Context, referenceID string, attempt domain.DispatchAttempt) error
	SetBalance(ctx context.Context, referenceID string, balance domain.BalanceSnapshot) error

	// DeleteAbandoned removes a record that is still pending, has no dispatch
	// attempts and was created by the given intake lineage.
	DeleteAbandoned(ctx context.Context, referenceID, lineage string) (bool, error)
}

// WebhookDeliveryStore persists merchant notification attempts
type WebhookDeliveryStore interface {
	CreateDelivery(ctx context.Context, d *domain.WebhookDelivery) error
	UpdateDelivery(ctx context.Context, d *domain.WebhookDelivery) error
	ListDeliveries(ctx context.Context, referenceID string) ([]*domain.WebhookDelivery, error)
}

// CallbackAuditStore holds the provider callback allowlist and the audit trail
type CallbackAuditStore interface {
	// ListAllowedCIDRs returns active IPs or CIDR blocks allowed to call back for provider
	ListAllowedCIDRs(ctx context.Context, provider string) ([]string, error)
	RecordCallback(ctx context.Context, entry domain.CallbackAudit) error
}
