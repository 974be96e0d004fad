package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/domain/ports"
)

// LedgerRepository is the relational transaction mirror and the only writer
// of merchant balances.
type LedgerRepository struct {
	db     *DBExecutor
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DBExecutor, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{db: db, logger: logger}
}

var _ ports.TransactionLedger = (*LedgerRepository)(nil)

var balanceColumns = map[domain.LedgerAccount]string{
	domain.AccountWallet:     "wallet",
	domain.AccountSettlement: "settlement",
}

const transactionColumns = `
id, reference_id, merchant_id, txn_type, provider, amount,
admin_charge, agent_charge, platform_fee, gst_amount, total_charges, net_amount,
status, gateway_code, gateway_message, utr, provider_reference,
balance_account, balance_before, balance_after, client_ip, created_at, updated_at`

const insertTransactionSQL = `
INSERT INTO transactions (
    id, reference_id, merchant_id, txn_type, provider, amount,
    admin_charge, agent_charge, platform_fee, gst_amount, total_charges, net_amount,
    status, client_ip
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// CreatePending inserts the pending mirror and applies the payout reservation
// in the same database transaction.
func (r *LedgerRepository) CreatePending(ctx context.Context, txn *domain.Transaction, reserve *domain.LedgerDelta) error {
	id, err := uuid.Parse(txn.ID)
	if err != nil {
		return fmt.Errorf("invalid transaction ID: %w", err)
	}

	amounts := []decimal.Decimal{
		txn.Amount,
		txn.Charges.AdminCharge,
		txn.Charges.AgentCharge,
		txn.Charges.PlatformFee,
		txn.Charges.GSTAmount,
		txn.Charges.TotalCharges,
		txn.Charges.NetAmount,
	}
	params := make([]interface{}, 0, len(amounts))
	for _, a := range amounts {
		n, err := numeric(a)
		if err != nil {
			return err
		}
		params = append(params, n)
	}

	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		args := []interface{}{id, txn.ReferenceID, txn.MerchantID, string(txn.Type), txn.Provider}
		args = append(args, params...)
		args = append(args, string(domain.StatusPending), nullText(txn.ClientIP))

		if _, err := tx.Exec(ctx, insertTransactionSQL, args...); err != nil {
			if isUniqueViolation(err) {
				return domain.WrapError(domain.ErrorCodeDuplicateReference, "reference_id already exists", err).
					WithDetail("reference_id", txn.ReferenceID)
			}
			return fmt.Errorf("insert transaction: %w", err)
		}

		if reserve == nil {
			return nil
		}

		snapshot, _, err := r.applyDelta(ctx, tx, reserve)
		if err != nil {
			return err
		}
		if err := r.setBalance(ctx, tx, txn.ReferenceID, snapshot); err != nil {
			return err
		}
		txn.Balance = snapshot

		r.logger.Info("Reserved settlement balance for payout",
			zap.String("reference_id", txn.ReferenceID),
			zap.String("merchant_id", txn.MerchantID),
			zap.String("amount", reserve.Amount.String()),
			zap.String("balance_after", snapshot.After.String()),
		)
		return nil
	})
}

// GetByReference returns ErrTxnNotFound when no row exists
func (r *LedgerRepository) GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	row := r.db.GetDB().QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference_id = $1`, referenceID)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTxnNotFound.WithDetail("reference_id", referenceID)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by reference: %w", err)
	}
	return txn, nil
}

const markDispatchedSQL = `
UPDATE transactions
SET status = $2,
    gateway_code = COALESCE($3, gateway_code),
    gateway_message = COALESCE($4, gateway_message),
    utr = COALESCE($5, utr),
    provider_reference = COALESCE($6, provider_reference),
    updated_at = NOW()
WHERE reference_id = $1 AND status = 'pending'`

// MarkDispatched moves a pending row to qr_generated or initiated
func (r *LedgerRepository) MarkDispatched(ctx context.Context, referenceID string, status domain.TransactionStatus, gw domain.GatewayResponse) (bool, error) {
	if !status.IsDispatched() {
		return false, domain.ErrTxnInvalidState.WithDetail("status", string(status))
	}

	tag, err := r.db.GetDB().Exec(ctx, markDispatchedSQL,
		referenceID, string(status),
		nullText(gw.Code), nullText(gw.Message), nullText(gw.UTR), nullText(gw.ProviderReference),
	)
	if err != nil {
		return false, fmt.Errorf("mark transaction dispatched: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const finalizeSQL = `
UPDATE transactions
SET status = $2,
    gateway_code = COALESCE($3, gateway_code),
    gateway_message = COALESCE($4, gateway_message),
    utr = COALESCE($5, utr),
    provider_reference = COALESCE($6, provider_reference),
    updated_at = NOW()
WHERE reference_id = $1`

// Finalize writes a terminal status and its balance delta together. The row is
// locked first; a row that is already terminal is returned untouched, which
// makes duplicate callbacks and re-delivered jobs no-ops.
func (r *LedgerRepository) Finalize(
	ctx context.Context,
	referenceID string,
	status domain.TransactionStatus,
	gw domain.GatewayResponse,
	delta *domain.LedgerDelta,
) (*domain.FinalizeResult, error) {
	if !status.IsTerminal() {
		return nil, domain.ErrTxnInvalidState.WithDetail("status", string(status))
	}

	result := &domain.FinalizeResult{}
	err := r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		*result = domain.FinalizeResult{}

		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM transactions WHERE reference_id = $1 FOR UPDATE`, referenceID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTxnNotFound.WithDetail("reference_id", referenceID)
		}
		if err != nil {
			return fmt.Errorf("lock transaction: %w", err)
		}

		currentStatus := domain.TransactionStatus(current)
		if currentStatus.IsTerminal() {
			result.Status = currentStatus
			return nil
		}
		if !domain.CanTransition(currentStatus, status) {
			return domain.ErrTxnInvalidState.
				WithDetail("from", current).
				WithDetail("to", string(status))
		}

		if delta != nil {
			snapshot, _, err := r.applyDelta(ctx, tx, delta)
			if err != nil {
				return err
			}
			if err := r.setBalance(ctx, tx, referenceID, snapshot); err != nil {
				return err
			}
			result.Balance = snapshot
		}

		if _, err := tx.Exec(ctx, finalizeSQL,
			referenceID, string(status),
			nullText(gw.Code), nullText(gw.Message), nullText(gw.UTR), nullText(gw.ProviderReference),
		); err != nil {
			return fmt.Errorf("finalize transaction: %w", err)
		}

		result.Status = status
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		r.logger.Info("Transaction finalized in ledger",
			zap.String("reference_id", referenceID),
			zap.String("status", string(status)),
			zap.Bool("balance_changed", result.Balance != nil),
		)
	}
	return result, nil
}

const insertLedgerEntrySQL = `
INSERT INTO ledger_entries (reference_id, merchant_id, account, entry_type, amount, balance_before, balance_after)
VALUES ($1, $2, $3, $4, $5, 0, 0)
ON CONFLICT (reference_id, entry_type) DO NOTHING
RETURNING id`

// applyDelta records the ledger entry and moves the balance with an atomic
// increment. When the entry already exists the balance is left alone and the
// recorded snapshot is returned with applied=false.
func (r *LedgerRepository) applyDelta(ctx context.Context, tx pgx.Tx, delta *domain.LedgerDelta) (*domain.BalanceSnapshot, bool, error) {
	column, ok := balanceColumns[delta.Account]
	if !ok {
		return nil, false, fmt.Errorf("unknown ledger account %q", delta.Account)
	}

	amount, err := numeric(delta.Amount)
	if err != nil {
		return nil, false, err
	}

	var entryID int64
	err = tx.QueryRow(ctx, insertLedgerEntrySQL,
		delta.ReferenceID, delta.MerchantID, string(delta.Account), string(delta.EntryType), amount,
	).Scan(&entryID)
	if errors.Is(err, pgx.ErrNoRows) {
		snapshot, err := r.existingEntry(ctx, tx, delta)
		return snapshot, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert ledger entry: %w", err)
	}

	guard := ""
	if delta.Amount.IsNegative() {
		// Debits may not take the account below zero
		guard = fmt.Sprintf(" AND %[1]s + $1 >= 0", column)
	}
	update := fmt.Sprintf(
		`UPDATE financial_details SET %[1]s = %[1]s + $1, updated_at = NOW()
		 WHERE merchant_id = $2%[2]s
		 RETURNING %[1]s`, column, guard)

	var after pgtype.Numeric
	err = tx.QueryRow(ctx, update, amount, delta.MerchantID).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		if delta.Amount.IsNegative() {
			return nil, false, domain.ErrInsufficientFunds.
				WithDetail("merchant_id", delta.MerchantID).
				WithDetail("required", delta.Amount.Neg().String())
		}
		return nil, false, fmt.Errorf("financial details missing for merchant %s", delta.MerchantID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("apply balance delta: %w", err)
	}

	afterDec, err := pgNumericToDecimal(after)
	if err != nil {
		return nil, false, err
	}
	snapshot := &domain.BalanceSnapshot{
		Account: delta.Account,
		Before:  afterDec.Sub(delta.Amount),
		After:   afterDec,
	}

	before, err := numeric(snapshot.Before)
	if err != nil {
		return nil, false, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE ledger_entries SET balance_before = $2, balance_after = $3 WHERE id = $1`,
		entryID, before, after,
	); err != nil {
		return nil, false, fmt.Errorf("record ledger entry balances: %w", err)
	}

	return snapshot, true, nil
}

func (r *LedgerRepository) existingEntry(ctx context.Context, tx pgx.Tx, delta *domain.LedgerDelta) (*domain.BalanceSnapshot, error) {
	snapshot := &domain.BalanceSnapshot{Account: delta.Account}
	var nums numericScanner
	err := tx.QueryRow(ctx,
		`SELECT balance_before, balance_after FROM ledger_entries WHERE reference_id = $1 AND entry_type = $2`,
		delta.ReferenceID, string(delta.EntryType),
	).Scan(nums.dest(&snapshot.Before), nums.dest(&snapshot.After))
	if err != nil {
		return nil, fmt.Errorf("read existing ledger entry: %w", err)
	}
	if err := nums.convert(); err != nil {
		return nil, err
	}

	r.logger.Warn("Ledger entry already applied, skipping balance change",
		zap.String("reference_id", delta.ReferenceID),
		zap.String("entry_type", string(delta.EntryType)),
	)
	return snapshot, nil
}

func (r *LedgerRepository) setBalance(ctx context.Context, tx pgx.Tx, referenceID string, snapshot *domain.BalanceSnapshot) error {
	before, err := numeric(snapshot.Before)
	if err != nil {
		return err
	}
	after, err := numeric(snapshot.After)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE transactions SET balance_account = $2, balance_before = $3, balance_after = $4, updated_at = NOW() WHERE reference_id = $1`,
		referenceID, string(snapshot.Account), before, after,
	); err != nil {
		return fmt.Errorf("record transaction balance: %w", err)
	}
	return nil
}

// GetFinancialDetail reads a merchant's balances
func (r *LedgerRepository) GetFinancialDetail(ctx context.Context, merchantID string) (*domain.FinancialDetail, error) {
	fd := &domain.FinancialDetail{MerchantID: merchantID}
	var nums numericScanner
	err := r.db.GetDB().QueryRow(ctx,
		`SELECT wallet, settlement, lien, rolling_reserve, updated_at FROM financial_details WHERE merchant_id = $1`,
		merchantID,
	).Scan(nums.dest(&fd.Wallet), nums.dest(&fd.Settlement), nums.dest(&fd.Lien), nums.dest(&fd.RollingReserve), &fd.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMerchantNotFound.WithDetail("merchant_id", merchantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get financial detail: %w", err)
	}
	if err := nums.convert(); err != nil {
		return nil, err
	}
	return fd, nil
}

// ListStale returns open transactions untouched for longer than olderThan
func (r *LedgerRepository) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Transaction, error) {
	rows, err := r.db.GetDB().Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE status NOT IN ('completed', 'failed') AND updated_at < $1
		 ORDER BY updated_at
		 LIMIT $2`,
		time.Now().Add(-olderThan), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale transaction: %w", err)
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn                            domain.Transaction
		id                             uuid.UUID
		txnType, status                string
		code, message, utr, providerRf pgtype.Text
		balanceAccount, clientIP       pgtype.Text
		before, after                  pgtype.Numeric
		nums                           numericScanner
	)

	err := row.Scan(
		&id, &txn.ReferenceID, &txn.MerchantID, &txnType, &txn.Provider, nums.dest(&txn.Amount),
		nums.dest(&txn.Charges.AdminCharge), nums.dest(&txn.Charges.AgentCharge),
		nums.dest(&txn.Charges.PlatformFee), nums.dest(&txn.Charges.GSTAmount),
		nums.dest(&txn.Charges.TotalCharges), nums.dest(&txn.Charges.NetAmount),
		&status, &code, &message, &utr, &providerRf,
		&balanceAccount, &before, &after, &clientIP, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := nums.convert(); err != nil {
		return nil, err
	}

	txn.ID = id.String()
	txn.Type = domain.TransactionType(txnType)
	txn.Status = domain.TransactionStatus(status)
	txn.ClientIP = clientIP.String
	txn.Gateway = domain.GatewayResponse{
		Code:              code.String,
		Message:           message.String,
		UTR:               utr.String,
		ProviderReference: providerRf.String,
	}

	if balanceAccount.Valid {
		b, err := pgNumericToDecimal(before)
		if err != nil {
			return nil, err
		}
		a, err := pgNumericToDecimal(after)
		if err != nil {
			return nil, err
		}
		txn.Balance = &domain.BalanceSnapshot{Account: domain.LedgerAccount(balanceAccount.String), Before: b, After: a}
	}
	return &txn, nil
}
