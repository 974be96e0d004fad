package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/domain/ports"
)

// MerchantDirectory reads merchant, bracket and platform fee configuration
type MerchantDirectory struct {
	db ports.DBTX
}

// NewMerchantDirectory creates a new merchant directory
func NewMerchantDirectory(db ports.DBTX) *MerchantDirectory {
	return &MerchantDirectory{db: db}
}

var _ ports.MerchantDirectory = (*MerchantDirectory)(nil)

const getMerchantSQL = `
SELECT id, name, role, payin_provider, payout_provider, callback_url, webhook_secret,
       whitelisted_ips, is_active, created_at, updated_at
FROM merchants
WHERE id = $1`

// GetMerchant returns ErrMerchantNotFound when the merchant does not exist
func (r *MerchantDirectory) GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	var (
		m                     domain.Merchant
		payin, payout         pgtype.Text
		callbackURL, whSecret pgtype.Text
	)

	err := r.db.QueryRow(ctx, getMerchantSQL, merchantID).Scan(
		&m.ID, &m.Name, &m.Role, &payin, &payout, &callbackURL, &whSecret,
		&m.WhitelistedIPs, &m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMerchantNotFound.WithDetail("merchant_id", merchantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get merchant: %w", err)
	}

	m.PayinProvider = payin.String
	m.PayoutProvider = payout.String
	m.CallbackURL = callbackURL.String
	m.WebhookSecret = whSecret.String
	return &m, nil
}

const listBracketsSQL = `
SELECT id, start_amount, end_amount, admin_rate, agent_rate, rate_type
FROM charge_brackets
WHERE merchant_id = $1 AND txn_type = $2
ORDER BY start_amount`

// ListBrackets returns the merchant's brackets ordered by start_amount
func (r *MerchantDirectory) ListBrackets(ctx context.Context, merchantID string, txnType domain.TransactionType) ([]domain.ChargeBracket, error) {
	rows, err := r.db.Query(ctx, listBracketsSQL, merchantID, string(txnType))
	if err != nil {
		return nil, fmt.Errorf("list charge brackets: %w", err)
	}
	defer rows.Close()

	var brackets []domain.ChargeBracket
	for rows.Next() {
		var (
			b        domain.ChargeBracket
			rateType string
			nums     numericScanner
		)
		if err := rows.Scan(
			&b.ID,
			nums.dest(&b.StartAmount),
			nums.dest(&b.EndAmount),
			nums.dest(&b.AdminRate),
			nums.dest(&b.AgentRate),
			&rateType,
		); err != nil {
			return nil, fmt.Errorf("scan charge bracket: %w", err)
		}
		if err := nums.convert(); err != nil {
			return nil, fmt.Errorf("convert charge bracket: %w", err)
		}
		b.RateType = domain.RateType(rateType)
		brackets = append(brackets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate charge brackets: %w", err)
	}
	return brackets, nil
}

const activePlatformFeeSQL = `
SELECT id, charge_pct, gst_pct
FROM platform_fee_configs
WHERE is_active
LIMIT 1`

// GetActivePlatformFee returns nil when no config is active
func (r *MerchantDirectory) GetActivePlatformFee(ctx context.Context) (*domain.PlatformFeeConfig, error) {
	var (
		cfg  = domain.PlatformFeeConfig{IsActive: true}
		nums numericScanner
	)
	err := r.db.QueryRow(ctx, activePlatformFeeSQL).Scan(&cfg.ID, nums.dest(&cfg.ChargePct), nums.dest(&cfg.GSTPct))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active platform fee: %w", err)
	}
	if err := nums.convert(); err != nil {
		return nil, fmt.Errorf("convert platform fee: %w", err)
	}
	return &cfg, nil
}
