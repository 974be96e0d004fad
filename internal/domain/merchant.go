package domain

import (
	"net"
	"time"

	"github.com/shopspring/decimal"
)

// Merchant is owned by the account-management subsystem and is read-only here
type Merchant struct {
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	PayinProvider  string    `json:"payin_provider"`
	PayoutProvider string    `json:"payout_provider"`
	CallbackURL    string    `json:"callback_url"`
	WebhookSecret  string    `json:"-"`
	WhitelistedIPs []string  `json:"whitelisted_ips"`
	IsActive       bool      `json:"is_active"`
}

// CanProcessTransactions returns true if the merchant can process transactions
func (m *Merchant) CanProcessTransactions() bool {
	return m.IsActive
}

// ProviderFor returns the settlement provider assigned for the transaction type
func (m *Merchant) ProviderFor(t TransactionType) string {
	if t == TransactionTypePayout {
		return m.PayoutProvider
	}
	return m.PayinProvider
}

// AllowsIP reports whether ip matches the merchant whitelist. Entries may be
// single addresses or CIDR ranges. An empty whitelist allows every address.
func (m *Merchant) AllowsIP(ip string) bool {
	if len(m.WhitelistedIPs) == 0 {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, entry := range m.WhitelistedIPs {
		if _, cidr, err := net.ParseCIDR(entry); err == nil {
			if cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(parsed) {
			return true
		}
	}
	return false
}

// RateType selects how a bracket rate is applied
type RateType string

const (
	RateTypePercentage RateType = "percentage"
	RateTypeFixed      RateType = "fixed"
)

// ChargeBracket is an inclusive amount range with its fee rates
type ChargeBracket struct {
	StartAmount decimal.Decimal `json:"start_amount"`
	EndAmount   decimal.Decimal `json:"end_amount"`
	AdminRate   decimal.Decimal `json:"admin_rate"`
	AgentRate   decimal.Decimal `json:"agent_rate"`
	ID          string          `json:"id"`
	RateType    RateType        `json:"rate_type"`
}

// Covers reports whether start <= amount <= end
func (b ChargeBracket) Covers(amount decimal.Decimal) bool {
	return b.StartAmount.LessThanOrEqual(amount) && amount.LessThanOrEqual(b.EndAmount)
}

// PlatformFeeConfig is the single active platform fee record
type PlatformFeeConfig struct {
	ChargePct decimal.Decimal `json:"charge_pct"`
	GSTPct    decimal.Decimal `json:"gst_pct"`
	ID        string          `json:"id"`
	IsActive  bool            `json:"is_active"`
}

// ChargeBreakdown is the output of the charge calculator
type ChargeBreakdown struct {
	AdminCharge  decimal.Decimal `json:"admin_charge"`
	AgentCharge  decimal.Decimal `json:"agent_charge"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	GSTAmount    decimal.Decimal `json:"gst_amount"`
	TotalCharges decimal.Decimal `json:"total_charges"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	BracketID    string          `json:"bracket_id,omitempty"`
}
