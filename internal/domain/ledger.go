package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerAccount names a balance column on FinancialDetail
type LedgerAccount string

const (
	AccountWallet     LedgerAccount = "wallet"
	AccountSettlement LedgerAccount = "settlement"
)

// LedgerEntryType identifies why a delta was applied. Each reference_id may
// carry at most one entry of each type.
type LedgerEntryType string

const (
	EntryPayinCredit   LedgerEntryType = "payin_credit"
	EntryPayoutReserve LedgerEntryType = "payout_reserve"
	EntryPayoutRelease LedgerEntryType = "payout_release"
)

// FinancialDetail holds a merchant's balances
type FinancialDetail struct {
	UpdatedAt      time.Time       `json:"updated_at"`
	Wallet         decimal.Decimal `json:"wallet"`
	Settlement     decimal.Decimal `json:"settlement"`
	Lien           decimal.Decimal `json:"lien"`
	RollingReserve decimal.Decimal `json:"rolling_reserve"`
	MerchantID     string          `json:"merchant_id"`
}

// Balance returns the balance of the given account
func (f *FinancialDetail) Balance(account LedgerAccount) decimal.Decimal {
	if account == AccountSettlement {
		return f.Settlement
	}
	return f.Wallet
}

// LedgerDelta is a signed change to one account, keyed by reference and entry type
type LedgerDelta struct {
	Amount      decimal.Decimal
	MerchantID  string
	ReferenceID string
	Account     LedgerAccount
	EntryType   LedgerEntryType
}

// FinalizeResult reports what a terminal ledger write did
type FinalizeResult struct {
	Balance *BalanceSnapshot
	Status  TransactionStatus
	// Applied is false when the row was already terminal
	Applied bool
}
