package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes collections from disbursements
type TransactionType string

const (
	TransactionTypePayin  TransactionType = "payin"  // payer -> merchant wallet
	TransactionTypePayout TransactionType = "payout" // merchant settlement -> beneficiary
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	return t == TransactionTypePayin || t == TransactionTypePayout
}

// TransactionStatus is the lifecycle state shared by both transaction mirrors
type TransactionStatus string

const (
	StatusPending     TransactionStatus = "pending"
	StatusQRGenerated TransactionStatus = "qr_generated"
	StatusInitiated   TransactionStatus = "initiated"
	StatusCompleted   TransactionStatus = "completed"
	StatusFailed      TransactionStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsDispatched reports whether the provider accepted the request
func (s TransactionStatus) IsDispatched() bool {
	return s == StatusQRGenerated || s == StatusInitiated
}

var transitions = map[TransactionStatus][]TransactionStatus{
	// pending -> completed/failed covers a callback that raced the dispatch write
	StatusPending:     {StatusQRGenerated, StatusInitiated, StatusCompleted, StatusFailed},
	StatusQRGenerated: {StatusCompleted, StatusFailed},
	StatusInitiated:   {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal lifecycle move
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Predecessors returns every status that may legally move to the given status
func Predecessors(to TransactionStatus) []TransactionStatus {
	var out []TransactionStatus
	for from, nexts := range transitions {
		for _, next := range nexts {
			if next == to {
				out = append(out, from)
			}
		}
	}
	return out
}

// DispatchedStatus maps an accepted dispatch to the lifecycle state for the
// transaction type. Payins with a QR are qr_generated; everything else that the
// provider accepted but has not settled is initiated.
func DispatchedStatus(txnType TransactionType, hasQR bool) TransactionStatus {
	if txnType == TransactionTypePayin && hasQR {
		return StatusQRGenerated
	}
	return StatusInitiated
}

// Party is the payer (payin) or beneficiary (payout) snapshot taken at intake
type Party struct {
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	VPA           string `json:"vpa,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
}

// GatewayResponse is the normalized provider outcome stored on the transaction
type GatewayResponse struct {
	Code              string `json:"code,omitempty"`
	Message           string `json:"message,omitempty"`
	UTR               string `json:"utr,omitempty"`
	ProviderReference string `json:"provider_reference,omitempty"`
	QRPayload         string `json:"qr_payload,omitempty"`
	Raw               string `json:"raw,omitempty"`
}

// BalanceSnapshot records the account balance around the transaction's delta
type BalanceSnapshot struct {
	Account LedgerAccount   `json:"account"`
	Before  decimal.Decimal `json:"before"`
	After   decimal.Decimal `json:"after"`
}

// DispatchAttempt is one worker attempt at dispatching a transaction.
// Retries append attempts; the transaction record itself is never recreated.
type DispatchAttempt struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	JobID      string    `json:"job_id"`
	WorkerID   string    `json:"worker_id"`
	Outcome    string    `json:"outcome"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	Number     int       `json:"number"`
}

// Transaction is a payin or payout. The same shape is mirrored in the
// relational ledger and the document store.
type Transaction struct {
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Amount        decimal.Decimal   `json:"amount"`
	Payer         *Party            `json:"payer,omitempty"`
	Beneficiary   *Party            `json:"beneficiary,omitempty"`
	Balance       *BalanceSnapshot  `json:"balance,omitempty"`
	Charges       ChargeBreakdown   `json:"charges"`
	Gateway       GatewayResponse   `json:"gateway_response"`
	Attempts      []DispatchAttempt `json:"attempts,omitempty"`
	ID            string            `json:"transaction_id"`
	ReferenceID   string            `json:"reference_id"`
	MerchantID    string            `json:"merchant_id"`
	Provider      string            `json:"provider"`
	ClientIP      string            `json:"client_ip,omitempty"`
	IntakeLineage string            `json:"-"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
}

// Party returns the counterparty snapshot relevant to the transaction type
func (t *Transaction) Party() *Party {
	if t.Type == TransactionTypePayout {
		return t.Beneficiary
	}
	return t.Payer
}

// PayoutDebit is what a payout reserves from settlement: amount plus all charges
func (t *Transaction) PayoutDebit() decimal.Decimal {
	return t.Amount.Add(t.Charges.TotalCharges)
}

// CompletionDelta returns the ledger delta applied when the transaction
// reaches the given terminal status, or nil when no balance moves.
func (t *Transaction) CompletionDelta(status TransactionStatus) *LedgerDelta {
	switch {
	case t.Type == TransactionTypePayin && status == StatusCompleted:
		return &LedgerDelta{
			MerchantID:  t.MerchantID,
			ReferenceID: t.ReferenceID,
			Account:     AccountWallet,
			EntryType:   EntryPayinCredit,
			Amount:      t.Charges.NetAmount,
		}
	case t.Type == TransactionTypePayout && status == StatusFailed:
		return &LedgerDelta{
			MerchantID:  t.MerchantID,
			ReferenceID: t.ReferenceID,
			Account:     AccountSettlement,
			EntryType:   EntryPayoutRelease,
			Amount:      t.PayoutDebit(),
		}
	}
	return nil
}

// ReservationDelta is the settlement debit taken at payout intake
func (t *Transaction) ReservationDelta() *LedgerDelta {
	if t.Type != TransactionTypePayout {
		return nil
	}
	return &LedgerDelta{
		MerchantID:  t.MerchantID,
		ReferenceID: t.ReferenceID,
		Account:     AccountSettlement,
		EntryType:   EntryPayoutReserve,
		Amount:      t.PayoutDebit().Neg(),
	}
}
