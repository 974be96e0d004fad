package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/payment-gateway/internal/domain"
)

// TransactionBuilder provides fluent API for building test transactions.
type TransactionBuilder struct {
	transaction *domain.Transaction
}

// NewTransaction creates a pending ₹500 payin with the charges of Brackets
// and PlatformFee already applied.
func NewTransaction() *TransactionBuilder {
	now := time.Now()
	return &TransactionBuilder{
		transaction: &domain.Transaction{
			ID:          uuid.NewString(),
			ReferenceID: "REF-" + uuid.NewString()[:8],
			MerchantID:  "M1",
			Provider:    "upiqr",
			Type:        domain.TransactionTypePayin,
			Status:      domain.StatusPending,
			Amount:      decimal.NewFromInt(500),
			Charges: domain.ChargeBreakdown{
				AdminCharge:  decimal.RequireFromString("10.00"),
				AgentCharge:  decimal.RequireFromString("5.00"),
				PlatformFee:  decimal.RequireFromString("0.10"),
				GSTAmount:    decimal.RequireFromString("1.80"),
				TotalCharges: decimal.RequireFromString("11.90"),
				NetAmount:    decimal.RequireFromString("488.10"),
				BracketID:    "b-low",
			},
			Payer:     &domain.Party{Name: "Asha", VPA: "asha@upi"},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (b *TransactionBuilder) WithReference(ref string) *TransactionBuilder {
	b.transaction.ReferenceID = ref
	return b
}

func (b *TransactionBuilder) WithStatus(status domain.TransactionStatus) *TransactionBuilder {
	b.transaction.Status = status
	return b
}

// AsPayout turns the transaction into an impsbank payout to a test account
func (b *TransactionBuilder) AsPayout() *TransactionBuilder {
	b.transaction.Type = domain.TransactionTypePayout
	b.transaction.Provider = "impsbank"
	b.transaction.Payer = nil
	b.transaction.Beneficiary = &domain.Party{Name: "Ravi", AccountNumber: "001122334455", IFSC: "HDFC0001234"}
	return b
}

func (b *TransactionBuilder) Build() *domain.Transaction {
	return b.transaction
}
