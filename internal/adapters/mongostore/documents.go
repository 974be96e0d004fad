package mongostore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kevin07696/payment-gateway/internal/domain"
)

// transactionDoc is the stored shape of a transaction record. Amounts are
// Decimal128 so they round-trip without float rounding.
type transactionDoc struct {
	CreatedAt     time.Time            `bson:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at"`
	Amount        primitive.Decimal128 `bson:"amount"`
	Payer         *domain.Party        `bson:"payer,omitempty"`
	Beneficiary   *domain.Party        `bson:"beneficiary,omitempty"`
	Balance       *balanceDoc          `bson:"balance,omitempty"`
	Charges       chargesDoc           `bson:"charges"`
	Gateway       gatewayDoc           `bson:"gateway_response"`
	Attempts      []attemptDoc         `bson:"attempts"`
	ReferenceID   string               `bson:"_id"`
	TransactionID string               `bson:"transaction_id"`
	MerchantID    string               `bson:"merchant_id"`
	Provider      string               `bson:"provider"`
	ClientIP      string               `bson:"client_ip,omitempty"`
	IntakeLineage string               `bson:"intake_lineage"`
	Type          string               `bson:"type"`
	Status        string               `bson:"status"`
}

type chargesDoc struct {
	AdminCharge  primitive.Decimal128 `bson:"admin_charge"`
	AgentCharge  primitive.Decimal128 `bson:"agent_charge"`
	PlatformFee  primitive.Decimal128 `bson:"platform_fee"`
	GSTAmount    primitive.Decimal128 `bson:"gst_amount"`
	TotalCharges primitive.Decimal128 `bson:"total_charges"`
	NetAmount    primitive.Decimal128 `bson:"net_amount"`
	BracketID    string               `bson:"bracket_id,omitempty"`
}

type gatewayDoc struct {
	Code              string `bson:"code,omitempty"`
	Message           string `bson:"message,omitempty"`
	UTR               string `bson:"utr,omitempty"`
	ProviderReference string `bson:"provider_reference,omitempty"`
	QRPayload         string `bson:"qr_payload,omitempty"`
	Raw               string `bson:"raw,omitempty"`
}

type balanceDoc struct {
	Before  primitive.Decimal128 `bson:"before"`
	After   primitive.Decimal128 `bson:"after"`
	Account string               `bson:"account"`
}

type attemptDoc struct {
	StartedAt  time.Time `bson:"started_at"`
	FinishedAt time.Time `bson:"finished_at"`
	JobID      string    `bson:"job_id"`
	WorkerID   string    `bson:"worker_id"`
	Outcome    string    `bson:"outcome"`
	Code       string    `bson:"code,omitempty"`
	Message    string    `bson:"message,omitempty"`
	Error      string    `bson:"error,omitempty"`
	Number     int       `bson:"number"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	out, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d.String(), err)
	}
	return out, nil
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	out, err := decimal.NewFromString(d.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert decimal128 %s: %w", d.String(), err)
	}
	return out, nil
}

// decimalCodec converts a group of amounts and keeps the first error
type decimalCodec struct {
	err error
}

func (c *decimalCodec) to(d decimal.Decimal) primitive.Decimal128 {
	if c.err != nil {
		return primitive.Decimal128{}
	}
	out, err := toDecimal128(d)
	c.err = err
	return out
}

func (c *decimalCodec) from(d primitive.Decimal128) decimal.Decimal {
	if c.err != nil {
		return decimal.Zero
	}
	out, err := fromDecimal128(d)
	c.err = err
	return out
}

func gatewayToDoc(gw domain.GatewayResponse) gatewayDoc {
	return gatewayDoc{
		Code:              gw.Code,
		Message:           gw.Message,
		UTR:               gw.UTR,
		ProviderReference: gw.ProviderReference,
		QRPayload:         gw.QRPayload,
		Raw:               gw.Raw,
	}
}

func balanceToDoc(b *domain.BalanceSnapshot) (*balanceDoc, error) {
	if b == nil {
		return nil, nil
	}
	var c decimalCodec
	doc := &balanceDoc{
		Account: string(b.Account),
		Before:  c.to(b.Before),
		After:   c.to(b.After),
	}
	return doc, c.err
}

func attemptToDoc(a domain.DispatchAttempt) attemptDoc {
	return attemptDoc{
		StartedAt:  a.StartedAt,
		FinishedAt: a.FinishedAt,
		JobID:      a.JobID,
		WorkerID:   a.WorkerID,
		Outcome:    a.Outcome,
		Code:       a.Code,
		Message:    a.Message,
		Error:      a.Error,
		Number:     a.Number,
	}
}

func toDoc(txn *domain.Transaction) (*transactionDoc, error) {
	var c decimalCodec
	doc := &transactionDoc{
		ReferenceID:   txn.ReferenceID,
		TransactionID: txn.ID,
		MerchantID:    txn.MerchantID,
		Provider:      txn.Provider,
		ClientIP:      txn.ClientIP,
		IntakeLineage: txn.IntakeLineage,
		Type:          string(txn.Type),
		Status:        string(txn.Status),
		Amount:        c.to(txn.Amount),
		Payer:         txn.Payer,
		Beneficiary:   txn.Beneficiary,
		Charges: chargesDoc{
			AdminCharge:  c.to(txn.Charges.AdminCharge),
			AgentCharge:  c.to(txn.Charges.AgentCharge),
			PlatformFee:  c.to(txn.Charges.PlatformFee),
			GSTAmount:    c.to(txn.Charges.GSTAmount),
			TotalCharges: c.to(txn.Charges.TotalCharges),
			NetAmount:    c.to(txn.Charges.NetAmount),
			BracketID:    txn.Charges.BracketID,
		},
		Gateway:   gatewayToDoc(txn.Gateway),
		Attempts:  make([]attemptDoc, 0, len(txn.Attempts)),
		CreatedAt: txn.CreatedAt,
		UpdatedAt: txn.UpdatedAt,
	}
	if c.err != nil {
		return nil, c.err
	}

	for _, a := range txn.Attempts {
		doc.Attempts = append(doc.Attempts, attemptToDoc(a))
	}

	balance, err := balanceToDoc(txn.Balance)
	if err != nil {
		return nil, err
	}
	doc.Balance = balance
	return doc, nil
}

func (d *transactionDoc) toDomain() (*domain.Transaction, error) {
	var c decimalCodec
	txn := &domain.Transaction{
		ID:            d.TransactionID,
		ReferenceID:   d.ReferenceID,
		MerchantID:    d.MerchantID,
		Provider:      d.Provider,
		ClientIP:      d.ClientIP,
		IntakeLineage: d.IntakeLineage,
		Type:          domain.TransactionType(d.Type),
		Status:        domain.TransactionStatus(d.Status),
		Amount:        c.from(d.Amount),
		Payer:         d.Payer,
		Beneficiary:   d.Beneficiary,
		Charges: domain.ChargeBreakdown{
			AdminCharge:  c.from(d.Charges.AdminCharge),
			AgentCharge:  c.from(d.Charges.AgentCharge),
			PlatformFee:  c.from(d.Charges.PlatformFee),
			GSTAmount:    c.from(d.Charges.GSTAmount),
			TotalCharges: c.from(d.Charges.TotalCharges),
			NetAmount:    c.from(d.Charges.NetAmount),
			BracketID:    d.Charges.BracketID,
		},
		Gateway: domain.GatewayResponse{
			Code:              d.Gateway.Code,
			Message:           d.Gateway.Message,
			UTR:               d.Gateway.UTR,
			ProviderReference: d.Gateway.ProviderReference,
			QRPayload:         d.Gateway.QRPayload,
			Raw:               d.Gateway.Raw,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.Balance != nil {
		txn.Balance = &domain.BalanceSnapshot{
			Account: domain.LedgerAccount(d.Balance.Account),
			Before:  c.from(d.Balance.Before),
			After:   c.from(d.Balance.After),
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	for _, a := range d.Attempts {
		txn.Attempts = append(txn.Attempts, domain.DispatchAttempt{
			StartedAt:  a.StartedAt,
			FinishedAt: a.FinishedAt,
			JobID:      a.JobID,
			WorkerID:   a.WorkerID,
			Outcome:    a.Outcome,
			Code:       a.Code,
			Message:    a.Message,
			Error:      a.Error,
			Number:     a.Number,
		})
	}
	return txn, nil
}
