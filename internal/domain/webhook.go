package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WebhookDeliveryStatus tracks a merchant notification
type WebhookDeliveryStatus string

const (
	WebhookPending WebhookDeliveryStatus = "pending"
	WebhookSuccess WebhookDeliveryStatus = "success"
	WebhookFailed  WebhookDeliveryStatus = "failed"
)

// WebhookEvent is the body posted to a merchant's callback URL once a
// transaction reaches a terminal status
type WebhookEvent struct {
	Timestamp     time.Time         `json:"timestamp"`
	Amount        decimal.Decimal   `json:"amount"`
	NetAmount     decimal.Decimal   `json:"net_amount"`
	TotalCharges  decimal.Decimal   `json:"total_charges"`
	Event         string            `json:"event"`
	ReferenceID   string            `json:"reference_id"`
	TransactionID string            `json:"transaction_id"`
	MerchantID    string            `json:"merchant_id"`
	UTR           string            `json:"utr,omitempty"`
	Message       string            `json:"message,omitempty"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
}

// NewWebhookEvent builds the merchant notification for a finalized transaction
func NewWebhookEvent(txn *Transaction, now time.Time) WebhookEvent {
	return WebhookEvent{
		Event:         string(txn.Type) + "." + string(txn.Status),
		Timestamp:     now,
		ReferenceID:   txn.ReferenceID,
		TransactionID: txn.ID,
		MerchantID:    txn.MerchantID,
		Type:          txn.Type,
		Status:        txn.Status,
		Amount:        txn.Amount,
		NetAmount:     txn.Charges.NetAmount,
		TotalCharges:  txn.Charges.TotalCharges,
		UTR:           txn.Gateway.UTR,
		Message:       txn.Gateway.Message,
	}
}

// WebhookDelivery is the persisted record of one merchant notification
type WebhookDelivery struct {
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	DeliveredAt *time.Time            `json:"delivered_at,omitempty"`
	Payload     []byte                `json:"-"`
	ID          string                `json:"id"`
	ReferenceID string                `json:"reference_id"`
	MerchantID  string                `json:"merchant_id"`
	URL         string                `json:"url"`
	LastError   string                `json:"last_error,omitempty"`
	Status      WebhookDeliveryStatus `json:"status"`
	Attempts    int                   `json:"attempts"`
	HTTPStatus  int                   `json:"http_status,omitempty"`
}

// CallbackAudit records one inbound provider callback and whether it was let through
type CallbackAudit struct {
	ReceivedAt    time.Time
	Provider      string
	SourceIP      string
	ReferenceID   string
	FailureReason string
	Authorized    bool
}
