package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
	"github.com/kevin07696/payment-gateway/internal/domain"
)

// NameUPIQR is the registry name of the UPI QR collect provider
const NameUPIQR = "upiqr"

// UPIQR collects payins over UPI. An accepted request returns a QR string the
// payer scans; the final result arrives by callback.
type UPIQR struct {
	*envelopeClient
}

// NewUPIQR creates the UPI QR provider
func NewUPIQR(cfg Config, httpClient ports.HTTPClient, logger ports.Logger) *UPIQR {
	return &UPIQR{envelopeClient: &envelopeClient{
		name:       NameUPIQR,
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
	}}
}

var _ SettlementProvider = (*UPIQR)(nil)

func (p *UPIQR) Supports(txnType domain.TransactionType) bool {
	return txnType == domain.TransactionTypePayin
}

type upiqrRequest struct {
	OrderID     string `json:"order_id"`
	Amount      string `json:"amount"`
	PayerName   string `json:"payer_name,omitempty"`
	PayerVPA    string `json:"payer_vpa,omitempty"`
	PayerEmail  string `json:"payer_email,omitempty"`
	PayerMobile string `json:"payer_mobile,omitempty"`
	CallbackURL string `json:"callback_url"`
}

func (p *UPIQR) BuildRequest(txn *domain.Transaction, callbackURL string) (*Request, error) {
	if !p.Supports(txn.Type) {
		return nil, fmt.Errorf("%s does not support %s", p.name, txn.Type)
	}

	body := upiqrRequest{
		OrderID:     txn.ReferenceID,
		Amount:      txn.Amount.StringFixed(2),
		CallbackURL: callbackURL,
	}
	if payer := txn.Payer; payer != nil {
		body.PayerName = payer.Name
		body.PayerVPA = payer.VPA
		body.PayerEmail = payer.Email
		body.PayerMobile = payer.Phone
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal upiqr request: %w", err)
	}
	return &Request{Body: encoded, Path: "/v1/collect/qr", ReferenceID: txn.ReferenceID}, nil
}

type upiqrResponse struct {
	RespCode    flexCode    `json:"resp_code"`
	RespMessage string      `json:"resp_message"`
	Data        struct {
		TxnID     string `json:"txn_id"`
		QRString  string `json:"qr_string"`
		IntentURL string `json:"intent_url"`
		RRN       string `json:"rrn"`
	} `json:"data"`
}

func (p *UPIQR) NormalizeResponse(resp *Response) Result {
	var parsed upiqrResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		// An unreadable answer may still mean the provider acted on the request
		return Result{
			Status: StatusFailed,
			Code:   strconv.Itoa(resp.StatusCode),
			Err:    fmt.Errorf("parse upiqr response: %w", err),
			Raw:    string(resp.Body),
		}
	}

	code := normalizeNumericCode(string(parsed.RespCode))
	info := lookupCode(upiqrCodes, code)
	result := Result{
		Status:            info.Status,
		Code:              code,
		Message:           parsed.RespMessage,
		ProviderReference: parsed.Data.TxnID,
		UTR:               parsed.Data.RRN,
		QRPayload:         parsed.Data.QRString,
		Raw:               string(resp.Body),
		Retryable:         info.Retryable,
	}
	if result.QRPayload == "" {
		result.QRPayload = parsed.Data.IntentURL
	}
	if result.Message == "" {
		result.Message = info.Message
	}
	if !result.Accepted() {
		result.Err = providerError(p.name, code, info, parsed.RespMessage)
	}
	return result
}

// NormalizeCallback treats only "00" as success
func (p *UPIQR) NormalizeCallback(code string) domain.TransactionStatus {
	if normalizeNumericCode(code) == "00" {
		return domain.StatusCompleted
	}
	return domain.StatusFailed
}

// flexCode accepts resp_code sent as either a JSON number or a string
type flexCode string

func (c *flexCode) UnmarshalJSON(b []byte) error {
	*c = flexCode(strings.Trim(string(b), `"`))
	return nil
}

// normalizeNumericCode renders 0 and "0" as "00"
func normalizeNumericCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == 1 {
		return "0" + code
	}
	return code
}
