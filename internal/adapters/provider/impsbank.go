package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
	"github.com/kevin07696/payment-gateway/internal/domain"
)

// NameIMPSBank is the registry name of the IMPS payout provider
const NameIMPSBank = "impsbank"

// IMPSBank disburses payouts by IMPS bank transfer. Acceptance moves the
// payout to initiated; the credit confirmation arrives by callback.
type IMPSBank struct {
	*envelopeClient
}

// NewIMPSBank creates the IMPS payout provider
func NewIMPSBank(cfg Config, httpClient ports.HTTPClient, logger ports.Logger) *IMPSBank {
	return &IMPSBank{envelopeClient: &envelopeClient{
		name:       NameIMPSBank,
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
	}}
}

var _ SettlementProvider = (*IMPSBank)(nil)

func (p *IMPSBank) Supports(txnType domain.TransactionType) bool {
	return txnType == domain.TransactionTypePayout
}

type impsTransferRequest struct {
	ClientRefID     string `json:"client_ref_id"`
	Amount          string `json:"amount"`
	TransferMode    string `json:"transfer_mode"`
	BeneficiaryName string `json:"beneficiary_name"`
	AccountNumber   string `json:"account_number"`
	IFSC            string `json:"ifsc"`
	BankName        string `json:"bank_name,omitempty"`
	Mobile          string `json:"mobile,omitempty"`
	Email           string `json:"email,omitempty"`
	CallbackURL     string `json:"callback_url"`
}

func (p *IMPSBank) BuildRequest(txn *domain.Transaction, callbackURL string) (*Request, error) {
	if !p.Supports(txn.Type) {
		return nil, fmt.Errorf("%s does not support %s", p.name, txn.Type)
	}
	b := txn.Beneficiary
	if b == nil || b.AccountNumber == "" || b.IFSC == "" {
		return nil, domain.ErrValidationMissingField.WithDetail("field", "beneficiary")
	}

	encoded, err := json.Marshal(impsTransferRequest{
		ClientRefID:     txn.ReferenceID,
		Amount:          txn.Amount.StringFixed(2),
		TransferMode:    "IMPS",
		BeneficiaryName: b.Name,
		AccountNumber:   b.AccountNumber,
		IFSC:            strings.ToUpper(b.IFSC),
		BankName:        b.BankName,
		Mobile:          b.Phone,
		Email:           b.Email,
		CallbackURL:     callbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal impsbank request: %w", err)
	}
	return &Request{Body: encoded, Path: "/api/payouts/transfer", ReferenceID: txn.ReferenceID}, nil
}

type impsTransferResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	TransferID  string `json:"transfer_id"`
	UTR         string `json:"utr"`
	ErrorCode   string `json:"error_code"`
	ClientRefID string `json:"client_ref_id"`
}

func (p *IMPSBank) NormalizeResponse(resp *Response) Result {
	var parsed impsTransferResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		// An unreadable answer may still mean the provider acted on the request
		return Result{
			Status: StatusFailed,
			Code:   strconv.Itoa(resp.StatusCode),
			Err:    fmt.Errorf("parse impsbank response: %w", err),
			Raw:    string(resp.Body),
		}
	}

	code := strings.ToUpper(parsed.Status)
	if parsed.ErrorCode != "" {
		// A specific error code is more precise than the generic FAILED status
		code = strings.ToUpper(parsed.ErrorCode)
	}
	info := lookupCode(impsbankCodes, code)

	result := Result{
		Status:            info.Status,
		Code:              code,
		Message:           parsed.Message,
		ProviderReference: parsed.TransferID,
		UTR:               parsed.UTR,
		Raw:               string(resp.Body),
		Retryable:         info.Retryable,
	}
	if result.Message == "" {
		result.Message = info.Message
	}
	if !result.Accepted() {
		result.Err = providerError(p.name, code, info, parsed.Message)
	}
	return result
}

// NormalizeCallback treats only SUCCESS as completed
func (p *IMPSBank) NormalizeCallback(code string) domain.TransactionStatus {
	if strings.EqualFold(strings.TrimSpace(code), "SUCCESS") {
		return domain.StatusCompleted
	}
	return domain.StatusFailed
}
