package provider

import (
	"strings"

	pkgerrors "github.com/kevin07696/payment-gateway/pkg/errors"
)

// codeInfo describes one provider response code
type codeInfo struct {
	Message   string
	Status    Status
	Category  pkgerrors.ErrorCategory
	Retryable bool
}

// upiqrCodes is the UPI QR collect vocabulary (numeric resp_code)
var upiqrCodes = map[string]codeInfo{
	"00": {Status: StatusSuccess, Category: pkgerrors.CategoryAccepted, Message: "QR generated"},
	"01": {Status: StatusPending, Category: pkgerrors.CategoryPending, Message: "Collect request pending"},
	"05": {Status: StatusFailed, Category: pkgerrors.CategoryDeclined, Message: "Declined"},
	"13": {Status: StatusFailed, Category: pkgerrors.CategoryInvalidRequest, Message: "Invalid amount"},
	"14": {Status: StatusFailed, Category: pkgerrors.CategoryInvalidBeneficiary, Message: "Invalid VPA"},
	"30": {Status: StatusFailed, Category: pkgerrors.CategoryInvalidRequest, Message: "Format error"},
	"40": {Status: StatusFailed, Category: pkgerrors.CategoryAuth, Message: "Invalid API key"},
	"51": {Status: StatusFailed, Category: pkgerrors.CategoryInsufficientFunds, Message: "Insufficient funds"},
	"91": {Status: StatusError, Category: pkgerrors.CategoryNetworkError, Message: "Issuer or switch inoperative", Retryable: true},
	"94": {Status: StatusFailed, Category: pkgerrors.CategoryInvalidRequest, Message: "Duplicate transaction"},
	"96": {Status: StatusError, Category: pkgerrors.CategorySystemError, Message: "System malfunction", Retryable: true},
}

// impsbankCodes is the IMPS bank transfer vocabulary (textual status)
var impsbankCodes = map[string]codeInfo{
	"SUCCESS":              {Status: StatusSuccess, Category: pkgerrors.CategoryAccepted, Message: "Transfer accepted"},
	"ACCEPTED":             {Status: StatusPending, Category: pkgerrors.CategoryPending, Message: "Transfer accepted"},
	"PENDING":              {Status: StatusPending, Category: pkgerrors.CategoryPending, Message: "Transfer pending"},
	"IN_PROCESS":           {Status: StatusPending, Category: pkgerrors.CategoryPending, Message: "Transfer in process"},
	"FAILED":               {Status: StatusFailed, Category: pkgerrors.CategoryDeclined, Message: "Transfer failed"},
	"REJECTED":             {Status: StatusFailed, Category: pkgerrors.CategoryDeclined, Message: "Transfer rejected"},
	"INVALID_ACCOUNT":      {Status: StatusFailed, Category: pkgerrors.CategoryInvalidBeneficiary, Message: "Invalid beneficiary account"},
	"INVALID_IFSC":         {Status: StatusFailed, Category: pkgerrors.CategoryInvalidBeneficiary, Message: "Invalid IFSC"},
	"INSUFFICIENT_BALANCE": {Status: StatusFailed, Category: pkgerrors.CategoryInsufficientFunds, Message: "Insufficient pool balance"},
	"UNAUTHORIZED":         {Status: StatusFailed, Category: pkgerrors.CategoryAuth, Message: "Invalid API key"},
	"TIMEOUT":              {Status: StatusError, Category: pkgerrors.CategoryNetworkError, Message: "Beneficiary bank timeout", Retryable: true},
	"SERVICE_UNAVAILABLE":  {Status: StatusError, Category: pkgerrors.CategorySystemError, Message: "Service unavailable", Retryable: true},
}

// lookupCode returns the code entry, treating unknown codes as failed
func lookupCode(table map[string]codeInfo, code string) codeInfo {
	if info, ok := table[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return info
	}
	return codeInfo{
		Status:   StatusFailed,
		Category: pkgerrors.CategoryDeclined,
		Message:  "Unrecognized provider code",
	}
}

// providerError builds the error carried on a non-accepted result
func providerError(provider, code string, info codeInfo, providerMessage string) *pkgerrors.ProviderError {
	return pkgerrors.NewProviderError(provider, code, info.Message, info.Category, info.Retryable).
		WithProviderMessage(providerMessage)
}
