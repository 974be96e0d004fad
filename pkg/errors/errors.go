package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a provider outcome for handling
type ErrorCategory string

const (
	CategoryAccepted           ErrorCategory = "accepted"
	CategoryPending            ErrorCategory = "pending"
	CategoryDeclined           ErrorCategory = "declined"
	CategoryInsufficientFunds  ErrorCategory = "insufficient_funds"
	CategoryInvalidBeneficiary ErrorCategory = "invalid_beneficiary"
	CategoryInvalidRequest     ErrorCategory = "invalid_request"
	CategoryAuth               ErrorCategory = "auth"
	CategorySystemError        ErrorCategory = "system_error"
	CategoryNetworkError       ErrorCategory = "network_error"
)

// ProviderError represents a settlement provider failure with detailed context
type ProviderError struct {
	Details         map[string]interface{}
	Provider        string
	Code            string
	Message         string
	ProviderMessage string
	Category        ErrorCategory
	IsRetriable     bool
}

func (e *ProviderError) Error() string {
	if e.ProviderMessage != "" {
		return fmt.Sprintf("%s %s: %s (provider: %s)", e.Provider, e.Code, e.Message, e.ProviderMessage)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Code, e.Message)
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, category ErrorCategory, retriable bool) *ProviderError {
	return &ProviderError{
		Provider:    provider,
		Code:        code,
		Message:     message,
		Category:    category,
		IsRetriable: retriable,
		Details:     make(map[string]interface{}),
	}
}

// WithProviderMessage returns e with the provider's own message attached
func (e *ProviderError) WithProviderMessage(msg string) *ProviderError {
	e.ProviderMessage = msg
	return e
}
