package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrorCodeValidationReference     ErrorCode = "VALIDATION_REFERENCE_INVALID"

	// Merchant Errors (MERCHANT_*)
	ErrorCodeMerchantNotFound   ErrorCode = "MERCHANT_NOT_FOUND"
	ErrorCodeMerchantInactive   ErrorCode = "MERCHANT_INACTIVE"
	ErrorCodeIPNotWhitelisted   ErrorCode = "IP_NOT_WHITELISTED"
	ErrorCodeInsufficientFunds  ErrorCode = "INSUFFICIENT_BALANCE"
	ErrorCodeDuplicateReference ErrorCode = "DUPLICATE_REFERENCE"

	// Configuration Errors
	ErrorCodeNoBracketMatch      ErrorCode = "NO_BRACKET_MATCH"
	ErrorCodeBracketOverlap      ErrorCode = "BRACKET_OVERLAP"
	ErrorCodeChargesExceedAmount ErrorCode = "CHARGES_EXCEED_AMOUNT"
	ErrorCodeNoActiveProvider    ErrorCode = "NO_ACTIVE_PROVIDER"
	ErrorCodeProviderKeysMissing ErrorCode = "PROVIDER_KEYS_MISSING"

	// Transaction Errors (TXN_*)
	ErrorCodeTxnNotFound       ErrorCode = "TXN_NOT_FOUND"
	ErrorCodeTxnInvalidState   ErrorCode = "INVALID_STATE_TRANSITION"
	ErrorCodeTxnAmountMismatch ErrorCode = "AMOUNT_MISMATCH"

	// Asynchronous path errors
	ErrorCodeDispatchFailure       ErrorCode = "DISPATCH_FAILURE"
	ErrorCodeReconciliationError   ErrorCode = "RECONCILIATION_ERROR"
	ErrorCodeWebhookDeliveryFailed ErrorCode = "WEBHOOK_DELIVERY_FAILED"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so sentinels like
// ErrTxnNotFound match errors produced by NewDomainError/WrapError.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of the error with an additional detail field.
// Sentinels are shared, so they are never mutated in place.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Err: e.Err, Details: details, Code: e.Code, Message: e.Message}
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// Validationf builds a VALIDATION_FAILED error with a formatted message.
func Validationf(format string, args ...interface{}) *DomainError {
	return NewDomainError(ErrorCodeValidationFailed, fmt.Sprintf(format, args...))
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeMerchantNotFound ||
		code == ErrorCodeTxnNotFound
}

// IsValidationError checks if an error is rejected input on the synchronous path
func IsValidationError(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeValidationFailed,
		ErrorCodeValidationAmountInvalid,
		ErrorCodeValidationMissingField,
		ErrorCodeValidationReference,
		ErrorCodeMerchantNotFound,
		ErrorCodeMerchantInactive,
		ErrorCodeIPNotWhitelisted,
		ErrorCodeInsufficientFunds:
		return true
	}
	return false
}

// IsConfigurationError checks if an error is a pricing or provider configuration gap
func IsConfigurationError(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeNoBracketMatch,
		ErrorCodeBracketOverlap,
		ErrorCodeChargesExceedAmount,
		ErrorCodeNoActiveProvider,
		ErrorCodeProviderKeysMissing:
		return true
	}
	return false
}

// IsReconciliationError checks if a callback could not be attributed or applied
func IsReconciliationError(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeReconciliationError, ErrorCodeTxnNotFound, ErrorCodeTxnAmountMismatch:
		return true
	}
	return false
}

var (
	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")
	ErrValidationReference     = NewDomainError(ErrorCodeValidationReference, "invalid reference_id")

	ErrMerchantNotFound  = NewDomainError(ErrorCodeMerchantNotFound, "merchant not found")
	ErrMerchantInactive  = NewDomainError(ErrorCodeMerchantInactive, "merchant is not active")
	ErrIPNotWhitelisted  = NewDomainError(ErrorCodeIPNotWhitelisted, "client ip is not whitelisted for merchant")
	ErrInsufficientFunds = NewDomainError(ErrorCodeInsufficientFunds, "insufficient settlement balance")

	ErrDuplicateReference = NewDomainError(ErrorCodeDuplicateReference, "reference_id already exists")

	ErrNoBracketMatch      = NewDomainError(ErrorCodeNoBracketMatch, "no charge bracket covers amount")
	ErrBracketOverlap      = NewDomainError(ErrorCodeBracketOverlap, "charge brackets overlap")
	ErrChargesExceedAmount = NewDomainError(ErrorCodeChargesExceedAmount, "charges leave nothing to settle for amount")
	ErrNoActiveProvider    = NewDomainError(ErrorCodeNoActiveProvider, "no active settlement provider")
	ErrProviderKeysMissing = NewDomainError(ErrorCodeProviderKeysMissing, "provider encryption keys missing")

	ErrTxnNotFound       = NewDomainError(ErrorCodeTxnNotFound, "transaction not found")
	ErrTxnInvalidState   = NewDomainError(ErrorCodeTxnInvalidState, "transaction is in invalid state for this operation")
	ErrTxnAmountMismatch = NewDomainError(ErrorCodeTxnAmountMismatch, "callback amount does not match transaction")

	ErrReconciliation         = NewDomainError(ErrorCodeReconciliationError, "callback reconciliation failed")
	ErrWebhookDeliveryFailure = NewDomainError(ErrorCodeWebhookDeliveryFailed, "merchant webhook delivery failed")
)
