// Package response writes JSON bodies and maps domain errors to HTTP statuses.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
)

// ErrorBody is the error envelope returned by every endpoint
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code
type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// JSON writes v with status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	code := domain.GetErrorCode(err)
	switch {
	case code == domain.ErrorCodeTxnNotFound:
		return http.StatusNotFound
	case domain.IsValidationError(err), code == domain.ErrorCodeTxnAmountMismatch:
		return http.StatusBadRequest
	case code == domain.ErrorCodeDuplicateReference, code == domain.ErrorCodeTxnInvalidState:
		return http.StatusConflict
	case domain.IsConfigurationError(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// Error writes the error envelope for err. Internal failures are logged and
// reported without their message or details.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusFor(err)

	detail := ErrorDetail{
		Code:    string(domain.ErrorCodeInternalError),
		Message: "internal server error",
	}
	var de *domain.DomainError
	hasCode := errors.As(err, &de)

	switch {
	case status == http.StatusInternalServerError:
		if hasCode {
			detail.Code = string(de.Code)
		}
		logger.Error("Request failed", zap.Error(err))
	case hasCode:
		detail = ErrorDetail{Code: string(de.Code), Message: de.Message, Details: de.Details}
	}

	JSON(w, status, ErrorBody{Error: detail})
}

// Fail writes an error envelope with an explicit status and code
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}
