// Package payment serves the transaction intake and status endpoints.
package payment

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/handlers/response"
	"github.com/kevin07696/payment-gateway/internal/services/payment"
	pkgmiddleware "github.com/kevin07696/payment-gateway/pkg/middleware"
	"github.com/kevin07696/payment-gateway/pkg/resilience"
)

const maxIntakeBody = 64 << 10

// TransactionService is the part of payment.Service the handler needs
type TransactionService interface {
	Submit(ctx context.Context, req payment.IntakeRequest) (*payment.IntakeResult, error)
	Status(ctx context.Context, referenceID string) (*payment.StatusView, error)
}

// HandlerConfig controls how the caller address is taken
type HandlerConfig struct {
	Timeouts          *resilience.TimeoutConfig
	TrustProxyHeaders bool
	// TrustBodyClientIP uses client_ip from the request body for the merchant
	// whitelist check; only safe behind a gateway that sets it
	TrustBodyClientIP bool
}

// TransactionHandler handles /api/v1 transaction routes
type TransactionHandler struct {
	service TransactionService
	cfg     HandlerConfig
	logger  *zap.Logger
}

// NewTransactionHandler creates the intake and status handler
func NewTransactionHandler(service TransactionService, cfg HandlerConfig, logger *zap.Logger) *TransactionHandler {
	if cfg.Timeouts == nil {
		cfg.Timeouts = resilience.DefaultTimeoutConfig()
	}
	return &TransactionHandler{
		service: service,
		cfg:     cfg,
		logger:  logger,
	}
}

// IntakeBody is the JSON body of POST /api/v1/payins and /api/v1/payouts
type IntakeBody struct {
	Amount      decimal.Decimal `json:"amount"`
	Payer       *domain.Party   `json:"payer,omitempty"`
	Beneficiary *domain.Party   `json:"beneficiary,omitempty"`
	MerchantID  string          `json:"merchant_id"`
	ReferenceID string          `json:"reference_id"`
	ClientIP    string          `json:"client_ip,omitempty"`
}

// IntakeResponse is returned with 202 Accepted
type IntakeResponse struct {
	*payment.IntakeResult
	Accepted bool `json:"accepted"`
}

// CreatePayin handles POST /api/v1/payins
func (h *TransactionHandler) CreatePayin(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, domain.TransactionTypePayin)
}

// CreatePayout handles POST /api/v1/payouts
func (h *TransactionHandler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, domain.TransactionTypePayout)
}

func (h *TransactionHandler) create(w http.ResponseWriter, r *http.Request, txnType domain.TransactionType) {
	var body IntakeBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIntakeBody)).Decode(&body); err != nil {
		h.logger.Debug("Malformed intake body", zap.Error(err))
		response.Error(w, h.logger, domain.Validationf("malformed request body"))
		return
	}

	req := payment.IntakeRequest{
		Type:        txnType,
		MerchantID:  body.MerchantID,
		ReferenceID: body.ReferenceID,
		Amount:      body.Amount,
		ClientIP:    pkgmiddleware.ClientIP(r, h.cfg.TrustProxyHeaders),
		Party:       body.Payer,
	}
	if txnType == domain.TransactionTypePayout {
		req.Party = body.Beneficiary
	}
	if h.cfg.TrustBodyClientIP && body.ClientIP != "" {
		req.ClientIP = body.ClientIP
	}

	ctx, cancel := h.cfg.Timeouts.HandlerContext(r.Context())
	defer cancel()

	result, err := h.service.Submit(ctx, req)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}

	response.JSON(w, http.StatusAccepted, IntakeResponse{IntakeResult: result, Accepted: true})
}

// GetTransaction handles GET /api/v1/transactions/{reference_id}
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference_id")
	if ref == "" {
		response.Error(w, h.logger, domain.ErrValidationMissingField.WithDetail("field", "reference_id"))
		return
	}

	ctx, cancel := h.cfg.Timeouts.HandlerContext(r.Context())
	defer cancel()

	view, err := h.service.Status(ctx, ref)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, view)
}
