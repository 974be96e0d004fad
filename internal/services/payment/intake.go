package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/queue"
	"github.com/kevin07696/payment-gateway/internal/services/charges"
	"github.com/kevin07696/payment-gateway/pkg/observability"
)

var (
	referencePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)
	ifscPattern      = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
)

// IntakeRequest is a payin or payout intent
type IntakeRequest struct {
	Amount      decimal.Decimal
	Party       *domain.Party
	MerchantID  string
	ReferenceID string
	ClientIP    string
	Type        domain.TransactionType
}

// Validate checks the request shape before any store is touched
func (r *IntakeRequest) Validate() error {
	if !r.Type.Valid() {
		return domain.Validationf("unknown transaction type %q", r.Type)
	}
	if strings.TrimSpace(r.MerchantID) == "" {
		return domain.ErrValidationMissingField.WithDetail("field", "merchant_id")
	}
	if r.ReferenceID == "" {
		return domain.ErrValidationMissingField.WithDetail("field", "reference_id")
	}
	if !referencePattern.MatchString(r.ReferenceID) {
		return domain.ErrValidationReference.WithDetail("reference_id", r.ReferenceID)
	}
	if !r.Amount.IsPositive() {
		return domain.ErrValidationAmountInvalid.WithDetail("reason", "amount must be greater than zero")
	}
	if !r.Amount.Equal(r.Amount.Round(charges.MinorUnitPlaces)) {
		return domain.ErrValidationAmountInvalid.WithDetail("reason", "amount has more than two decimal places")
	}

	if r.Type == domain.TransactionTypePayout {
		b := r.Party
		if b == nil {
			return domain.ErrValidationMissingField.WithDetail("field", "beneficiary")
		}
		if strings.TrimSpace(b.Name) == "" {
			return domain.ErrValidationMissingField.WithDetail("field", "beneficiary.name")
		}
		if strings.TrimSpace(b.AccountNumber) == "" {
			return domain.ErrValidationMissingField.WithDetail("field", "beneficiary.account_number")
		}
		if !ifscPattern.MatchString(strings.ToUpper(b.IFSC)) {
			return domain.Validationf("invalid IFSC %q", b.IFSC)
		}
	}
	return nil
}

// IntakeResult is returned once the transaction is queued
type IntakeResult struct {
	Charges       domain.ChargeBreakdown   `json:"charges"`
	ReferenceID   string                   `json:"reference_id"`
	TransactionID string                   `json:"transaction_id"`
	Status        domain.TransactionStatus `json:"status"`
}

// dispatchPayload ties a job to the intake that created it
type dispatchPayload struct {
	TransactionID string `json:"transaction_id"`
	Lineage       string `json:"lineage"`
}

// Submit validates, prices and persists the intent in both mirrors, then
// enqueues its dispatch. It returns before any provider is called.
func (s *Service) Submit(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	result, err := s.submit(ctx, req)

	outcome := "accepted"
	if err != nil {
		outcome = string(domain.GetErrorCode(err))
		if outcome == "" {
			outcome = "error"
		}
		s.logger.Warn("Transaction intake rejected",
			zap.String("reference_id", req.ReferenceID),
			zap.String("merchant_id", req.MerchantID),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
	}
	observability.RecordIntake(string(req.Type), outcome)
	return result, err
}

func (s *Service) submit(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	merchant, err := s.merchants.GetMerchant(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	if !merchant.CanProcessTransactions() {
		return nil, domain.ErrMerchantInactive.WithDetail("merchant_id", merchant.ID)
	}
	if !merchant.AllowsIP(req.ClientIP) {
		return nil, domain.ErrIPNotWhitelisted.WithDetail("client_ip", req.ClientIP)
	}

	providerName := merchant.ProviderFor(req.Type)
	if providerName == "" {
		return nil, domain.ErrNoActiveProvider.WithDetail("type", string(req.Type))
	}
	p, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	if !p.Supports(req.Type) {
		return nil, domain.ErrNoActiveProvider.
			WithDetail("provider", providerName).
			WithDetail("type", string(req.Type))
	}

	brackets, err := s.merchants.ListBrackets(ctx, merchant.ID, req.Type)
	if err != nil {
		return nil, fmt.Errorf("list charge brackets: %w", err)
	}
	platform, err := s.merchants.GetActivePlatformFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("get platform fee: %w", err)
	}
	breakdown, err := charges.Calculate(req.Amount, brackets, platform)
	if err != nil {
		return nil, err
	}

	now := s.now()
	txn := &domain.Transaction{
		ID:            uuid.NewString(),
		ReferenceID:   req.ReferenceID,
		MerchantID:    merchant.ID,
		Provider:      providerName,
		Type:          req.Type,
		Status:        domain.StatusPending,
		Amount:        req.Amount,
		Charges:       *breakdown,
		ClientIP:      req.ClientIP,
		IntakeLineage: uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Type == domain.TransactionTypePayout {
		b := *req.Party
		b.IFSC = strings.ToUpper(b.IFSC)
		txn.Beneficiary = &b
		if err := s.checkSettlement(ctx, txn); err != nil {
			return nil, err
		}
	} else if req.Party != nil {
		payer := *req.Party
		txn.Payer = &payer
	}

	if err := s.records.Create(ctx, txn); err != nil {
		return nil, err
	}

	if err := s.ledger.CreatePending(ctx, txn, txn.ReservationDelta()); err != nil {
		s.abandon(ctx, txn, err)
		return nil, err
	}
	if txn.Balance != nil {
		if err := s.records.SetBalance(ctx, txn.ReferenceID, *txn.Balance); err != nil {
			s.logger.Warn("Failed to copy reservation balance to record",
				zap.String("reference_id", txn.ReferenceID),
				zap.Error(err),
			)
		}
	}

	if err := s.enqueue(ctx, txn); err != nil {
		s.logger.Error("Failed to enqueue dispatch, failing transaction",
			zap.String("reference_id", txn.ReferenceID),
			zap.Error(err),
		)
		persistCtx, cancel := s.persistContext(ctx)
		defer cancel()
		gw := domain.GatewayResponse{Code: string(domain.ErrorCodeDispatchFailure), Message: "dispatch could not be queued"}
		if _, _, settleErr := s.Settle(persistCtx, txn.ReferenceID, domain.StatusFailed, gw); settleErr != nil {
			s.logger.Error("Failed to fail unqueued transaction",
				zap.String("reference_id", txn.ReferenceID),
				zap.Error(settleErr),
			)
		}
		return nil, domain.WrapError(domain.ErrorCodeDispatchFailure, "dispatch could not be queued", err)
	}

	s.logger.Info("Transaction accepted",
		zap.String("reference_id", txn.ReferenceID),
		zap.String("transaction_id", txn.ID),
		zap.String("merchant_id", txn.MerchantID),
		zap.String("type", string(txn.Type)),
		zap.String("provider", txn.Provider),
		zap.String("amount", txn.Amount.StringFixed(2)),
		zap.String("net_amount", txn.Charges.NetAmount.StringFixed(2)),
	)

	return &IntakeResult{
		ReferenceID:   txn.ReferenceID,
		TransactionID: txn.ID,
		Status:        txn.Status,
		Charges:       txn.Charges,
	}, nil
}

// checkSettlement rejects a payout the settlement balance cannot cover before
// anything is written. The reservation in CreatePending remains the authority.
func (s *Service) checkSettlement(ctx context.Context, txn *domain.Transaction) error {
	fd, err := s.ledger.GetFinancialDetail(ctx, txn.MerchantID)
	if err != nil {
		return err
	}
	if fd.Settlement.LessThan(txn.PayoutDebit()) {
		return domain.ErrInsufficientFunds.
			WithDetail("available", fd.Settlement.StringFixed(2)).
			WithDetail("required", txn.PayoutDebit().StringFixed(2))
	}
	return nil
}

// abandon removes the document written by this intake after the ledger write
// failed, so the caller can resubmit the same reference_id
func (s *Service) abandon(ctx context.Context, txn *domain.Transaction, cause error) {
	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	deleted, err := s.records.DeleteAbandoned(persistCtx, txn.ReferenceID, txn.IntakeLineage)
	if err != nil {
		s.logger.Error("Failed to remove abandoned transaction record",
			zap.String("reference_id", txn.ReferenceID),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("Intake abandoned after ledger write failed",
		zap.String("reference_id", txn.ReferenceID),
		zap.Bool("record_removed", deleted),
		zap.NamedError("cause", cause),
	)
}

func (s *Service) enqueue(ctx context.Context, txn *domain.Transaction) error {
	payload, err := json.Marshal(dispatchPayload{TransactionID: txn.ID, Lineage: txn.IntakeLineage})
	if err != nil {
		return fmt.Errorf("marshal dispatch payload: %w", err)
	}
	return s.queue.Enqueue(ctx, &queue.Job{
		Kind:        queue.KindDispatch,
		ReferenceID: txn.ReferenceID,
		Payload:     payload,
		MaxAttempts: s.cfg.MaxAttempts,
	})
}
