package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/queue"
)

// HandleDispatch runs one dispatch attempt for a queued transaction. It is
// safe to re-run: a transaction that already left pending is only brought
// into line on the ledger side.
func (s *Service) HandleDispatch(ctx context.Context, job *queue.Job) error {
	logger := s.logger.With(
		zap.String("reference_id", job.ReferenceID),
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempts),
	)

	var payload dispatchPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode dispatch payload: %w", err))
	}

	txn, err := s.records.Get(ctx, job.ReferenceID)
	if errors.Is(err, domain.ErrTxnNotFound) {
		return queue.Permanent(err)
	}
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	if payload.TransactionID != "" && txn.ID != payload.TransactionID {
		return queue.Permanent(fmt.Errorf("job belongs to transaction %s, record holds %s", payload.TransactionID, txn.ID))
	}

	if txn.Status != domain.StatusPending {
		logger.Info("Transaction already dispatched, skipping provider call",
			zap.String("status", string(txn.Status)),
		)
		return s.alignLedger(ctx, txn)
	}

	started := s.now()
	result := s.dispatcher.Dispatch(ctx, txn)

	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	attempt := domain.DispatchAttempt{
		Number:     job.Attempts,
		JobID:      job.ID,
		WorkerID:   job.LockedBy,
		StartedAt:  started,
		FinishedAt: s.now(),
		Outcome:    string(result.Status),
		Code:       result.Code,
		Message:    result.Message,
	}
	if result.Err != nil {
		attempt.Error = result.Err.Error()
	}
	if err := s.records.AppendAttempt(persistCtx, txn.ReferenceID, attempt); err != nil {
		logger.Warn("Failed to record dispatch attempt", zap.Error(err))
	}

	if result.Accepted() {
		status := domain.DispatchedStatus(txn.Type, result.QRPayload != "")
		if _, err := s.records.UpdateStatus(persistCtx, txn.ReferenceID, status, result.Gateway()); err != nil {
			return fmt.Errorf("record dispatched status: %w", err)
		}
		if _, err := s.ledger.MarkDispatched(persistCtx, txn.ReferenceID, status, result.Gateway()); err != nil {
			return fmt.Errorf("ledger dispatched status: %w", err)
		}
		logger.Info("Transaction dispatched", zap.String("status", string(status)))
		return nil
	}

	dispatchErr := domain.WrapError(domain.ErrorCodeDispatchFailure, "provider dispatch failed", result.Err).
		WithDetail("provider", txn.Provider).
		WithDetail("status", string(result.Status))

	if result.Retryable && !job.Exhausted() {
		logger.Warn("Retryable dispatch failure", zap.Error(result.Err))
		return dispatchErr
	}

	if _, _, err := s.Settle(persistCtx, txn.ReferenceID, domain.StatusFailed, result.Gateway()); err != nil {
		return fmt.Errorf("fail transaction after dispatch: %w", err)
	}

	if domain.IsConfigurationError(result.Err) {
		// Retrying cannot help; fail the job without spending attempts
		return queue.Permanent(dispatchErr)
	}
	if result.Retryable {
		// Last attempt: let the pool mark the job failed
		return dispatchErr
	}
	return nil
}

// HandleDispatchExhausted fails a transaction whose dispatch job is
// permanently failed, releasing any payout reservation.
func (s *Service) HandleDispatchExhausted(ctx context.Context, job *queue.Job, cause error) {
	gw := domain.GatewayResponse{Code: string(domain.ErrorCodeDispatchFailure)}
	if cause != nil {
		gw.Message = cause.Error()
	}

	txn, _, err := s.Settle(ctx, job.ReferenceID, domain.StatusFailed, gw)
	if err != nil {
		s.logger.Error("Failed to fail transaction for exhausted dispatch job",
			zap.String("reference_id", job.ReferenceID),
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("Dispatch job exhausted",
		zap.String("reference_id", job.ReferenceID),
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempts),
		zap.String("final_status", string(txn.Status)),
	)
}

// alignLedger brings the ledger row in step with a document that moved past
// pending in an earlier attempt
func (s *Service) alignLedger(ctx context.Context, doc *domain.Transaction) error {
	switch {
	case doc.Status.IsDispatched():
		if _, err := s.ledger.MarkDispatched(ctx, doc.ReferenceID, doc.Status, doc.Gateway); err != nil {
			return fmt.Errorf("ledger dispatched status: %w", err)
		}
	case doc.Status.IsTerminal():
		if _, _, err := s.Settle(ctx, doc.ReferenceID, doc.Status, doc.Gateway); err != nil {
			return err
		}
	}
	return nil
}
