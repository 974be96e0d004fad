package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
)

// Settle drives a transaction to a terminal status in both mirrors. The
// document is written first and decides the outcome: when it is already
// terminal its status wins over the requested one. The ledger then applies
// the matching balance delta together with the status, at most once.
//
// A ledger failure is returned after the document write; the reconciliation
// sweep finishes the ledger side later. The merchant is notified only by the
// call that actually finalized the ledger.
func (s *Service) Settle(
	ctx context.Context,
	referenceID string,
	status domain.TransactionStatus,
	gw domain.GatewayResponse,
) (*domain.Transaction, *domain.FinalizeResult, error) {
	if !status.IsTerminal() {
		return nil, nil, domain.ErrTxnInvalidState.WithDetail("status", string(status))
	}

	if _, err := s.records.UpdateStatus(ctx, referenceID, status, gw); err != nil {
		return nil, nil, fmt.Errorf("update record status: %w", err)
	}
	doc, err := s.records.Get(ctx, referenceID)
	if err != nil {
		return nil, nil, err
	}
	if !doc.Status.IsTerminal() {
		return doc, nil, domain.ErrTxnInvalidState.
			WithDetail("reference_id", referenceID).
			WithDetail("status", string(doc.Status))
	}

	result, err := s.ledger.Finalize(ctx, referenceID, doc.Status, doc.Gateway, doc.CompletionDelta(doc.Status))
	if err != nil {
		s.logger.Error("Ledger finalize failed after record was written",
			zap.String("reference_id", referenceID),
			zap.String("status", string(doc.Status)),
			zap.Error(err),
		)
		return doc, nil, fmt.Errorf("finalize ledger: %w", err)
	}

	if result.Balance != nil {
		doc.Balance = result.Balance
		if err := s.records.SetBalance(ctx, referenceID, *result.Balance); err != nil {
			s.logger.Warn("Failed to copy balance snapshot to record",
				zap.String("reference_id", referenceID),
				zap.Error(err),
			)
		}
	}

	if result.Applied {
		s.logger.Info("Transaction settled",
			zap.String("reference_id", referenceID),
			zap.String("status", string(doc.Status)),
			zap.Bool("balance_changed", result.Balance != nil),
		)
		s.notifier.Notify(doc)
	}
	return doc, result, nil
}
