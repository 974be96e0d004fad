package payment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/queue"
)

// Consistency compares the document and ledger mirrors of one transaction
type Consistency string

const (
	ConsistencyInSync          Consistency = "in_sync"
	ConsistencyLedgerBehind    Consistency = "ledger_behind"
	ConsistencyDocumentBehind  Consistency = "document_behind"
	ConsistencyDiverged        Consistency = "diverged"
	ConsistencyLedgerMissing   Consistency = "ledger_missing"
	ConsistencyDocumentMissing Consistency = "document_missing"
)

// CompareMirrors reports how far apart the two mirrors are. Statuses only move
// forward, so the mirror further along the lifecycle is the one to follow.
func CompareMirrors(doc, row *domain.Transaction) Consistency {
	switch {
	case doc == nil && row == nil:
		return ConsistencyInSync
	case doc == nil:
		return ConsistencyDocumentMissing
	case row == nil:
		return ConsistencyLedgerMissing
	case doc.Status == row.Status:
		return ConsistencyInSync
	case doc.Status.IsTerminal() && row.Status.IsTerminal():
		return ConsistencyDiverged
	case rank(doc.Status) > rank(row.Status):
		return ConsistencyLedgerBehind
	case rank(row.Status) > rank(doc.Status):
		return ConsistencyDocumentBehind
	}
	// Two different dispatched statuses
	return ConsistencyDiverged
}

func rank(s domain.TransactionStatus) int {
	switch {
	case s.IsTerminal():
		return 2
	case s.IsDispatched():
		return 1
	}
	return 0
}

// StatusView is the read-only picture of a transaction across both mirrors,
// its dispatch job and its merchant notifications
type StatusView struct {
	Transaction  *domain.Transaction       `json:"transaction"`
	LedgerStatus domain.TransactionStatus  `json:"ledger_status,omitempty"`
	Consistency  Consistency               `json:"consistency"`
	Job          *queue.Job                `json:"job,omitempty"`
	Webhooks     []*domain.WebhookDelivery `json:"webhooks,omitempty"`
}

// Status looks a transaction up by reference_id
func (s *Service) Status(ctx context.Context, referenceID string) (*StatusView, error) {
	doc, err := s.records.Get(ctx, referenceID)
	if err != nil && !errors.Is(err, domain.ErrTxnNotFound) {
		return nil, err
	}
	row, err := s.ledger.GetByReference(ctx, referenceID)
	if err != nil && !errors.Is(err, domain.ErrTxnNotFound) {
		return nil, err
	}
	if doc == nil && row == nil {
		return nil, domain.ErrTxnNotFound.WithDetail("reference_id", referenceID)
	}

	view := &StatusView{
		Transaction: doc,
		Consistency: CompareMirrors(doc, row),
	}
	if doc == nil {
		view.Transaction = row
	}
	if row != nil {
		view.LedgerStatus = row.Status
		if view.Transaction.Balance == nil {
			view.Transaction.Balance = row.Balance
		}
	}

	job, err := s.queue.Get(ctx, queue.KindDispatch, referenceID)
	switch {
	case err == nil:
		view.Job = job
	case !errors.Is(err, queue.ErrJobNotFound):
		s.logger.Warn("Failed to load dispatch job for status", zap.String("reference_id", referenceID), zap.Error(err))
	}

	if s.deliveries != nil {
		deliveries, err := s.deliveries.ListDeliveries(ctx, referenceID)
		if err != nil {
			s.logger.Warn("Failed to load webhook deliveries for status", zap.String("reference_id", referenceID), zap.Error(err))
		}
		view.Webhooks = deliveries
	}
	return view, nil
}
