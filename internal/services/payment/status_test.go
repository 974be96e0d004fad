package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/queue"
	"github.com/kevin07696/payment-gateway/internal/testutil/fixtures"
)

func TestCompareMirrors(t *testing.T) {
	txn := func(s domain.TransactionStatus) *domain.Transaction {
		return fixtures.NewTransaction().WithStatus(s).Build()
	}

	tests := []struct {
		name string
		doc  *domain.Transaction
		row  *domain.Transaction
		want Consistency
	}{
		{"same status", txn(domain.StatusPending), txn(domain.StatusPending), ConsistencyInSync},
		{"ledger still pending", txn(domain.StatusQRGenerated), txn(domain.StatusPending), ConsistencyLedgerBehind},
		{"ledger not finalized", txn(domain.StatusCompleted), txn(domain.StatusQRGenerated), ConsistencyLedgerBehind},
		{"document behind", txn(domain.StatusPending), txn(domain.StatusFailed), ConsistencyDocumentBehind},
		{"terminal disagreement", txn(domain.StatusCompleted), txn(domain.StatusFailed), ConsistencyDiverged},
		{"different dispatch status", txn(domain.StatusQRGenerated), txn(domain.StatusInitiated), ConsistencyDiverged},
		{"no ledger row", txn(domain.StatusPending), nil, ConsistencyLedgerMissing},
		{"no document", nil, txn(domain.StatusPending), ConsistencyDocumentMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareMirrors(tt.doc, tt.row))
		})
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, payoutRequest("VIEW-1", "1000"))
	require.NoError(t, err)

	view, err := h.svc.Status(ctx, "VIEW-1")
	require.NoError(t, err)
	assert.Equal(t, "VIEW-1", view.Transaction.ReferenceID)
	assert.Equal(t, domain.StatusPending, view.LedgerStatus)
	assert.Equal(t, ConsistencyInSync, view.Consistency)
	require.NotNil(t, view.Job)
	assert.Equal(t, queue.StateWaiting, view.Job.State)
	require.NotNil(t, view.Transaction.Balance)
	assert.True(t, dec("3976.20").Equal(view.Transaction.Balance.After))

	h.runJobs(t)

	view, err = h.svc.Status(ctx, "VIEW-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInitiated, view.Transaction.Status)
	assert.Equal(t, domain.StatusInitiated, view.LedgerStatus)
	assert.Equal(t, queue.StateCompleted, view.Job.State)
}

func TestStatus_ReportsLaggingLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, payinRequest("LAG-VIEW", "100"))
	require.NoError(t, err)
	_, err = h.records.UpdateStatus(ctx, "LAG-VIEW", domain.StatusQRGenerated, domain.GatewayResponse{})
	require.NoError(t, err)

	view, err := h.svc.Status(ctx, "LAG-VIEW")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQRGenerated, view.Transaction.Status)
	assert.Equal(t, domain.StatusPending, view.LedgerStatus)
	assert.Equal(t, ConsistencyLedgerBehind, view.Consistency)
}

func TestStatus_UnknownReference(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTxnNotFound)
}
