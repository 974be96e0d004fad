package payment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/queue"
	"github.com/kevin07696/payment-gateway/internal/testutil/fixtures"
	"github.com/kevin07696/payment-gateway/internal/testutil/mocks"
)

func TestSubmit_PayinLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Submit(ctx, payinRequest("ORDER-500", "500"))
	require.NoError(t, err)

	assert.Equal(t, "ORDER-500", res.ReferenceID)
	assert.NotEmpty(t, res.TransactionID)
	assert.Equal(t, domain.StatusPending, res.Status)
	assert.True(t, dec("10").Equal(res.Charges.AdminCharge))
	assert.True(t, dec("5").Equal(res.Charges.AgentCharge))
	assert.True(t, dec("0.10").Equal(res.Charges.PlatformFee))
	assert.True(t, dec("1.80").Equal(res.Charges.GSTAmount))
	assert.True(t, dec("11.90").Equal(res.Charges.TotalCharges))
	assert.True(t, dec("488.10").Equal(res.Charges.NetAmount))
	assert.Equal(t, "b-low", res.Charges.BracketID)

	// Both mirrors hold the pending transaction and a dispatch job is waiting
	doc, err := h.records.Get(ctx, "ORDER-500")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, doc.Status)
	assert.Equal(t, "upiqr", doc.Provider)
	assert.NotEmpty(t, doc.IntakeLineage)

	row, err := h.ledger.GetByReference(ctx, "ORDER-500")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, row.Status)
	assert.Equal(t, doc.ID, row.ID)

	job, err := h.queue.Get(ctx, queue.KindDispatch, "ORDER-500")
	require.NoError(t, err)
	assert.Equal(t, queue.StateWaiting, job.State)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, 0, h.dispatcher.Calls(), "intake must not call the provider")

	// Dispatch
	assert.Equal(t, 1, h.runJobs(t))
	assert.Equal(t, 1, h.dispatcher.Calls())

	doc, err = h.records.Get(ctx, "ORDER-500")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQRGenerated, doc.Status)
	assert.Equal(t, "UPQ-ORDER-500", doc.Gateway.ProviderReference)
	require.Len(t, doc.Attempts, 1)
	assert.Equal(t, 1, doc.Attempts[0].Number)

	row, err = h.ledger.GetByReference(ctx, "ORDER-500")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQRGenerated, row.Status)

	job, err = h.queue.Get(ctx, queue.KindDispatch, "ORDER-500")
	require.NoError(t, err)
	assert.Equal(t, queue.StateCompleted, job.State)

	// Provider confirms
	settled, result, err := h.svc.Settle(ctx, "ORDER-500", domain.StatusCompleted, domain.GatewayResponse{UTR: "UTR123"})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, domain.StatusCompleted, settled.Status)
	require.NotNil(t, settled.Balance)
	assert.True(t, dec("488.10").Equal(settled.Balance.After))

	fd, err := h.ledger.GetFinancialDetail(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, dec("488.10").Equal(fd.Wallet), "wallet = %s", fd.Wallet)
	assert.Len(t, h.notifier.Notified(), 1)
}

func TestSubmit_ConcurrentDuplicateReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.svc.Submit(ctx, payinRequest("DUP-1", "250"))
		}(i)
	}
	wg.Wait()

	var accepted, duplicates int
	for _, err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrDuplicateReference):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, duplicates)

	jobs, err := h.queue.ListByState(ctx, queue.StateWaiting, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestSubmit_DuplicateAfterCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, payinRequest("ONCE", "100"))
	require.NoError(t, err)
	_, _, err = h.svc.Settle(ctx, "ONCE", domain.StatusCompleted, domain.GatewayResponse{})
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, payinRequest("ONCE", "100"))
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		req     func() IntakeRequest
		wantErr error
	}{
		{
			name: "zero amount",
			req: func() IntakeRequest {
				r := payinRequest("R-1", "0")
				return r
			},
			wantErr: domain.ErrValidationAmountInvalid,
		},
		{
			name: "three decimal places",
			req: func() IntakeRequest {
				return payinRequest("R-2", "10.005")
			},
			wantErr: domain.ErrValidationAmountInvalid,
		},
		{
			name: "malformed reference",
			req: func() IntakeRequest {
				return payinRequest("bad ref!", "10")
			},
			wantErr: domain.ErrValidationReference,
		},
		{
			name: "missing merchant id",
			req: func() IntakeRequest {
				r := payinRequest("R-3", "10")
				r.MerchantID = ""
				return r
			},
			wantErr: domain.ErrValidationMissingField,
		},
		{
			name: "payout without beneficiary",
			req: func() IntakeRequest {
				r := payoutRequest("R-4", "10")
				r.Party = nil
				return r
			},
			wantErr: domain.ErrValidationMissingField,
		},
		{
			name: "payout with malformed IFSC",
			req: func() IntakeRequest {
				r := payoutRequest("R-5", "10")
				r.Party.IFSC = "HDFC1234"
				return r
			},
			wantErr: domain.ErrValidationFailed,
		},
		{
			name: "unknown merchant",
			req: func() IntakeRequest {
				r := payinRequest("R-6", "10")
				r.MerchantID = "nobody"
				return r
			},
			wantErr: domain.ErrMerchantNotFound,
		},
		{
			name: "inactive merchant",
			setup: func(h *harness) {
				h.merchants.AddMerchant(fixtures.NewMerchant().Inactive().Build(), fixtures.Brackets())
			},
			req:     func() IntakeRequest { return payinRequest("R-7", "10") },
			wantErr: domain.ErrMerchantInactive,
		},
		{
			name: "client IP not whitelisted",
			setup: func(h *harness) {
				h.merchants.AddMerchant(fixtures.NewMerchant().WithWhitelist("10.0.0.0/8").Build(), fixtures.Brackets())
			},
			req:     func() IntakeRequest { return payinRequest("R-8", "10") },
			wantErr: domain.ErrIPNotWhitelisted,
		},
		{
			name: "no provider configured",
			setup: func(h *harness) {
				h.merchants.AddMerchant(fixtures.NewMerchant().WithProviders("", "impsbank").Build(), fixtures.Brackets())
			},
			req:     func() IntakeRequest { return payinRequest("R-9", "10") },
			wantErr: domain.ErrNoActiveProvider,
		},
		{
			name: "provider cannot carry the type",
			setup: func(h *harness) {
				h.merchants.AddMerchant(fixtures.NewMerchant().WithProviders("impsbank", "impsbank").Build(), fixtures.Brackets())
			},
			req:     func() IntakeRequest { return payinRequest("R-10", "10") },
			wantErr: domain.ErrNoActiveProvider,
		},
		{
			name:    "amount outside every bracket",
			req:     func() IntakeRequest { return payinRequest("R-11", "500000") },
			wantErr: domain.ErrNoBracketMatch,
		},
		{
			name:    "payout exceeding settlement",
			req:     func() IntakeRequest { return payoutRequest("R-12", "5000") },
			wantErr: domain.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}
			req := tt.req()

			res, err := h.svc.Submit(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)

			// Nothing persisted, nothing queued
			_, err = h.records.Get(context.Background(), req.ReferenceID)
			assert.ErrorIs(t, err, domain.ErrTxnNotFound)
			_, err = h.ledger.GetByReference(context.Background(), req.ReferenceID)
			assert.ErrorIs(t, err, domain.ErrTxnNotFound)
			_, err = h.queue.Get(context.Background(), queue.KindDispatch, req.ReferenceID)
			assert.ErrorIs(t, err, queue.ErrJobNotFound)
		})
	}
}

func TestSubmit_ChargesConsumingAmountRejected(t *testing.T) {
	flat := []domain.ChargeBracket{{
		ID:          "b-flat",
		StartAmount: decimal.NewFromInt(1),
		EndAmount:   decimal.NewFromInt(1000),
		AdminRate:   decimal.NewFromInt(600),
		AgentRate:   decimal.NewFromInt(50),
		RateType:    domain.RateTypeFixed,
	}}

	tests := []struct {
		name     string
		req      IntakeRequest
		platform bool
	}{
		{name: "payin net negative", req: payinRequest("NEG-IN", "500"), platform: true},
		{name: "payin net zero", req: payinRequest("ZERO-IN", "600")},
		{name: "payout net negative", req: payoutRequest("NEG-OUT", "500"), platform: true},
		{name: "payout net zero", req: payoutRequest("ZERO-OUT", "600")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.merchants.AddMerchant(fixtures.NewMerchant().Build(), flat)
			if !tt.platform {
				h.merchants.SetPlatformFee(nil)
			}
			before, err := h.ledger.GetFinancialDetail(ctx, "M1")
			require.NoError(t, err)

			res, err := h.svc.Submit(ctx, tt.req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, domain.ErrChargesExceedAmount)
			assert.True(t, domain.IsConfigurationError(err))

			_, err = h.records.Get(ctx, tt.req.ReferenceID)
			assert.ErrorIs(t, err, domain.ErrTxnNotFound)
			_, err = h.ledger.GetByReference(ctx, tt.req.ReferenceID)
			assert.ErrorIs(t, err, domain.ErrTxnNotFound)
			_, err = h.queue.Get(ctx, queue.KindDispatch, tt.req.ReferenceID)
			assert.ErrorIs(t, err, queue.ErrJobNotFound)

			after, err := h.ledger.GetFinancialDetail(ctx, "M1")
			require.NoError(t, err)
			assert.True(t, before.Wallet.Equal(after.Wallet))
			assert.True(t, before.Settlement.Equal(after.Settlement))
		})
	}
}

func TestSubmit_PayoutReservesSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Submit(ctx, payoutRequest("PO-1", "1000"))
	require.NoError(t, err)
	assert.True(t, dec("23.80").Equal(res.Charges.TotalCharges))

	fd, err := h.ledger.GetFinancialDetail(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, dec("3976.20").Equal(fd.Settlement), "settlement = %s", fd.Settlement)

	doc, err := h.records.Get(ctx, "PO-1")
	require.NoError(t, err)
	require.NotNil(t, doc.Beneficiary)
	assert.Equal(t, "HDFC0001234", doc.Beneficiary.IFSC)
	require.NotNil(t, doc.Balance, "reservation snapshot is copied to the record")
	assert.True(t, dec("5000").Equal(doc.Balance.Before))
}

type failingLedger struct {
	*mocks.Ledger
	createErr error
}

func (l *failingLedger) CreatePending(ctx context.Context, txn *domain.Transaction, reserve *domain.LedgerDelta) error {
	if l.createErr != nil {
		return l.createErr
	}
	return l.Ledger.CreatePending(ctx, txn, reserve)
}

func TestSubmit_LedgerFailureAbandonsRecord(t *testing.T) {
	ledger := &failingLedger{createErr: errors.New("connection reset")}
	h := newHarness(t, func(d *Dependencies) {
		ledger.Ledger = d.Ledger.(*mocks.Ledger)
		d.Ledger = ledger
	})
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, payinRequest("FLAKY-1", "100"))
	require.Error(t, err)

	_, err = h.records.Get(ctx, "FLAKY-1")
	assert.ErrorIs(t, err, domain.ErrTxnNotFound, "abandoned record must be removed")
	_, err = h.queue.Get(ctx, queue.KindDispatch, "FLAKY-1")
	assert.ErrorIs(t, err, queue.ErrJobNotFound)

	// The same reference can be resubmitted once the ledger recovers
	ledger.createErr = nil
	res, err := h.svc.Submit(ctx, payinRequest("FLAKY-1", "100"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.Status)
}

func TestSubmit_SecondPayoutRejectedAfterReservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ledger.SetBalances("M1", decimal.Zero, decimal.NewFromInt(1100))

	_, err := h.svc.Submit(ctx, payoutRequest("PO-A", "1000"))
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, payoutRequest("PO-B", "1000"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	fd, err := h.ledger.GetFinancialDetail(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, dec("76.20").Equal(fd.Settlement), "settlement = %s", fd.Settlement)
}
