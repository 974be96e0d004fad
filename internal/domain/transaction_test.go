package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from     TransactionStatus
		to       TransactionStatus
		expected bool
	}{
		{StatusPending, StatusQRGenerated, true},
		{StatusPending, StatusInitiated, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, true},
		{StatusQRGenerated, StatusCompleted, true},
		{StatusQRGenerated, StatusFailed, true},
		{StatusInitiated, StatusCompleted, true},
		{StatusQRGenerated, StatusPending, false},
		{StatusInitiated, StatusQRGenerated, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatusesHaveNoSuccessors(t *testing.T) {
	for _, terminal := range []TransactionStatus{StatusCompleted, StatusFailed} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []TransactionStatus{StatusPending, StatusQRGenerated, StatusInitiated, StatusCompleted, StatusFailed} {
			assert.False(t, CanTransition(terminal, next), "%s -> %s", terminal, next)
		}
	}
}

func TestPredecessors(t *testing.T) {
	assert.ElementsMatch(t, []TransactionStatus{StatusPending, StatusQRGenerated, StatusInitiated}, Predecessors(StatusCompleted))
	assert.ElementsMatch(t, []TransactionStatus{StatusPending}, Predecessors(StatusQRGenerated))
	assert.Empty(t, Predecessors(StatusPending))
}

func TestDispatchedStatus(t *testing.T) {
	assert.Equal(t, StatusQRGenerated, DispatchedStatus(TransactionTypePayin, true))
	assert.Equal(t, StatusInitiated, DispatchedStatus(TransactionTypePayin, false))
	assert.Equal(t, StatusInitiated, DispatchedStatus(TransactionTypePayout, true))
}

func newCharges() ChargeBreakdown {
	return ChargeBreakdown{
		AdminCharge:  decimal.RequireFromString("10.00"),
		AgentCharge:  decimal.RequireFromString("5.00"),
		PlatformFee:  decimal.RequireFromString("0.10"),
		GSTAmount:    decimal.RequireFromString("1.80"),
		TotalCharges: decimal.RequireFromString("11.90"),
		NetAmount:    decimal.RequireFromString("488.10"),
	}
}

func TestTransaction_CompletionDelta(t *testing.T) {
	payin := &Transaction{
		ReferenceID: "REF-PAYIN-1",
		MerchantID:  "m-1",
		Type:        TransactionTypePayin,
		Amount:      decimal.RequireFromString("500"),
		Charges:     newCharges(),
	}
	payout := &Transaction{
		ReferenceID: "REF-PAYOUT-1",
		MerchantID:  "m-1",
		Type:        TransactionTypePayout,
		Amount:      decimal.RequireFromString("500"),
		Charges:     newCharges(),
	}

	t.Run("payin_completed_credits_wallet_net", func(t *testing.T) {
		delta := payin.CompletionDelta(StatusCompleted)
		require.NotNil(t, delta)
		assert.Equal(t, AccountWallet, delta.Account)
		assert.Equal(t, EntryPayinCredit, delta.EntryType)
		assert.True(t, delta.Amount.Equal(decimal.RequireFromString("488.10")))
	})

	t.Run("payin_failed_moves_nothing", func(t *testing.T) {
		assert.Nil(t, payin.CompletionDelta(StatusFailed))
	})

	t.Run("payout_failed_restores_reservation", func(t *testing.T) {
		delta := payout.CompletionDelta(StatusFailed)
		require.NotNil(t, delta)
		assert.Equal(t, AccountSettlement, delta.Account)
		assert.True(t, delta.Amount.Equal(decimal.RequireFromString("511.90")))
		assert.True(t, delta.Amount.Add(payout.ReservationDelta().Amount).IsZero())
	})

	t.Run("payout_completed_moves_nothing", func(t *testing.T) {
		assert.Nil(t, payout.CompletionDelta(StatusCompleted))
	})

	t.Run("payin_has_no_reservation", func(t *testing.T) {
		assert.Nil(t, payin.ReservationDelta())
	})
}
