package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/testutil/fixtures"
	"github.com/kevin07696/payment-gateway/internal/testutil/mocks"
	"github.com/kevin07696/payment-gateway/pkg/resilience"
)

func newTestNotifier(t *testing.T, callbackURL string) (*Notifier, *mocks.WebhookStore) {
	t.Helper()
	merchants := mocks.NewMerchantDirectory()
	merchants.AddMerchant(fixtures.NewMerchant().WithCallbackURL(callbackURL).Build(), fixtures.Brackets())
	store := mocks.NewWebhookStore()

	n := NewNotifier(merchants, store, http.DefaultClient, nil, Config{
		Timeouts:    resilience.TestTimeoutConfig(),
		Backoff:     &resilience.FixedBackoff{Delay: time.Millisecond},
		MaxAttempts: 3,
	}, zaptest.NewLogger(t))
	return n, store
}

func completedTxn() *domain.Transaction {
	return fixtures.NewTransaction().WithReference("REF-WH-1").WithStatus(domain.StatusCompleted).Build()
}

func TestNotifier_DeliversSignedEventAfterRetry(t *testing.T) {
	var calls atomic.Int32
	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		assert.Equal(t, "payin.completed", r.Header.Get(EventHeader))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n, store := newTestNotifier(t, server.URL)
	delivery, err := n.Deliver(context.Background(), completedTxn())
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, domain.WebhookSuccess, delivery.Status)
	assert.Equal(t, 2, delivery.Attempts)
	assert.Equal(t, http.StatusOK, delivery.HTTPStatus)
	require.NotNil(t, delivery.DeliveredAt)

	assert.Equal(t, Sign(gotBody, "whsec_test"), gotSignature)

	var event domain.WebhookEvent
	require.NoError(t, json.Unmarshal(gotBody, &event))
	assert.Equal(t, "REF-WH-1", event.ReferenceID)
	assert.Equal(t, domain.StatusCompleted, event.Status)
	assert.Equal(t, "488.1", event.NetAmount.String())

	recorded, err := store.ListDeliveries(context.Background(), "REF-WH-1")
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, domain.WebhookSuccess, recorded[0].Status)
}

func TestNotifier_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n, store := newTestNotifier(t, server.URL)
	delivery, err := n.Deliver(context.Background(), completedTxn())

	assert.ErrorIs(t, err, domain.ErrWebhookDeliveryFailure)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, domain.WebhookFailed, delivery.Status)
	assert.Equal(t, 3, delivery.Attempts)

	recorded, _ := store.ListDeliveries(context.Background(), "REF-WH-1")
	require.Len(t, recorded, 1)
	assert.Equal(t, domain.WebhookFailed, recorded[0].Status)
	assert.Contains(t, recorded[0].LastError, "HTTP 500")
}

func TestNotifier_SkipsMerchantWithoutCallbackURL(t *testing.T) {
	n, store := newTestNotifier(t, "")
	delivery, err := n.Deliver(context.Background(), completedTxn())
	require.NoError(t, err)
	assert.Nil(t, delivery)

	recorded, _ := store.ListDeliveries(context.Background(), "REF-WH-1")
	assert.Empty(t, recorded)
}

func TestNotifier_NotifyIsAsyncAndDrains(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n, _ := newTestNotifier(t, server.URL)
	n.Notify(completedTxn())
	assert.Equal(t, int32(0), calls.Load(), "Notify must not block on delivery")

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, n.Drain(ctx))
	assert.Equal(t, int32(1), calls.Load())
}
