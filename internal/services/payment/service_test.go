package payment

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/payment-gateway/internal/adapters/provider"
	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/queue"
	"github.com/kevin07696/payment-gateway/internal/testutil/fixtures"
	"github.com/kevin07696/payment-gateway/internal/testutil/mocks"
	"github.com/kevin07696/payment-gateway/pkg/resilience"
	"github.com/kevin07696/payment-gateway/pkg/security"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	calls  int
	result func(txn *domain.Transaction) provider.Result
}

func (d *fakeDispatcher) Dispatch(_ context.Context, txn *domain.Transaction) provider.Result {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return d.result(txn)
}

func (d *fakeDispatcher) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingNotifier struct {
	mu   sync.Mutex
	txns []*domain.Transaction
}

func (n *recordingNotifier) Notify(txn *domain.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	copied := *txn
	n.txns = append(n.txns, &copied)
}

func (n *recordingNotifier) Notified() []*domain.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*domain.Transaction(nil), n.txns...)
}

type harness struct {
	svc        *Service
	merchants  *mocks.MerchantDirectory
	ledger     *mocks.Ledger
	records    *mocks.RecordStore
	deliveries *mocks.WebhookStore
	queue      *queue.MemoryQueue
	pool       *queue.Pool
	dispatcher *fakeDispatcher
	notifier   *recordingNotifier
}

func qrAccepted(txn *domain.Transaction) provider.Result {
	return provider.Result{
		Status:            provider.StatusSuccess,
		Code:              "00",
		Message:           "QR generated",
		ProviderReference: "UPQ-" + txn.ReferenceID,
		QRPayload:         "upi://pay?pa=merchant@upi",
	}
}

func newHarness(t *testing.T, opts ...func(*Dependencies)) *harness {
	t.Helper()

	merchants := mocks.NewMerchantDirectory()
	merchants.AddMerchant(fixtures.NewMerchant().Build(), fixtures.Brackets())
	merchants.SetPlatformFee(fixtures.PlatformFee())

	ledger := mocks.NewLedger()
	ledger.SetBalances("M1", decimal.Zero, decimal.NewFromInt(5000))

	pLogger := security.NewRedactingLogger(zap.NewNop())
	registry := provider.NewRegistry(
		provider.NewUPIQR(provider.Config{}, http.DefaultClient, pLogger),
		provider.NewIMPSBank(provider.Config{}, http.DefaultClient, pLogger),
	)

	h := &harness{
		merchants:  merchants,
		ledger:     ledger,
		records:    mocks.NewRecordStore(),
		deliveries: mocks.NewWebhookStore(),
		queue:      queue.NewMemoryQueue(),
		dispatcher: &fakeDispatcher{result: qrAccepted},
		notifier:   &recordingNotifier{},
	}
	deps := Dependencies{
		Merchants:  h.merchants,
		Ledger:     h.ledger,
		Records:    h.records,
		Deliveries: h.deliveries,
		Queue:      h.queue,
		Providers:  registry,
		Dispatcher: h.dispatcher,
		Notifier:   h.notifier,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = NewService(deps, Config{MaxAttempts: 3, PersistTimeout: time.Second}, zaptest.NewLogger(t))

	h.pool = queue.NewPool(h.queue, queue.PoolConfig{
		Timeouts:     resilience.TestTimeoutConfig(),
		Backoff:      &resilience.FixedBackoff{Delay: 0},
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
	}, zaptest.NewLogger(t))
	h.svc.RegisterJobs(h.pool)
	return h
}

// runJobs processes queued jobs until none are ready
func (h *harness) runJobs(t *testing.T) int {
	t.Helper()
	n := 0
	for {
		processed, err := h.pool.ProcessNext(context.Background(), h.pool.WorkerID(0))
		require.NoError(t, err)
		if !processed {
			return n
		}
		n++
	}
}

func payinRequest(ref string, amount string) IntakeRequest {
	return IntakeRequest{
		Type:        domain.TransactionTypePayin,
		MerchantID:  "M1",
		ReferenceID: ref,
		Amount:      decimal.RequireFromString(amount),
		ClientIP:    "203.0.113.10",
		Party:       &domain.Party{Name: "Asha", VPA: "asha@upi"},
	}
}

func payoutRequest(ref string, amount string) IntakeRequest {
	return IntakeRequest{
		Type:        domain.TransactionTypePayout,
		MerchantID:  "M1",
		ReferenceID: ref,
		Amount:      decimal.RequireFromString(amount),
		ClientIP:    "203.0.113.10",
		Party:       &domain.Party{Name: "Ravi", AccountNumber: "001122334455", IFSC: "hdfc0001234"},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
