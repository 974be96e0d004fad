package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/handlers/response"
	"github.com/kevin07696/payment-gateway/internal/services/payment"
	"github.com/kevin07696/payment-gateway/internal/testutil/fixtures"
	"github.com/kevin07696/payment-gateway/pkg/resilience"
)

// MockTransactionService mocks TransactionService
type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) Submit(ctx context.Context, req payment.IntakeRequest) (*payment.IntakeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.IntakeResult), args.Error(1)
}

func (m *MockTransactionService) Status(ctx context.Context, referenceID string) (*payment.StatusView, error) {
	args := m.Called(ctx, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.StatusView), args.Error(1)
}

func newTestRouter(t *testing.T, svc *MockTransactionService, cfg HandlerConfig) http.Handler {
	t.Helper()
	cfg.Timeouts = resilience.TestTimeoutConfig()
	h := NewTransactionHandler(svc, cfg, zaptest.NewLogger(t))

	r := chi.NewRouter()
	r.Post("/api/v1/payins", h.CreatePayin)
	r.Post("/api/v1/payouts", h.CreatePayout)
	r.Get("/api/v1/transactions/{reference_id}", h.GetTransaction)
	return r
}

func doRequest(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.10:5555"
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreatePayin_Accepted(t *testing.T) {
	svc := new(MockTransactionService)
	router := newTestRouter(t, svc, HandlerConfig{})

	txn := fixtures.NewTransaction().WithReference("ORDER-1").Build()
	svc.On("Submit", mock.Anything, mock.MatchedBy(func(req payment.IntakeRequest) bool {
		return req.Type == domain.TransactionTypePayin &&
			req.MerchantID == "M1" &&
			req.ReferenceID == "ORDER-1" &&
			req.Amount.Equal(decimal.NewFromInt(500)) &&
			req.ClientIP == "203.0.113.10" &&
			req.Party != nil && req.Party.VPA == "asha@upi"
	})).Return(&payment.IntakeResult{
		ReferenceID:   "ORDER-1",
		TransactionID: txn.ID,
		Status:        domain.StatusPending,
		Charges:       txn.Charges,
	}, nil)

	rec := doRequest(router, http.MethodPost, "/api/v1/payins",
		`{"merchant_id":"M1","amount":"500.00","reference_id":"ORDER-1","payer":{"name":"Asha","vpa":"asha@upi"},"client_ip":"10.9.9.9"}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, "ORDER-1", body["reference_id"])
	assert.Equal(t, txn.ID, body["transaction_id"])
	assert.Equal(t, "pending", body["status"])
	charges, ok := body["charges"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "488.1", charges["net_amount"])

	svc.AssertExpectations(t)
}

func TestCreatePayout_UsesBeneficiary(t *testing.T) {
	svc := new(MockTransactionService)
	router := newTestRouter(t, svc, HandlerConfig{TrustBodyClientIP: true})

	svc.On("Submit", mock.Anything, mock.MatchedBy(func(req payment.IntakeRequest) bool {
		return req.Type == domain.TransactionTypePayout &&
			req.Party != nil && req.Party.AccountNumber == "001122334455" &&
			req.ClientIP == "10.9.9.9"
	})).Return(&payment.IntakeResult{ReferenceID: "PO-1", Status: domain.StatusPending}, nil)

	rec := doRequest(router, http.MethodPost, "/api/v1/payouts",
		`{"merchant_id":"M1","amount":1000,"reference_id":"PO-1","beneficiary":{"name":"Ravi","account_number":"001122334455","ifsc":"HDFC0001234"},"client_ip":"10.9.9.9"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestCreatePayin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"validation", domain.ErrValidationAmountInvalid, http.StatusBadRequest, "VALIDATION_AMOUNT_INVALID"},
		{"duplicate", domain.ErrDuplicateReference, http.StatusConflict, "DUPLICATE_REFERENCE"},
		{"no bracket", domain.ErrNoBracketMatch, http.StatusUnprocessableEntity, "NO_BRACKET_MATCH"},
		{"charges exceed amount", domain.ErrChargesExceedAmount, http.StatusUnprocessableEntity, "CHARGES_EXCEED_AMOUNT"},
		{"merchant inactive", domain.ErrMerchantInactive, http.StatusBadRequest, "MERCHANT_INACTIVE"},
		{"store failure", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockTransactionService)
			router := newTestRouter(t, svc, HandlerConfig{})
			svc.On("Submit", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := doRequest(router, http.MethodPost, "/api/v1/payins", `{"merchant_id":"M1","amount":"10","reference_id":"R-1"}`)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body response.ErrorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantBody, body.Error.Code)
		})
	}
}

func TestCreatePayin_MalformedBody(t *testing.T) {
	svc := new(MockTransactionService)
	router := newTestRouter(t, svc, HandlerConfig{})

	rec := doRequest(router, http.MethodPost, "/api/v1/payins", `{"amount":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestGetTransaction(t *testing.T) {
	svc := new(MockTransactionService)
	router := newTestRouter(t, svc, HandlerConfig{})

	txn := fixtures.NewTransaction().WithReference("ORDER-9").WithStatus(domain.StatusQRGenerated).Build()
	svc.On("Status", mock.Anything, "ORDER-9").Return(&payment.StatusView{
		Transaction:  txn,
		LedgerStatus: domain.StatusPending,
		Consistency:  payment.ConsistencyLedgerBehind,
	}, nil)
	svc.On("Status", mock.Anything, "missing").Return(nil, domain.ErrTxnNotFound)

	rec := doRequest(router, http.MethodGet, "/api/v1/transactions/ORDER-9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, "ledger_behind", view["consistency"])
	assert.Equal(t, "pending", view["ledger_status"])

	rec = doRequest(router, http.MethodGet, "/api/v1/transactions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
