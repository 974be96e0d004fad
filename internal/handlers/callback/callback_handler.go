// Package callback receives asynchronous provider results.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/handlers/response"
	"github.com/kevin07696/payment-gateway/internal/services/reconcile"
	"github.com/kevin07696/payment-gateway/pkg/resilience"
)

const maxCallbackBody = 64 << 10

// Reconciler applies one provider callback
type Reconciler interface {
	HandleCallback(ctx context.Context, cb reconcile.Callback) (*reconcile.Outcome, error)
}

// Handler serves GET|POST /api/v1/callbacks/{provider}. Source verification
// happens in middleware.CallbackAuth before this handler runs.
type Handler struct {
	reconciler Reconciler
	timeouts   *resilience.TimeoutConfig
	logger     *zap.Logger
}

// NewHandler creates a provider callback handler
func NewHandler(reconciler Reconciler, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *Handler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Handler{
		reconciler: reconciler,
		timeouts:   timeouts,
		logger:     logger,
	}
}

// payload is the callback shape shared by the query string, form and JSON
// encodings
type payload struct {
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	ReferenceID   string           `json:"reference_id"`
	TransactionID string           `json:"txn_id"`
	StatusCode    string           `json:"status_code"`
	UTR           string           `json:"utr"`
	Message       string           `json:"message"`
}

// Ack is the body returned to the provider
type Ack struct {
	ReferenceID string                   `json:"reference_id"`
	Status      domain.TransactionStatus `json:"status"`
	Applied     bool                     `json:"applied"`
}

// HandleCallback parses the provider result and hands it to the reconciler.
// Any 5xx tells the provider to retry later.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	p, raw, err := parse(r)
	if err != nil {
		h.logger.Warn("Malformed provider callback",
			zap.String("provider", provider),
			zap.Error(err),
		)
		response.Error(w, h.logger, domain.Validationf("malformed callback: %v", err))
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	outcome, err := h.reconciler.HandleCallback(ctx, reconcile.Callback{
		Provider:      provider,
		ReferenceID:   p.ReferenceID,
		TransactionID: p.TransactionID,
		StatusCode:    p.StatusCode,
		UTR:           p.UTR,
		Message:       p.Message,
		Amount:        p.Amount,
		Raw:           raw,
	})
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}

	response.JSON(w, http.StatusOK, Ack{
		ReferenceID: outcome.Transaction.ReferenceID,
		Status:      outcome.Status,
		Applied:     outcome.Applied,
	})
}

func parse(r *http.Request) (*payload, string, error) {
	if r.Method == http.MethodGet {
		p, err := fromValues(r.URL.Query())
		return p, r.URL.RawQuery, err
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		return nil, "", err
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, "", err
		}
		p, err := fromValues(values)
		return p, string(body), err
	}

	var p payload
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&p); err != nil {
		return nil, "", err
	}
	if p.TransactionID == "" {
		// Some providers send the long name
		var alt struct {
			TransactionID string `json:"transaction_id"`
		}
		_ = json.Unmarshal(body, &alt)
		p.TransactionID = alt.TransactionID
	}
	return &p, string(body), nil
}

func fromValues(v url.Values) (*payload, error) {
	p := &payload{
		ReferenceID:   v.Get("reference_id"),
		TransactionID: firstNonEmpty(v.Get("txn_id"), v.Get("transaction_id")),
		StatusCode:    v.Get("status_code"),
		UTR:           v.Get("utr"),
		Message:       v.Get("message"),
	}
	if s := strings.TrimSpace(v.Get("amount")); s != "" {
		amount, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		p.Amount = &amount
	}
	return p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
