// Package webhook delivers terminal transaction notifications to merchants.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	adapterports "github.com/kevin07696/payment-gateway/internal/adapters/ports"
	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/domain/ports"
	"github.com/kevin07696/payment-gateway/pkg/observability"
	"github.com/kevin07696/payment-gateway/pkg/resilience"
	"github.com/kevin07696/payment-gateway/pkg/resourcemgmt"
	"github.com/kevin07696/payment-gateway/pkg/timeutil"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event-Type"
	TimestampHeader = "X-Webhook-Timestamp"
)

// Config bounds delivery attempts
type Config struct {
	Timeouts    *resilience.TimeoutConfig
	Backoff     resilience.BackoffStrategy
	MaxAttempts int
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Timeouts:    resilience.DefaultTimeoutConfig(),
		Backoff:     resilience.WebhookBackoff(),
		MaxAttempts: 3,
	}
}

// Notifier posts signed webhook events to the merchant's callback URL. A
// delivery failure is logged and recorded; it never affects the transaction.
type Notifier struct {
	merchants  ports.MerchantDirectory
	deliveries ports.WebhookDeliveryStore
	httpClient adapterports.HTTPClient
	tracker    *resourcemgmt.GoroutineTracker
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewNotifier creates a webhook notifier
func NewNotifier(
	merchants ports.MerchantDirectory,
	deliveries ports.WebhookDeliveryStore,
	httpClient adapterports.HTTPClient,
	tracker *resourcemgmt.GoroutineTracker,
	cfg Config,
	logger *zap.Logger,
) *Notifier {
	defaults := DefaultConfig()
	if cfg.Timeouts == nil {
		cfg.Timeouts = defaults.Timeouts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = defaults.Backoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if tracker == nil {
		tracker = resourcemgmt.NewGoroutineTracker(logger, nil)
	}

	return &Notifier{
		merchants:  merchants,
		deliveries: deliveries,
		httpClient: httpClient,
		tracker:    tracker,
		cfg:        cfg,
		logger:     logger,
		now:        timeutil.Now,
	}
}

// Notify delivers in the background. Drain waits for pending deliveries.
func (n *Notifier) Notify(txn *domain.Transaction) {
	snapshot := *txn
	n.tracker.Go("webhook_delivery", func() {
		if _, err := n.Deliver(context.Background(), &snapshot); err != nil {
			n.logger.Warn("Merchant webhook not delivered",
				zap.String("reference_id", snapshot.ReferenceID),
				zap.Error(err),
			)
		}
	})
}

// Drain waits for in-flight deliveries or ctx
func (n *Notifier) Drain(ctx context.Context) error {
	return n.tracker.Drain(ctx)
}

// Deliver posts the event for txn with bounded attempts. It returns nil, nil
// when the merchant has no callback URL.
func (n *Notifier) Deliver(ctx context.Context, txn *domain.Transaction) (*domain.WebhookDelivery, error) {
	merchant, err := n.merchants.GetMerchant(ctx, txn.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("load merchant: %w", err)
	}
	if merchant.CallbackURL == "" {
		n.logger.Debug("Merchant has no callback URL, skipping webhook",
			zap.String("merchant_id", merchant.ID),
			zap.String("reference_id", txn.ReferenceID),
		)
		return nil, nil
	}

	event := domain.NewWebhookEvent(txn, n.now())
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook event: %w", err)
	}

	delivery := &domain.WebhookDelivery{
		ReferenceID: txn.ReferenceID,
		MerchantID:  merchant.ID,
		URL:         merchant.CallbackURL,
		Payload:     payload,
		Status:      domain.WebhookPending,
	}
	if err := n.deliveries.CreateDelivery(ctx, delivery); err != nil {
		// Still attempt delivery; the record is for audit only
		n.logger.Warn("Failed to record webhook delivery", zap.Error(err))
	}

	start := n.now()
	for attempt := 0; attempt < n.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, n.cfg.Backoff.NextDelay(attempt-1)); err != nil {
				delivery.LastError = err.Error()
				break
			}
		}

		delivery.Attempts = attempt + 1
		status, err := n.post(ctx, merchant, event, payload)
		delivery.HTTPStatus = status
		if err == nil {
			delivered := n.now()
			delivery.Status = domain.WebhookSuccess
			delivery.DeliveredAt = &delivered
			delivery.LastError = ""
			n.update(ctx, delivery)
			observability.RecordWebhookDelivery(string(domain.WebhookSuccess), n.now().Sub(start))

			n.logger.Info("Merchant webhook delivered",
				zap.String("reference_id", txn.ReferenceID),
				zap.String("event", event.Event),
				zap.Int("attempts", delivery.Attempts),
				zap.Int("http_status", status),
			)
			return delivery, nil
		}

		delivery.LastError = err.Error()
		n.logger.Warn("Merchant webhook attempt failed",
			zap.String("reference_id", txn.ReferenceID),
			zap.Int("attempt", attempt+1),
			zap.Int("http_status", status),
			zap.Error(err),
		)
	}

	delivery.Status = domain.WebhookFailed
	n.update(ctx, delivery)
	observability.RecordWebhookDelivery(string(domain.WebhookFailed), n.now().Sub(start))

	return delivery, domain.WrapError(domain.ErrorCodeWebhookDeliveryFailed, "merchant webhook delivery failed", errors.New(delivery.LastError)).
		WithDetail("reference_id", txn.ReferenceID).
		WithDetail("attempts", delivery.Attempts)
}

func (n *Notifier) post(ctx context.Context, merchant *domain.Merchant, event domain.WebhookEvent, payload []byte) (int, error) {
	attemptCtx, cancel := n.cfg.Timeouts.WebhookContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, merchant.CallbackURL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event.Event)
	req.Header.Set(TimestampHeader, strconv.FormatInt(event.Timestamp.Unix(), 10))
	if merchant.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, merchant.WebhookSecret))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
}

func (n *Notifier) update(ctx context.Context, delivery *domain.WebhookDelivery) {
	if delivery.ID == "" {
		return
	}
	if err := n.deliveries.UpdateDelivery(ctx, delivery); err != nil {
		n.logger.Warn("Failed to update webhook delivery record",
			zap.String("delivery_id", delivery.ID),
			zap.Error(err),
		)
	}
}

// Sign returns the hex HMAC-SHA256 of payload under secret
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
