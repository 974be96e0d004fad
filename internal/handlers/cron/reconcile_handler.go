package cron

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/handlers/response"
	"github.com/kevin07696/payment-gateway/internal/services/reconcile"
	"github.com/kevin07696/payment-gateway/pkg/resilience"
	"github.com/kevin07696/payment-gateway/pkg/timeutil"
)

// SecretHeader carries the shared cron secret
const SecretHeader = "X-Cron-Secret"

// Sweeper runs one reconciliation sweep
type Sweeper interface {
	Sweep(ctx context.Context) (*reconcile.SweepReport, error)
}

// ReconcileHandler handles the cron-triggered reconciliation sweep
type ReconcileHandler struct {
	sweeper    Sweeper
	timeouts   *resilience.TimeoutConfig
	logger     *zap.Logger
	cronSecret string // Secret token for authenticating cron requests
}

// NewReconcileHandler creates a new reconciliation cron handler
func NewReconcileHandler(
	sweeper Sweeper,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
	cronSecret string,
) *ReconcileHandler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &ReconcileHandler{
		sweeper:    sweeper,
		timeouts:   timeouts,
		logger:     logger,
		cronSecret: cronSecret,
	}
}

// SweepResponse represents the response from a reconciliation sweep
type SweepResponse struct {
	*reconcile.SweepReport
	Success     bool   `json:"success"`
	ProcessedAt string `json:"processed_at"`
}

// Reconcile handles the POST /cron/reconcile endpoint
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Reconciliation cron job triggered",
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr),
	)

	if r.Method != http.MethodPost {
		response.Fail(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST method is allowed")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		response.Fail(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	// Detached from the request so a scheduler disconnect does not cut the sweep short
	ctx, cancel := h.timeouts.CronContext(context.WithoutCancel(r.Context()))
	defer cancel()

	report, err := h.sweeper.Sweep(ctx)
	if err != nil {
		h.logger.Error("Reconciliation sweep failed", zap.Error(err))
		if report == nil {
			response.Error(w, h.logger, err)
			return
		}
		// Partial sweep: report what was done
		response.JSON(w, http.StatusInternalServerError, SweepResponse{
			SweepReport: report,
			ProcessedAt: timeutil.Now().Format(time.RFC3339),
		})
		return
	}

	response.JSON(w, http.StatusOK, SweepResponse{
		SweepReport: report,
		Success:     true,
		ProcessedAt: timeutil.Now().Format(time.RFC3339),
	})
}

func (h *ReconcileHandler) authenticateRequest(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	secret := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(secret), []byte(h.cronSecret)) == 1
}
