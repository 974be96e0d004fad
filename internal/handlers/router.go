// Package handlers assembles the HTTP surface of the gateway.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kevin07696/payment-gateway/internal/handlers/callback"
	"github.com/kevin07696/payment-gateway/internal/handlers/cron"
	"github.com/kevin07696/payment-gateway/internal/handlers/payment"
	"github.com/kevin07696/payment-gateway/internal/handlers/response"
	"github.com/kevin07696/payment-gateway/pkg/observability"
)

// Middleware wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// RouterConfig holds the handlers and middleware the router mounts. Nil
// middleware is skipped.
type RouterConfig struct {
	Transactions    *payment.TransactionHandler
	Callbacks       *callback.Handler
	Cron            *cron.ReconcileHandler
	Health          *observability.HealthChecker
	IntakeLimiter   Middleware
	CallbackAuth    Middleware
	SecurityHeaders Middleware
	AllowedOrigins  []string
}

// NewRouter builds the chi router for the API server
func NewRouter(cfg RouterConfig) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(observability.HTTPMetrics)
	if cfg.SecurityHeaders != nil {
		router.Use(cfg.SecurityHeaders)
	}
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Fail(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Fail(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	router.Route("/api/v1", func(r chi.Router) {
		if cfg.Transactions != nil {
			r.Group(func(r chi.Router) {
				if cfg.IntakeLimiter != nil {
					r.Use(cfg.IntakeLimiter)
				}
				r.Post("/payins", cfg.Transactions.CreatePayin)
				r.Post("/payouts", cfg.Transactions.CreatePayout)
			})
			r.Get("/transactions/{reference_id}", cfg.Transactions.GetTransaction)
		}

		if cfg.Callbacks != nil {
			cb := r
			if cfg.CallbackAuth != nil {
				cb = r.With(cfg.CallbackAuth)
			}
			cb.Get("/callbacks/{provider}", cfg.Callbacks.HandleCallback)
			cb.Post("/callbacks/{provider}", cfg.Callbacks.HandleCallback)
		}
	})

	if cfg.Cron != nil {
		router.Post("/cron/reconcile", cfg.Cron.Reconcile)
	}

	router.Get("/health", observability.LiveHandler())
	if cfg.Health != nil {
		router.Get("/ready", cfg.Health.ReadyHandler())
	}

	return router
}
