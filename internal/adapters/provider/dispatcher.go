package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/pkg/observability"
	"github.com/kevin07696/payment-gateway/pkg/resilience"
)

// DispatcherConfig configures provider calls
type DispatcherConfig struct {
	Timeouts *resilience.TimeoutConfig
	// CallbackBaseURL is the public base URL providers call back on
	CallbackBaseURL string
	Breaker         CircuitBreakerConfig
}

// Dispatcher sends transactions to their provider. One circuit breaker is
// kept per provider.
type Dispatcher struct {
	registry *Registry
	creds    CredentialSource
	cfg      DispatcherConfig
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewDispatcher creates a dispatcher over the registered providers
func NewDispatcher(registry *Registry, creds CredentialSource, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Timeouts == nil {
		cfg.Timeouts = resilience.DefaultTimeoutConfig()
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker = DefaultCircuitBreakerConfig()
	}
	return &Dispatcher{
		registry: registry,
		creds:    creds,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// CallbackURL is where provider name posts results
func (d *Dispatcher) CallbackURL(name string) string {
	return strings.TrimRight(d.cfg.CallbackBaseURL, "/") + "/api/v1/callbacks/" + name
}

// Dispatch calls the transaction's provider. It never returns an error: every
// failure is described by the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, txn *domain.Transaction) Result {
	start := time.Now()
	result := d.dispatch(ctx, txn)
	result.Duration = time.Since(start)

	observability.RecordDispatch(txn.Provider, string(result.Status), result.Duration)

	fields := []zap.Field{
		zap.String("reference_id", txn.ReferenceID),
		zap.String("provider", txn.Provider),
		zap.String("status", string(result.Status)),
		zap.String("code", result.Code),
		zap.Bool("retryable", result.Retryable),
		zap.Duration("duration", result.Duration),
	}
	if result.Accepted() {
		d.logger.Info("Provider accepted transaction", fields...)
	} else {
		d.logger.Warn("Provider dispatch did not succeed", append(fields, zap.Error(result.Err))...)
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, txn *domain.Transaction) Result {
	p, err := d.registry.Get(txn.Provider)
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}
	if !p.Supports(txn.Type) {
		return Result{
			Status: StatusError,
			Err: domain.ErrNoActiveProvider.
				WithDetail("provider", p.Name()).
				WithDetail("type", string(txn.Type)),
		}
	}

	creds, err := d.creds.Credentials(ctx, p.Name())
	if err != nil {
		return Result{
			Status:    StatusError,
			Err:       err,
			Retryable: !errors.Is(err, domain.ErrProviderKeysMissing),
		}
	}

	req, err := p.BuildRequest(txn, d.CallbackURL(p.Name()))
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}
	envelope, err := p.Encrypt(req.Body, creds)
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}

	callCtx, cancel := d.cfg.Timeouts.ProviderContext(ctx)
	defer cancel()

	var (
		resp        *Response
		undecodable *DecodeError
	)
	err = d.breaker(p.Name()).Call(func() error {
		r, err := p.Send(callCtx, req, envelope, creds)
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) && decodeErr.StatusCode < http.StatusInternalServerError &&
			decodeErr.StatusCode != http.StatusTooManyRequests {
			// The provider answered; the transport is healthy
			undecodable = decodeErr
			return nil
		}
		if err != nil {
			return err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%s returned HTTP %d", p.Name(), r.StatusCode)
		}
		return nil
	})
	if err != nil {
		result := Result{Status: StatusError, Err: err, Retryable: true}
		if resp != nil {
			result.Code = strconv.Itoa(resp.StatusCode)
			result.Raw = string(resp.Body)
		}
		return result
	}
	if undecodable != nil {
		// The request may have been acted on, so it is never sent again
		return Result{
			Status: StatusFailed,
			Code:   strconv.Itoa(undecodable.StatusCode),
			Err:    undecodable,
			Raw:    string(undecodable.Raw),
		}
	}

	result := p.NormalizeResponse(resp)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		result.Status = StatusError
		result.Retryable = true
		if result.Err == nil {
			result.Err = fmt.Errorf("%s rate limited the request", p.Name())
		}
	case resp.StatusCode >= http.StatusBadRequest && !result.Accepted():
		// The provider understood and refused the request; repeating it will not help
		if result.Status == StatusError {
			result.Status = StatusFailed
		}
		result.Retryable = false
		if result.Code == "" {
			result.Code = strconv.Itoa(resp.StatusCode)
		}
	}
	return result
}

func (d *Dispatcher) breaker(name string) *CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[name]; ok {
		return cb
	}

	cfg := d.cfg.Breaker
	cfg.OnStateChange = func(from, to CircuitState) {
		observability.SetCircuitState(name, int(to))
		d.logger.Warn("Provider circuit breaker state changed",
			zap.String("provider", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	cb := NewCircuitBreaker(cfg)
	d.breakers[name] = cb
	return cb
}
