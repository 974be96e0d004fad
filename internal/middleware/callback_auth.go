package middleware

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/domain/ports"
	"github.com/kevin07696/payment-gateway/internal/handlers/response"
	pkgmiddleware "github.com/kevin07696/payment-gateway/pkg/middleware"
)

// CallbackSignatureHeader carries the hex HMAC-SHA256 of the callback body
// (or of the raw query string for GET callbacks)
const CallbackSignatureHeader = "X-Callback-Signature"

type contextKey string

const sourceIPKey contextKey = "callback_source_ip"

// CallbackSourceIP returns the verified source address of a callback request
func CallbackSourceIP(ctx context.Context) string {
	ip, _ := ctx.Value(sourceIPKey).(string)
	return ip
}

// CallbackAuthConfig configures provider callback verification
type CallbackAuthConfig struct {
	// Secrets maps provider name to HMAC secret; a provider without one is
	// verified by source address only
	Secrets map[string]string
	// AllowPrivateIPs admits loopback and private addresses (development)
	AllowPrivateIPs   bool
	TrustProxyHeaders bool
	RefreshInterval   time.Duration
	MaxBodyBytes      int64
}

type allowlist struct {
	loadedAt time.Time
	nets     []*net.IPNet
}

// CallbackAuth verifies provider callbacks by source IP allowlist and optional
// HMAC signature, and records every attempt in the callback audit log
type CallbackAuth struct {
	store  ports.CallbackAuditStore
	cfg    CallbackAuthConfig
	logger *zap.Logger

	mu    sync.RWMutex
	lists map[string]allowlist
	now   func() time.Time
}

// NewCallbackAuth creates a callback authenticator
func NewCallbackAuth(store ports.CallbackAuditStore, cfg CallbackAuthConfig, logger *zap.Logger) *CallbackAuth {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return &CallbackAuth{
		store:  store,
		cfg:    cfg,
		logger: logger,
		lists:  make(map[string]allowlist),
		now:    time.Now,
	}
}

// Middleware rejects callbacks from unknown addresses (403) or with a missing
// or invalid signature (401). The provider comes from the {provider} route param.
func (c *CallbackAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		clientIP := pkgmiddleware.ClientIP(r, c.cfg.TrustProxyHeaders)
		logger := c.logger.With(
			zap.String("provider", provider),
			zap.String("client_ip", clientIP),
			zap.String("method", r.Method),
		)

		allowed, err := c.isAllowed(r.Context(), provider, clientIP)
		if err != nil {
			logger.Error("Failed to load callback allowlist", zap.Error(err))
			response.Fail(w, http.StatusServiceUnavailable, string(domain.ErrorCodeInternalError), "callback verification unavailable")
			return
		}
		if !allowed {
			logger.Warn("Callback from address not on allowlist")
			c.audit(r, provider, clientIP, false, "ip not allowlisted")
			response.Fail(w, http.StatusForbidden, "CALLBACK_FORBIDDEN", "source address not allowed")
			return
		}

		if secret := c.cfg.Secrets[provider]; secret != "" {
			signature := r.Header.Get(CallbackSignatureHeader)
			if signature == "" {
				logger.Warn("Callback missing signature")
				c.audit(r, provider, clientIP, false, "missing signature")
				response.Fail(w, http.StatusUnauthorized, "CALLBACK_UNAUTHORIZED", "missing signature")
				return
			}

			signed, err := c.signedContent(r)
			if err != nil {
				logger.Warn("Failed to read callback body", zap.Error(err))
				response.Fail(w, http.StatusBadRequest, string(domain.ErrorCodeValidationFailed), "unreadable body")
				return
			}
			if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(Sign(signed, secret))) {
				logger.Warn("Callback signature mismatch")
				c.audit(r, provider, clientIP, false, "invalid signature")
				response.Fail(w, http.StatusUnauthorized, "CALLBACK_UNAUTHORIZED", "invalid signature")
				return
			}
		}

		c.audit(r, provider, clientIP, true, "")
		logger.Debug("Callback authenticated")

		ctx := context.WithValue(r.Context(), sourceIPKey, clientIP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// signedContent returns the bytes covered by the signature and restores the
// body for the next handler
func (c *CallbackAuth) signedContent(r *http.Request) ([]byte, error) {
	if r.Method == http.MethodGet {
		return []byte(r.URL.RawQuery), nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func (c *CallbackAuth) isAllowed(ctx context.Context, provider, ip string) (bool, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false, nil
	}
	if c.cfg.AllowPrivateIPs && (parsed.IsLoopback() || parsed.IsPrivate()) {
		return true, nil
	}

	nets, err := c.allowlist(ctx, provider)
	if err != nil {
		return false, err
	}
	for _, n := range nets {
		if n.Contains(parsed) {
			return true, nil
		}
	}
	return false, nil
}

// allowlist returns the cached allowlist for provider, reloading it once it
// is older than RefreshInterval
func (c *CallbackAuth) allowlist(ctx context.Context, provider string) ([]*net.IPNet, error) {
	c.mu.RLock()
	list, ok := c.lists[provider]
	c.mu.RUnlock()
	if ok && c.now().Sub(list.loadedAt) < c.cfg.RefreshInterval {
		return list.nets, nil
	}

	entries, err := c.store.ListAllowedCIDRs(ctx, provider)
	if err != nil {
		if ok {
			c.logger.Warn("Allowlist refresh failed, using cached entries",
				zap.String("provider", provider),
				zap.Error(err),
			)
			return list.nets, nil
		}
		return nil, err
	}

	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		n, err := parseAllowEntry(entry)
		if err != nil {
			c.logger.Warn("Skipping malformed allowlist entry",
				zap.String("provider", provider),
				zap.String("entry", entry),
			)
			continue
		}
		nets = append(nets, n)
	}

	c.mu.Lock()
	c.lists[provider] = allowlist{loadedAt: c.now(), nets: nets}
	c.mu.Unlock()

	c.logger.Info("Loaded callback allowlist",
		zap.String("provider", provider),
		zap.Int("count", len(nets)),
	)
	return nets, nil
}

func parseAllowEntry(entry string) (*net.IPNet, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, n, err := net.ParseCIDR(entry)
		return n, err
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("invalid address %q", entry)
	}
	bits := 128
	if ip.To4() != nil {
		ip = ip.To4()
		bits = 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

func (c *CallbackAuth) audit(r *http.Request, provider, clientIP string, authorized bool, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()

	entry := domain.CallbackAudit{
		ReceivedAt:    c.now(),
		Provider:      provider,
		SourceIP:      clientIP,
		ReferenceID:   r.URL.Query().Get("reference_id"),
		Authorized:    authorized,
		FailureReason: reason,
	}
	if err := c.store.RecordCallback(ctx, entry); err != nil {
		c.logger.Error("Failed to record callback audit",
			zap.String("provider", provider),
			zap.String("client_ip", clientIP),
			zap.Error(err),
		)
	}
}

// Sign returns the hex HMAC-SHA256 of content under secret
func Sign(content []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
