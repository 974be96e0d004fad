package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ipLimiter tracks a rate limiter and its last access time
type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimitConfig sets the per-client token bucket
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// TrustProxyHeaders keys clients by X-Forwarded-For / X-Real-IP
	TrustProxyHeaders bool
	MaxClients        int
	CleanupInterval   time.Duration
}

// RateLimiter limits requests per client IP with automatic cleanup
type RateLimiter struct {
	limiters map[string]*ipLimiter
	mu       sync.Mutex
	cfg      RateLimitConfig
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup removes clients not seen within the cleanup interval
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.cfg.CleanupInterval)
	removed := 0
	for ip, l := range rl.limiters {
		if l.lastAccess.Before(cutoff) {
			delete(rl.limiters, ip)
			removed++
		}
	}
	if removed > 0 {
		rl.logger.Debug("Rate limiter cleanup", zap.Int("removed", removed), zap.Int("remaining", len(rl.limiters)))
	}
}

// Shutdown stops the cleanup goroutine
func (rl *RateLimiter) Shutdown() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[ip]; ok {
		l.lastAccess = time.Now()
		return l.limiter
	}

	if len(rl.limiters) >= rl.cfg.MaxClients {
		// Evict the least recently seen client
		var oldestIP string
		var oldest time.Time
		for ip, l := range rl.limiters {
			if oldestIP == "" || l.lastAccess.Before(oldest) {
				oldestIP, oldest = ip, l.lastAccess
			}
		}
		delete(rl.limiters, oldestIP)
	}

	l := &ipLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst),
		lastAccess: time.Now(),
	}
	rl.limiters[ip] = l
	return l.limiter
}

// Allow reports whether ip may make a request now
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.getLimiter(ip).Allow()
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, rl.cfg.TrustProxyHeaders)
		if !rl.Allow(ip) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("client_ip", ip),
				zap.String("path", r.URL.Path),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{
					"code":    "RATE_LIMITED",
					"message": "rate limit exceeded, retry later",
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the caller's address. Proxy headers are only consulted when
// trustProxy is set, since any client can forge them.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// The first entry is the original client
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
