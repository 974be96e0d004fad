package secrets

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
)

// CachedStore serves secrets from memory for ttl after a successful read
// from next. Failed reads are never cached.
type CachedStore struct {
	next    ports.SecretStore
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]cachedSecret
}

type cachedSecret struct {
	secret    ports.Secret
	expiresAt time.Time
}

// NewCachedStore wraps next. A non-positive ttl disables caching.
func NewCachedStore(next ports.SecretStore, ttl time.Duration) *CachedStore {
	return &CachedStore{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedSecret),
	}
}

var _ ports.SecretStore = (*CachedStore)(nil)

func (c *CachedStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if c.ttl <= 0 {
		return c.next.GetSecret(ctx, path)
	}

	c.mu.Lock()
	entry, ok := c.entries[path]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expiresAt) {
		s := entry.secret
		return &s, nil
	}

	secret, err := c.next.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[path] = cachedSecret{secret: *secret, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return secret, nil
}

// Forget drops path so the next read goes to the backend
func (c *CachedStore) Forget(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Close closes the backend when it holds a connection
func (c *CachedStore) Close() error {
	if closer, ok := c.next.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
