// Package provider holds the settlement provider adapters and the dispatcher
// that calls them on behalf of the worker pool.
package provider

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/payment-gateway/internal/domain"
)

// Status is the normalized outcome of a dispatch
type Status string

const (
	StatusSuccess Status = "success" // accepted by the provider
	StatusPending Status = "pending" // accepted, final result arrives by callback
	StatusFailed  Status = "failed"  // rejected by the provider, or an unreadable answer
	StatusError   Status = "error"   // no answer (transport, 5xx, throttled)
)

// Credentials are a provider's API key and AES material
type Credentials struct {
	APIKey string
	AESKey []byte
	IV     []byte
}

// ParseCredentials decodes the secret value stored for a provider:
// {"api_key": "...", "aes_key": "<hex>", "iv": "<hex>"}
func ParseCredentials(raw string) (Credentials, error) {
	var doc struct {
		APIKey string `json:"api_key"`
		AESKey string `json:"aes_key"`
		IV     string `json:"iv"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Credentials{}, fmt.Errorf("parse provider credentials: %w", err)
	}
	if doc.APIKey == "" || doc.AESKey == "" || doc.IV == "" {
		return Credentials{}, fmt.Errorf("provider credentials incomplete")
	}

	key, err := hex.DecodeString(doc.AESKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("decode aes_key: %w", err)
	}
	iv, err := hex.DecodeString(doc.IV)
	if err != nil {
		return Credentials{}, fmt.Errorf("decode iv: %w", err)
	}
	return Credentials{APIKey: doc.APIKey, AESKey: key, IV: iv}, nil
}

// CredentialSource resolves credentials by provider name. A provider with no
// credentials configured yields an error matching domain.ErrProviderKeysMissing.
type CredentialSource interface {
	Credentials(ctx context.Context, provider string) (Credentials, error)
}

// Request is the provider-specific payload built from a transaction
type Request struct {
	Body        []byte
	Path        string
	ReferenceID string
}

// Response is the raw provider answer after envelope decryption
type Response struct {
	Body       []byte
	StatusCode int
}

// Result is what a dispatch produced. Dispatch never returns an error; the
// failure, if any, is described here.
type Result struct {
	Err               error
	Status            Status
	Code              string
	Message           string
	ProviderReference string
	UTR               string
	QRPayload         string
	Raw               string
	Duration          time.Duration
	// Retryable is set for transport errors, 5xx and provider codes that
	// may succeed on a later attempt
	Retryable bool
}

// Accepted reports whether the provider took the request
func (r Result) Accepted() bool {
	return r.Status == StatusSuccess || r.Status == StatusPending
}

// Gateway converts the result into the stored gateway response
func (r Result) Gateway() domain.GatewayResponse {
	msg := r.Message
	if msg == "" && r.Err != nil {
		msg = r.Err.Error()
	}
	return domain.GatewayResponse{
		Code:              r.Code,
		Message:           msg,
		UTR:               r.UTR,
		ProviderReference: r.ProviderReference,
		QRPayload:         r.QRPayload,
		Raw:               r.Raw,
	}
}

// SettlementProvider is one upstream payment rail
type SettlementProvider interface {
	Name() string

	// Supports reports whether the provider handles the transaction type
	Supports(txnType domain.TransactionType) bool

	BuildRequest(txn *domain.Transaction, callbackURL string) (*Request, error)

	// Encrypt wraps a request body in the provider envelope
	Encrypt(body []byte, creds Credentials) ([]byte, error)

	// Send posts the envelope and returns the decrypted response
	Send(ctx context.Context, req *Request, envelope []byte, creds Credentials) (*Response, error)

	NormalizeResponse(resp *Response) Result

	// NormalizeCallback maps a provider status code to completed or failed
	NormalizeCallback(code string) domain.TransactionStatus
}

// Registry holds the configured providers by name
type Registry struct {
	mu        sync.RWMutex
	providers map[string]SettlementProvider
}

// NewRegistry creates a registry with the given providers
func NewRegistry(providers ...SettlementProvider) *Registry {
	r := &Registry{providers: make(map[string]SettlementProvider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider
func (r *Registry) Register(p SettlementProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns ErrNoActiveProvider when name is not registered
func (r *Registry) Get(name string) (SettlementProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.ErrNoActiveProvider.WithDetail("provider", name)
	}
	return p, nil
}

// Names lists registered providers in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
