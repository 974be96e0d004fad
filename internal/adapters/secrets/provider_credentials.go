// Package secrets resolves settlement provider credentials from a file tree,
// HashiCorp Vault or AWS Secrets Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
	"github.com/kevin07696/payment-gateway/internal/adapters/provider"
	"github.com/kevin07696/payment-gateway/internal/domain"
)

// ErrSecretNotFound is returned by the backends when a path holds no secret
var ErrSecretNotFound = errors.New("secret not found")

// ProviderCredentialPath is where a provider's credentials are stored
func ProviderCredentialPath(name string) string {
	return fmt.Sprintf("providers/%s/credentials", name)
}

// ProviderCredentialStore resolves provider credentials from a secret store
type ProviderCredentialStore struct {
	secrets  ports.SecretStore
	logger   *zap.Logger
	mu       sync.Mutex
	versions map[string]string
}

// NewProviderCredentialStore creates a credential store over a secret store
func NewProviderCredentialStore(secrets ports.SecretStore, logger *zap.Logger) *ProviderCredentialStore {
	return &ProviderCredentialStore{
		secrets:  secrets,
		logger:   logger,
		versions: make(map[string]string),
	}
}

var _ provider.CredentialSource = (*ProviderCredentialStore)(nil)

// Credentials reports ErrProviderKeysMissing when the secret is absent or
// malformed. Backend outages are returned as-is so the caller can retry.
func (s *ProviderCredentialStore) Credentials(ctx context.Context, name string) (provider.Credentials, error) {
	path := ProviderCredentialPath(name)
	secret, err := s.secrets.GetSecret(ctx, path)
	if errors.Is(err, ErrSecretNotFound) {
		return provider.Credentials{}, domain.WrapError(domain.ErrorCodeProviderKeysMissing, "provider credentials not configured", err).
			WithDetail("provider", name)
	}
	if err != nil {
		return provider.Credentials{}, fmt.Errorf("load %s credentials: %w", name, err)
	}

	creds, err := provider.ParseCredentials(secret.Value)
	if err != nil {
		// A fixed secret must be picked up without waiting out the cache
		if f, ok := s.secrets.(interface{ Forget(string) }); ok {
			f.Forget(path)
		}
		s.logger.Error("Provider credentials are malformed",
			zap.String("provider", name),
			zap.String("version", secret.Version),
			zap.Error(err),
		)
		return provider.Credentials{}, domain.WrapError(domain.ErrorCodeProviderKeysMissing, "provider credentials invalid", err).
			WithDetail("provider", name)
	}

	s.trackVersion(name, secret.Version)
	return creds, nil
}

func (s *ProviderCredentialStore) trackVersion(name, version string) {
	if version == "" {
		return
	}
	s.mu.Lock()
	prev, seen := s.versions[name]
	s.versions[name] = version
	s.mu.Unlock()

	if seen && prev != version {
		s.logger.Info("Provider credentials rotated",
			zap.String("provider", name),
			zap.String("from_version", prev),
			zap.String("to_version", version),
		)
	}
}
