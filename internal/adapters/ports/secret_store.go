package ports

import "context"

// Secret is one version of a stored value
type Secret struct {
	Value   string
	Version string
}

// SecretStore reads secrets by path, e.g. "providers/upiqr/credentials".
// A path with nothing stored yields an error wrapping secrets.ErrSecretNotFound.
type SecretStore interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
