package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
)

// FileStore reads secrets from files under a base directory. Development only.
//
// A file holding {"value": "...", "version": "..."} is unwrapped; any other
// content is the value itself.
type FileStore struct {
	basePath string
	logger   *zap.Logger
}

// NewFileStore creates a store rooted at basePath
func NewFileStore(basePath string, logger *zap.Logger) *FileStore {
	return &FileStore{basePath: basePath, logger: logger}
}

var _ ports.SecretStore = (*FileStore)(nil)

func (s *FileStore) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(s.basePath, clean)

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read secret %s: %w", path, err)
	}
	s.logger.Debug("Read secret from file", zap.String("path", path))

	var wrapped struct {
		Value   string `json:"value"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Value != "" {
		return &ports.Secret{Value: wrapped.Value, Version: wrapped.Version}, nil
	}
	return &ports.Secret{Value: strings.TrimSpace(string(data))}, nil
}
