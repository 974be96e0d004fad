package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
)

// VaultConfig selects the Vault server, login and KV v2 mount
type VaultConfig struct {
	Address   string
	Namespace string
	MountPath string

	// Token login wins when set; otherwise AppRole is used
	Token    string
	RoleID   string
	SecretID string
}

// VaultStore reads secrets from a Vault KV v2 engine
type VaultStore struct {
	kv     *vault.KVv2
	logger *zap.Logger
}

// NewVaultStore logs in and returns a store over cfg.MountPath
func NewVaultStore(ctx context.Context, cfg VaultConfig, logger *zap.Logger) (*VaultStore, error) {
	vcfg := vault.DefaultConfig()
	vcfg.Address = cfg.Address
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	method := "token"
	switch {
	case cfg.Token != "":
		client.SetToken(cfg.Token)
	case cfg.RoleID != "" && cfg.SecretID != "":
		method = "approle"
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return nil, fmt.Errorf("vault approle login: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, errors.New("vault approle login returned no token")
		}
		client.SetToken(resp.Auth.ClientToken)
	default:
		return nil, errors.New("vault needs a token or approle credentials")
	}

	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}
	logger.Info("Vault secret store ready",
		zap.String("address", cfg.Address),
		zap.String("auth_method", method),
		zap.String("mount_path", mount),
	)
	return &VaultStore{kv: client.KVv2(mount), logger: logger}, nil
}

var _ ports.SecretStore = (*VaultStore)(nil)

// GetSecret returns the "value" field when present, otherwise the whole data
// map as JSON so multi-field secrets like provider credentials survive intact
func (s *VaultStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	kv, err := s.kv.Get(ctx, path)
	if errors.Is(err, vault.ErrSecretNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}
	if err != nil {
		s.logger.Error("Vault read failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("read vault secret %s: %w", path, err)
	}
	if kv == nil || len(kv.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	secret := &ports.Secret{}
	if v, ok := kv.Data["value"].(string); ok {
		secret.Value = v
	} else {
		encoded, err := json.Marshal(kv.Data)
		if err != nil {
			return nil, fmt.Errorf("encode vault secret %s: %w", path, err)
		}
		secret.Value = string(encoded)
	}
	if kv.VersionMetadata != nil {
		secret.Version = strconv.Itoa(kv.VersionMetadata.Version)
	}
	return secret, nil
}
