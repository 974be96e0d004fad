package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
)

// GCPConfig selects the project that holds the gateway's secrets
type GCPConfig struct {
	ProjectID string
}

// GCPStore reads secrets from Google Cloud Secret Manager. Credentials come
// from GOOGLE_APPLICATION_CREDENTIALS or workload identity.
type GCPStore struct {
	client    *secretmanager.Client
	projectID string
	logger    *zap.Logger
}

// NewGCPStore dials Secret Manager for cfg.ProjectID
func NewGCPStore(ctx context.Context, cfg GCPConfig, logger *zap.Logger) (*GCPStore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP project ID is required")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcp secret manager client: %w", err)
	}

	logger.Info("GCP secret store ready", zap.String("project_id", cfg.ProjectID))
	return &GCPStore{client: client, projectID: cfg.ProjectID, logger: logger}, nil
}

var _ ports.SecretStore = (*GCPStore)(nil)

// GetSecret reads the latest version of the secret mapped from path
func (s *GCPStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	name := secretVersionName(s.projectID, path, "latest")
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		if !isGCPNotFound(err) {
			s.logger.Error("GCP secret read failed", zap.String("secret_name", name), zap.Error(err))
		}
		return nil, gcpReadError(name, err)
	}

	return &ports.Secret{
		Value:   string(result.GetPayload().GetData()),
		Version: versionFromName(result.GetName()),
	}, nil
}

// Close releases the gRPC connection
func (s *GCPStore) Close() error {
	return s.client.Close()
}

// secretVersionName builds projects/{p}/secrets/{id}/versions/{v}. Secret ids
// cannot contain slashes, so path separators become dashes.
func secretVersionName(projectID, path, version string) string {
	id := strings.ReplaceAll(strings.Trim(path, "/"), "/", "-")
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, id, version)
}

// versionFromName returns the trailing version segment of a version name
func versionFromName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return ""
}

func isGCPNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func gcpReadError(name string, err error) error {
	if isGCPNotFound(err) {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return fmt.Errorf("read gcp secret %s: %w", name, err)
}
