package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestSecretVersionName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"providers/upiqr/credentials", "projects/gw-prod/secrets/providers-upiqr-credentials/versions/latest"},
		{"/providers/impsbank/credentials/", "projects/gw-prod/secrets/providers-impsbank-credentials/versions/latest"},
		{"callback-signing", "projects/gw-prod/secrets/callback-signing/versions/latest"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, secretVersionName("gw-prod", tt.path, "latest"))
		})
	}
}

func TestVersionFromName(t *testing.T) {
	assert.Equal(t, "4", versionFromName("projects/123/secrets/providers-upiqr-credentials/versions/4"))
	assert.Equal(t, "", versionFromName("projects/123/secrets/x/versions/"))
	assert.Equal(t, "", versionFromName(""))
}

func TestGCPReadError(t *testing.T) {
	name := "projects/p/secrets/providers-upiqr-credentials/versions/latest"

	err := gcpReadError(name, status.Error(codes.NotFound, "secret not found"))
	assert.ErrorIs(t, err, ErrSecretNotFound)

	err = gcpReadError(name, status.Error(codes.PermissionDenied, "denied"))
	assert.NotErrorIs(t, err, ErrSecretNotFound)
	assert.Equal(t, codes.PermissionDenied, status.Code(errors.Unwrap(err)))

	err = gcpReadError(name, context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrSecretNotFound)
}

func TestNewGCPStore_RequiresProject(t *testing.T) {
	_, err := NewGCPStore(context.Background(), GCPConfig{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
