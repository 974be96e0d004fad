package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/adapters/ports"
)

// AWSConfig selects the region and naming of secrets in AWS Secrets Manager
type AWSConfig struct {
	Region string
	// Endpoint overrides the service URL (LocalStack)
	Endpoint string
	// Prefix is prepended to every path to form the secret id
	Prefix string
}

// AWSStore reads secrets from AWS Secrets Manager
type AWSStore struct {
	client *secretsmanager.Client
	prefix string
	logger *zap.Logger
}

// NewAWSStore loads the default AWS credential chain for cfg.Region
func NewAWSStore(ctx context.Context, cfg AWSConfig, logger *zap.Logger) (*AWSStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var opts []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	logger.Info("AWS secret store ready",
		zap.String("region", cfg.Region),
		zap.String("prefix", cfg.Prefix),
	)
	return &AWSStore{
		client: secretsmanager.NewFromConfig(awsCfg, opts...),
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

var _ ports.SecretStore = (*AWSStore)(nil)

func (s *AWSStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	id := s.prefix + path
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, id)
		}
		s.logger.Error("AWS secret read failed", zap.String("secret_id", id), zap.Error(err))
		return nil, fmt.Errorf("read aws secret %s: %w", id, err)
	}
	return &ports.Secret{
		Value:   aws.ToString(out.SecretString),
		Version: aws.ToString(out.VersionId),
	}, nil
}
