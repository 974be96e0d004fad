package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoConfig contains configuration for the transaction record store
type MongoConfig struct {
	URI              string
	Database         string
	MaxPoolSize      uint64
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// DefaultMongoConfig returns default configuration
func DefaultMongoConfig(uri, database string) *MongoConfig {
	return &MongoConfig{
		URI:              uri,
		Database:         database,
		MaxPoolSize:      50,
		ConnectTimeout:   10 * time.Second,
		OperationTimeout: 5 * time.Second,
	}
}

// MongoAdapter owns the process-wide mongo client
type MongoAdapter struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
	config *MongoConfig
}

// NewMongoAdapter connects and pings the primary
func NewMongoAdapter(ctx context.Context, cfg *MongoConfig, logger *zap.Logger) (*MongoAdapter, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetTimeout(cfg.OperationTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("MongoDB adapter initialized",
		zap.String("database", cfg.Database),
		zap.Uint64("max_pool_size", cfg.MaxPoolSize),
	)

	return &MongoAdapter{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
		config: cfg,
	}, nil
}

// Database returns the configured database handle
func (a *MongoAdapter) Database() *mongo.Database {
	return a.db
}

// HealthCheck pings the primary
func (a *MongoAdapter) HealthCheck(ctx context.Context) error {
	return a.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (a *MongoAdapter) Close(ctx context.Context) error {
	a.logger.Info("Closing MongoDB client")
	return a.client.Disconnect(ctx)
}
