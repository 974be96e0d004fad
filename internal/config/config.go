package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Queue     QueueConfig
	Providers ProvidersConfig
	Secrets   SecretsConfig
	Webhook   WebhookConfig
	Callback  CallbackConfig
	Reconcile ReconcileConfig
	Logger    LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Environment     string // development, staging, production
	CronSecret      string // Shared secret for /cron endpoints
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	Port            int
	MetricsPort     int
	RateLimitRPS    float64
	RateLimitBurst  int
	// TrustProxyHeaders reads the caller address from X-Forwarded-For
	TrustProxyHeaders bool
	// TrustBodyClientIP uses client_ip from the intake body for the merchant
	// whitelist instead of the transport address
	TrustBodyClientIP bool
	// RunWorkers starts the dispatch worker pool inside the API process
	RunWorkers bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string // Takes precedence over the individual fields
	Host     string
	User     string
	Password string
	Database string
	SSLMode  string
	Port     int
	MaxConns int32
	MinConns int32
}

// MongoConfig holds the transaction record store configuration
type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

// QueueConfig holds the dispatch queue and worker pool configuration
type QueueConfig struct {
	Backend      string // postgres or memory
	PollInterval time.Duration
	StallTimeout time.Duration
	Concurrency  int
	MaxAttempts  int
}

// ProvidersConfig holds settlement provider endpoints
type ProvidersConfig struct {
	// CallbackBaseURL is the public URL providers post results to
	CallbackBaseURL string
	UPIQRBaseURL    string
	IMPSBankBaseURL string
	CallTimeout     time.Duration
}

// SecretsConfig selects where provider credentials are read from
type SecretsConfig struct {
	Backend        string // local, vault, aws or gcp
	LocalPath      string
	VaultAddress   string
	VaultToken     string
	VaultRoleID    string
	VaultSecretID  string
	VaultMountPath string
	AWSRegion      string
	AWSEndpoint    string
	AWSPrefix      string
	GCPProjectID   string
	CacheTTL       time.Duration
}

// WebhookConfig bounds merchant webhook delivery
type WebhookConfig struct {
	Timeout     time.Duration
	MaxAttempts int
}

// CallbackConfig holds provider callback verification settings
type CallbackConfig struct {
	// Secrets maps provider name to its HMAC signing secret
	Secrets         map[string]string
	RefreshInterval time.Duration
	AllowPrivateIPs bool
}

// ReconcileConfig schedules the reconciliation sweep
type ReconcileConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	SweepBatch int
	Enabled    bool
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	env := getEnv("ENVIRONMENT", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8080),
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort:       getEnvAsInt("METRICS_PORT", 9090),
			Environment:       env,
			CronSecret:        getEnv("CRON_SECRET", ""),
			AllowedOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS"),
			ShutdownTimeout:   getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			RateLimitRPS:      getEnvAsFloat("RATE_LIMIT_RPS", 20),
			RateLimitBurst:    getEnvAsInt("RATE_LIMIT_BURST", 40),
			TrustProxyHeaders: getEnvAsBool("TRUST_PROXY_HEADERS", false),
			TrustBodyClientIP: getEnvAsBool("TRUST_BODY_CLIENT_IP", false),
			RunWorkers:        getEnvAsBool("RUN_WORKERS", true),
		},
		Database: loadDatabase(),
		Mongo: MongoConfig{
			URI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:    getEnv("MONGO_DATABASE", "payment_gateway"),
			MaxPoolSize: uint64(getEnvAsInt("MONGO_MAX_POOL_SIZE", 50)),
		},
		Queue: QueueConfig{
			Backend:      getEnv("QUEUE_BACKEND", "postgres"),
			Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 4),
			PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
			StallTimeout: getEnvAsDuration("WORKER_STALL_TIMEOUT", 30*time.Second),
			MaxAttempts:  getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 3),
		},
		Providers: ProvidersConfig{
			CallbackBaseURL: getEnv("CALLBACK_BASE_URL", "http://localhost:8080"),
			UPIQRBaseURL:    getEnv("UPIQR_BASE_URL", ""),
			IMPSBankBaseURL: getEnv("IMPSBANK_BASE_URL", ""),
			CallTimeout:     getEnvAsDuration("PROVIDER_TIMEOUT", 20*time.Second),
		},
		Secrets: SecretsConfig{
			Backend:        getEnv("SECRET_MANAGER", "local"),
			LocalPath:      getEnv("LOCAL_SECRETS_PATH", "./secrets"),
			VaultAddress:   getEnv("VAULT_ADDR", ""),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			VaultRoleID:    getEnv("VAULT_ROLE_ID", ""),
			VaultSecretID:  getEnv("VAULT_SECRET_ID", ""),
			VaultMountPath: getEnv("VAULT_MOUNT_PATH", "secret"),
			AWSRegion:      getEnv("AWS_REGION", "ap-south-1"),
			AWSEndpoint:    getEnv("AWS_SECRETS_ENDPOINT", ""),
			AWSPrefix:      getEnv("AWS_SECRETS_PREFIX", "payment-gateway/"),
			GCPProjectID:   getEnv("GCP_PROJECT_ID", ""),
			CacheTTL:       getEnvAsDuration("SECRET_CACHE_TTL", 5*time.Minute),
		},
		Webhook: WebhookConfig{
			Timeout:     getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts: getEnvAsInt("WEBHOOK_MAX_ATTEMPTS", 3),
		},
		Callback: CallbackConfig{
			Secrets:         getEnvAsMap("CALLBACK_SECRETS"),
			RefreshInterval: getEnvAsDuration("CALLBACK_ALLOWLIST_REFRESH", time.Minute),
			AllowPrivateIPs: getEnvAsBool("CALLBACK_ALLOW_PRIVATE_IPS", env == "development"),
		},
		Reconcile: ReconcileConfig{
			Enabled:    getEnvAsBool("RECONCILE_ENABLED", true),
			Interval:   getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),
			StaleAfter: getEnvAsDuration("RECONCILE_STALE_AFTER", 10*time.Minute),
			SweepBatch: getEnvAsInt("RECONCILE_BATCH", 100),
		},
		Logger: loadLogger(env),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabaseFromEnv reads only the ledger database and logger settings,
// for tools that never touch the other stores
func LoadDatabaseFromEnv() (DatabaseConfig, LoggerConfig, error) {
	db := loadDatabase()
	if db.URL == "" && db.Password == "" {
		return db, LoggerConfig{}, errors.New("DATABASE_URL or DB_PASSWORD is required")
	}
	return db, loadLogger(getEnv("ENVIRONMENT", "development")), nil
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		URL:      getEnv("DATABASE_URL", ""),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Database: getEnv("DB_NAME", "payment_gateway"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
	}
}

func loadLogger(env string) LoggerConfig {
	return LoggerConfig{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnvAsBool("LOG_DEVELOPMENT", env == "development"),
	}
}

// Validate reports every missing or inconsistent setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" && c.Database.Password == "" {
		errs = append(errs, errors.New("DATABASE_URL or DB_PASSWORD is required"))
	}
	if c.Mongo.URI == "" || c.Mongo.Database == "" {
		errs = append(errs, errors.New("MONGO_URI and MONGO_DATABASE are required"))
	}

	switch c.Queue.Backend {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("QUEUE_BACKEND must be postgres or memory, got %q", c.Queue.Backend))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("DISPATCH_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Queue.Concurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}

	switch c.Secrets.Backend {
	case "local":
	case "vault":
		if c.Secrets.VaultAddress == "" {
			errs = append(errs, errors.New("VAULT_ADDR is required for the vault secret manager"))
		}
		if c.Secrets.VaultToken == "" && (c.Secrets.VaultRoleID == "" || c.Secrets.VaultSecretID == "") {
			errs = append(errs, errors.New("VAULT_TOKEN or VAULT_ROLE_ID and VAULT_SECRET_ID are required"))
		}
	case "aws":
		if c.Secrets.AWSRegion == "" {
			errs = append(errs, errors.New("AWS_REGION is required for the aws secret manager"))
		}
	case "gcp":
		if c.Secrets.GCPProjectID == "" {
			errs = append(errs, errors.New("GCP_PROJECT_ID is required for the gcp secret manager"))
		}
	default:
		errs = append(errs, fmt.Errorf("SECRET_MANAGER must be local, vault, aws or gcp, got %q", c.Secrets.Backend))
	}

	if c.IsProduction() {
		if c.Server.CronSecret == "" {
			errs = append(errs, errors.New("CRON_SECRET is required in production"))
		}
		if c.Queue.Backend == "memory" {
			errs = append(errs, errors.New("the memory queue cannot be used in production"))
		}
		if c.Secrets.Backend == "local" {
			errs = append(errs, errors.New("local secrets cannot be used in production"))
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// IsDevelopment reports whether ENVIRONMENT is development
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// ConnectionString returns the PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvAsMap parses "name=value,name=value"
func getEnvAsMap(key string) map[string]string {
	out := make(map[string]string)
	for _, item := range getEnvAsList(key) {
		name, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return out
}
