package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DB_PASSWORD", "postgres")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.Logger.Development)
	assert.True(t, cfg.Callback.AllowPrivateIPs)
	assert.Equal(t, "postgres", cfg.Queue.Backend)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Reconcile.StaleAfter)
	assert.Equal(t, "local", cfg.Secrets.Backend)
	assert.Contains(t, cfg.Database.ConnectionString(), "password=postgres")
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("DATABASE_URL", "postgres://gw:secret@db:5432/gateway")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("CALLBACK_SECRETS", "upiqr=abc, impsbank = def ,broken")
	t.Setenv("RECONCILE_INTERVAL", "90s")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres://gw:secret@db:5432/gateway", cfg.Database.ConnectionString())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, map[string]string{"upiqr": "abc", "impsbank": "def"}, cfg.Callback.Secrets)
	assert.Equal(t, 90*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, 4, cfg.Queue.Concurrency, "unparseable values fall back to the default")
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.False(t, cfg.Callback.AllowPrivateIPs)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Environment: "production", CronSecret: "s"},
			Database: DatabaseConfig{URL: "postgres://localhost/gateway"},
			Mongo:    MongoConfig{URI: "mongodb://localhost", Database: "gateway"},
			Queue:    QueueConfig{Backend: "postgres", MaxAttempts: 3, Concurrency: 4},
			Secrets:  SecretsConfig{Backend: "vault", VaultAddress: "https://vault:8200", VaultToken: "t"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid production", func(*Config) {}, ""},
		{"missing database", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL or DB_PASSWORD"},
		{"unknown queue", func(c *Config) { c.Queue.Backend = "redis" }, "QUEUE_BACKEND"},
		{"zero attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }, "DISPATCH_MAX_ATTEMPTS"},
		{"vault without auth", func(c *Config) { c.Secrets.VaultToken = "" }, "VAULT_TOKEN"},
		{"vault approle", func(c *Config) {
			c.Secrets.VaultToken = ""
			c.Secrets.VaultRoleID = "role"
			c.Secrets.VaultSecretID = "secret"
		}, ""},
		{"unknown secret manager", func(c *Config) { c.Secrets.Backend = "azure" }, "SECRET_MANAGER"},
		{"gcp without project", func(c *Config) { c.Secrets.Backend = "gcp" }, "GCP_PROJECT_ID"},
		{"gcp with project", func(c *Config) {
			c.Secrets.Backend = "gcp"
			c.Secrets.GCPProjectID = "gw-prod"
		}, ""},
		{"production needs cron secret", func(c *Config) { c.Server.CronSecret = "" }, "CRON_SECRET"},
		{"production rejects memory queue", func(c *Config) { c.Queue.Backend = "memory" }, "memory queue"},
		{"production rejects local secrets", func(c *Config) { c.Secrets.Backend = "local" }, "local secrets"},
		{"development allows memory queue", func(c *Config) {
			c.Server.Environment = "development"
			c.Queue.Backend = "memory"
			c.Secrets.Backend = "local"
			c.Server.CronSecret = ""
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDatabaseFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_PASSWORD", "")

	_, _, err := LoadDatabaseFromEnv()
	require.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://gw:secret@db:5432/gateway")
	t.Setenv("LOG_LEVEL", "debug")
	dbCfg, logCfg, err := LoadDatabaseFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://gw:secret@db:5432/gateway", dbCfg.ConnectionString())
	assert.Equal(t, "debug", logCfg.Level)
	assert.False(t, logCfg.Development)
}
