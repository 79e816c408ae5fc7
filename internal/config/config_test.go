package config

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults(t *testing.T) *Config {
	t.Helper()
	var cfg Config
	require.NoError(t, envconfig.Process("", &cfg))
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaults(t)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, StoreBackendDynamoDB, cfg.Store.Backend)
	assert.Equal(t, BlobBackendS3, cfg.Blob.Backend)
	assert.Equal(t, 52*7*24*time.Hour, cfg.Session.CookieLifetime)
	assert.Equal(t, 10*time.Second, cfg.Store.Timeout)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.AMQP.URL)
	assert.Equal(t, []string{"/healthz", "/readyz", "/metrics"}, cfg.RateLimit.ExemptPaths)
	assert.NoError(t, validateConfig(cfg))
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("BLOB_BACKEND", "disk")
	t.Setenv("BLOB_DIR", "/var/lib/catalog")
	t.Setenv("SESSION_COOKIE_LIFETIME", "1h")

	cfg := defaults(t)

	assert.Equal(t, StoreBackendMongo, cfg.Store.Backend)
	assert.Equal(t, BlobBackendDisk, cfg.Blob.Backend)
	assert.Equal(t, "/var/lib/catalog", cfg.Blob.Dir)
	assert.Equal(t, time.Hour, cfg.Session.CookieLifetime)
	assert.NoError(t, validateConfig(cfg))
}

func TestLoad_ExemptPathsAreTrimmed(t *testing.T) {
	t.Setenv("RATE_LIMIT_EXEMPT_PATHS", "/healthz, /version ,/metrics")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/healthz", "/version", "/metrics"}, cfg.RateLimit.ExemptPaths)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "bad port",
			mutate: func(c *Config) { c.Server.Port = "http" },
			errMsg: "invalid server port",
		},
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = "70000" },
			errMsg: "invalid server port",
		},
		{
			name:   "unknown store backend",
			mutate: func(c *Config) { c.Store.Backend = "postgres" },
			errMsg: "unknown store backend",
		},
		{
			name:   "missing dynamodb table",
			mutate: func(c *Config) { c.DynamoDB.MoviesTableName = "" },
			errMsg: "dynamodb table names are required",
		},
		{
			name: "missing mongo database",
			mutate: func(c *Config) {
				c.Store.Backend = StoreBackendMongo
				c.Mongo.Database = ""
			},
			errMsg: "mongo uri and database are required",
		},
		{
			name:   "unknown blob backend",
			mutate: func(c *Config) { c.Blob.Backend = "gcs" },
			errMsg: "unknown blob backend",
		},
		{
			name:   "missing bucket",
			mutate: func(c *Config) { c.S3.Bucket = "" },
			errMsg: "s3 bucket is required",
		},
		{
			name: "missing disk dir",
			mutate: func(c *Config) {
				c.Blob.Backend = BlobBackendDisk
				c.Blob.Dir = ""
			},
			errMsg: "blob dir is required",
		},
		{
			name:   "zero store timeout",
			mutate: func(c *Config) { c.Store.Timeout = 0 },
			errMsg: "timeouts must be positive",
		},
		{
			name:   "zero cookie lifetime",
			mutate: func(c *Config) { c.Session.CookieLifetime = 0 },
			errMsg: "invalid session cookie lifetime",
		},
		{
			name:   "sample rate above one",
			mutate: func(c *Config) { c.Observability.SampleRate = 1.5 },
			errMsg: "invalid tracing sample rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults(t)
			tt.mutate(cfg)

			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateConfig_MemoryBackends(t *testing.T) {
	cfg := defaults(t)
	cfg.Store.Backend = StoreBackendMemory
	cfg.Blob.Backend = BlobBackendMemory
	cfg.DynamoDB.UsersTableName = ""
	cfg.S3.Bucket = ""

	assert.NoError(t, validateConfig(cfg))
}
