package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreBackendDynamoDB = "dynamodb"
	StoreBackendMongo    = "mongo"
	StoreBackendMemory   = "memory"

	BlobBackendS3     = "s3"
	BlobBackendDisk   = "disk"
	BlobBackendMemory = "memory"
)

type Config struct {
	Server        ServerConfig        `envconfig:"SERVER"`
	Store         StoreConfig         `envconfig:"STORE"`
	DynamoDB      DynamoDBConfig      `envconfig:"DYNAMODB"`
	Mongo         MongoConfig         `envconfig:"MONGO"`
	Blob          BlobConfig          `envconfig:"BLOB"`
	S3            S3Config            `envconfig:"S3"`
	Session       SessionConfig       `envconfig:"SESSION"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	RateLimit     RateLimitConfig     `envconfig:"RATE_LIMIT"`
	AMQP          AMQPConfig          `envconfig:"AMQP"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
	CORS          CORSConfig          `envconfig:"CORS"`
	Log           LogConfig           `envconfig:"LOG"`
	AWS           AWSConfig           `envconfig:"AWS"`
}

type AWSConfig struct {
	Region     string `envconfig:"REGION" default:"eu-central-1"`
	Profile    string `envconfig:"PROFILE" default:""`
	SecretName string `envconfig:"SECRET_NAME" default:""`
}

type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"8000"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"development"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	BodyLimit    int           `envconfig:"BODY_LIMIT" default:"33554432"` // image arrays are ~4x the raw size
}

// StoreConfig selects the Credential Store backend.
type StoreConfig struct {
	Backend string        `envconfig:"BACKEND" default:"dynamodb"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

type DynamoDBConfig struct {
	UsersTableName  string `envconfig:"USERS_TABLE_NAME" default:"catalog-users"`
	MoviesTableName string `envconfig:"MOVIES_TABLE_NAME" default:"catalog-movies"`
	Region          string `envconfig:"REGION" default:"eu-central-1"`
	Endpoint        string `envconfig:"ENDPOINT" default:""` // dynamodb-local
}

type MongoConfig struct {
	URI              string `envconfig:"URI" default:"mongodb://localhost:27017"`
	Database         string `envconfig:"DATABASE" default:"catalog"`
	UsersCollection  string `envconfig:"USERS_COLLECTION" default:"users"`
	MoviesCollection string `envconfig:"MOVIES_COLLECTION" default:"movies"`
}

// BlobConfig selects the Blob Store backend.
type BlobConfig struct {
	Backend string        `envconfig:"BACKEND" default:"s3"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
	Dir     string        `envconfig:"DIR" default:"./data/blobs"`
}

type S3Config struct {
	Bucket       string `envconfig:"BUCKET" default:"catalog-images"`
	Region       string `envconfig:"REGION" default:"eu-central-1"`
	Endpoint     string `envconfig:"ENDPOINT" default:""`
	UsePathStyle bool   `envconfig:"USE_PATH_STYLE" default:"false"`
}

type SessionConfig struct {
	SigningSecret  string        `envconfig:"SIGNING_SECRET" default:""` // empty = opaque UUID tokens
	CookieLifetime time.Duration `envconfig:"COOKIE_LIFETIME" default:"8736h"` // 52 weeks
	CookieSecure   bool          `envconfig:"COOKIE_SECURE" default:"false"`
}

type RedisConfig struct {
	Enabled             bool          `envconfig:"ENABLED" default:"false"`
	Address             string        `envconfig:"ADDRESS" default:"localhost:6379"`
	Password            string        `envconfig:"PASSWORD" default:""`
	Database            int           `envconfig:"DATABASE" default:"0"`
	MaxRetries          int           `envconfig:"MAX_RETRIES" default:"3"`
	PoolSize            int           `envconfig:"POOL_SIZE" default:"100"`
	PoolTimeout         time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	TLSEnabled          bool          `envconfig:"TLS_ENABLED" default:"false"`
	PasswordFromSecrets bool          `envconfig:"PASSWORD_FROM_SECRETS" default:"false"`
	ClusterMode         bool          `envconfig:"CLUSTER_MODE" default:"false"`
	RouteByLatency      bool          `envconfig:"ROUTE_BY_LATENCY" default:"true"`
	RouteRandomly       bool          `envconfig:"ROUTE_RANDOMLY" default:"false"`
	ReadOnly            bool          `envconfig:"READ_ONLY" default:"false"`
	IdempotencyTTL      time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"5m"`
}

type RateLimitConfig struct {
	RPS         int           `envconfig:"RPS" default:"50"`
	Burst       int           `envconfig:"BURST" default:"100"`
	WindowSize  time.Duration `envconfig:"WINDOW_SIZE" default:"1s"`
	Enabled     bool          `envconfig:"ENABLED" default:"true"`
	ExemptPaths []string      `envconfig:"EXEMPT_PATHS" default:"/healthz,/readyz,/metrics"`
}

type AMQPConfig struct {
	URL   string `envconfig:"URL" default:""` // empty disables event publishing
	Queue string `envconfig:"QUEUE" default:"catalog.events"`
}

type ObservabilityConfig struct {
	MetricsPath    string  `envconfig:"METRICS_PATH" default:"/metrics"`
	OTLPEndpoint   string  `envconfig:"OTLP_ENDPOINT" default:"http://localhost:4318"`
	TracingEnabled bool    `envconfig:"TRACING_ENABLED" default:"false"`
	SampleRate     float64 `envconfig:"SAMPLE_RATE" default:"0.1"`
}

type CORSConfig struct {
	AllowOrigins string `envconfig:"ALLOW_ORIGINS" default:"*"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

func Load() (*Config, error) {
	// A .env file is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	// Additional processing for slice fields that envconfig doesn't handle well
	if exemptPaths := os.Getenv("RATE_LIMIT_EXEMPT_PATHS"); exemptPaths != "" {
		cfg.RateLimit.ExemptPaths = strings.Split(exemptPaths, ",")
		for i := range cfg.RateLimit.ExemptPaths {
			cfg.RateLimit.ExemptPaths[i] = strings.TrimSpace(cfg.RateLimit.ExemptPaths[i])
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", cfg.Server.Port)
	}

	switch cfg.Store.Backend {
	case StoreBackendDynamoDB:
		if cfg.DynamoDB.UsersTableName == "" || cfg.DynamoDB.MoviesTableName == "" {
			return fmt.Errorf("dynamodb table names are required")
		}
	case StoreBackendMongo:
		if cfg.Mongo.URI == "" || cfg.Mongo.Database == "" {
			return fmt.Errorf("mongo uri and database are required")
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}

	switch cfg.Blob.Backend {
	case BlobBackendS3:
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
	case BlobBackendDisk:
		if cfg.Blob.Dir == "" {
			return fmt.Errorf("blob dir is required for the disk backend")
		}
	case BlobBackendMemory:
	default:
		return fmt.Errorf("unknown blob backend: %q", cfg.Blob.Backend)
	}

	if cfg.Store.Timeout <= 0 || cfg.Blob.Timeout <= 0 {
		return fmt.Errorf("store and blob timeouts must be positive")
	}

	if cfg.Session.CookieLifetime <= 0 {
		return fmt.Errorf("invalid session cookie lifetime: %s", cfg.Session.CookieLifetime)
	}

	if cfg.Observability.SampleRate < 0 || cfg.Observability.SampleRate > 1 {
		return fmt.Errorf("invalid tracing sample rate: %f", cfg.Observability.SampleRate)
	}

	return nil
}
