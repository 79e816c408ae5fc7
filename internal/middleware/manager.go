package middleware

import (
	"fmt"

	"github.com/cinelog/catalog-api/internal/auth"
	"github.com/cinelog/catalog-api/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Manager holds all middleware instances
type Manager struct {
	Session     *SessionMiddleware
	Idempotency *IdempotencyMiddleware
	RateLimit   *RateLimitMiddleware
	ErrorLogger *ErrorLoggerMiddleware
	RedisClient redis.UniversalClient
	Config      *config.Config
	Logger      *logrus.Logger
}

// NewManager creates a new middleware manager. Redis is optional: without
// it rate limiting is per instance and idempotency keys are ignored.
func NewManager(cfg *config.Config, guard *auth.Guard, logger *logrus.Logger) (*Manager, error) {
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := NewRedisClient(&cfg.Redis, &cfg.AWS, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		redisClient = client
	} else {
		logger.Info("Redis is disabled, using in-process rate limiting")
	}

	return NewManagerWithClient(cfg, guard, redisClient, logger), nil
}

// NewManagerWithClient wires the middleware around an existing (possibly nil) Redis client.
func NewManagerWithClient(cfg *config.Config, guard *auth.Guard, redisClient redis.UniversalClient, logger *logrus.Logger) *Manager {
	return &Manager{
		Session:     NewSessionMiddleware(guard, logger),
		Idempotency: NewIdempotencyMiddleware(redisClient, cfg.Redis.IdempotencyTTL, logger),
		RateLimit:   NewRateLimitMiddleware(&cfg.RateLimit, redisClient, logger),
		ErrorLogger: NewErrorLoggerMiddleware(logger),
		RedisClient: redisClient,
		Config:      cfg,
		Logger:      logger,
	}
}

// Close closes all middleware resources
func (m *Manager) Close() error {
	m.RateLimit.Close()
	if m.RedisClient != nil {
		return m.RedisClient.Close()
	}
	return nil
}
