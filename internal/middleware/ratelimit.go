package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cinelog/catalog-api/internal/config"
	"github.com/cinelog/catalog-api/internal/metrics"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const msgRateLimited = "Rate limit exceeded. Please try again later."

// Token bucket Lua script for atomic operations
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local tokens = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call("HMGET", key, "tokens", "last_refill")
local current_tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or 0

local now = redis.call("TIME")
local now_ms = now[1] * 1000 + math.floor(now[2] / 1000)

if last_refill > 0 then
    local elapsed = now_ms - last_refill
    local tokens_to_add = math.floor(elapsed / interval_ms * tokens)
    current_tokens = math.min(capacity, current_tokens + tokens_to_add)
end

local allowed = 0
if current_tokens >= requested then
    current_tokens = current_tokens - requested
    allowed = 1
end

redis.call("HMSET", key, "tokens", current_tokens, "last_refill", now_ms)
redis.call("EXPIRE", key, 3600)

return {allowed, current_tokens, capacity}`

// RateLimitMiddleware limits requests per authenticated user or per IP.
// With a Redis client the bucket is shared across instances; without one
// each instance keeps its own buckets.
type RateLimitMiddleware struct {
	config      *config.RateLimitConfig
	redisClient redis.UniversalClient
	logger      *logrus.Logger
	local       *localLimiter
}

func NewRateLimitMiddleware(cfg *config.RateLimitConfig, redisClient redis.UniversalClient, logger *logrus.Logger) *RateLimitMiddleware {
	r := &RateLimitMiddleware{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
	if redisClient == nil {
		r.local = newLocalLimiter(perSecond(cfg), cfg.Burst)
	}
	return r
}

func perSecond(cfg *config.RateLimitConfig) rate.Limit {
	if cfg.WindowSize <= 0 {
		return rate.Limit(cfg.RPS)
	}
	return rate.Limit(float64(cfg.RPS) / cfg.WindowSize.Seconds())
}

// Handle rate limiting middleware
func (r *RateLimitMiddleware) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !r.config.Enabled {
			return c.Next()
		}

		path := c.Path()
		for _, exemptPath := range r.config.ExemptPaths {
			if strings.HasPrefix(path, exemptPath) {
				return c.Next()
			}
		}

		key, keyType := r.generateKey(c)

		var (
			allowed   bool
			remaining int
			err       error
		)
		if r.redisClient != nil {
			allowed, remaining, err = r.checkRedis(c.UserContext(), key)
			if err != nil {
				r.logger.WithError(err).Error("Rate limit check failed")
				// Allow request on Redis failure to avoid blocking traffic
				return c.Next()
			}
		} else {
			allowed, remaining = r.local.allow(key)
		}

		resetTime := time.Now().Add(r.config.WindowSize).Truncate(time.Second)
		r.setRateLimitHeaders(c, remaining, resetTime)

		if !allowed {
			metrics.RecordRateLimitDrop(keyType)
			r.logger.WithFields(logrus.Fields{
				"key":    key,
				"path":   path,
				"method": c.Method(),
			}).Warn("Rate limit exceeded")

			return apperrors.Respond(c, apperrors.NewAppError(apperrors.CodeRateLimited, msgRateLimited, nil))
		}

		return c.Next()
	}
}

// Close stops the local bucket janitor.
func (r *RateLimitMiddleware) Close() {
	if r.local != nil {
		r.local.stop()
	}
}

// generateKey keys on the user only once the session middleware has
// authenticated one; an unverified username cookie falls back to the IP.
func (r *RateLimitMiddleware) generateKey(c *fiber.Ctx) (string, string) {
	if user := GetUser(c); user != nil {
		return fmt.Sprintf("ratelimit:user:%s", user.Name), "user"
	}
	return fmt.Sprintf("ratelimit:ip:%s", clientIP(c)), "ip"
}

// clientIP extracts the real client IP
func clientIP(c *fiber.Ctx) string {
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	return c.IP()
}

func (r *RateLimitMiddleware) checkRedis(ctx context.Context, key string) (allowed bool, remaining int, err error) {
	defer func(start time.Time) { metrics.RecordRedisOperation("ratelimit_eval", err, time.Since(start)) }(time.Now())

	result, err := r.redisClient.Eval(ctx, tokenBucketScript, []string{key},
		r.config.Burst, r.config.RPS, int(r.config.WindowSize.Milliseconds()), 1).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to execute rate limit script: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 3 {
		return false, 0, fmt.Errorf("unexpected script result format")
	}

	allowedInt, ok := resultSlice[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("failed to parse allowed result")
	}

	remainingInt, ok := resultSlice[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("failed to parse remaining result")
	}

	return allowedInt == 1, int(remainingInt), nil
}

// setRateLimitHeaders sets standard rate limit headers
func (r *RateLimitMiddleware) setRateLimitHeaders(c *fiber.Ctx, remaining int, resetTime time.Time) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(r.config.RPS))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

	if remaining <= 0 {
		retryAfter := int(time.Until(resetTime).Seconds()) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Set("Retry-After", strconv.Itoa(retryAfter))
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localLimiter keeps one token bucket per key in process memory.
type localLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	done     chan struct{}
	once     sync.Once
}

func newLocalLimiter(limit rate.Limit, burst int) *localLimiter {
	l := &localLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		done:     make(chan struct{}),
	}
	go l.cleanup(10 * time.Minute)
	return l
}

func (l *localLimiter) allow(key string) (bool, int) {
	l.mu.Lock()
	v, exists := l.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()

	allowed := v.limiter.Allow()
	return allowed, int(v.limiter.Tokens())
}

func (l *localLimiter) cleanup(idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			for key, v := range l.visitors {
				if time.Since(v.lastSeen) > idle {
					delete(l.visitors, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *localLimiter) stop() {
	l.once.Do(func() { close(l.done) })
}
