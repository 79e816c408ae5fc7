package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cinelog/catalog-api/internal/metrics"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// IdempotencyMiddleware replays the cached 2xx response of a POST that is
// retried with the same Idempotency-Key. Requests without the header, and
// all requests when no Redis client is configured, pass through untouched.
type IdempotencyMiddleware struct {
	redisClient redis.UniversalClient
	logger      *logrus.Logger
	ttl         time.Duration
}

// IdempotencyRecord is a cached response. Headers keep every value so that
// several Set-Cookie lines survive the round trip.
type IdempotencyRecord struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       string              `json:"body"`
	CreatedAt  time.Time           `json:"created_at"`
}

func NewIdempotencyMiddleware(redisClient redis.UniversalClient, ttl time.Duration, logger *logrus.Logger) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &IdempotencyMiddleware{
		redisClient: redisClient,
		logger:      logger,
		ttl:         ttl,
	}
}

func (i *IdempotencyMiddleware) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if i.redisClient == nil || c.Method() != fiber.MethodPost {
			return c.Next()
		}

		idempotencyKey := c.Get(HeaderIdempotencyKey)
		if idempotencyKey == "" {
			return c.Next()
		}
		if _, err := uuid.Parse(idempotencyKey); err != nil {
			return apperrors.Respond(c, apperrors.BadRequest("Idempotency-Key must be a valid UUID"))
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		fingerprint := i.generateFingerprint(c)
		redisKey := fmt.Sprintf("idempotency:%s", idempotencyKey)

		existing, err := i.getRecord(ctx, redisKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			i.logger.WithError(err).Error("Failed to get idempotency record")
		}

		if existing != nil {
			existingFingerprint, err := i.redisClient.Get(ctx, redisKey+":fingerprint").Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				i.logger.WithError(err).Error("Failed to get fingerprint")
			}

			if existingFingerprint != "" && existingFingerprint != fingerprint {
				metrics.RecordIdempotencyHit("conflict")
				return apperrors.Respond(c, apperrors.Conflict("Request differs from original request with same Idempotency-Key", nil))
			}

			metrics.RecordIdempotencyHit("replay")
			return i.replay(c, existing)
		}

		if err := i.redisClient.Set(ctx, redisKey+":fingerprint", fingerprint, i.ttl).Err(); err != nil {
			i.logger.WithError(err).Error("Failed to store fingerprint")
		}

		err = c.Next()

		statusCode := c.Response().StatusCode()
		if err == nil && statusCode >= 200 && statusCode < 300 {
			record := captureResponse(c)

			storeCtx, storeCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer storeCancel()
			if err := i.storeRecord(storeCtx, redisKey, record); err != nil {
				i.logger.WithError(err).WithField("idempotency_key", idempotencyKey).Error("Failed to store idempotency record")
			}
		}

		return err
	}
}

// generateFingerprint hashes method, path, body and the claimed user
func (i *IdempotencyMiddleware) generateFingerprint(c *fiber.Ctx) string {
	h := sha256.New()

	h.Write([]byte(c.Method()))
	h.Write([]byte(":"))
	h.Write([]byte(c.Path()))
	h.Write([]byte(":"))
	h.Write(c.Body())
	h.Write([]byte(":"))
	h.Write([]byte(GetUsername(c)))

	return hex.EncodeToString(h.Sum(nil))
}

func (i *IdempotencyMiddleware) getRecord(ctx context.Context, key string) (record *IdempotencyRecord, err error) {
	defer func(start time.Time) { metrics.RecordRedisOperation("idempotency_get", ignoreNil(err), time.Since(start)) }(time.Now())

	data, err := i.redisClient.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	record = &IdempotencyRecord{}
	if err := json.Unmarshal([]byte(data), record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return record, nil
}

func (i *IdempotencyMiddleware) storeRecord(ctx context.Context, key string, record *IdempotencyRecord) (err error) {
	defer func(start time.Time) { metrics.RecordRedisOperation("idempotency_set", err, time.Since(start)) }(time.Now())

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}
	return i.redisClient.Set(ctx, key, data, i.ttl).Err()
}

// captureResponse copies the status, body and replayable headers of the
// current response. Login and registration answer with session cookies, so
// Set-Cookie is kept.
func captureResponse(c *fiber.Ctx) *IdempotencyRecord {
	record := &IdempotencyRecord{
		StatusCode: c.Response().StatusCode(),
		Headers:    make(map[string][]string),
		Body:       string(c.Response().Body()),
		CreatedAt:  time.Now(),
	}

	c.Response().Header.VisitAll(func(key, value []byte) {
		if name := string(key); shouldCacheHeader(name) {
			record.Headers[name] = append(record.Headers[name], string(value))
		}
	})
	return record
}

func (i *IdempotencyMiddleware) replay(c *fiber.Ctx, record *IdempotencyRecord) error {
	for key, values := range record.Headers {
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
	c.Set("X-Idempotency-Cached", "true")

	return c.Status(record.StatusCode).SendString(record.Body)
}

func shouldCacheHeader(header string) bool {
	switch strings.ToLower(header) {
	case "content-type", "location", "x-request-id", "set-cookie":
		return true
	}
	return false
}

func ignoreNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
