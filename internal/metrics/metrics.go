package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_requests_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status_code"},
	)

	// Credential store calls
	storeCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_call_duration_seconds",
			Help:    "Credential store call duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"backend", "operation", "status"},
	)

	// Blob store calls
	blobCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blob_call_duration_seconds",
			Help:    "Blob store call duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"backend", "operation", "status"},
	)

	blobBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blob_circuit_breaker_state",
			Help: "Blob store circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
	)

	// Catalog writer outcomes
	catalogWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_writes_total",
			Help: "Total number of CreateMovie calls by outcome",
		},
		[]string{"outcome"}, // committed, committed_with_warning, conflict, unauthorized, store_error, blob_error
	)

	ownerLinkFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_owner_link_failures_total",
			Help: "Movies committed without an owner link because the user update failed",
		},
	)

	orphanedBlobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_orphaned_blobs_total",
			Help: "Uploaded images left without a movie record",
		},
		[]string{"reason"},
	)

	// Rate limiting metrics
	rateLimitDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_dropped_total",
			Help: "Total number of requests dropped due to rate limiting",
		},
		[]string{"key_type"}, // user or ip
	)

	// Idempotency metrics
	idempotencyHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_hits_total",
			Help: "Total number of idempotency hits",
		},
		[]string{"type"}, // hit or miss
	)

	// Redis metrics
	redisOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	redisOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	// Event publishing
	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_events_published_total",
			Help: "Catalog events handed to the broker",
		},
		[]string{"type", "status"},
	)
)

var registerOnce sync.Once

// Init registers the metrics with the default registry. Safe to call more than once.
func Init() error {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			storeCallDuration,
			blobCallDuration,
			blobBreakerState,
			catalogWritesTotal,
			ownerLinkFailuresTotal,
			orphanedBlobsTotal,
			rateLimitDroppedTotal,
			idempotencyHitsTotal,
			redisOperationsTotal,
			redisOperationDuration,
			eventsPublishedTotal,
		)
	})

	return nil
}

// HTTPMetricsMiddleware records HTTP metrics
func HTTPMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		method := c.Method()
		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}
		statusCode := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
		httpRequestDuration.WithLabelValues(method, route, statusCode).Observe(duration)

		return err
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStoreCall records a credential store call
func RecordStoreCall(backend, operation string, err error, duration time.Duration) {
	storeCallDuration.WithLabelValues(backend, operation, status(err)).Observe(duration.Seconds())
}

// RecordBlobCall records a blob store call
func RecordBlobCall(backend, operation string, err error, duration time.Duration) {
	blobCallDuration.WithLabelValues(backend, operation, status(err)).Observe(duration.Seconds())
}

// SetBlobBreakerState publishes the circuit breaker state
func SetBlobBreakerState(state int) {
	blobBreakerState.Set(float64(state))
}

// RecordCatalogWrite records the outcome of a CreateMovie call
func RecordCatalogWrite(outcome string) {
	catalogWritesTotal.WithLabelValues(outcome).Inc()
}

// RecordOwnerLinkFailure records a swallowed owner-link update failure
func RecordOwnerLinkFailure() {
	ownerLinkFailuresTotal.Inc()
}

// RecordOrphanedBlob records an image left behind without a movie record
func RecordOrphanedBlob(reason string) {
	orphanedBlobsTotal.WithLabelValues(reason).Inc()
}

// RecordRateLimitDrop records rate limit drops
func RecordRateLimitDrop(keyType string) {
	rateLimitDroppedTotal.WithLabelValues(keyType).Inc()
}

// RecordIdempotencyHit records idempotency cache hits/misses
func RecordIdempotencyHit(hitType string) {
	idempotencyHitsTotal.WithLabelValues(hitType).Inc()
}

// RecordRedisOperation records Redis operations
func RecordRedisOperation(operation string, err error, duration time.Duration) {
	redisOperationsTotal.WithLabelValues(operation, status(err)).Inc()
	redisOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEventPublished records an event publish attempt
func RecordEventPublished(eventType string, err error) {
	eventsPublishedTotal.WithLabelValues(eventType, status(err)).Inc()
}

// PrometheusHandler returns the Prometheus metrics handler
func PrometheusHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
