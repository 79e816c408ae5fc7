package routes

import (
	"context"
	"time"

	"github.com/cinelog/catalog-api/internal/auth"
	"github.com/cinelog/catalog-api/internal/blob"
	"github.com/cinelog/catalog-api/internal/catalog"
	"github.com/cinelog/catalog-api/internal/config"
	"github.com/cinelog/catalog-api/internal/logging"
	"github.com/cinelog/catalog-api/internal/metrics"
	"github.com/cinelog/catalog-api/internal/middleware"
	"github.com/cinelog/catalog-api/internal/session"
	"github.com/cinelog/catalog-api/internal/store"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/sirupsen/logrus"
)

const serviceName = "catalog-api"

// Set at build time with -ldflags "-X".
var (
	commit    = "unknown"
	buildTime = "unknown"
)

// Dependencies are the components the handlers are built from.
type Dependencies struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Middleware *middleware.Manager
	Store      *store.Store
	Blobs      blob.Store
	Codec      *session.Codec
	Accounts   *auth.Accounts
	Writer     *catalog.Writer
	Reader     *catalog.Reader
}

// Setup configures all API routes
func Setup(app *fiber.App, deps Dependencies) {
	cfg := deps.Config
	mw := deps.Middleware

	authHandler := NewAuthHandler(deps.Accounts, deps.Codec, cfg.Session.CookieSecure, deps.Logger)
	movieHandler := NewMovieHandler(deps.Writer, deps.Reader, deps.Logger)
	thumbnailHandler := NewThumbnailHandler(deps.Blobs, deps.Logger)

	app.Use(metrics.HTTPMetricsMiddleware())
	app.Use(mw.ErrorLogger.Handle())

	// Health check endpoints (no auth required)
	app.Get("/healthz", healthCheck)
	app.Get("/readyz", readinessCheck(deps))
	app.Get("/version", versionHandler)

	app.Get(cfg.Observability.MetricsPath, metrics.PrometheusHandler())
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Post("/logout", mw.RateLimit.Handle(), authHandler.Logout)

	api := app.Group("/api")
	api.Use(mw.RateLimit.Handle())
	api.Use(mw.Idempotency.Handle())

	api.Post("/login", authHandler.Login)
	api.Post("/users", authHandler.Register)

	api.Get("/movies", movieHandler.List)
	api.Get("/movies/:username", mw.Session.Authenticate(middleware.NameFromParam("username")), movieHandler.ListByOwner)
	api.Post("/add-movie", mw.Session.Authenticate(middleware.NameFromCookie), movieHandler.Create)
	api.Delete("/movies", mw.Session.Authenticate(middleware.NameFromCookie), movieHandler.Delete)

	api.Get("/thumbnail/:key?", thumbnailHandler.Get)

	// 404 handler
	app.Use(notFoundHandler)
}

// healthCheck returns the health status of the service
// @Summary Health check
// @Description Check if the service is healthy
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Healthy"
// @Router /healthz [get]
func healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   serviceName,
	})
}

// readinessCheck checks if the service is ready to accept traffic
// @Summary Readiness check
// @Description Check the credential store and, when enabled, Redis
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Ready"
// @Failure 503 {object} map[string]interface{} "Not ready"
// @Router /readyz [get]
func readinessCheck(deps Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			deps.Logger.WithError(err).Error("Credential store health check failed")
			return notReady(c, "credential store unavailable", err)
		}

		if client := deps.Middleware.RedisClient; client != nil {
			if err := middleware.RedisHealthCheck(client, deps.Logger)(ctx); err != nil {
				return notReady(c, "redis unavailable", err)
			}
		}

		status := fiber.Map{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
		}
		// An open breaker degrades uploads and thumbnails only; report it
		// without failing readiness.
		if breaker, ok := deps.Blobs.(*blob.Breaker); ok {
			status["blob_breaker"] = breaker.Stats()
		}
		return c.JSON(status)
	}
}

func notReady(c *fiber.Ctx, reason string, err error) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"status":    "not ready",
		"reason":    reason,
		"error":     err.Error(),
		"timestamp": time.Now().UTC(),
	})
}

// versionHandler returns version information
// @Summary Version information
// @Description Get service version and build information
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Version info"
// @Router /version [get]
func versionHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": serviceName,
		"version": logging.Version(),
		"commit":  commit,
		"built":   buildTime,
	})
}

// notFoundHandler handles 404 errors
func notFoundHandler(c *fiber.Ctx) error {
	return apperrors.Respond(c, apperrors.NotFound(nil))
}
