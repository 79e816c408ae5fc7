package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/cinelog/catalog-api/docs" // Swagger docs
	"github.com/cinelog/catalog-api/internal/auth"
	"github.com/cinelog/catalog-api/internal/blob"
	"github.com/cinelog/catalog-api/internal/catalog"
	"github.com/cinelog/catalog-api/internal/config"
	"github.com/cinelog/catalog-api/internal/events"
	"github.com/cinelog/catalog-api/internal/logging"
	"github.com/cinelog/catalog-api/internal/metrics"
	"github.com/cinelog/catalog-api/internal/middleware"
	"github.com/cinelog/catalog-api/internal/routes"
	"github.com/cinelog/catalog-api/internal/session"
	"github.com/cinelog/catalog-api/internal/store"
	"github.com/cinelog/catalog-api/internal/store/dynamo"
	"github.com/cinelog/catalog-api/internal/store/memory"
	"github.com/cinelog/catalog-api/internal/store/mongo"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// @title Catalog API
// @version 1.0
// @description Movie catalog with cookie sessions, image uploads and per-user listings

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8000
// @BasePath /

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logging.New(cfg)

	// Initialize metrics
	if err := metrics.Init(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize metrics")
	}

	// Initialize tracing
	tracingShutdown, err := middleware.InitTracing(cfg, logging.Version(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to setup tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown tracing")
		}
	}()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx := context.Background()

	// Credential store
	st, err := initializeStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize credential store")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.WithError(err).Error("Failed to close credential store")
		}
	}()

	// Blob store, guarded by a circuit breaker
	blobs, err := initializeBlobs(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize blob store")
	}
	guardedBlobs := blob.NewBreaker(blobs, logger)

	// Catalog events
	var publisher events.Publisher = events.Nop{}
	if cfg.AMQP.URL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		amqpPublisher, err := events.NewAMQP(dialCtx, cfg.AMQP.URL, cfg.AMQP.Queue, logger)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to AMQP broker, catalog events disabled")
		} else {
			publisher = amqpPublisher
		}
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.WithError(err).Error("Failed to close event publisher")
		}
	}()

	codec := session.NewCodec(cfg.Session.SigningSecret, cfg.Session.CookieLifetime)
	guard := auth.NewGuard(st.Users, codec)
	accounts := auth.NewAccounts(st.Users, codec, logger)

	// Initialize middleware manager
	middlewareManager, err := middleware.NewManager(cfg, guard, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize middleware manager")
	}
	defer func() {
		if err := middlewareManager.Close(); err != nil {
			logger.WithError(err).Error("Failed to close middleware manager")
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:      "Catalog API",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			logger.WithError(err).WithFields(logrus.Fields{
				"method": c.Method(),
				"path":   c.Path(),
				"status": code,
			}).Error("Request error")

			if code == fiber.StatusInternalServerError {
				return apperrors.Respond(c, err)
			}
			return c.Status(code).JSON(apperrors.ErrorResponse{Error: err.Error()})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowMethods:     "GET,POST,HEAD,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,X-Requested-With," + middleware.HeaderIdempotencyKey,
		AllowCredentials: cfg.CORS.AllowOrigins != "*",
		MaxAge:           86400,
	}))
	app.Use(otelfiber.Middleware())

	// pprof (accessible at /debug/pprof/)
	app.Use(pprof.New())

	routes.Setup(app, routes.Dependencies{
		Config:     cfg,
		Logger:     logger,
		Middleware: middlewareManager,
		Store:      st,
		Blobs:      guardedBlobs,
		Codec:      codec,
		Accounts:   accounts,
		Writer:     catalog.NewWriter(st.Users, st.Movies, guardedBlobs, publisher, logger),
		Reader:     catalog.NewReader(st.Movies),
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Gracefully shutting down...")
		if err := app.Shutdown(); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	logger.WithFields(logrus.Fields{
		"port":          cfg.Server.Port,
		"store_backend": cfg.Store.Backend,
		"blob_backend":  cfg.Blob.Backend,
	}).Info("Starting Catalog API server")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Error("Server failed to start")
	}
}

func initializeStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return dynamo.New(client, cfg), nil
	case config.StoreBackendMongo:
		return mongo.Connect(ctx, cfg, logger)
	case config.StoreBackendMemory:
		logger.Warn("Using in-memory credential store, data is lost on restart")
		return memory.New().Store(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}

func initializeBlobs(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case config.BlobBackendS3:
		client, err := blob.NewS3Client(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return blob.NewS3(client, cfg.S3.Bucket, cfg.Blob.Timeout), nil
	case config.BlobBackendDisk:
		return blob.NewDisk(cfg.Blob.Dir, cfg.Blob.Timeout)
	case config.BlobBackendMemory:
		logger.Warn("Using in-memory blob store, images are lost on restart")
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend: %q", cfg.Blob.Backend)
	}
}
