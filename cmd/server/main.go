package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/documcp/api/internal/cache"
	"github.com/documcp/api/internal/config"
	"github.com/documcp/api/internal/database"
	"github.com/documcp/api/internal/eventbus"
	"github.com/documcp/api/internal/handlers"
	"github.com/documcp/api/internal/llm"
	"github.com/documcp/api/internal/middleware"
	"github.com/documcp/api/internal/orchestrator"
	"github.com/documcp/api/internal/telemetry"
	"github.com/documcp/api/internal/templates"
)

func main() {
	ctx := context.Background()

	// Initialize logger with stdout sync
	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	logger.Info("DocuMCP API starting...",
		zap.String("version", "0.1.0"),
		zap.String("environment", cfg.Environment),
		zap.String("model_endpoint", cfg.LMStudioURL),
	)

	logger.Info("Initializing telemetry...")
	shutdownTelemetry, err := telemetry.InitTracer(ctx, "documcp-api", cfg.OTLPEndpoint)
	if err != nil {
		// Collector might be down; run without traces.
		logger.Error("failed to initialize telemetry", zap.Error(err))
	} else {
		defer func() {
			if err := shutdownTelemetry(ctx); err != nil {
				logger.Error("failed to shutdown telemetry", zap.Error(err))
			}
		}()
	}

	// Model client and health tracker. The model endpoint is the one hard
	// dependency of the core, but a down endpoint at boot is survivable:
	// the tracker fails requests fast until it recovers.
	tracker := llm.NewTracker(cfg.HealthCooldown)
	tracker.OnStateChange = func(from, to llm.ConnState) {
		logger.Info("model connection state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	policy := llm.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.BaseBackoff = cfg.RetryBaseBackoff

	client := llm.NewClient(cfg.LMStudioURL, cfg.LMStudioModel, policy, tracker, logger)

	probeCtx, cancelProbe := context.WithTimeout(ctx, 10*time.Second)
	if modelID, err := client.Probe(probeCtx); err != nil {
		logger.Warn("model endpoint not reachable at startup", zap.Error(err))
	} else {
		logger.Info("connected to model endpoint", zap.String("model_id", modelID))
	}
	cancelProbe()

	// Optional infrastructure: each absent piece just degrades a feature.
	var db *database.Postgres
	var store *database.GenerationStore
	if cfg.DatabaseURL != "" {
		logger.Info("Initializing Postgres...")
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Error("failed to run migrations", zap.Error(err))
		}
		db, err = database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database, generation log disabled", zap.Error(err))
		} else {
			defer db.Close()
			store = database.NewGenerationStore(db)
			logger.Info("connected to database")
		}
	}

	var rdb *database.Redis
	var resultCache *cache.ResultCache
	if cfg.RedisURL != "" {
		logger.Info("Initializing Redis...")
		rdb, err = database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis, result cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			resultCache = cache.New(rdb, cfg.CacheTTL)
			logger.Info("connected to redis")
		}
	}

	var bus *eventbus.Bus
	if cfg.NATSURL != "" {
		logger.Info("Initializing NATS...")
		bus, err = eventbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS, events disabled", zap.Error(err))
		} else {
			defer bus.Close()
			logger.Info("connected to NATS")
		}
	}

	metrics := telemetry.NewMetrics()

	orch := orchestrator.New(client, templates.NewBuiltin(), tracker, metrics, logger, orchestrator.Config{
		GlobalTimeout:  cfg.GlobalTimeout,
		PerTypeTimeout: cfg.PerTypeTimeout,
	})

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(tracker, client, db, rdb)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/deep", healthHandler.DeepHealth)
	router.GET("/metrics", metrics.Handler())

	generationHandler := handlers.NewGenerationHandler(orch, resultCache, store, bus, logger)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimitMiddleware(middleware.DefaultRateLimiter))
	{
		v1.GET("/types", generationHandler.ListTypes)
		v1.GET("/generations", generationHandler.RecentGenerations)

		generate := v1.Group("")
		generate.Use(middleware.RateLimitMiddleware(middleware.GenerationRateLimiter))
		{
			generate.POST("/generate", generationHandler.Generate)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GlobalTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}
