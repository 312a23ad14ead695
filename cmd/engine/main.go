package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/anchor"
	"github.com/anchorwatch/backend/internal/api/handlers"
	"github.com/anchorwatch/backend/internal/cache/redis"
	"github.com/anchorwatch/backend/internal/embedding"
	"github.com/anchorwatch/backend/internal/enrich"
	"github.com/anchorwatch/backend/internal/ingest"
	"github.com/anchorwatch/backend/internal/matcher"
	"github.com/anchorwatch/backend/internal/metrics"
	"github.com/anchorwatch/backend/internal/middleware/ratelimit"
	"github.com/anchorwatch/backend/internal/middleware/security"
	"github.com/anchorwatch/backend/internal/middleware/validation"
	"github.com/anchorwatch/backend/internal/pipeline"
	"github.com/anchorwatch/backend/internal/stats"
	"github.com/anchorwatch/backend/internal/storage/sqlite"
	"github.com/anchorwatch/backend/internal/vector/milvus"
	"github.com/anchorwatch/backend/pkg/config"
	appLogger "github.com/anchorwatch/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Anchorwatch matching engine")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	var vectorCache embedding.Cache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without vector cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			vectorCache = redisClient
		}
	}

	resolver := embedding.NewResolver(milvusClient, vectorCache, time.Duration(cfg.Redis.TTLSec)*time.Second)
	compositor := anchor.NewCompositor(resolver)

	docMatcher, err := matcher.New(sqliteClient, resolver, compositor, matcher.Config{
		BatchSize:        cfg.Matcher.BatchSize,
		Workers:          cfg.Matcher.Workers,
		ChunkAggregation: cfg.Matcher.ChunkAggregation,
		ChunkTopK:        cfg.Matcher.ChunkTopK,
		PreFilterScore:   cfg.Matcher.PreFilterScore,
		NoisyCategories:  cfg.Matcher.NoisyCategories,
	})
	if err != nil {
		appLogger.Fatal("Invalid matcher configuration", zap.Error(err))
	}

	statsService := stats.NewService(sqliteClient, stats.Config{
		WindowDays: cfg.Stats.WindowDays,
		MinSamples: cfg.Stats.MinSamples,
	})

	classifier := enrich.New(sqliteClient, statsService, enrich.Config{
		BatchSize:         cfg.Enrichment.BatchSize,
		Tier1Threshold:    cfg.Enrichment.Tier1Threshold,
		FallbackThreshold: cfg.Enrichment.FallbackThreshold,
	})

	tracker := pipeline.NewTracker(sqliteClient)
	runner := pipeline.NewRunner(sqliteClient, statsService, docMatcher, classifier, tracker)
	ingestor := ingest.NewIngestor(sqliteClient, milvusClient, tracker, cfg.Milvus.VectorDim)

	runCtx, cancelRuns := context.WithCancel(context.Background())
	go runner.Schedule(runCtx, time.Duration(cfg.Pipeline.IntervalSec)*time.Second, cfg.Pipeline.RunOnStart)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.MaxBodySize,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(security.Headers(cfg.Server.Development))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(validation.Middleware(validation.Config{MaxBodySize: cfg.Server.MaxBodySize}))

	highlightsHandler := handlers.NewHighlightsHandler(sqliteClient)
	adminHandler := handlers.NewAdminHandler(tracker)
	ingestHandler := handlers.NewIngestHandler(ingestor)

	var invalidator handlers.Invalidator
	if redisClient != nil {
		invalidator = redisClient
	}
	registryHandler := handlers.NewRegistryHandler(sqliteClient, invalidator)

	limiter := ratelimit.New(cfg.Server.RateLimitPerMinute)

	api := app.Group("/api/v1")

	api.Get("/highlights", highlightsHandler.GetHighlights)
	api.Get("/runs", highlightsHandler.GetRuns)
	api.Post("/documents", limiter.Middleware(), ingestHandler.SubmitDocument)
	api.Post("/sources", limiter.Middleware(), registryHandler.CreateSource)
	api.Post("/anchors", limiter.Middleware(), registryHandler.CreateAnchor)
	api.Get("/admin/frontiers", adminHandler.Frontiers)
	api.Post("/admin/reset", limiter.Middleware(), adminHandler.Reset)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down gracefully...")
	cancelRuns()
	app.Shutdown()
	appLogger.Info("Engine stopped")
}
