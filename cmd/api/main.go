package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/analyze"
	"github.com/hr-assistant/backend/internal/answer"
	"github.com/hr-assistant/backend/internal/api/handlers"
	"github.com/hr-assistant/backend/internal/cache/redis"
	"github.com/hr-assistant/backend/internal/embedding"
	"github.com/hr-assistant/backend/internal/extract"
	"github.com/hr-assistant/backend/internal/llm"
	"github.com/hr-assistant/backend/internal/metrics"
	"github.com/hr-assistant/backend/internal/middleware/ratelimit"
	"github.com/hr-assistant/backend/internal/middleware/security"
	"github.com/hr-assistant/backend/internal/middleware/validation"
	"github.com/hr-assistant/backend/internal/pipeline"
	"github.com/hr-assistant/backend/internal/retrieval"
	"github.com/hr-assistant/backend/internal/storage"
	"github.com/hr-assistant/backend/pkg/config"
	appLogger "github.com/hr-assistant/backend/pkg/logger"
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

	appLogger.Info("Starting HR Document Intelligence API Server")

	metrics.Init()

	store, err := storage.New(cfg.Storage, cfg.LLM.EmbeddingDim)
	if err != nil {
		appLogger.Fatal("Failed to initialize document store", zap.Error(err))
	}
	defer store.Close()

	var embeddingCache embedding.Cache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			embeddingCache = redisClient
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	extractor := extract.NewExtractor()
	analyzer := analyze.NewAnalyzer(llmClient, cfg.Pipeline.ProcessingCharCap, cfg.Pipeline.SeniorYears, cfg.Pipeline.MidYears)
	indexer := embedding.NewIndexer(
		store,
		llmClient,
		embeddingCache,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.EmbeddingVersion,
		cfg.LLM.EmbeddingDim,
		cfg.Pipeline.ProcessingCharCap,
	)
	engine := retrieval.NewEngine(store, llmClient, cfg.Pipeline.LexicalWeight, cfg.Pipeline.SemanticWeight)
	generator := answer.NewGenerator(engine, llmClient, cfg.Pipeline.AnswerTopK, cfg.Pipeline.ExcerptLength)
	processor := pipeline.NewProcessor(store, extractor, analyzer, indexer)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Owner-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	documentHandler := handlers.NewDocumentHandler(processor, indexer, cfg.Pipeline.PreviewLength, cfg.Pipeline.BackfillLimit)
	searchHandler := handlers.NewSearchHandler(engine, cfg.Pipeline.PreviewLength)
	answerHandler := handlers.NewAnswerHandler(generator)
	wsHandler := handlers.NewWebSocketHandler(generator)

	api := app.Group("/api/v1")

	api.Post("/documents", documentHandler.UploadDocument)
	api.Get("/documents/:id", documentHandler.GetDocument)
	api.Post("/documents/:id/reanalyze", documentHandler.ReanalyzeDocument)
	api.Post("/documents/:id/embed", documentHandler.EmbedDocument)
	api.Post("/embeddings/backfill", documentHandler.BackfillEmbeddings)

	api.Post("/search", searchHandler.Search)
	api.Post("/answer", answerHandler.Answer)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

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

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
