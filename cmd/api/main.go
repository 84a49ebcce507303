package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/vivi-ai/backend/internal/api/handlers"
	cache "github.com/vivi-ai/backend/internal/cache/redis"
	"github.com/vivi-ai/backend/internal/conversation"
	"github.com/vivi-ai/backend/internal/extraction"
	"github.com/vivi-ai/backend/internal/filestore"
	"github.com/vivi-ai/backend/internal/ingestion"
	"github.com/vivi-ai/backend/internal/metrics"
	"github.com/vivi-ai/backend/internal/middleware/ratelimit"
	"github.com/vivi-ai/backend/internal/middleware/security"
	"github.com/vivi-ai/backend/internal/middleware/validation"
	"github.com/vivi-ai/backend/internal/ollama"
	"github.com/vivi-ai/backend/internal/retrieval"
	"github.com/vivi-ai/backend/internal/storage/sqlite"
	"github.com/vivi-ai/backend/pkg/config"
	appLogger "github.com/vivi-ai/backend/pkg/logger"
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

	appLogger.Info("Starting Vivi document chat API server")

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

	files, err := filestore.New(cfg.Upload.Dir)
	if err != nil {
		appLogger.Fatal("Failed to create upload directory", zap.Error(err))
	}

	// Redis is optional; a miss on startup degrades caching, not the service.
	var cacheClient *cache.Client
	cacheClient, err = cache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		cacheClient = nil
	} else {
		defer cacheClient.Close()
	}

	ollamaClient := ollama.NewClient(ollama.Config{
		BaseURL:        cfg.Ollama.BaseURL,
		ChatModel:      cfg.Ollama.ChatModel,
		VisionModel:    cfg.Ollama.VisionModel,
		EmbeddingModel: cfg.Ollama.EmbeddingModel,
		Timeout:        time.Duration(cfg.Ollama.TimeoutSec) * time.Second,
		VisionTimeout:  time.Duration(cfg.Ollama.VisionTimeoutSec) * time.Second,
	})

	extractor := extraction.NewExtractor(ollamaClient, cfg.Ollama.ChatModel, cfg.Ollama.VisionModel)

	var embeddingCache ingestion.EmbeddingCache
	if cacheClient != nil {
		embeddingCache = cacheClient
	}
	processor := ingestion.NewProcessor(sqliteClient, files, extractor, ollamaClient, embeddingCache, cfg.Ollama.EmbeddingModel)

	retriever := retrieval.New(cfg.Search.ExcerptLength)

	assembler := conversation.NewAssembler(sqliteClient, cfg.Chat.ContextDocuments, cfg.Chat.ContextContentLimit, cfg.Chat.HistoryLimit)
	manager := conversation.NewManager(sqliteClient, ollamaClient, assembler, cfg.Chat.HistoryLimit)

	documentHandler := handlers.NewDocumentHandler(sqliteClient, files, processor, retriever, cfg.Upload.MaxFileSize, cfg.Search.DefaultLimit)
	chatHandler := handlers.NewChatHandler(manager, ollamaClient)
	var modelCache handlers.ModelCache
	if cacheClient != nil {
		modelCache = cacheClient
	}
	modelHandler := handlers.NewModelHandler(ollamaClient, modelCache)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, X-Organization-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	apiLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.APIPerWindow,
		WindowDuration:       time.Duration(cfg.RateLimit.APIWindowMinutes) * time.Minute,
		Logger:               appLogger.GetLogger(),
	})
	defer apiLimiter.Stop()
	chatLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.ChatPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer chatLimiter.Stop()
	uploadLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.UploadsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer uploadLimiter.Stop()

	api := app.Group("/api/v1", apiLimiter.Middleware())

	api.Post("/documents", uploadLimiter.Middleware(), documentHandler.Upload)
	api.Get("/documents", documentHandler.List)
	api.Post("/documents/:id/process", documentHandler.Process)
	api.Post("/documents/:id/reprocess", documentHandler.Reprocess)
	api.Post("/search", documentHandler.Search)

	api.Post("/chat", chatLimiter.Middleware(), chatHandler.Chat)
	api.Post("/sessions", chatHandler.CreateSession)
	api.Get("/sessions", chatHandler.ListSessions)

	api.Get("/models", modelHandler.List)

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

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
