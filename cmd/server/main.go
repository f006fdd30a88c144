package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicai/server/adapters/llm"
	"github.com/clinicai/server/adapters/mongo"
	"github.com/clinicai/server/adapters/queue"
	"github.com/clinicai/server/domain/repositories"
	"github.com/clinicai/server/intake"
	"github.com/clinicai/server/internal/api"
	"github.com/clinicai/server/internal/auth"
	"github.com/clinicai/server/internal/config"
	"github.com/clinicai/server/internal/events"
	"github.com/clinicai/server/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Storage
	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	visits := mongo.NewVisitRepository(mongoClient.Database)

	// Job queue
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	jobQueue := queue.NewRedisQueue(redisClient, cfg.QueueName, 0, logger)

	// Language model
	var languageModel repositories.LanguageModel
	if cfg.UseMocks {
		languageModel = llm.NewMockLLM()
		logger.Warn("using mock language model")
	} else {
		languageModel, err = llm.NewGeminiLLM(llm.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		}, logger)
		if err != nil {
			logger.Fatal("failed to create Gemini client", zap.Error(err))
		}
	}

	// Dialogue policy and use cases
	engine := intake.NewEngine(
		languageModel,
		intake.NewKeywordClassifier(),
		intake.NewKeywordAnalyzer(),
		cfg.Intake,
		logger,
	)

	hub := events.NewHub(logger)
	go hub.Run()

	intakeService := usecase.NewAnswerIntakeService(visits, engine, hub, logger)
	summaries := usecase.NewSummaryService(languageModel, logger)

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		logger.Fatal("failed to create token service", zap.Error(err))
	}

	handler := api.NewHandler(intakeService, summaries, visits, jobQueue, hub, tokens, logger)
	handler.InitRoutes(e)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if err := mongoClient.Close(ctx); err != nil {
		logger.Error("MongoDB shutdown error", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		logger.Error("Redis shutdown error", zap.Error(err))
	}

	logger.Info("Server exited")
}
