package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicai/server/adapters/llm"
	"github.com/clinicai/server/adapters/mongo"
	"github.com/clinicai/server/adapters/queue"
	"github.com/clinicai/server/adapters/stt"
	"github.com/clinicai/server/domain/repositories"
	"github.com/clinicai/server/internal/config"
	"github.com/clinicai/server/internal/events"
	"github.com/clinicai/server/usecase"
	"github.com/clinicai/server/worker"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

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

	// Collaborators
	var languageModel repositories.LanguageModel
	var transcriber repositories.Transcriber
	if cfg.UseMocks {
		languageModel = llm.NewMockLLM()
		transcriber = stt.NewMockTranscriber(logger)
		logger.Warn("using mock language model and transcriber")
	} else {
		languageModel, err = llm.NewGeminiLLM(llm.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		}, logger)
		if err != nil {
			logger.Fatal("failed to create Gemini client", zap.Error(err))
		}
		transcriber = stt.NewGoogleTranscriber(logger, cfg.AudioEncoding, cfg.AudioSampleRate)
	}

	hub := events.NewHub(logger)
	go hub.Run()

	summaries := usecase.NewSummaryService(languageModel, logger)
	pipeline := worker.NewPipeline(visits, transcriber, summaries, hub, logger)
	w := worker.NewWorker(jobQueue, visits, pipeline, worker.Options{
		Concurrency:      cfg.WorkerConcurrency,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("Worker is shutting down...")
		cancel()
	}()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped with error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := mongoClient.Close(shutdownCtx); err != nil {
		logger.Error("MongoDB shutdown error", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		logger.Error("Redis shutdown error", zap.Error(err))
	}

	logger.Info("Worker exited")
}
