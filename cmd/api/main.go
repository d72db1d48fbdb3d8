package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arlen/newscalm/internal/api"
	"github.com/arlen/newscalm/internal/api/middleware"
	"github.com/arlen/newscalm/internal/cache"
	"github.com/arlen/newscalm/internal/config"
	"github.com/arlen/newscalm/internal/logger"
	"github.com/arlen/newscalm/internal/repository"
	"github.com/arlen/newscalm/internal/service"
	"github.com/arlen/newscalm/internal/storage"
	"github.com/arlen/newscalm/internal/worker"
)

// enqueuer adapts the worker pool to the services' TaskEnqueuer interface.
type enqueuer struct {
	pool *worker.Pool
}

func (e *enqueuer) EnqueueDetox(ctx context.Context, id string) error {
	return e.pool.Enqueue(ctx, worker.Task{Kind: worker.KindDetox, ID: id})
}

func (e *enqueuer) EnqueueMeme(ctx context.Context, id string) error {
	return e.pool.Enqueue(ctx, worker.Task{Kind: worker.KindMeme, ID: id})
}

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetDefaultLogger(logger.New(logger.LoadFromEnv()))
	defer logger.Sync()

	ctx := context.Background()

	// Database and task repositories
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	detoxRepo := repository.NewDetoxTaskRepository(db)
	memeRepo := repository.NewMemeTaskRepository(db)

	// Vector search over the historical headline corpus
	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Qdrant.Dimensions,
	})
	if err != nil {
		logger.Fatal("Failed to initialize Qdrant repository: %v", err)
	}
	defer qdrantRepo.Close()

	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		logger.Fatal("Failed to ensure Qdrant collection: %v", err)
	}

	// Redis-backed dedup and rate limiting
	redisClient, err := cache.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	fingerprints := cache.NewFingerprintStore(redisClient, cfg.Detox.CacheTTL)
	limiter := cache.NewRateLimiter(redisClient, map[string]cache.BucketConfig{
		"process": {Window: cfg.RateLimit.Process.Window, Limit: cfg.RateLimit.Process.Limit},
		"memes":   {Window: cfg.RateLimit.Memes.Window, Limit: cfg.RateLimit.Memes.Limit},
	})

	// Object storage for meme artifacts
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	if s3, ok := objectStorage.(*storage.S3Storage); ok {
		if err := s3.EnsureBucket(ctx); err != nil {
			logger.Fatal("Failed to ensure storage bucket: %v", err)
		}
	}

	// External adapters
	embeddingService := service.NewEmbeddingService(&service.EmbeddingClientConfig{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})

	maskingService := service.NewMaskingService(&service.MaskingClientConfig{
		BaseURL:     cfg.Masking.BaseURL,
		APIKey:      cfg.Masking.APIKey,
		Timeout:     cfg.Masking.Timeout,
		EntityTypes: cfg.Masking.EntityTypes,
	})

	giphyService := service.NewGiphyService(&service.GiphyClientConfig{
		APIKey:  cfg.Giphy.APIKey,
		BaseURL: cfg.Giphy.BaseURL,
		Rating:  cfg.Giphy.Rating,
		Timeout: cfg.Giphy.Timeout,
	})

	defaultBackend := service.NewLLMBackend(backendConfig(&cfg.LLM.Default))
	permissiveBackend := service.NewLLMBackend(backendConfig(&cfg.LLM.Permissive))

	retry := service.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BackoffBase: cfg.Retry.BackoffBase,
	}

	router := service.NewModelRouter(
		service.NewProfanityScorer(),
		defaultBackend,
		permissiveBackend,
		cfg.LLM.RoutingThreshold,
		retry,
	)

	similarityService := service.NewSimilarityService(
		embeddingService,
		qdrantRepo,
		cfg.Detox.SimilarityThreshold,
		cfg.Detox.MaxSimilarItems,
	)

	// Orchestrators
	memeService := service.NewMemeService(
		memeRepo,
		defaultBackend,
		giphyService,
		objectStorage,
		retry,
		cfg.Detox.MemeStyle,
	)

	detoxService := service.NewDetoxService(
		detoxRepo,
		fingerprints,
		limiter,
		maskingService,
		similarityService,
		router,
		memeService,
		retry,
		service.DetoxOptions{
			MaxTextLength:           cfg.Detox.MaxTextLength,
			MemeGenerationEnabled:   cfg.Detox.MemeGenerationEnabled,
			MemeConfidenceThreshold: cfg.Detox.MemeConfidenceThreshold,
			MemeStyle:               cfg.Detox.MemeStyle,
		},
	)

	// Worker pool: the task tables are the durable queue, the channel only
	// dispatches ids to workers.
	pool := worker.NewPool(cfg.Worker.Count, cfg.Worker.QueueSize)
	pool.Register(worker.KindDetox, detoxService.Process)
	pool.Register(worker.KindMeme, memeService.Process)
	pool.Start(ctx)
	defer pool.Stop()

	enq := &enqueuer{pool: pool}
	detoxService.SetEnqueuer(enq)
	memeService.SetEnqueuer(enq)

	// Re-enqueue anything a previous run left unfinished
	if err := detoxService.Recover(ctx); err != nil {
		logger.Error("Failed to recover detox tasks: %v", err)
	}
	if err := memeService.Recover(ctx); err != nil {
		logger.Error("Failed to recover meme tasks: %v", err)
	}

	engine := api.SetupRouter(detoxService, memeService, limiter, api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		logger.Info("Starting API server on port %d (mode=%s)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func backendConfig(cfg *config.BackendConfig) *service.LLMBackendConfig {
	return &service.LLMBackendConfig{
		Name:        cfg.Name,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}
}
