package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/arlen/newscalm/internal/config"
	"github.com/arlen/newscalm/internal/logger"
	"github.com/arlen/newscalm/internal/repository"
	"github.com/arlen/newscalm/internal/service"
)

// corpusRecord is one line of the JSONL headline corpus.
type corpusRecord struct {
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Date     string `json:"date"`
}

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "newscalm-seed",
	})
	logger.SetDefaultLogger(appLogger)

	filePath := flag.String("file", "", "Path to JSONL headline corpus")
	batchSize := flag.Int("batch", 32, "Embedding batch size")
	limit := flag.Int("limit", 0, "Maximum number of headlines to seed (0 = all)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *filePath == "" {
		appLogger.Fatal("Missing -file: path to the JSONL headline corpus")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Qdrant.Dimensions,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	embeddingService := service.NewEmbeddingService(&service.EmbeddingClientConfig{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	f, err := os.Open(*filePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to open corpus file")
	}
	defer f.Close()

	var (
		batch   []corpusRecord
		seeded  int
		skipped int
		scanner = bufio.NewScanner(f)
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	flush := func() {
		if len(batch) == 0 {
			return
		}

		texts := make([]string, len(batch))
		for i, rec := range batch {
			texts[i] = rec.Headline
		}

		vectors, err := embeddingService.EmbedBatch(ctx, texts)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to embed batch")
		}

		for i, rec := range batch {
			err := qdrantRepo.Upsert(ctx, uuid.NewString(), vectors[i], &repository.HeadlinePayload{
				Headline: rec.Headline,
				Source:   rec.Source,
				Date:     rec.Date,
			})
			if err != nil {
				appLogger.WithError(err).Fatal("Failed to upsert headline")
			}
			seeded++
		}
		batch = batch[:0]
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec corpusRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.Headline == "" {
			skipped++
			continue
		}

		batch = append(batch, rec)
		if len(batch) >= *batchSize {
			flush()
			appLogger.WithFields(logger.Fields{"seeded": seeded, "skipped": skipped}).Info("Progress")
		}

		if *limit > 0 && seeded+len(batch) >= *limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		appLogger.WithError(err).Fatal("Failed to read corpus file")
	}
	flush()

	appLogger.WithFields(logger.Fields{"seeded": seeded, "skipped": skipped}).Info("Seeding complete")
}
