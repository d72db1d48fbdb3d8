package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arlen/newscalm/internal/domain"
)

const defaultEmbeddingBaseURL = "https://api.jina.ai/v1"

// EmbeddingService generates text embeddings via a Jina-compatible API.
type EmbeddingService struct {
	client     *resty.Client
	model      string
	dimensions int
	endpoint   string
}

// EmbeddingClientConfig holds configuration for the embedding service.
type EmbeddingClientConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

// NewEmbeddingService creates a new embedding service.
func NewEmbeddingService(cfg *EmbeddingClientConfig) *EmbeddingService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultEmbeddingBaseURL
	}

	return &EmbeddingService{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		endpoint:   baseURL + "/embeddings",
	}
}

// GetModel returns the model name being used.
func (s *EmbeddingService) GetModel() string {
	return s.model
}

// Jina API request/response structures
type jinaRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail,omitempty"`
}

// EmbedQuery generates an embedding optimized for similarity search.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := s.embed(ctx, "retrieval.query", []string{query})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates passage embeddings for multiple texts. Used by the
// corpus seeder.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return s.embed(ctx, "retrieval.passage", texts)
}

func (s *EmbeddingService) embed(ctx context.Context, task string, texts []string) ([][]float32, error) {
	req := jinaRequest{
		Model:         s.model,
		Task:          task,
		Dimensions:    s.dimensions,
		Input:         texts,
		EmbeddingType: "float",
	}

	var resp jinaResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return nil, domain.NewTransientError("embedding", fmt.Errorf("failed to call embedding API: %w", err))
	}

	if httpResp.StatusCode() != 200 {
		apiErr := fmt.Errorf("embedding API error: status %d", httpResp.StatusCode())
		if resp.Detail != "" {
			apiErr = fmt.Errorf("embedding API error: %s", resp.Detail)
		}
		if domain.TransientStatusCode(httpResp.StatusCode()) {
			return nil, domain.NewTransientError("embedding", apiErr)
		}
		return nil, domain.NewPermanentError("embedding", apiErr)
	}

	if len(resp.Data) != len(texts) {
		return nil, domain.NewPermanentError("embedding",
			fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(resp.Data), len(texts)))
	}

	// Sort by index to ensure correct order
	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}

	return embeddings, nil
}
