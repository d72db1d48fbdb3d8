package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arlen/newscalm/internal/domain"
)

// LLMBackend is an OpenAI-compatible chat completion client. The pipeline
// runs two of them (default and permissive) behind the model router.
type LLMBackend struct {
	client      *resty.Client
	name        string
	model       string
	temperature float32
	maxTokens   int
	endpoint    string
}

// LLMBackendConfig holds configuration for one chat backend.
type LLMBackendConfig struct {
	Name        string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// NewLLMBackend creates a chat completion backend.
func NewLLMBackend(cfg *LLMBackendConfig) *LLMBackend {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &LLMBackend{
		client:      client,
		name:        cfg.Name,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		endpoint:    baseURL + "/chat/completions",
	}
}

// Name returns the backend identifier recorded on completed tasks.
func (b *LLMBackend) Name() string {
	return b.name
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a system/user prompt pair and returns the raw completion
// text.
func (b *LLMBackend) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := chatRequest{
		Model: b.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
	}

	var resp chatResponse
	httpResp, err := b.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(b.endpoint)

	if err != nil {
		return "", domain.NewTransientError(b.name, fmt.Errorf("failed to call chat API: %w", err))
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		apiErr := fmt.Errorf("chat API returned error: %s", errorMsg)
		if domain.TransientStatusCode(httpResp.StatusCode()) {
			return "", domain.NewTransientError(b.name, apiErr)
		}
		return "", domain.NewPermanentError(b.name, apiErr)
	}

	if resp.Error != nil {
		return "", domain.NewPermanentError(b.name, fmt.Errorf("chat API error: %s", resp.Error.Message))
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response from %s", domain.ErrMalformedResponse, b.name)
	}

	return resp.Choices[0].Message.Content, nil
}

// Verdict is the structured sensationalism judgment parsed from the model
// response.
type Verdict struct {
	Analysis      string   `json:"analysis"`
	IsSensational bool     `json:"is_sensational"`
	Confidence    float64  `json:"confidence"`
	KeyPoints     []string `json:"key_points"`
}

// Analyze runs the sensationalism analysis prompt and parses the JSON
// verdict out of the completion. An unparseable completion is reported as
// ErrMalformedResponse so the router can try the other backend once.
func (b *LLMBackend) Analyze(ctx context.Context, systemPrompt, userPrompt string) (*Verdict, error) {
	content, err := b.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	return parseVerdict(content, b.name)
}

// parseVerdict extracts the JSON object from a completion that may be
// wrapped in markdown fences or surrounded by prose.
func parseVerdict(content, backend string) (*Verdict, error) {
	raw := strings.TrimSpace(content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in %s response", domain.ErrMalformedResponse, backend)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("%w: %s response: %v", domain.ErrMalformedResponse, backend, err)
	}

	if v.Confidence < 0 || v.Confidence > 1 {
		return nil, fmt.Errorf("%w: %s response: confidence %v out of range", domain.ErrMalformedResponse, backend, v.Confidence)
	}

	return &v, nil
}
