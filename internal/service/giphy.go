package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arlen/newscalm/internal/domain"
)

const defaultGiphyBaseURL = "https://api.giphy.com/v1"

// GiphyService finds a reaction GIF for a set of keywords.
type GiphyService struct {
	client  *resty.Client
	apiKey  string
	rating  string
	baseURL string
}

// GiphyClientConfig holds configuration for the Giphy search client.
type GiphyClientConfig struct {
	APIKey  string
	BaseURL string
	Rating  string
	Timeout time.Duration
}

// NewGiphyService creates a Giphy search client.
func NewGiphyService(cfg *GiphyClientConfig) *GiphyService {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGiphyBaseURL
	}

	rating := cfg.Rating
	if rating == "" {
		rating = "pg-13"
	}

	return &GiphyService{
		client:  client,
		apiKey:  cfg.APIKey,
		rating:  rating,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type giphyResponse struct {
	Data []struct {
		Images struct {
			Original struct {
				URL string `json:"url"`
			} `json:"original"`
		} `json:"images"`
	} `json:"data"`
	Meta struct {
		Status int    `json:"status"`
		Msg    string `json:"msg"`
	} `json:"meta"`
}

// SearchTop returns the URL of the top GIF for the keywords, or an empty
// string when nothing matches.
func (s *GiphyService) SearchTop(ctx context.Context, keywords []string) (string, error) {
	var resp giphyResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key": s.apiKey,
			"q":       strings.Join(keywords, " "),
			"limit":   "1",
			"rating":  s.rating,
		}).
		SetResult(&resp).
		Get(s.baseURL + "/gifs/search")

	if err != nil {
		return "", domain.NewTransientError("giphy", fmt.Errorf("failed to call Giphy API: %w", err))
	}

	if httpResp.StatusCode() != 200 {
		apiErr := fmt.Errorf("Giphy API error: status %d", httpResp.StatusCode())
		if resp.Meta.Msg != "" {
			apiErr = fmt.Errorf("Giphy API error: %s", resp.Meta.Msg)
		}
		if domain.TransientStatusCode(httpResp.StatusCode()) {
			return "", domain.NewTransientError("giphy", apiErr)
		}
		return "", domain.NewPermanentError("giphy", apiErr)
	}

	if len(resp.Data) == 0 {
		return "", nil
	}
	return resp.Data[0].Images.Original.URL, nil
}
