package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arlen/newscalm/internal/domain"
)

// MaskingService replaces named entities in input text with neutral
// placeholders before the text reaches any model backend. Each entity
// type gets its own ordinal counter, so the first person becomes [PERSON_1],
// the second [PERSON_2], and so on.
type MaskingService struct {
	client      *resty.Client
	endpoint    string
	entityTypes []string
}

// MaskingClientConfig holds configuration for the NER masking service.
type MaskingClientConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	EntityTypes []string
}

// NewMaskingService creates a masking service backed by an external NER API.
func NewMaskingService(cfg *MaskingClientConfig) *MaskingService {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	entityTypes := cfg.EntityTypes
	if len(entityTypes) == 0 {
		entityTypes = []string{"PERSON", "ORG", "GPE", "PRODUCT"}
	}

	return &MaskingService{
		client:      client,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/ner",
		entityTypes: entityTypes,
	}
}

type nerRequest struct {
	Text        string   `json:"text"`
	EntityTypes []string `json:"entity_types,omitempty"`
}

type nerResponse struct {
	Entities []struct {
		Text  string `json:"text"`
		Label string `json:"label"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	} `json:"entities"`
	Detail string `json:"detail,omitempty"`
}

// Mask detects entities in text and returns the masked text along with the
// entity table needed to interpret the placeholders. Callers treat a failure
// here as non-fatal and fall back to the unmasked text.
func (s *MaskingService) Mask(ctx context.Context, text string) (string, domain.EntityList, error) {
	req := nerRequest{Text: text, EntityTypes: s.entityTypes}

	var resp nerResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return "", nil, domain.NewTransientError("masking", fmt.Errorf("failed to call NER API: %w", err))
	}

	if httpResp.StatusCode() != 200 {
		apiErr := fmt.Errorf("NER API error: status %d", httpResp.StatusCode())
		if resp.Detail != "" {
			apiErr = fmt.Errorf("NER API error: %s", resp.Detail)
		}
		if domain.TransientStatusCode(httpResp.StatusCode()) {
			return "", nil, domain.NewTransientError("masking", apiErr)
		}
		return "", nil, domain.NewPermanentError("masking", apiErr)
	}

	entities := make(domain.EntityList, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			continue
		}
		entities = append(entities, domain.Entity{
			Text:  e.Text,
			Label: e.Label,
			Start: e.Start,
			End:   e.End,
		})
	}

	masked := applyMasks(text, entities)
	return masked, entities, nil
}

// applyMasks rewrites text with per-type ordinal placeholders, assigning
// masks in order of appearance. Repeated mentions of the same entity text
// reuse the same placeholder.
func applyMasks(text string, entities domain.EntityList) string {
	if len(entities) == 0 {
		return text
	}

	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Start < entities[j].Start
	})

	counters := make(map[string]int)
	assigned := make(map[string]string) // entity text -> mask

	for i := range entities {
		e := &entities[i]
		key := e.Label + "\x00" + e.Text
		if mask, ok := assigned[key]; ok {
			e.Mask = mask
			continue
		}
		counters[e.Label]++
		e.Mask = fmt.Sprintf("[%s_%d]", e.Label, counters[e.Label])
		assigned[key] = e.Mask
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, e := range entities {
		if e.Start < prev {
			continue // overlapping span, keep the earlier entity
		}
		b.WriteString(text[prev:e.Start])
		b.WriteString(e.Mask)
		prev = e.End
	}
	b.WriteString(text[prev:])
	return b.String()
}
