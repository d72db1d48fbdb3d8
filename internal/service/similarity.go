package service

import (
	"context"

	"github.com/arlen/newscalm/internal/domain"
	"github.com/arlen/newscalm/internal/repository"
)

// Embedder produces query vectors for similarity search.
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VectorSearcher finds historical headlines near a query vector.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int, scoreThreshold float32) ([]repository.SearchResult, error)
}

// SimilarityService surfaces historical analogues for an input text by
// embedding it and searching the headline corpus.
type SimilarityService struct {
	embedder  Embedder
	searcher  VectorSearcher
	threshold float32
	maxItems  int
}

// NewSimilarityService creates a similarity service. Results below the score
// threshold are dropped; at most maxItems are returned.
func NewSimilarityService(embedder Embedder, searcher VectorSearcher, threshold float32, maxItems int) *SimilarityService {
	return &SimilarityService{
		embedder:  embedder,
		searcher:  searcher,
		threshold: threshold,
		maxItems:  maxItems,
	}
}

// FindSimilar returns historical analogues ordered most-similar first. An
// empty result is a normal outcome, not an error.
func (s *SimilarityService) FindSimilar(ctx context.Context, text string) (domain.SimilarItemList, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	results, err := s.searcher.Search(ctx, vector, s.maxItems, s.threshold)
	if err != nil {
		return nil, domain.NewTransientError("qdrant", err)
	}

	items := make(domain.SimilarItemList, 0, len(results))
	for _, r := range results {
		item := domain.SimilarItem{ID: r.ID, Score: r.Score}
		if r.Payload != nil {
			item.Headline = r.Payload.Headline
			item.Source = r.Payload.Source
			item.Date = r.Payload.Date
		}
		items = append(items, item)
	}
	return items, nil
}
