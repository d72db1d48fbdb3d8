package service

import (
	goaway "github.com/TwiN/go-away"
)

// Lexicon scores. The detector is binary, so scores cluster at two values:
// clearly profane text lands well above any routing threshold, clean text
// well below.
const (
	profaneScore = 0.8
	cleanScore   = 0.1
)

// ProfanityScorer assigns a coarse profanity score used by the model router
// to pick a backend. Deterministic: the same text always yields the same
// score.
type ProfanityScorer struct {
	detector *goaway.ProfanityDetector
}

// NewProfanityScorer creates a scorer with leet-speak and spacing
// sanitization enabled.
func NewProfanityScorer() *ProfanityScorer {
	return &ProfanityScorer{
		detector: goaway.NewProfanityDetector(),
	}
}

// Score returns the profanity score for text in [0, 1].
func (s *ProfanityScorer) Score(text string) float64 {
	if s.detector.IsProfane(text) {
		return profaneScore
	}
	return cleanScore
}
