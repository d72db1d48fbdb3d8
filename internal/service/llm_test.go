package service

import (
	"errors"
	"testing"

	"github.com/arlen/newscalm/internal/domain"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    *Verdict
		wantErr bool
	}{
		{
			name:    "plain json",
			content: `{"analysis":"calm take","is_sensational":true,"confidence":0.9,"key_points":["a","b"]}`,
			want:    &Verdict{Analysis: "calm take", IsSensational: true, Confidence: 0.9, KeyPoints: []string{"a", "b"}},
		},
		{
			name: "markdown fenced",
			content: "```json\n" +
				`{"analysis":"fine","is_sensational":false,"confidence":0.4}` +
				"\n```",
			want: &Verdict{Analysis: "fine", IsSensational: false, Confidence: 0.4},
		},
		{
			name:    "json embedded in prose",
			content: `Here is my verdict: {"analysis":"meh","is_sensational":false,"confidence":0.2} hope that helps`,
			want:    &Verdict{Analysis: "meh", IsSensational: false, Confidence: 0.2},
		},
		{
			name:    "no json at all",
			content: "I think this is sensational",
			wantErr: true,
		},
		{
			name:    "broken json",
			content: `{"analysis": "oops", "is_sensational": `,
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			content: `{"analysis":"x","is_sensational":true,"confidence":7.5}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVerdict(tt.content, "test-backend")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, domain.ErrMalformedResponse) {
					t.Errorf("expected ErrMalformedResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Analysis != tt.want.Analysis ||
				got.IsSensational != tt.want.IsSensational ||
				got.Confidence != tt.want.Confidence {
				t.Errorf("parseVerdict() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
