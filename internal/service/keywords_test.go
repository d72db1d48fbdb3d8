package service

import (
	"reflect"
	"testing"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want []string
	}{
		{
			name: "frequency wins",
			text: "markets markets markets crash crash economy",
			n:    3,
			want: []string{"markets", "crash", "economy"},
		},
		{
			name: "stopwords and short tokens dropped",
			text: "the cat is on a mat with the cat",
			n:    3,
			want: []string{"cat", "mat"},
		},
		{
			name: "ties broken by first appearance",
			text: "alpha beta gamma",
			n:    2,
			want: []string{"alpha", "beta"},
		},
		{
			name: "punctuation stripped and lowercased",
			text: "Shocking! SHOCKING, shocking... verdict",
			n:    2,
			want: []string{"shocking", "verdict"},
		},
		{
			name: "empty text",
			text: "",
			n:    3,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.text, tt.n)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractKeywords() = %v, want %v", got, tt.want)
			}
		})
	}
}
