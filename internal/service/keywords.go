package service

import (
	"sort"
	"strings"
	"unicode"
)

// Stopwords excluded from keyword extraction. Matches common English filler;
// anything two characters or shorter is dropped regardless.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "his": {}, "has": {}, "had": {}, "how": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "they": {}, "will": {},
	"would": {}, "there": {}, "their": {}, "what": {}, "about": {},
	"which": {}, "when": {}, "were": {}, "been": {}, "have": {}, "more": {},
	"your": {}, "some": {}, "them": {}, "than": {}, "then": {}, "into": {},
	"could": {}, "because": {}, "very": {}, "just": {}, "over": {},
	"also": {}, "after": {}, "most": {}, "such": {}, "where": {},
	"being": {}, "while": {}, "these": {}, "those": {}, "said": {},
	"says": {}, "like": {}, "make": {}, "made": {}, "many": {}, "much": {},
	"only": {}, "other": {}, "it's": {}, "don't": {}, "doesn't": {},
}

// ExtractKeywords returns the top-n most frequent meaningful words from
// text, ties broken by first appearance. Words are lowercased and stripped
// of surrounding punctuation; stopwords and short tokens are skipped.
func ExtractKeywords(text string, n int) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)

	order := 0
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(word) <= 2 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		if _, seen := counts[word]; !seen {
			firstSeen[word] = order
			order++
		}
		counts[word]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return firstSeen[words[i]] < firstSeen[words[j]]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}
