package summarize

import (
	"regexp"
	"strings"
)

var sentenceExpr = regexp.MustCompile(`[^.!?]+[.!?]?`)

// SplitSentences cuts text into trimmed sentences, dropping empty ones.
func SplitSentences(text string) []string {
	var out []string
	for _, raw := range sentenceExpr.FindAllString(text, -1) {
		s := strings.TrimSpace(raw)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

var nonWordExpr = regexp.MustCompile(`[^a-z0-9 ]+`)

// NormalizeSentence lowers a sentence and strips punctuation so that
// near-identical sentences compare equal.
func NormalizeSentence(s string) string {
	s = strings.ToLower(s)
	s = nonWordExpr.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// DeduplicateSentences removes sentences whose normalized form already
// appeared, preserving first-seen order. Used when merging a sender's
// messages into one combined summarization source.
func DeduplicateSentences(texts []string) string {
	seen := map[string]struct{}{}
	var kept []string
	for _, text := range texts {
		for _, s := range SplitSentences(text) {
			norm := NormalizeSentence(s)
			if norm == "" {
				continue
			}
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, " ")
}
