package summarize

import (
	"context"
	"sort"
	"strings"

	"maildigest/internal/ports"
)

// LocalSummarizer is the offline extractive provider: it scores sentences
// by word frequency and keeps the best ones in original order. It never
// makes network calls and is assumed always available.
type LocalSummarizer struct {
	sentences int
}

var _ ports.SummaryProvider = (*LocalSummarizer)(nil)

// NewLocalSummarizer keeps the given number of sentences (default 3).
func NewLocalSummarizer(sentences int) *LocalSummarizer {
	if sentences <= 0 {
		sentences = 3
	}
	return &LocalSummarizer{sentences: sentences}
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"of": {}, "to": {}, "in": {}, "on": {}, "at": {}, "for": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"it": {}, "this": {}, "that": {}, "with": {}, "as": {}, "by": {},
	"you": {}, "your": {}, "we": {}, "our": {}, "i": {}, "will": {},
	"have": {}, "has": {}, "not": {}, "from": {}, "if": {}, "please": {},
}

// Summarize extracts the highest-scoring sentences from the request text.
func (l *LocalSummarizer) Summarize(_ context.Context, req ports.SummaryRequest) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return req.Subject, nil
	}

	sentences := SplitSentences(text)
	if len(sentences) <= l.sentences {
		return text, nil
	}

	freq := map[string]int{}
	for _, s := range sentences {
		for _, w := range tokenize(s) {
			freq[w]++
		}
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, 0, len(sentences))
	for i, s := range sentences {
		words := tokenize(s)
		if len(words) == 0 {
			continue
		}
		var sum int
		for _, w := range words {
			sum += freq[w]
		}
		ranked = append(ranked, scored{index: i, score: float64(sum) / float64(len(words))})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].index < ranked[j].index
	})

	keep := ranked
	if len(keep) > l.sentences {
		keep = keep[:l.sentences]
	}
	sort.Slice(keep, func(i, j int) bool { return keep[i].index < keep[j].index })

	parts := make([]string, 0, len(keep))
	for _, k := range keep {
		parts = append(parts, sentences[k.index])
	}
	return strings.Join(parts, " "), nil
}

func tokenize(s string) []string {
	var words []string
	for _, w := range strings.Fields(NormalizeSentence(s)) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		words = append(words, w)
	}
	return words
}
