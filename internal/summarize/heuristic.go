package summarize

import (
	"context"
	"strings"

	"maildigest/internal/ports"
)

// HeadlineSummarizer is the last-resort provider: the first few sentences
// of the body, or the subject line when the body is empty. It cannot fail,
// which guarantees the fallback chain terminates.
type HeadlineSummarizer struct {
	sentences int
}

var _ ports.SummaryProvider = (*HeadlineSummarizer)(nil)

// NewHeadlineSummarizer keeps the given number of leading sentences.
func NewHeadlineSummarizer(sentences int) *HeadlineSummarizer {
	if sentences <= 0 {
		sentences = 3
	}
	return &HeadlineSummarizer{sentences: sentences}
}

// Summarize returns the leading sentences, or the subject for empty bodies.
func (h *HeadlineSummarizer) Summarize(_ context.Context, req ports.SummaryRequest) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return req.Subject, nil
	}
	sentences := SplitSentences(text)
	if len(sentences) > h.sentences {
		sentences = sentences[:h.sentences]
	}
	out := strings.Join(sentences, " ")
	if out == "" {
		return req.Subject, nil
	}
	return out, nil
}
