package digest

import (
	"context"
	"log/slog"
	"sort"

	"maildigest/internal/domain"
	"maildigest/internal/summarize"
)

// Summarizer is the fallback chain as the builder sees it.
type Summarizer interface {
	Summarize(ctx context.Context, subject, text string, maxLen int) domain.SummaryResult
}

// BuilderOptions tunes grouping and caps; zero values pick the defaults.
type BuilderOptions struct {
	GroupThreshold   int // minimum group size that merges into one item
	ItemMaxChars     int
	CombinedMaxChars int
}

func (o *BuilderOptions) fill() {
	if o.GroupThreshold <= 0 {
		o.GroupThreshold = 2
	}
	if o.ItemMaxChars <= 0 {
		o.ItemMaxChars = 500
	}
	if o.CombinedMaxChars <= 0 {
		o.CombinedMaxChars = 1000
	}
}

// Builder assembles per-message results into ordered digest items.
type Builder struct {
	summarizer Summarizer
	logger     *slog.Logger
	opts       BuilderOptions
}

// NewBuilder wires the builder. summarizer is required for combined-sender
// re-summarization; the rest of the build works without it.
func NewBuilder(summarizer Summarizer, logger *slog.Logger, opts BuilderOptions) *Builder {
	opts.fill()
	return &Builder{summarizer: summarizer, logger: logger, opts: opts}
}

// Prepared is one message with its precomputed enrichment results.
type Prepared struct {
	Message domain.Message
	Summary domain.SummaryResult
	Urgency domain.UrgencyResult
	Event   *domain.EventCandidate
}

// Build groups same-sender messages above the threshold into combined
// items, then orders by urgency tier and age. A failed group merge
// degrades that sender back to individual items instead of aborting.
func (b *Builder) Build(ctx context.Context, prepared []Prepared) []domain.DigestItem {
	bySender := make(map[string][]Prepared)
	var senderOrder []string
	for _, p := range prepared {
		key := p.Message.Sender.Key()
		if _, seen := bySender[key]; !seen {
			senderOrder = append(senderOrder, key)
		}
		bySender[key] = append(bySender[key], p)
	}

	var items []domain.DigestItem
	for _, key := range senderOrder {
		group := bySender[key]
		if len(group) < b.opts.GroupThreshold {
			for _, p := range group {
				items = append(items, b.singleItem(p))
			}
			continue
		}
		if combined, ok := b.combinedItem(ctx, key, group); ok {
			items = append(items, combined)
			continue
		}
		for _, p := range group {
			items = append(items, b.singleItem(p))
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Urgency.Tier.Rank(), items[j].Urgency.Tier.Rank()
		if ri != rj {
			return ri > rj
		}
		return items[i].ReceivedAt.Before(items[j].ReceivedAt)
	})
	return items
}

func (b *Builder) singleItem(p Prepared) domain.DigestItem {
	return domain.DigestItem{
		MessageRef: p.Message.ID,
		MemberRefs: []string{p.Message.ID},
		Sender:     p.Message.Sender,
		Subject:    p.Message.Subject,
		Summary:    p.Summary,
		Urgency:    p.Urgency,
		Event:      p.Event,
		GroupKey:   p.Message.Sender.Key(),
		State:      domain.ItemPending,
		ReceivedAt: p.Message.ReceivedAt,
	}
}

// combinedItem re-summarizes the deduplicated concatenation of the group's
// bodies under the combined cap. ok is false when the merge could not be
// produced, in which case the caller degrades to individual items.
func (b *Builder) combinedItem(ctx context.Context, key string, group []Prepared) (item domain.DigestItem, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if b.logger != nil {
				b.logger.Error("combined summary panicked, degrading to individual items",
					"sender", key, "panic", r)
			}
			ok = false
		}
	}()

	if b.summarizer == nil {
		return domain.DigestItem{}, false
	}

	bodies := make([]string, 0, len(group))
	refs := make([]string, 0, len(group))
	memberEvent := (*domain.EventCandidate)(nil)
	topUrgency := group[0].Urgency
	earliest := group[0].Message.ReceivedAt
	for _, p := range group {
		bodies = append(bodies, summarize.BodyText(p.Message.BodyText, p.Message.BodyHTML))
		refs = append(refs, p.Message.ID)
		if p.Urgency.Tier.Rank() > topUrgency.Tier.Rank() ||
			(p.Urgency.Tier == topUrgency.Tier && p.Urgency.Score > topUrgency.Score) {
			topUrgency = p.Urgency
		}
		if memberEvent == nil && p.Event != nil {
			memberEvent = p.Event
		}
		if p.Message.ReceivedAt.Before(earliest) {
			earliest = p.Message.ReceivedAt
		}
	}

	subject := group[0].Message.Subject
	source := summarize.DeduplicateSentences(bodies)
	summary := b.summarizer.Summarize(ctx, subject, source, b.opts.CombinedMaxChars)

	return domain.DigestItem{
		MessageRef: group[0].Message.ID,
		MemberRefs: refs,
		Sender:     group[0].Message.Sender,
		Subject:    subject,
		Summary:    summary,
		Urgency:    topUrgency,
		Event:      memberEvent,
		GroupKey:   key,
		State:      domain.ItemPending,
		ReceivedAt: earliest,
	}, true
}
