package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"maildigest/internal/digest"
	"maildigest/internal/domain"
	"maildigest/internal/ports"
	"maildigest/internal/summarize"
)

// enrichConcurrency bounds parallel provider calls during a digest build.
const enrichConcurrency = 4

// Scorer produces an urgency result for one message.
type Scorer interface {
	Score(ctx context.Context, msg domain.Message, summary domain.SummaryResult, threadCount int) domain.UrgencyResult
}

// EventDetector extracts an optional calendar candidate from one message.
type EventDetector interface {
	DetectEvent(msg domain.Message, existing []domain.ExistingEvent) *domain.EventCandidate
}

// Options carries the tunables the pipeline reads per build.
type Options struct {
	ItemMaxChars int
	EventWindow  time.Duration
	ForwardTo    string
}

// Pipeline is the digest use case: fetch, enrich, group, present, and
// dispatch actions. Collaborators other than the summarizer, builder,
// renderer and manager may be nil; the pipeline degrades around them.
type Pipeline struct {
	mailbox    ports.Mailbox
	calendar   ports.Calendar
	history    ports.DigestHistory
	summarizer digest.Summarizer
	scorer     Scorer
	detector   EventDetector
	builder    *digest.Builder
	renderer   *digest.Renderer
	manager    *digest.Manager
	opts       Options
	logger     *slog.Logger
}

// PipelineDeps bundles collaborators; optional ones may stay nil.
type PipelineDeps struct {
	Mailbox    ports.Mailbox
	Calendar   ports.Calendar
	History    ports.DigestHistory
	Summarizer digest.Summarizer
	Scorer     Scorer
	Detector   EventDetector
	Builder    *digest.Builder
	Renderer   *digest.Renderer
	Manager    *digest.Manager
	Options    Options
	Logger     *slog.Logger
}

// NewPipeline wires the digest use case.
func NewPipeline(deps PipelineDeps) *Pipeline {
	opts := deps.Options
	if opts.ItemMaxChars <= 0 {
		opts.ItemMaxChars = 500
	}
	if opts.EventWindow <= 0 {
		opts.EventWindow = 14 * 24 * time.Hour
	}
	return &Pipeline{
		mailbox:    deps.Mailbox,
		calendar:   deps.Calendar,
		history:    deps.History,
		summarizer: deps.Summarizer,
		scorer:     deps.Scorer,
		detector:   deps.Detector,
		builder:    deps.Builder,
		renderer:   deps.Renderer,
		manager:    deps.Manager,
		opts:       opts,
		logger:     deps.Logger,
	}
}

// BuildDigest fetches unread mail and builds a fresh session for the
// conversation, superseding any prior one. The returned blocks are ready
// for the transport.
func (p *Pipeline) BuildDigest(ctx context.Context, conversationID string) ([]domain.Block, error) {
	if p.mailbox == nil {
		return nil, fmt.Errorf("no mailbox configured")
	}
	msgs, err := p.mailbox.FetchUnread(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}
	msgs, err = p.filterDigested(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return p.BuildDigestFrom(ctx, conversationID, msgs)
}

// BuildDigestFrom builds a session over an already-fetched batch.
func (p *Pipeline) BuildDigestFrom(ctx context.Context, conversationID string, msgs []domain.Message) ([]domain.Block, error) {
	if len(msgs) == 0 {
		return []domain.Block{{Text: "Inbox zero — nothing unread to digest."}}, nil
	}

	existing := p.upcomingEvents(ctx)
	prepared := p.enrich(ctx, msgs, existing)
	items := p.builder.Build(ctx, prepared)

	session := digest.NewSession(
		uuid.NewString(), conversationID, items, p.manager.TTL(),
		p.mailbox, p.calendar, p.opts.ForwardTo, p.logger,
	)
	p.manager.Install(session)
	p.saveDigested(ctx, conversationID, items)

	if p.logger != nil {
		p.logger.Info("digest session built",
			"conversation", conversationID, "session", session.ID(),
			"messages", len(msgs), "items", len(items))
	}

	blocks := make([]domain.Block, 0, len(items))
	for i, item := range session.Items() {
		blocks = append(blocks, p.renderer.RenderItem(session.ID(), i, item))
	}
	return p.renderer.Paginate(blocks), nil
}

// ApplyAction routes one transport callback to its session and returns the
// refreshed view of the current item.
func (p *Pipeline) ApplyAction(ctx context.Context, conversationID, sessionID string, itemIndex int, action digest.Action) ([]domain.Block, error) {
	session, err := p.manager.Resolve(conversationID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Apply(ctx, itemIndex, action); err != nil {
		return nil, err
	}
	return p.renderer.RenderCurrent(session), nil
}

// Sweep expires stale sessions; meant to run on the maintenance timer.
func (p *Pipeline) Sweep() int {
	return p.manager.Sweep()
}

// enrich runs summarization, urgency scoring, and event detection for each
// message with bounded parallelism. Per-message failures never abort the
// batch: the fallback chain is total and scoring is rule-based at worst.
func (p *Pipeline) enrich(ctx context.Context, msgs []domain.Message, existing []domain.ExistingEvent) []digest.Prepared {
	threadCounts := countThreads(msgs)
	prepared := make([]digest.Prepared, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, msg := range msgs {
		g.Go(func() error {
			body := summarize.BodyText(msg.BodyText, msg.BodyHTML)
			summary := p.summarizer.Summarize(gctx, msg.Subject, body, p.opts.ItemMaxChars)

			var urgency domain.UrgencyResult
			if p.scorer != nil {
				urgency = p.scorer.Score(gctx, msg, summary, threadCounts[msg.ThreadID])
			}
			var event *domain.EventCandidate
			if p.detector != nil {
				event = p.detector.DetectEvent(msg, existing)
			}
			prepared[i] = digest.Prepared{Message: msg, Summary: summary, Urgency: urgency, Event: event}
			return nil
		})
	}
	_ = g.Wait()
	return prepared
}

func (p *Pipeline) upcomingEvents(ctx context.Context) []domain.ExistingEvent {
	if p.calendar == nil {
		return nil
	}
	events, err := p.calendar.ListUpcomingEvents(ctx, p.opts.EventWindow)
	if err != nil {
		// Conflict tagging degrades to "no conflicts" rather than
		// blocking the digest.
		if p.logger != nil {
			p.logger.Warn("calendar listing failed, skipping conflict tagging", "error", err)
		}
		return nil
	}
	return events
}

func (p *Pipeline) filterDigested(ctx context.Context, msgs []domain.Message) ([]domain.Message, error) {
	if p.history == nil || len(msgs) == 0 {
		return msgs, nil
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	seen, err := p.history.AlreadyDigested(ctx, ids)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("digest history lookup failed, digesting full batch", "error", err)
		}
		return msgs, nil
	}
	fresh := msgs[:0]
	for _, m := range msgs {
		if !seen[m.ID] {
			fresh = append(fresh, m)
		}
	}
	return fresh, nil
}

func (p *Pipeline) saveDigested(ctx context.Context, conversationID string, items []domain.DigestItem) {
	if p.history == nil {
		return
	}
	if err := p.history.SaveDigested(ctx, conversationID, items); err != nil && p.logger != nil {
		p.logger.Warn("saving digest history failed", "error", err)
	}
}

func countThreads(msgs []domain.Message) map[string]int {
	counts := make(map[string]int, len(msgs))
	for _, m := range msgs {
		if m.ThreadID != "" {
			counts[m.ThreadID]++
		}
	}
	return counts
}
