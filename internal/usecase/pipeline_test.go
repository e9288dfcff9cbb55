package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"maildigest/internal/calendar"
	"maildigest/internal/digest"
	"maildigest/internal/domain"
	"maildigest/internal/summarize"
	"maildigest/internal/urgency"
)

type fakeMailbox struct {
	unread    []domain.Message
	archived  []string
	forwarded []string
	important map[string]bool
}

func newFakeMailbox(unread ...domain.Message) *fakeMailbox {
	return &fakeMailbox{unread: unread, important: make(map[string]bool)}
}

func (m *fakeMailbox) FetchUnread(_ context.Context) ([]domain.Message, error) {
	return m.unread, nil
}

func (m *fakeMailbox) MarkReadAndArchive(_ context.Context, id string) error {
	m.archived = append(m.archived, id)
	return nil
}

func (m *fakeMailbox) Forward(_ context.Context, id, _ string) error {
	m.forwarded = append(m.forwarded, id)
	return nil
}

func (m *fakeMailbox) SetSenderImportant(_ context.Context, address string, important bool) error {
	m.important[address] = important
	return nil
}

func (m *fakeMailbox) IsSenderImportant(_ context.Context, address string) (bool, error) {
	return m.important[address], nil
}

type fakeExtractor struct {
	start time.Time
}

func (f *fakeExtractor) Extract(_ string, _ time.Time) []domain.TimeSignal {
	if f.start.IsZero() {
		return nil
	}
	return []domain.TimeSignal{{Start: f.start, Confidence: 0.9}}
}

func base() time.Time {
	return time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
}

func offlineChain() *summarize.Chain {
	return summarize.NewChain([]summarize.Entry{
		{Slot: domain.ProviderLocal, Client: summarize.NewLocalSummarizer(3)},
		{Slot: domain.ProviderHeuristic, Client: summarize.NewHeadlineSummarizer(3)},
	}, time.Second, nil)
}

func newTestPipeline(mb *fakeMailbox, extract *fakeExtractor) *Pipeline {
	chain := offlineChain()
	scorer := urgency.NewScorer(mb, extract, nil, urgency.Options{Now: base})
	tagger := calendar.NewTagger(extract, nil)
	builder := digest.NewBuilder(chain, nil, digest.BuilderOptions{})
	renderer := digest.NewRenderer(0)
	manager := digest.NewManager(time.Hour, nil)
	return NewPipeline(PipelineDeps{
		Mailbox:    mb,
		Summarizer: chain,
		Scorer:     scorer,
		Detector:   tagger,
		Builder:    builder,
		Renderer:   renderer,
		Manager:    manager,
		Options:    Options{ForwardTo: "me@x.com"},
	})
}

func unreadBatch() []domain.Message {
	return []domain.Message{
		{
			ID: "a1", ThreadID: "t1",
			Sender:     domain.Address{Email: "alice@x.com"},
			Subject:    "Project update",
			BodyText:   "Quarterly report draft attached. Deadline Friday 3pm for comments. Please review the numbers.",
			ReceivedAt: base(),
		},
		{
			ID: "a2", ThreadID: "t1",
			Sender:     domain.Address{Email: "alice@x.com"},
			Subject:    "Re: Project update",
			BodyText:   "Forgot the appendix. Same deadline applies to the appendix notes.",
			ReceivedAt: base().Add(10 * time.Minute),
		},
		{
			ID: "b1", ThreadID: "t2",
			Sender:     domain.Address{Email: "bob@y.com"},
			Subject:    "Lunch next week",
			BodyText:   "No rush at all. Just pick a day that works for you.",
			ReceivedAt: base().Add(20 * time.Minute),
		},
	}
}

func TestDigestScenarioAliceAndBob(t *testing.T) {
	t.Parallel()

	mb := newFakeMailbox(unreadBatch()...)
	extract := &fakeExtractor{start: base().Add(24 * time.Hour)}
	p := newTestPipeline(mb, extract)

	blocks, err := p.BuildDigest(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("BuildDigest error: %v", err)
	}
	session, ok := p.manager.Current("conv1")
	if !ok {
		t.Fatal("no session installed")
	}

	items := session.Items()
	if len(items) != 2 {
		t.Fatalf("items = %d, want combined alice + bob", len(items))
	}
	alice := items[0]
	if alice.GroupKey != "alice@x.com" || len(alice.MemberRefs) != 2 {
		t.Fatalf("first item = %+v, want combined alice group first", alice)
	}
	if alice.Urgency.Tier != domain.TierUrgent {
		t.Fatalf("alice tier = %v, want urgent from keyword + deadline", alice.Urgency.Tier)
	}
	if n := len([]rune(alice.Summary.Text)); n > 1000 {
		t.Fatalf("combined summary %d chars, want ≤ 1000", n)
	}
	if items[1].GroupKey != "bob@y.com" {
		t.Fatalf("second item = %+v, want bob", items[1])
	}
	if len(blocks) == 0 {
		t.Fatal("no rendered blocks")
	}

	// Consume both items, then one more action signals exhaustion.
	for i := 0; i < 2; i++ {
		if _, err := p.ApplyAction(context.Background(), "conv1", session.ID(), i, digest.ActionNext); err != nil {
			t.Fatalf("ApplyAction #%d error: %v", i, err)
		}
	}
	if _, err := p.ApplyAction(context.Background(), "conv1", session.ID(), 2, digest.ActionNext); !errors.Is(err, digest.ErrNoMoreItems) {
		t.Fatalf("err = %v, want ErrNoMoreItems", err)
	}
	if len(mb.archived) != 3 {
		t.Fatalf("archived = %v, want all three messages", mb.archived)
	}
}

func TestSecondDigestSupersedesFirst(t *testing.T) {
	t.Parallel()

	mb := newFakeMailbox(unreadBatch()...)
	p := newTestPipeline(mb, &fakeExtractor{})

	if _, err := p.BuildDigest(context.Background(), "conv1"); err != nil {
		t.Fatalf("first BuildDigest error: %v", err)
	}
	first, _ := p.manager.Current("conv1")

	if _, err := p.BuildDigest(context.Background(), "conv1"); err != nil {
		t.Fatalf("second BuildDigest error: %v", err)
	}
	if _, err := p.ApplyAction(context.Background(), "conv1", first.ID(), 0, digest.ActionNext); !errors.Is(err, digest.ErrSessionSuperseded) {
		t.Fatalf("err = %v, want ErrSessionSuperseded", err)
	}
}

func TestEmptyInboxProducesFriendlyBlock(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(newFakeMailbox(), &fakeExtractor{})
	blocks, err := p.BuildDigest(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("BuildDigest error: %v", err)
	}
	if len(blocks) != 1 || !strings.Contains(blocks[0].Text, "nothing unread") {
		t.Fatalf("blocks = %+v, want single inbox-zero notice", blocks)
	}
}

func TestRenderedBlocksRespectLimit(t *testing.T) {
	t.Parallel()

	var msgs []domain.Message
	long := strings.Repeat("This sentence fills space for the summary engine to keep. ", 40)
	for i := 0; i < 8; i++ {
		msgs = append(msgs, domain.Message{
			ID:         string(rune('a' + i)),
			Sender:     domain.Address{Email: string(rune('a'+i)) + "@x.com"},
			Subject:    "note",
			BodyText:   long,
			ReceivedAt: base().Add(time.Duration(i) * time.Minute),
		})
	}
	p := newTestPipeline(newFakeMailbox(msgs...), &fakeExtractor{})

	blocks, err := p.BuildDigest(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("BuildDigest error: %v", err)
	}
	for _, b := range blocks {
		if n := len([]rune(b.Text)); n > digest.DefaultBlockLimit {
			t.Fatalf("block of %d chars exceeds transport limit", n)
		}
	}
}

type fakeTransport struct {
	sent []domain.Block
}

func (f *fakeTransport) Send(_ context.Context, _ string, blocks []domain.Block) error {
	f.sent = append(f.sent, blocks...)
	return nil
}

func TestMarkImportantThenAlertWatcher(t *testing.T) {
	t.Parallel()

	mb := newFakeMailbox(unreadBatch()...)
	p := newTestPipeline(mb, &fakeExtractor{})

	if _, err := p.BuildDigest(context.Background(), "conv1"); err != nil {
		t.Fatalf("BuildDigest error: %v", err)
	}
	session, _ := p.manager.Current("conv1")
	if _, err := p.ApplyAction(context.Background(), "conv1", session.ID(), 0, digest.ActionMarkImportant); err != nil {
		t.Fatalf("ApplyAction error: %v", err)
	}
	if !mb.important["alice@x.com"] {
		t.Fatal("sender not flagged important through the mailbox")
	}
	if got := session.Cursor(); got != 0 {
		t.Fatalf("cursor = %d, want unchanged by mark_important", got)
	}

	// New mail from the freshly flagged sender trips the watcher.
	tr := &fakeTransport{}
	w := NewAlertWatcher(mb, tr, "conv1", "me@x.com", nil)
	mb.unread = append(mb.unread, domain.Message{
		ID:         "a3",
		Sender:     domain.Address{Email: "alice@x.com"},
		Subject:    "One more thing",
		ReceivedAt: time.Now().Add(time.Minute),
	})
	if err := w.Check(context.Background(), time.Now().Add(2*time.Minute)); err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if len(tr.sent) != 1 || !strings.Contains(tr.sent[0].Text, "alice@x.com") {
		t.Fatalf("alerts = %+v, want one for the new alice message", tr.sent)
	}
	if len(mb.forwarded) == 0 || mb.forwarded[len(mb.forwarded)-1] != "a3" {
		t.Fatalf("forwarded = %v, want a3 forwarded", mb.forwarded)
	}
	// Second sweep stays quiet for the same message.
	if err := w.Check(context.Background(), time.Now().Add(3*time.Minute)); err != nil {
		t.Fatalf("second Check error: %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("alerts = %d, want no duplicate", len(tr.sent))
	}
}

func TestAlertWatcherDropsStaleDedupEntries(t *testing.T) {
	t.Parallel()

	mb := newFakeMailbox()
	mb.important["alice@x.com"] = true
	tr := &fakeTransport{}
	w := NewAlertWatcher(mb, tr, "conv1", "", nil)

	base := time.Now()
	for k := 1; k <= 5; k++ {
		mb.unread = append(mb.unread, domain.Message{
			ID:         fmt.Sprintf("imp-%d", k),
			Sender:     domain.Address{Email: "alice@x.com"},
			Subject:    "ping",
			ReceivedAt: base.Add(time.Duration(k) * time.Minute),
		})
		if err := w.Check(context.Background(), base.Add(time.Duration(k)*time.Minute+30*time.Second)); err != nil {
			t.Fatalf("Check %d error: %v", k, err)
		}
	}

	if len(tr.sent) != 5 {
		t.Fatalf("alerts = %d, want one per message", len(tr.sent))
	}
	// The dedup map only needs one generation of entries; everything the
	// arrival filter already excludes must be gone.
	if n := len(w.notified); n > 2 {
		t.Fatalf("dedup entries = %d, want at most the latest generation", n)
	}
}
