package digest

import (
	"context"
	"strings"
	"testing"
	"time"

	"maildigest/internal/domain"
)

type stubSummarizer struct {
	calls []string
	panic bool
}

func (s *stubSummarizer) Summarize(_ context.Context, _ string, text string, maxLen int) domain.SummaryResult {
	if s.panic {
		panic("summarizer blew up")
	}
	s.calls = append(s.calls, text)
	out := text
	truncated := false
	if len(out) > maxLen {
		out = out[:maxLen]
		truncated = true
	}
	return domain.SummaryResult{Text: out, Provider: domain.ProviderLocal, FallbackUsed: true, Truncated: truncated}
}

func preparedFrom(id, sender, body string, at time.Time, tier domain.UrgencyTier) Prepared {
	return Prepared{
		Message: domain.Message{
			ID:         id,
			Sender:     domain.Address{Email: sender},
			Subject:    "subject " + id,
			BodyText:   body,
			ReceivedAt: at,
		},
		Summary: domain.SummaryResult{Text: "summary " + id, Provider: domain.ProviderPrimary},
		Urgency: domain.UrgencyResult{Tier: tier},
	}
}

func TestGroupingMergesSameSender(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	sum := &stubSummarizer{}
	b := NewBuilder(sum, nil, BuilderOptions{})

	items := b.Build(context.Background(), []Prepared{
		preparedFrom("m1", "alice@x.com", "First body. Shared line.", now, domain.TierUrgent),
		preparedFrom("m2", "alice@x.com", "Second body. Shared line.", now.Add(time.Minute), domain.TierNormal),
		preparedFrom("m3", "bob@y.com", "Bob's note.", now.Add(2*time.Minute), domain.TierNormal),
	})

	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 (combined alice + bob)", len(items))
	}
	alice := items[0]
	if alice.GroupKey != "alice@x.com" || !alice.Combined() {
		t.Fatalf("first item = %+v, want combined alice group", alice)
	}
	if len(alice.MemberRefs) != 2 {
		t.Fatalf("member refs = %v, want both alice messages", alice.MemberRefs)
	}
	if alice.Urgency.Tier != domain.TierUrgent {
		t.Fatalf("tier = %v, want highest tier in group", alice.Urgency.Tier)
	}
	if len(sum.calls) != 1 {
		t.Fatalf("summarizer calls = %d, want one combined re-summarization", len(sum.calls))
	}
	if n := strings.Count(sum.calls[0], "Shared line"); n != 1 {
		t.Fatalf("combined source repeats shared sentence %d times, want deduplicated to 1", n)
	}
}

func TestGroupingIdempotentForManyMessages(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := NewBuilder(&stubSummarizer{}, nil, BuilderOptions{})

	var prepared []Prepared
	for i := 0; i < 5; i++ {
		prepared = append(prepared, preparedFrom(
			string(rune('a'+i)), "alice@x.com", "Body number.", now.Add(time.Duration(i)*time.Minute), domain.TierNormal))
	}
	items := b.Build(context.Background(), prepared)

	if len(items) != 1 {
		t.Fatalf("items = %d, want exactly 1 for one sender", len(items))
	}
	if items[0].GroupKey != "alice@x.com" {
		t.Fatalf("group key = %q", items[0].GroupKey)
	}
}

func TestCombinedSummaryRespectsCap(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := NewBuilder(&stubSummarizer{}, nil, BuilderOptions{CombinedMaxChars: 1000})

	long := strings.Repeat("Sentence one is here. ", 200)
	items := b.Build(context.Background(), []Prepared{
		preparedFrom("m1", "alice@x.com", long+"Unique alpha.", now, domain.TierNormal),
		preparedFrom("m2", "alice@x.com", long+"Unique beta.", now, domain.TierNormal),
	})

	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if got := len(items[0].Summary.Text); got > 1000 {
		t.Fatalf("combined summary %d chars, want ≤ 1000", got)
	}
}

func TestGroupingDegradesToIndividualOnFailure(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := NewBuilder(&stubSummarizer{panic: true}, nil, BuilderOptions{})

	items := b.Build(context.Background(), []Prepared{
		preparedFrom("m1", "alice@x.com", "one", now, domain.TierNormal),
		preparedFrom("m2", "alice@x.com", "two", now, domain.TierNormal),
		preparedFrom("m3", "alice@x.com", "three", now, domain.TierNormal),
	})

	if len(items) != 3 {
		t.Fatalf("items = %d, want 3 individual items after degrade", len(items))
	}
	for _, it := range items {
		if it.Combined() {
			t.Fatalf("item %+v combined despite summarizer failure", it)
		}
	}
}

func TestOrderingByTierThenAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	b := NewBuilder(&stubSummarizer{}, nil, BuilderOptions{})

	items := b.Build(context.Background(), []Prepared{
		preparedFrom("old-normal", "a@x.com", "x", now, domain.TierNormal),
		preparedFrom("new-urgent", "b@x.com", "x", now.Add(2*time.Hour), domain.TierUrgent),
		preparedFrom("important", "c@x.com", "x", now.Add(3*time.Hour), domain.TierImportant),
		preparedFrom("new-normal", "d@x.com", "x", now.Add(time.Hour), domain.TierNormal),
	})

	want := []string{"important", "new-urgent", "old-normal", "new-normal"}
	if len(items) != len(want) {
		t.Fatalf("items = %d, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].MessageRef != id {
			t.Fatalf("items[%d] = %s, want %s", i, items[i].MessageRef, id)
		}
	}
}

func TestNilSummarizerDegradesGroups(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := NewBuilder(nil, nil, BuilderOptions{})

	items := b.Build(context.Background(), []Prepared{
		preparedFrom("m1", "alice@x.com", "one", now, domain.TierNormal),
		preparedFrom("m2", "alice@x.com", "two", now, domain.TierNormal),
	})
	if len(items) != 2 {
		t.Fatalf("items = %d, want individual items without a summarizer", len(items))
	}
}
