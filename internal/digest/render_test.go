package digest

import (
	"strings"
	"testing"
	"time"

	"maildigest/internal/domain"
)

func TestCallbackDataRoundTrip(t *testing.T) {
	t.Parallel()

	data := CallbackData("sess-42", 7, ActionAddEvent)
	sessionID, idx, action, err := ParseCallback(data)
	if err != nil {
		t.Fatalf("ParseCallback error: %v", err)
	}
	if sessionID != "sess-42" || idx != 7 || action != ActionAddEvent {
		t.Fatalf("parsed = (%s, %d, %s)", sessionID, idx, action)
	}
}

func TestParseCallbackRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, data := range []string{"", "dg|s1|x|next", "dg|s1|0|destroy", "other|s1|0|next", "dg|s1|0"} {
		if _, _, _, err := ParseCallback(data); err == nil {
			t.Fatalf("ParseCallback(%q) = nil error, want failure", data)
		}
	}
}

func TestRenderItemEscapesMarkup(t *testing.T) {
	t.Parallel()

	r := NewRenderer(0)
	item := domain.DigestItem{
		MessageRef: "m1",
		MemberRefs: []string{"m1"},
		Sender:     domain.Address{Name: "Eve <script>", Email: "eve@x.com"},
		Subject:    "a < b & c > d",
		Summary:    domain.SummaryResult{Text: "<b>not bold</b>", Provider: domain.ProviderPrimary},
	}
	block := r.RenderItem("s1", 0, item)

	if strings.Contains(block.Text, "<script>") {
		t.Fatalf("unescaped markup in %q", block.Text)
	}
	if !strings.Contains(block.Text, "&lt;b&gt;not bold&lt;/b&gt;") {
		t.Fatalf("summary not escaped: %q", block.Text)
	}
	if !strings.Contains(block.Text, "a &lt; b &amp; c &gt; d") {
		t.Fatalf("subject not escaped: %q", block.Text)
	}
}

func TestRenderItemProvenanceMarkers(t *testing.T) {
	t.Parallel()

	r := NewRenderer(0)
	base := domain.DigestItem{MemberRefs: []string{"m1"}, Sender: domain.Address{Email: "a@x.com"}}

	local := base
	local.Summary = domain.SummaryResult{Text: "t", Provider: domain.ProviderLocal, FallbackUsed: true}
	if got := r.RenderItem("s", 0, local).Text; !strings.Contains(got, "[Local summary]") {
		t.Fatalf("local marker missing in %q", got)
	}

	secondary := base
	secondary.Summary = domain.SummaryResult{Text: "t", Provider: domain.ProviderSecondary, FallbackUsed: true}
	if got := r.RenderItem("s", 0, secondary).Text; !strings.Contains(got, "[Fallback summary]") {
		t.Fatalf("fallback marker missing in %q", got)
	}

	primary := base
	primary.Summary = domain.SummaryResult{Text: "t", Provider: domain.ProviderPrimary}
	if got := r.RenderItem("s", 0, primary).Text; strings.Contains(got, "summary]") {
		t.Fatalf("unexpected provenance marker in %q", got)
	}
}

func TestRenderItemEventControls(t *testing.T) {
	t.Parallel()

	r := NewRenderer(0)
	item := domain.DigestItem{
		MemberRefs: []string{"m1"},
		Sender:     domain.Address{Email: "a@x.com"},
		Summary:    domain.SummaryResult{Text: "t", Provider: domain.ProviderPrimary},
		Event: &domain.EventCandidate{
			Title:         "sync",
			Start:         time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC),
			ConflictsWith: []domain.ConflictRef{{EventID: "ev-standup", Title: "Standup"}},
		},
	}
	block := r.RenderItem("s1", 0, item)

	if !strings.Contains(block.Text, "Conflicts with: Standup") {
		t.Fatalf("conflict note missing in %q", block.Text)
	}
	if len(block.Controls) != 6 {
		t.Fatalf("controls = %d, want 4 base + 2 event", len(block.Controls))
	}

	plain := item
	plain.Event = nil
	if got := len(r.RenderItem("s1", 0, plain).Controls); got != 4 {
		t.Fatalf("controls without event = %d, want 4", got)
	}
}

func TestRenderItemConflictLabelFallsBackToID(t *testing.T) {
	t.Parallel()

	r := NewRenderer(0)
	item := domain.DigestItem{
		MemberRefs: []string{"m1"},
		Sender:     domain.Address{Email: "a@x.com"},
		Summary:    domain.SummaryResult{Text: "t", Provider: domain.ProviderPrimary},
		Event: &domain.EventCandidate{
			Title:         "sync",
			Start:         time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC),
			ConflictsWith: []domain.ConflictRef{{EventID: "ev-9"}},
		},
	}
	if got := r.RenderItem("s1", 0, item).Text; !strings.Contains(got, "Conflicts with: ev-9") {
		t.Fatalf("untitled conflict not shown by id in %q", got)
	}
}

func TestRenderItemStaysUnderLimitWithEscapeHeavySummary(t *testing.T) {
	t.Parallel()

	// A capped summary of ampersands quintuples under escaping; the block
	// must still fit the transport limit.
	r := NewRenderer(0)
	item := domain.DigestItem{
		MemberRefs: []string{"m1"},
		Sender:     domain.Address{Email: "a@x.com"},
		Subject:    "quarterly numbers",
		Summary:    domain.SummaryResult{Text: strings.Repeat("&", 1000), Provider: domain.ProviderPrimary},
	}
	block := r.RenderItem("s1", 0, item)

	if n := len([]rune(block.Text)); n > DefaultBlockLimit {
		t.Fatalf("block of %d chars exceeds transport limit", n)
	}
	if i := strings.LastIndexByte(block.Text, '&'); i >= 0 && !strings.ContainsRune(block.Text[i:], ';') {
		t.Fatalf("block ends in a dangling entity: %q", block.Text[i:])
	}
}

func TestRenderItemTruncatesRunawaySubject(t *testing.T) {
	t.Parallel()

	r := NewRenderer(0)
	item := domain.DigestItem{
		MemberRefs: []string{"m1"},
		Sender:     domain.Address{Email: "a@x.com"},
		Subject:    strings.Repeat("s", 5000),
		Summary:    domain.SummaryResult{Text: "short", Provider: domain.ProviderPrimary},
	}
	block := r.RenderItem("s1", 0, item)

	if n := len([]rune(block.Text)); n > DefaultBlockLimit {
		t.Fatalf("block of %d chars exceeds transport limit", n)
	}
	if !strings.Contains(block.Text, "…") {
		t.Fatalf("subject not truncated in %q", block.Text[:80])
	}
}

func TestPaginateClampsOversizedBlock(t *testing.T) {
	t.Parallel()

	r := NewRenderer(100)
	out := r.Paginate([]domain.Block{{Text: strings.Repeat("z", 300)}})

	if len(out) != 1 {
		t.Fatalf("pages = %d, want 1", len(out))
	}
	if n := len([]rune(out[0].Text)); n > 100 {
		t.Fatalf("page of %d chars exceeds limit", n)
	}
}

func TestPaginateNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	r := NewRenderer(100)
	var blocks []domain.Block
	for i := 0; i < 10; i++ {
		blocks = append(blocks, domain.Block{
			Text:     strings.Repeat("x", 40),
			Controls: []domain.Control{{Label: "Next", Data: CallbackData("s", i, ActionNext)}},
		})
	}
	out := r.Paginate(blocks)

	if len(out) < 2 {
		t.Fatalf("pages = %d, want splitting under a 100-char limit", len(out))
	}
	totalControls := 0
	for _, b := range out {
		if n := len([]rune(b.Text)); n > 100 {
			t.Fatalf("page of %d chars exceeds limit", n)
		}
		totalControls += len(b.Controls)
	}
	if totalControls != 10 {
		t.Fatalf("controls preserved = %d, want 10", totalControls)
	}
}

func TestPaginateKeepsItemsWhole(t *testing.T) {
	t.Parallel()

	r := NewRenderer(100)
	a := strings.Repeat("a", 60)
	b := strings.Repeat("b", 60)
	out := r.Paginate([]domain.Block{{Text: a}, {Text: b}})

	if len(out) != 2 {
		t.Fatalf("pages = %d, want 2 (no mid-item split)", len(out))
	}
	if out[0].Text != a || out[1].Text != b {
		t.Fatalf("items split across pages: %q / %q", out[0].Text, out[1].Text)
	}
}
