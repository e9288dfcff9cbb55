package digest

import (
	"fmt"
	"strconv"
	"strings"

	"maildigest/internal/domain"
)

const (
	// DefaultBlockLimit matches the Telegram message-size cap.
	DefaultBlockLimit = 4096

	// subjectRuneLimit caps the subject line before escaping; mail subjects
	// past this are noise anyway.
	subjectRuneLimit = 200

	// conflictRuneLimit caps the escaped conflict list.
	conflictRuneLimit = 256

	// footerReserve holds back room for the provenance, timing and event
	// lines when budgeting the summary.
	footerReserve = 400

	callbackPrefix = "dg"
	callbackSep    = "|"
)

// CallbackData encodes one control invocation for the transport.
func CallbackData(sessionID string, itemIndex int, action Action) string {
	return strings.Join([]string{callbackPrefix, sessionID, strconv.Itoa(itemIndex), string(action)}, callbackSep)
}

// ParseCallback decodes transport callback data produced by CallbackData.
func ParseCallback(data string) (sessionID string, itemIndex int, action Action, err error) {
	parts := strings.Split(data, callbackSep)
	if len(parts) != 4 || parts[0] != callbackPrefix {
		return "", 0, "", fmt.Errorf("malformed callback data %q", data)
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, "", fmt.Errorf("malformed callback item index %q", parts[2])
	}
	action, ok := ParseAction(parts[3])
	if !ok {
		return "", 0, "", fmt.Errorf("unknown callback action %q", parts[3])
	}
	return parts[1], idx, action, nil
}

// Renderer formats digest items into transport blocks. Output is HTML-safe
// for transports that parse markup.
type Renderer struct {
	blockLimit int
}

// NewRenderer builds a renderer; limit ≤ 0 selects DefaultBlockLimit.
func NewRenderer(limit int) *Renderer {
	if limit <= 0 {
		limit = DefaultBlockLimit
	}
	return &Renderer{blockLimit: limit}
}

// RenderItem formats one item with its action controls.
func (r *Renderer) RenderItem(sessionID string, itemIndex int, item domain.DigestItem) domain.Block {
	var b strings.Builder

	switch item.Urgency.Tier {
	case domain.TierImportant:
		b.WriteString("⭐ ")
	case domain.TierUrgent:
		b.WriteString("🔴 ")
	default:
		b.WriteString("🟢 ")
	}
	b.WriteString("<b>")
	b.WriteString(escape(item.Sender.String()))
	b.WriteString("</b>")
	if item.Combined() {
		fmt.Fprintf(&b, " (%d messages)", len(item.MemberRefs))
	}
	b.WriteString("\n")

	if item.Subject != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", escape(truncRunes(item.Subject, subjectRuneLimit)))
	}
	b.WriteString("\n")
	// Escaping inflates &, < and > severalfold, so the summary cap alone
	// does not keep the block under the transport limit. Budget the escaped
	// text against what is already written.
	budget := r.blockLimit - len([]rune(b.String())) - footerReserve
	b.WriteString(clampMarkup(escape(item.Summary.Text), budget))
	b.WriteString("\n")

	switch item.Summary.Provider {
	case domain.ProviderLocal:
		b.WriteString("\n[Local summary]")
	case domain.ProviderHeuristic:
		b.WriteString("\n[Fallback summary]")
	default:
		if item.Summary.FallbackUsed {
			b.WriteString("\n[Fallback summary]")
		}
	}
	if item.Summary.ReadingMinutes > 0 {
		fmt.Fprintf(&b, "\n⏱ %.1f min read", item.Summary.ReadingMinutes)
	}

	if ev := item.Event; ev != nil {
		fmt.Fprintf(&b, "\n\n📅 Possible event: %s", ev.Start.Format("Mon Jan 2 15:04"))
		if ev.Location != "" {
			fmt.Fprintf(&b, " @ %s", escape(ev.Location))
		}
		if len(ev.ConflictsWith) > 0 {
			fmt.Fprintf(&b, "\n⚠️ Conflicts with: %s",
				clampMarkup(escape(strings.Join(conflictLabels(ev.ConflictsWith), ", ")), conflictRuneLimit))
		}
	}

	return domain.Block{
		Text:     clampMarkup(b.String(), r.blockLimit),
		Controls: r.controls(sessionID, itemIndex, item),
	}
}

func conflictLabels(refs []domain.ConflictRef) []string {
	labels := make([]string, 0, len(refs))
	for _, ref := range refs {
		label := ref.Title
		if label == "" {
			label = ref.EventID
		}
		labels = append(labels, label)
	}
	return labels
}

func (r *Renderer) controls(sessionID string, itemIndex int, item domain.DigestItem) []domain.Control {
	ctl := func(label string, action Action) domain.Control {
		return domain.Control{Label: label, Data: CallbackData(sessionID, itemIndex, action)}
	}
	controls := []domain.Control{
		ctl("⭐ Mark important", ActionMarkImportant),
		ctl("↪️ Forward", ActionForward),
		ctl("📩 Leave unread", ActionLeaveUnread),
		ctl("➡️ Next", ActionNext),
	}
	if item.Event != nil {
		controls = append(controls,
			ctl("📅 Add to calendar", ActionAddEvent),
			ctl("✖️ Ignore event", ActionIgnoreEvent),
		)
	}
	return controls
}

// RenderCurrent formats the session's current item, or a terminal notice
// when the session has no items left.
func (r *Renderer) RenderCurrent(s *Session) []domain.Block {
	items := s.Items()
	cursor := s.Cursor()
	if cursor >= len(items) {
		return []domain.Block{{Text: "All caught up — no more messages in this digest."}}
	}
	return []domain.Block{r.RenderItem(s.ID(), cursor, items[cursor])}
}

// Paginate packs rendered item blocks greedily under the transport limit,
// splitting only at item boundaries. A packed block carries the controls
// of every item inside it, so controls never separate from their text.
func (r *Renderer) Paginate(blocks []domain.Block) []domain.Block {
	var (
		out     []domain.Block
		current domain.Block
	)
	flush := func() {
		if current.Text != "" {
			out = append(out, current)
			current = domain.Block{}
		}
	}
	for _, b := range blocks {
		// Last-resort guard: no single block may exceed the limit even if
		// a caller hands over text the renderer never budgeted.
		if len([]rune(b.Text)) > r.blockLimit {
			b.Text = clampMarkup(b.Text, r.blockLimit)
		}
		sep := 0
		if current.Text != "" {
			sep = 2
		}
		if len([]rune(current.Text))+sep+len([]rune(b.Text)) > r.blockLimit {
			flush()
		}
		if current.Text != "" {
			current.Text += "\n\n"
		}
		current.Text += b.Text
		current.Controls = append(current.Controls, b.Controls...)
	}
	flush()
	return out
}

// truncRunes cuts plain text at a rune budget with an ellipsis.
func truncRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// clampMarkup cuts escaped HTML at a rune budget without leaving a dangling
// entity or an unterminated tag behind the cut.
func clampMarkup(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit < 2 {
		return ""
	}
	s = string(runes[:limit-1])
	if i := strings.LastIndexByte(s, '&'); i >= 0 && !strings.ContainsRune(s[i:], ';') {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '<'); i >= 0 && !strings.ContainsRune(s[i:], '>') {
		s = s[:i]
	}
	return s + "…"
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
