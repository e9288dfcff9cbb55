package calendar

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

const minConfidence = 0.5

var (
	locationExpr = regexp.MustCompile(`(?im)^\s*(?:location|where|venue)\s*[:\-]\s*(.+)$`)
	linkExpr     = regexp.MustCompile(`https?://[^\s<>"]*(?:zoom\.us|meet\.google\.com|teams\.microsoft\.com)[^\s<>"]*`)
)

// Tagger extracts a calendar-event candidate from a message and tags it
// with conflicts against events already on the calendar.
type Tagger struct {
	extract ports.DateTimeExtractor
	logger  *slog.Logger
	now     func() time.Time
}

// NewTagger builds a Tagger. extract may be nil, in which case no
// candidates are ever produced.
func NewTagger(extract ports.DateTimeExtractor, logger *slog.Logger) *Tagger {
	return &Tagger{extract: extract, logger: logger, now: time.Now}
}

// DetectEvent returns the best event candidate found in the message, or nil
// when nothing was detected with enough confidence. existing holds events
// already on the calendar; any that overlap the candidate's window end up
// in ConflictsWith.
func (t *Tagger) DetectEvent(msg domain.Message, existing []domain.ExistingEvent) *domain.EventCandidate {
	if t.extract == nil {
		return nil
	}

	base := t.now()
	if !msg.ReceivedAt.IsZero() {
		base = msg.ReceivedAt
	}

	text := msg.Subject + "\n" + msg.BodyText
	signals := t.extract.Extract(text, base)
	best := pickSignal(signals, base)
	if best == nil {
		return nil
	}

	candidate := &domain.EventCandidate{
		Title:       eventTitle(msg.Subject),
		Start:       best.Start,
		End:         best.End,
		Location:    firstLocation(text),
		MeetingLink: linkExpr.FindString(text),
	}

	for _, ev := range existing {
		if candidate.Overlaps(ev) {
			candidate.ConflictsWith = append(candidate.ConflictsWith,
				domain.ConflictRef{EventID: ev.ID, Title: ev.Title})
		}
	}
	if t.logger != nil && len(candidate.ConflictsWith) > 0 {
		t.logger.Debug("event candidate conflicts with calendar",
			"message", msg.ID, "start", candidate.Start, "conflicts", len(candidate.ConflictsWith))
	}
	return candidate
}

// pickSignal keeps future signals above the confidence floor and selects
// the most confident one; ties go to the earliest mention in the text.
func pickSignal(signals []domain.TimeSignal, base time.Time) *domain.TimeSignal {
	var best *domain.TimeSignal
	for i := range signals {
		sig := &signals[i]
		if sig.Confidence < minConfidence || !sig.Start.After(base) {
			continue
		}
		if best == nil || sig.Confidence > best.Confidence ||
			(sig.Confidence == best.Confidence && sig.Pos < best.Pos) {
			best = sig
		}
	}
	return best
}

func eventTitle(subject string) string {
	for _, prefix := range []string{"re:", "fwd:", "fw:"} {
		for strings.HasPrefix(strings.ToLower(subject), prefix) {
			subject = strings.TrimSpace(subject[len(prefix):])
		}
	}
	if subject == "" {
		return "Event from email"
	}
	return subject
}

func firstLocation(text string) string {
	m := locationExpr.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	loc := strings.TrimSpace(m[1])
	// A bare meeting URL in the location line belongs in MeetingLink.
	if linkExpr.MatchString(loc) && !strings.ContainsAny(strings.TrimSpace(linkExpr.ReplaceAllString(loc, "")), "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return ""
	}
	return loc
}
