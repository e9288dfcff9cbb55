package dates

import (
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

// maxSignals bounds how many mentions one text can contribute.
const maxSignals = 8

// Parser extracts date/time mentions from natural English text.
type Parser struct {
	w *when.Parser
}

var _ ports.DateTimeExtractor = (*Parser)(nil)

// NewParser builds a parser with the English and common rule sets.
func NewParser() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w}
}

// Extract scans text for date/time mentions, anchored at base for relative
// phrases. Mentions are returned in text order with a confidence derived
// from how specific the matched span is.
func (p *Parser) Extract(text string, base time.Time) []domain.TimeSignal {
	var signals []domain.TimeSignal
	offset := 0

	for len(signals) < maxSignals {
		result, err := p.w.Parse(text[offset:], base)
		if err != nil || result == nil {
			break
		}
		signals = append(signals, domain.TimeSignal{
			Start:      result.Time,
			Text:       result.Text,
			Pos:        offset + result.Index,
			Confidence: confidence(result.Text),
		})

		next := result.Index + len(result.Text)
		if next <= 0 {
			break
		}
		offset += next
		if offset >= len(text) {
			break
		}
	}
	return signals
}

// confidence rates a match by the specificity of its span: longer matches
// carry both a date and a time, short ones are bare weekday or hour
// mentions.
func confidence(span string) float64 {
	switch n := len(span); {
	case n >= 12:
		return 0.9
	case n >= 6:
		return 0.7
	default:
		return 0.5
	}
}
