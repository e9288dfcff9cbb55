package domain

// Provider names the summarization tier that produced a result.
type Provider string

const (
	ProviderPrimary   Provider = "primary"
	ProviderSecondary Provider = "secondary"
	ProviderLocal     Provider = "local"
	ProviderHeuristic Provider = "heuristic"
)

// SummaryResult is the provenance-tagged outcome of one summarization run.
// Immutable once created; a re-summarization produces a new value.
type SummaryResult struct {
	Text           string
	Provider       Provider
	FallbackUsed   bool
	Truncated      bool
	ReadingMinutes float64
}

// UrgencyTier is the coarse display bucket derived from the urgency scorer.
type UrgencyTier string

const (
	TierNormal    UrgencyTier = "normal"
	TierUrgent    UrgencyTier = "urgent"
	TierImportant UrgencyTier = "important"
)

// Rank orders tiers for digest presentation; higher sorts first.
func (t UrgencyTier) Rank() int {
	switch t {
	case TierImportant:
		return 3
	case TierUrgent:
		return 2
	default:
		return 1
	}
}

// UrgencyResult carries the score, display tier, and the ordered list of
// rule names that fired (for diagnostics).
type UrgencyResult struct {
	Score   float64
	Tier    UrgencyTier
	Reasons []string
}
