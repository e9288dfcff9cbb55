package urgency

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

// Rule names reported in UrgencyResult.Reasons, in evaluation order.
const (
	ReasonKeywords        = "keywords"
	ReasonDeadline        = "deadline"
	ReasonImportantSender = "important_sender"
	ReasonThreadActivity  = "thread_activity"
)

const urgentThreshold = 0.66

// Weights are the partial contributions of each rule signal. The summed
// score is clamped to [0, 1].
type Weights struct {
	Keywords        float64
	Deadline        float64
	ImportantSender float64
	ThreadActivity  float64
}

// DefaultWeights mirror the relative importance of the rule signals:
// explicit urgency wording and near deadlines dominate.
func DefaultWeights() Weights {
	return Weights{
		Keywords:        0.40,
		Deadline:        0.40,
		ImportantSender: 0.35,
		ThreadActivity:  0.25,
	}
}

// Deadline phrasings scanned in bodies; the captured tail goes to the
// date/time extractor.
var deadlineExprs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)due by[:\s]+([^.\n]+)`),
	regexp.MustCompile(`(?i)deadline[:\s]+([^.\n]+)`),
	regexp.MustCompile(`(?i)due date[:\s]+([^.\n]+)`),
	regexp.MustCompile(`(?i)submit by[:\s]+([^.\n]+)`),
	regexp.MustCompile(`(?i)complete by[:\s]+([^.\n]+)`),
}

// Scorer combines rule-based signals into an urgency score and display
// tier. Deterministic for identical inputs; the only external state it
// reads is the shared important-sender set and the clock.
type Scorer struct {
	keywords        []string
	weights         Weights
	deadlineWindow  time.Duration
	threadThreshold int
	flags           ports.SenderFlags
	extract         ports.DateTimeExtractor
	classifier      ports.UrgencyClassifier
	logger          *slog.Logger
	now             func() time.Time
}

// Options tunes a Scorer beyond its required collaborators.
type Options struct {
	Keywords        []string
	Weights         Weights
	DeadlineWindow  time.Duration
	ThreadThreshold int
	Classifier      ports.UrgencyClassifier
	Now             func() time.Time
}

// NewScorer wires the rule signals. flags and extract may be nil, in which
// case their signals never fire.
func NewScorer(flags ports.SenderFlags, extract ports.DateTimeExtractor, logger *slog.Logger, opts Options) *Scorer {
	if len(opts.Keywords) == 0 {
		opts.Keywords = []string{
			"urgent", "asap", "emergency", "important", "action required",
			"deadline", "critical", "immediately", "time sensitive", "priority",
		}
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	if opts.DeadlineWindow <= 0 {
		opts.DeadlineWindow = 72 * time.Hour
	}
	if opts.ThreadThreshold <= 0 {
		opts.ThreadThreshold = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scorer{
		keywords:        opts.Keywords,
		weights:         opts.Weights,
		deadlineWindow:  opts.DeadlineWindow,
		threadThreshold: opts.ThreadThreshold,
		flags:           flags,
		extract:         extract,
		classifier:      opts.Classifier,
		logger:          logger,
		now:             opts.Now,
	}
}

// Score evaluates one message. threadCount is the number of messages seen
// in the message's thread over the trailing window. The caller always gets
// a tier: classifier failures fall back to the rule-based result.
func (s *Scorer) Score(ctx context.Context, msg domain.Message, summary domain.SummaryResult, threadCount int) domain.UrgencyResult {
	res := s.ruleScore(ctx, msg, summary, threadCount)

	if s.classifier != nil {
		if override, err := s.classifier.Classify(ctx, msg, summary); err == nil {
			res.Score = clamp(override.Score)
			res.Reasons = override.Reasons
		} else if s.logger != nil {
			s.logger.Warn("urgency classifier failed, using rule-based score",
				"message", msg.ID, "error", err)
		}
	}

	important := s.senderImportant(ctx, msg.Sender.Key())
	res.Tier = tierFor(res.Score, important)
	if important && !contains(res.Reasons, ReasonImportantSender) {
		res.Reasons = append(res.Reasons, ReasonImportantSender)
	}
	return res
}

func (s *Scorer) ruleScore(ctx context.Context, msg domain.Message, summary domain.SummaryResult, threadCount int) domain.UrgencyResult {
	var (
		score   float64
		reasons []string
	)

	haystack := strings.ToLower(msg.Subject + "\n" + msg.BodyText + "\n" + summary.Text)
	for _, kw := range s.keywords {
		if strings.Contains(haystack, kw) {
			score += s.weights.Keywords
			reasons = append(reasons, ReasonKeywords)
			break
		}
	}

	if s.deadlineWithinWindow(msg.BodyText + "\n" + summary.Text) {
		score += s.weights.Deadline
		reasons = append(reasons, ReasonDeadline)
	}

	if s.senderImportant(ctx, msg.Sender.Key()) {
		score += s.weights.ImportantSender
		reasons = append(reasons, ReasonImportantSender)
	}

	if threadCount >= s.threadThreshold {
		score += s.weights.ThreadActivity
		reasons = append(reasons, ReasonThreadActivity)
	}

	return domain.UrgencyResult{Score: clamp(score), Reasons: reasons}
}

func (s *Scorer) deadlineWithinWindow(text string) bool {
	if s.extract == nil {
		return false
	}
	now := s.now()
	for _, expr := range deadlineExprs {
		for _, match := range expr.FindAllStringSubmatch(text, -1) {
			for _, sig := range s.extract.Extract(strings.TrimSpace(match[1]), now) {
				diff := sig.Start.Sub(now)
				if diff > 0 && diff < s.deadlineWindow {
					return true
				}
			}
		}
	}
	return false
}

func (s *Scorer) senderImportant(ctx context.Context, address string) bool {
	if s.flags == nil || address == "" {
		return false
	}
	important, err := s.flags.IsSenderImportant(ctx, address)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("important-sender lookup failed", "address", address, "error", err)
		}
		return false
	}
	return important
}

func tierFor(score float64, importantSender bool) domain.UrgencyTier {
	if importantSender {
		return domain.TierImportant
	}
	if score >= urgentThreshold {
		return domain.TierUrgent
	}
	return domain.TierNormal
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
