package ports

import (
	"context"
	"time"

	"maildigest/internal/domain"
)

// SummaryRequest carries the text one provider is asked to condense.
type SummaryRequest struct {
	Subject string
	Text    string
	MaxLen  int
}

// SummaryProvider condenses text. Implementations classify their failures
// with domain.ProviderError so the fallback chain can dispatch on the kind.
type SummaryProvider interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// SenderFlags exposes the shared important-sender set, read-mostly.
type SenderFlags interface {
	IsSenderImportant(ctx context.Context, address string) (bool, error)
}

// Mailbox is the external mail collaborator.
type Mailbox interface {
	SenderFlags
	FetchUnread(ctx context.Context) ([]domain.Message, error)
	MarkReadAndArchive(ctx context.Context, id string) error
	Forward(ctx context.Context, id, destination string) error
	SetSenderImportant(ctx context.Context, address string, important bool) error
}

// Calendar is the external calendar collaborator. The pipeline only lists
// events for conflict tagging and creates events on explicit user action.
type Calendar interface {
	ListUpcomingEvents(ctx context.Context, window time.Duration) ([]domain.ExistingEvent, error)
	CreateEvent(ctx context.Context, candidate domain.EventCandidate) (string, error)
}

// Transport delivers rendered blocks with their action controls to a
// conversation. Callback routing back into the pipeline is the transport
// adapter's concern.
type Transport interface {
	Send(ctx context.Context, conversationID string, blocks []domain.Block) error
}

// DateTimeExtractor finds date/time mentions in free text. The base time
// anchors relative phrases ("Friday 3pm").
type DateTimeExtractor interface {
	Extract(text string, base time.Time) []domain.TimeSignal
}

// UrgencyClassifier is an optional trained model that may override the
// rule-based urgency score. Errors fall back to the rule-based result.
type UrgencyClassifier interface {
	Classify(ctx context.Context, msg domain.Message, summary domain.SummaryResult) (domain.UrgencyResult, error)
}

// DigestHistory persists which messages already appeared in a digest so
// periodic runs do not repeat them.
type DigestHistory interface {
	AlreadyDigested(ctx context.Context, ids []string) (map[string]bool, error)
	SaveDigested(ctx context.Context, conversationID string, items []domain.DigestItem) error
}

// ImportantSenderStore persists the important-sender flags behind the
// mailbox adapter's in-memory cache.
type ImportantSenderStore interface {
	ImportantSenders(ctx context.Context) ([]string, error)
	SetImportantSender(ctx context.Context, address string, important bool) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
