package domain

import "time"

// ItemState tracks what happened to a digest item within its session.
type ItemState string

const (
	ItemPending ItemState = "pending"
	ItemShown   ItemState = "shown"
	ItemActed   ItemState = "acted"
)

// DigestItem is the unit presented to the user: one message, or one
// combined-sender group of messages.
type DigestItem struct {
	MessageRef string   // primary message id, target of single-message actions
	MemberRefs []string // all grouped message ids, MessageRef included
	Sender     Address
	Subject    string
	Summary    SummaryResult
	Urgency    UrgencyResult
	Event      *EventCandidate
	GroupKey   string
	State      ItemState
	ReceivedAt time.Time
}

// Combined reports whether the item merges more than one message.
func (d DigestItem) Combined() bool {
	return len(d.MemberRefs) > 1
}

// Block is one rendered transport message with its attached controls.
// Text never exceeds the transport's message-size limit.
type Block struct {
	Text     string
	Controls []Control
}

// Control is a single action button offered with a block.
type Control struct {
	Label string
	Data  string
}
