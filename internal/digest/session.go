package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

// Action is a user-invoked operation on the current digest item.
type Action string

const (
	ActionMarkImportant Action = "mark_important"
	ActionForward       Action = "forward"
	ActionLeaveUnread   Action = "leave_unread"
	ActionNext          Action = "next"
	ActionAddEvent      Action = "add_event"
	ActionIgnoreEvent   Action = "ignore_event"
)

// ParseAction maps callback data to an Action.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionMarkImportant, ActionForward, ActionLeaveUnread,
		ActionNext, ActionAddEvent, ActionIgnoreEvent:
		return Action(s), true
	}
	return "", false
}

// State is the session lifecycle phase.
type State string

const (
	StateBuilding  State = "building"
	StateActive    State = "active"
	StateExhausted State = "exhausted"
	StateClosed    State = "closed"
)

// Session owns one conversation's digest cursor and mediates every action.
// All methods serialize on the session's own mutex: actions apply in the
// order received and never race on cursor or item state.
type Session struct {
	mu sync.Mutex

	id             string
	conversationID string
	items          []domain.DigestItem
	cursor         int
	state          State
	createdAt      time.Time
	expiresAt      time.Time
	applied        map[string]bool

	mailbox   ports.Mailbox
	calendar  ports.Calendar
	forwardTo string
	logger    *slog.Logger
	now       func() time.Time
}

// NewSession builds an active session over the prepared items. mailbox and
// calendar may be nil; actions needing them then skip the collaborator call.
func NewSession(id, conversationID string, items []domain.DigestItem, ttl time.Duration, mailbox ports.Mailbox, calendar ports.Calendar, forwardTo string, logger *slog.Logger) *Session {
	s := &Session{
		id:             id,
		conversationID: conversationID,
		items:          items,
		state:          StateBuilding,
		applied:        make(map[string]bool),
		mailbox:        mailbox,
		calendar:       calendar,
		forwardTo:      forwardTo,
		logger:         logger,
		now:            time.Now,
	}
	s.createdAt = s.now()
	s.expiresAt = s.createdAt.Add(ttl)
	s.activate()
	return s
}

func (s *Session) activate() {
	if len(s.items) == 0 {
		s.state = StateExhausted
		return
	}
	s.state = StateActive
	s.markShown()
}

func (s *Session) markShown() {
	if s.cursor < len(s.items) && s.items[s.cursor].State == domain.ItemPending {
		s.items[s.cursor].State = domain.ItemShown
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ConversationID returns the owning conversation.
func (s *Session) ConversationID() string { return s.conversationID }

// Cursor returns the current item index; equal to len(items) when exhausted.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// State returns the current lifecycle phase.
func (s *Session) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Items returns a copy of the session's items in presentation order.
func (s *Session) Items() []domain.DigestItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DigestItem, len(s.items))
	copy(out, s.items)
	return out
}

// Expired reports whether the TTL has passed.
func (s *Session) Expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.expiresAt)
}

// Close discards the session; further actions return ErrSessionSuperseded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

// Apply executes one action against the item at itemIndex. Actions that do
// not target the current item, or target an already-acted item, or repeat
// an already-applied (index, action) pair, are silent no-ops so duplicate
// transport deliveries stay harmless.
func (s *Session) Apply(ctx context.Context, itemIndex int, action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrSessionSuperseded
	case StateExhausted:
		return ErrNoMoreItems
	}
	if s.now().After(s.expiresAt) {
		s.state = StateClosed
		return ErrSessionExpired
	}

	if itemIndex != s.cursor {
		return nil
	}
	key := fmt.Sprintf("%d|%s", itemIndex, action)
	if s.applied[key] {
		return nil
	}
	item := &s.items[itemIndex]
	if item.State == domain.ItemActed {
		return nil
	}

	var err error
	switch action {
	case ActionMarkImportant:
		err = s.markImportant(ctx, item)
	case ActionForward:
		err = s.forward(ctx, item)
	case ActionLeaveUnread:
		s.advance()
	case ActionNext:
		err = s.next(ctx, item)
	case ActionAddEvent:
		err = s.addEvent(ctx, item)
	case ActionIgnoreEvent:
		item.Event = nil
	default:
		return fmt.Errorf("unknown digest action %q", action)
	}
	if err != nil {
		return err
	}
	s.applied[key] = true
	return nil
}

func (s *Session) markImportant(ctx context.Context, item *domain.DigestItem) error {
	if s.mailbox != nil {
		if err := s.mailbox.SetSenderImportant(ctx, item.GroupKey, true); err != nil {
			return fmt.Errorf("flag sender important: %w", err)
		}
	}
	for i := s.cursor; i < len(s.items); i++ {
		if s.items[i].GroupKey == item.GroupKey {
			s.items[i].Urgency.Tier = domain.TierImportant
		}
	}
	return nil
}

func (s *Session) forward(ctx context.Context, item *domain.DigestItem) error {
	if s.mailbox != nil {
		for _, ref := range item.MemberRefs {
			if err := s.mailbox.Forward(ctx, ref, s.forwardTo); err != nil {
				return fmt.Errorf("forward message %s: %w", ref, err)
			}
		}
		if err := s.archiveMembers(ctx, item); err != nil {
			return err
		}
	}
	item.State = domain.ItemActed
	s.advance()
	return nil
}

func (s *Session) next(ctx context.Context, item *domain.DigestItem) error {
	if s.mailbox != nil {
		if err := s.archiveMembers(ctx, item); err != nil {
			return err
		}
	}
	item.State = domain.ItemActed
	s.advance()
	return nil
}

func (s *Session) addEvent(ctx context.Context, item *domain.DigestItem) error {
	if item.Event == nil {
		return nil
	}
	if s.calendar != nil {
		id, err := s.calendar.CreateEvent(ctx, *item.Event)
		if err != nil {
			return fmt.Errorf("create calendar event: %w", err)
		}
		if s.logger != nil {
			s.logger.Info("calendar event created", "event", id, "message", item.MessageRef)
		}
	}
	item.Event = nil
	return nil
}

func (s *Session) archiveMembers(ctx context.Context, item *domain.DigestItem) error {
	for _, ref := range item.MemberRefs {
		if err := s.mailbox.MarkReadAndArchive(ctx, ref); err != nil {
			return fmt.Errorf("mark read and archive %s: %w", ref, err)
		}
	}
	return nil
}

// advance moves the cursor forward past acted items. The cursor never moves
// backward, so skipped items are never re-shown.
func (s *Session) advance() {
	s.cursor++
	for s.cursor < len(s.items) && s.items[s.cursor].State == domain.ItemActed {
		s.cursor++
	}
	if s.cursor >= len(s.items) {
		s.cursor = len(s.items)
		s.state = StateExhausted
		return
	}
	s.markShown()
}
