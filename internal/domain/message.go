package domain

import (
	"fmt"
	"strings"
	"time"
)

// Address identifies a mail participant.
type Address struct {
	Name  string
	Email string
}

// String renders "Name <email>" or just the bare address.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// Key returns the normalized form used for grouping and importance flags.
func (a Address) Key() string {
	return strings.ToLower(strings.TrimSpace(a.Email))
}

// Message is one fetched email. It is owned by the mailbox collaborator;
// the digest pipeline only reads it.
type Message struct {
	ID         string
	ThreadID   string
	Sender     Address
	Subject    string
	BodyText   string
	BodyHTML   string
	ReceivedAt time.Time
}

// ExistingEvent is a calendar entry already present on the target calendar,
// resolved to its time zone by the calendar collaborator.
type ExistingEvent struct {
	ID    string
	Title string
	Start time.Time
	End   time.Time
}
