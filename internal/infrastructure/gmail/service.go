package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"maildigest/internal/config"
	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

const (
	unreadQuery       = "is:unread in:inbox"
	defaultMaxResults = 50
)

// Service implements ports.Mailbox on the Gmail API.
type Service struct {
	svc        *gmail.Service
	maxResults int64
	store      ports.ImportantSenderStore
	logger     *slog.Logger

	mu        sync.RWMutex
	important map[string]bool
	loaded    bool
}

var _ ports.Mailbox = (*Service)(nil)

// NewService wires the Gmail API behind the mailbox port. store may be nil;
// important-sender flags then live only in memory.
func NewService(ctx context.Context, httpClient *http.Client, cfg config.GmailConfig, store ports.ImportantSenderStore, logger *slog.Logger) (*Service, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Service{
		svc:        svc,
		maxResults: maxResults,
		store:      store,
		logger:     logger,
		important:  make(map[string]bool),
	}, nil
}

// FetchUnread lists unread inbox messages, newest capped at the configured
// batch size, with bodies decoded to text.
func (s *Service) FetchUnread(ctx context.Context) ([]domain.Message, error) {
	list, err := s.svc.Users.Messages.List("me").
		Q(unreadQuery).MaxResults(s.maxResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list unread messages: %w", err)
	}

	msgs := make([]domain.Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		full, err := s.svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			// One unreadable message must not sink the batch.
			if s.logger != nil {
				s.logger.Warn("fetching message failed", "id", ref.Id, "error", err)
			}
			continue
		}
		msgs = append(msgs, decodeMessage(full))
	}
	return msgs, nil
}

// MarkReadAndArchive clears the unread flag and removes the message from
// the inbox.
func (s *Service) MarkReadAndArchive(ctx context.Context, id string) error {
	_, err := s.svc.Users.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD", "INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("mark read and archive %s: %w", id, err)
	}
	return nil
}

// Forward re-sends the message body to destination with a forwarded-mail
// subject.
func (s *Service) Forward(ctx context.Context, id, destination string) error {
	if destination == "" {
		return fmt.Errorf("no forward destination configured")
	}
	full, err := s.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("load message %s for forward: %w", id, err)
	}
	msg := decodeMessage(full)

	var raw strings.Builder
	fmt.Fprintf(&raw, "To: %s\r\n", destination)
	fmt.Fprintf(&raw, "Subject: Fwd: %s\r\n", msg.Subject)
	raw.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	fmt.Fprintf(&raw, "---------- Forwarded message ----------\r\nFrom: %s\r\nDate: %s\r\n\r\n",
		msg.Sender.String(), msg.ReceivedAt.Format(time.RFC1123Z))
	raw.WriteString(msg.BodyText)

	_, err = s.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw.String())),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("forward message %s: %w", id, err)
	}
	return nil
}

// SetSenderImportant flags or unflags a sender, persisting through the
// store when one is configured.
func (s *Service) SetSenderImportant(ctx context.Context, address string, important bool) error {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return fmt.Errorf("empty sender address")
	}

	s.mu.Lock()
	s.important[address] = important
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SetImportantSender(ctx, address, important); err != nil {
			return fmt.Errorf("persist important sender: %w", err)
		}
	}
	return nil
}

// IsSenderImportant reports whether the sender is flagged, loading the
// persisted set on first use.
func (s *Service) IsSenderImportant(ctx context.Context, address string) (bool, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if err := s.loadImportant(ctx); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.important[address], nil
}

func (s *Service) loadImportant(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded || s.store == nil {
		return nil
	}

	senders, err := s.store.ImportantSenders(ctx)
	if err != nil {
		return fmt.Errorf("load important senders: %w", err)
	}
	s.mu.Lock()
	for _, addr := range senders {
		s.important[addr] = true
	}
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func decodeMessage(m *gmail.Message) domain.Message {
	msg := domain.Message{
		ID:         m.Id,
		ThreadID:   m.ThreadId,
		ReceivedAt: time.UnixMilli(m.InternalDate),
	}
	if m.Payload == nil {
		return msg
	}
	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.Sender = parseAddress(h.Value)
		case "subject":
			msg.Subject = h.Value
		}
	}
	msg.BodyText = extractPart(m.Payload, "text/plain")
	msg.BodyHTML = extractPart(m.Payload, "text/html")
	return msg
}

func parseAddress(raw string) domain.Address {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return domain.Address{Email: strings.TrimSpace(raw)}
	}
	return domain.Address{Name: addr.Name, Email: addr.Address}
}

// extractPart walks the MIME tree depth-first for the first part of the
// wanted type.
func extractPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if text := extractPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

// decodeBody tolerates both padded and unpadded base64url, which the API
// mixes depending on the part.
func decodeBody(data string) string {
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}
