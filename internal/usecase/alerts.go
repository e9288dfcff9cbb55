package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

// AlertWatcher notifies the conversation as soon as unread mail from a
// flagged-important sender shows up, between digest runs.
type AlertWatcher struct {
	mailbox   ports.Mailbox
	transport ports.Transport

	conversationID string
	forwardTo      string
	logger         *slog.Logger

	mu        sync.Mutex
	lastCheck time.Time
	notified  map[string]time.Time
}

// NewAlertWatcher builds a watcher for one conversation.
func NewAlertWatcher(mailbox ports.Mailbox, transport ports.Transport, conversationID, forwardTo string, logger *slog.Logger) *AlertWatcher {
	return &AlertWatcher{
		mailbox:        mailbox,
		transport:      transport,
		conversationID: conversationID,
		forwardTo:      forwardTo,
		logger:         logger,
		lastCheck:      time.Now(),
		notified:       make(map[string]time.Time),
	}
}

// Check scans unread mail for important senders and alerts once per
// message. Forwarding failures do not suppress the alert.
func (w *AlertWatcher) Check(ctx context.Context, now time.Time) error {
	if w.mailbox == nil || w.transport == nil {
		return nil
	}

	msgs, err := w.mailbox.FetchUnread(ctx)
	if err != nil {
		return fmt.Errorf("fetch unread for alerts: %w", err)
	}

	w.mu.Lock()
	since := w.lastCheck
	w.lastCheck = now
	// Entries older than the previous check are already excluded by the
	// ReceivedAt filter below, so the dedup map only keeps one generation.
	for id, at := range w.notified {
		if at.Before(since) {
			delete(w.notified, id)
		}
	}
	w.mu.Unlock()

	for _, msg := range msgs {
		if !msg.ReceivedAt.After(since) {
			continue
		}
		important, err := w.mailbox.IsSenderImportant(ctx, msg.Sender.Key())
		if err != nil || !important {
			continue
		}
		if w.alreadyNotified(msg.ID, now) {
			continue
		}
		w.alert(ctx, msg)
	}
	return nil
}

func (w *AlertWatcher) alreadyNotified(id string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.notified[id]; ok {
		return true
	}
	w.notified[id] = now
	return false
}

func (w *AlertWatcher) alert(ctx context.Context, msg domain.Message) {
	if w.forwardTo != "" {
		if err := w.mailbox.Forward(ctx, msg.ID, w.forwardTo); err != nil && w.logger != nil {
			w.logger.Warn("forwarding important mail failed", "message", msg.ID, "error", err)
		}
	}
	text := fmt.Sprintf("⭐ Important mail from %s\n%s", msg.Sender.String(), msg.Subject)
	if err := w.transport.Send(ctx, w.conversationID, []domain.Block{{Text: text}}); err != nil {
		if w.logger != nil {
			w.logger.Warn("important-mail alert failed", "message", msg.ID, "error", err)
		}
		return
	}
	if w.logger != nil {
		w.logger.Info("important-mail alert sent", "message", msg.ID, "sender", msg.Sender.Key())
	}
}
