package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"maildigest/internal/digest"
	"maildigest/internal/domain"
	"maildigest/internal/usecase"
)

const (
	pollTimeout = 30 * time.Second
	pollRetry   = 5 * time.Second

	staleSessionNotice = "This digest is stale — run /digest again."
)

// Bot drives the long-poll loop, turning chat commands and button presses
// into pipeline calls.
type Bot struct {
	transport *Transport
	pipeline  *usecase.Pipeline
	chatID    string
	logger    *slog.Logger
}

// NewBot wires the loop. chatID restricts the bot to one conversation;
// empty accepts any chat.
func NewBot(transport *Transport, pipeline *usecase.Pipeline, chatID string, logger *slog.Logger) *Bot {
	return &Bot{transport: transport, pipeline: pipeline, chatID: chatID, logger: logger}
}

// Run polls until the context is cancelled. Handler panics or errors for
// one update never stop the loop.
func (b *Bot) Run(ctx context.Context) error {
	var offset int64
	for {
		updates, err := b.transport.Poll(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if b.logger != nil {
				b.logger.Warn("polling failed, backing off", "error", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollRetry):
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			b.handle(ctx, u)
		}
	}
}

func (b *Bot) handle(ctx context.Context, u Update) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("update handler panicked", "update", u.UpdateID, "panic", r)
		}
	}()

	if b.chatID != "" && u.ChatID != b.chatID {
		return
	}
	switch {
	case u.Callback != "":
		b.handleCallback(ctx, u)
	case strings.HasPrefix(u.Command, "/digest"):
		b.handleDigest(ctx, u.ChatID)
	case strings.HasPrefix(u.Command, "/help"), strings.HasPrefix(u.Command, "/start"):
		b.send(ctx, u.ChatID, "Send /digest to get a digest of your unread mail.")
	}
}

func (b *Bot) handleDigest(ctx context.Context, chatID string) {
	blocks, err := b.pipeline.BuildDigest(ctx, chatID)
	if err != nil {
		if b.logger != nil {
			b.logger.Error("digest build failed", "chat", chatID, "error", err)
		}
		b.send(ctx, chatID, "Digest failed — check the logs and try again.")
		return
	}
	if err := b.transport.Send(ctx, chatID, blocks); err != nil && b.logger != nil {
		b.logger.Error("digest delivery failed", "chat", chatID, "error", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, u Update) {
	sessionID, itemIndex, action, err := digest.ParseCallback(u.Callback)
	if err != nil {
		_ = b.transport.AnswerCallback(ctx, u.CallbackID, "")
		return
	}

	blocks, err := b.pipeline.ApplyAction(ctx, u.ChatID, sessionID, itemIndex, action)
	switch {
	case err == nil:
		_ = b.transport.AnswerCallback(ctx, u.CallbackID, "")
		if err := b.transport.Send(ctx, u.ChatID, blocks); err != nil && b.logger != nil {
			b.logger.Error("action response failed", "chat", u.ChatID, "error", err)
		}
	case errors.Is(err, digest.ErrNoMoreItems):
		_ = b.transport.AnswerCallback(ctx, u.CallbackID, "All caught up.")
	case errors.Is(err, digest.ErrSessionExpired), errors.Is(err, digest.ErrSessionSuperseded):
		_ = b.transport.AnswerCallback(ctx, u.CallbackID, staleSessionNotice)
	default:
		if b.logger != nil {
			b.logger.Error("action failed", "chat", u.ChatID, "action", action, "error", err)
		}
		_ = b.transport.AnswerCallback(ctx, u.CallbackID, "Action failed, try again.")
	}
}

func (b *Bot) send(ctx context.Context, chatID, text string) {
	if err := b.transport.Send(ctx, chatID, []domain.Block{{Text: text}}); err != nil && b.logger != nil {
		b.logger.Error("send failed", "chat", chatID, "error", err)
	}
}
