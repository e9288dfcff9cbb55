package summarize

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

const transientRetryWait = 500 * time.Millisecond

// Entry binds a chain slot (primary, secondary, local, heuristic) to the
// client serving it.
type Entry struct {
	Slot   domain.Provider
	Client ports.SummaryProvider
}

// Chain is the tiered summarization engine. It tries providers in fixed
// priority order and always produces a result; provider failures never
// propagate past it.
type Chain struct {
	entries []Entry
	timeout time.Duration
	logger  *slog.Logger
	sleep   func(time.Duration)
}

// NewChain builds the engine from ordered entries. The timeout bounds each
// individual provider call.
func NewChain(entries []Entry, timeout time.Duration, logger *slog.Logger) *Chain {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Chain{
		entries: entries,
		timeout: timeout,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// Summarize runs the fallback chain for one message (or a combined group)
// and post-processes whatever the winning provider returned: markup
// stripped, whitespace collapsed, truncated to maxLen with an ellipsis.
func (c *Chain) Summarize(ctx context.Context, subject, text string, maxLen int) domain.SummaryResult {
	req := ports.SummaryRequest{Subject: subject, Text: text, MaxLen: maxLen}

	for _, entry := range c.entries {
		out, err := c.callProvider(ctx, entry, req)
		if err == nil {
			return c.finish(out, entry.Slot, maxLen)
		}

		switch domain.ClassifyFailure(err) {
		case domain.FailureRateLimited:
			var pe *domain.ProviderError
			hint := time.Duration(0)
			if errors.As(err, &pe) {
				hint = pe.RetryAfter
			}
			c.warn("provider rate limited, falling through",
				"provider", string(entry.Slot), "retry_after", hint, "error", err)
		case domain.FailureUnusable:
			c.warn("provider unusable, falling through", "provider", string(entry.Slot), "error", err)
		default:
			// Transient: one bounded retry, then fall through.
			c.sleep(transientRetryWait)
			out, err = c.callProvider(ctx, entry, req)
			if err == nil {
				return c.finish(out, entry.Slot, maxLen)
			}
			c.warn("provider failed after retry, falling through",
				"provider", string(entry.Slot), "error", err)
		}
	}

	// The heuristic tier cannot fail, so this is unreachable with a sane
	// chain; still, never return without a result.
	return c.finish(subject, domain.ProviderHeuristic, maxLen)
}

func (c *Chain) callProvider(ctx context.Context, entry Entry, req ports.SummaryRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := entry.Client.Summarize(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &domain.ProviderError{
				Provider: string(entry.Slot),
				Kind:     domain.FailureTransient,
				Err:      err,
			}
		}
		return "", err
	}
	return out, nil
}

func (c *Chain) finish(raw string, slot domain.Provider, maxLen int) domain.SummaryResult {
	text, truncated := Truncate(Clean(raw), maxLen)
	return domain.SummaryResult{
		Text:           text,
		Provider:       slot,
		FallbackUsed:   slot != domain.ProviderPrimary,
		Truncated:      truncated,
		ReadingMinutes: EstimateReadingMinutes(text),
	}
}

func (c *Chain) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
