package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"maildigest/internal/config"
	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

const (
	anthropicProvider   = "anthropic"
	anthropicMaxTokens  = 1024
	backoffBase         = 500 * time.Millisecond
	backoffCap          = 4 * time.Second
	responseBodyPreview = 1024
)

// AnthropicClient implements ports.SummaryProvider against the Anthropic
// messages API. Rate limits exhaust a small internal retry budget before
// surfacing as rate_limited; the fallback chain takes over from there.
type AnthropicClient struct {
	endpoint     string
	model        string
	apiKey       string
	version      string
	systemPrompt string
	maxRetries   int
	httpClient   *http.Client
	sleep        func(time.Duration)
}

var _ ports.SummaryProvider = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration.
func NewAnthropicClient(cfg config.AnthropicConfig) *AnthropicClient {
	return &AnthropicClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		version:      cfg.Version,
		systemPrompt: cfg.SystemPrompt,
		maxRetries:   cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		sleep: time.Sleep,
	}
}

// Summarize posts the message text and returns the model's summary.
func (c *AnthropicClient) Summarize(ctx context.Context, req ports.SummaryRequest) (string, error) {
	if c == nil {
		return "", unusable(anthropicProvider, fmt.Errorf("anthropic client is nil"))
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", unusable(anthropicProvider, fmt.Errorf("anthropic client misconfigured"))
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", unusable(anthropicProvider, fmt.Errorf("empty input text"))
	}

	body, err := c.payload(req)
	if err != nil {
		return "", unusable(anthropicProvider, fmt.Errorf("marshal anthropic payload: %w", err))
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		text, err := c.call(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if domain.ClassifyFailure(err) != domain.FailureRateLimited || attempt >= c.maxRetries {
			return "", err
		}
		// Exceeding the retry budget still counts as rate_limited for
		// the chain; in between, back off with a capped doubling.
		c.sleep(backoff(attempt, retryAfterHint(err)))
		if ctx.Err() != nil {
			return "", lastErr
		}
	}
}

func (c *AnthropicClient) payload(req ports.SummaryRequest) ([]byte, error) {
	prompt := fmt.Sprintf(
		"Summarize this email in at most %d characters. Reply with the summary only.\n\nSubject: %s\n\n%s",
		req.MaxLen, req.Subject, req.Text,
	)
	body, err := json.Marshal(map[string]any{
		"model":      c.model,
		"max_tokens": anthropicMaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return nil, err
	}
	if c.systemPrompt != "" {
		if body, err = sjson.SetBytes(body, "system", c.systemPrompt); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (c *AnthropicClient) call(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", unusable(anthropicProvider, fmt.Errorf("new request: %w", err))
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.version)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", transient(anthropicProvider, fmt.Errorf("anthropic request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", transient(anthropicProvider, fmt.Errorf("read anthropic response: %w", err))
	}

	if err := classifyStatus(anthropicProvider, resp, raw); err != nil {
		return "", err
	}

	text := gjson.GetBytes(raw, "content.0.text").String()
	if strings.TrimSpace(text) == "" {
		return "", transient(anthropicProvider, fmt.Errorf("anthropic response has no text content"))
	}
	return text, nil
}

// classifyStatus maps an HTTP failure status to a provider error kind.
// 429 and 529 are rate limits, auth and validation failures are unusable,
// everything else retryable is transient.
func classifyStatus(provider string, resp *http.Response, raw []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	preview := strings.TrimSpace(string(raw[:min(len(raw), responseBodyPreview)]))
	err := fmt.Errorf("%s error %s: %s", provider, resp.Status, preview)

	switch resp.StatusCode {
	case http.StatusTooManyRequests, 529:
		return &domain.ProviderError{
			Provider:   provider,
			Kind:       domain.FailureRateLimited,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        err,
		}
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return unusable(provider, err)
	default:
		return transient(provider, err)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func retryAfterHint(err error) time.Duration {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

func backoff(attempt int, hint time.Duration) time.Duration {
	d := backoffBase << attempt
	if d > backoffCap {
		d = backoffCap
	}
	if hint > 0 && hint < backoffCap {
		d = hint
	}
	return d
}

func transient(provider string, err error) error {
	return &domain.ProviderError{Provider: provider, Kind: domain.FailureTransient, Err: err}
}

func unusable(provider string, err error) error {
	return &domain.ProviderError{Provider: provider, Kind: domain.FailureUnusable, Err: err}
}
