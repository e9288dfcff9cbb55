package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"maildigest/internal/config"
	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

const openaiProvider = "openai"

// OpenAIClient implements ports.SummaryProvider on the official SDK. It is
// the secondary slot in the fallback chain, so it does no internal retrying
// beyond what the SDK already does.
type OpenAIClient struct {
	client       openai.Client
	model        string
	systemPrompt string
	configured   bool
}

var _ ports.SummaryProvider = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration.
func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIClient{
		client:       openai.NewClient(opts...),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		configured:   cfg.APIKey != "" && cfg.Model != "",
	}
}

// Summarize asks the chat completion endpoint for a bounded summary.
func (c *OpenAIClient) Summarize(ctx context.Context, req ports.SummaryRequest) (string, error) {
	if c == nil || !c.configured {
		return "", unusable(openaiProvider, fmt.Errorf("openai client misconfigured"))
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", unusable(openaiProvider, fmt.Errorf("empty input text"))
	}

	prompt := fmt.Sprintf(
		"Summarize this email in at most %d characters. Reply with the summary only.\n\nSubject: %s\n\n%s",
		req.MaxLen, req.Subject, req.Text,
	)
	messages := []openai.ChatCompletionMessageParamUnion{}
	if c.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(c.systemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", transient(openaiProvider, fmt.Errorf("openai response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return transient(openaiProvider, fmt.Errorf("openai request: %w", err))
	}
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests, 529:
		return &domain.ProviderError{
			Provider: openaiProvider,
			Kind:     domain.FailureRateLimited,
			Err:      err,
		}
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return unusable(openaiProvider, err)
	default:
		return transient(openaiProvider, err)
	}
}
