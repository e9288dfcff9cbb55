package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

const apiBase = "https://api.telegram.org/bot"

// Transport delivers digest blocks to a Telegram chat via bot API, with
// inline keyboards carrying the per-item action controls.
type Transport struct {
	botToken string
	endpoint string
	client   *http.Client
}

var _ ports.Transport = (*Transport)(nil)

// NewTransport registers the bot token.
func NewTransport(botToken string) *Transport {
	return &Transport{
		botToken: botToken,
		endpoint: apiBase,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

// Send posts each block as one HTML message to the conversation's chat.
func (t *Transport) Send(ctx context.Context, conversationID string, blocks []domain.Block) error {
	if t.botToken == "" {
		return fmt.Errorf("telegram transport misconfigured")
	}
	for _, block := range blocks {
		payload := map[string]any{
			"chat_id":    conversationID,
			"text":       block.Text,
			"parse_mode": "HTML",
		}
		if len(block.Controls) > 0 {
			payload["reply_markup"] = keyboard(block.Controls)
		}
		if err := t.call(ctx, "sendMessage", payload, nil); err != nil {
			return fmt.Errorf("send block: %w", err)
		}
	}
	return nil
}

// EditMessage replaces a previously sent message's text and controls.
func (t *Transport) EditMessage(ctx context.Context, conversationID string, messageID int64, block domain.Block) error {
	payload := map[string]any{
		"chat_id":    conversationID,
		"message_id": messageID,
		"text":       block.Text,
		"parse_mode": "HTML",
	}
	if len(block.Controls) > 0 {
		payload["reply_markup"] = keyboard(block.Controls)
	}
	return t.call(ctx, "editMessageText", payload, nil)
}

// AnswerCallback acknowledges one inline-button press, optionally with a
// toast shown to the user.
func (t *Transport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return t.call(ctx, "answerCallbackQuery", payload, nil)
}

// Update is one long-poll result relevant to the bot: a command message or
// an inline-button press.
type Update struct {
	UpdateID   int64
	ChatID     string
	Command    string
	CallbackID string
	Callback   string
}

type apiUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
	CallbackQuery *struct {
		ID      string `json:"id"`
		Data    string `json:"data"`
		Message *struct {
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

// Poll long-polls getUpdates once and returns the decoded updates after
// offset.
func (t *Transport) Poll(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var result struct {
		Result []apiUpdate `json:"result"`
	}
	if err := t.call(ctx, "getUpdates", payload, &result); err != nil {
		return nil, fmt.Errorf("poll updates: %w", err)
	}

	updates := make([]Update, 0, len(result.Result))
	for _, u := range result.Result {
		out := Update{UpdateID: u.UpdateID}
		switch {
		case u.CallbackQuery != nil:
			out.CallbackID = u.CallbackQuery.ID
			out.Callback = u.CallbackQuery.Data
			if u.CallbackQuery.Message != nil {
				out.ChatID = fmt.Sprintf("%d", u.CallbackQuery.Message.Chat.ID)
			}
		case u.Message != nil:
			out.Command = strings.TrimSpace(u.Message.Text)
			out.ChatID = fmt.Sprintf("%d", u.Message.Chat.ID)
		default:
			continue
		}
		updates = append(updates, out)
	}
	return updates, nil
}

func (t *Transport) call(ctx context.Context, method string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}
	endpoint := t.endpoint + t.botToken + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram %s error %s: %s", method, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
	}
	return nil
}

// keyboard lays out controls two per row, the way short action labels
// read best on mobile.
func keyboard(controls []domain.Control) replyMarkup {
	var rows [][]inlineButton
	for i := 0; i < len(controls); i += 2 {
		row := []inlineButton{{Text: controls[i].Label, CallbackData: controls[i].Data}}
		if i+1 < len(controls) {
			row = append(row, inlineButton{Text: controls[i+1].Label, CallbackData: controls[i+1].Data})
		}
		rows = append(rows, row)
	}
	return replyMarkup{InlineKeyboard: rows}
}
