package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"maildigest/internal/domain"
)

func testTransport(srv *httptest.Server) *Transport {
	tr := NewTransport("token")
	tr.endpoint = srv.URL + "/bot"
	return tr
}

func TestSendCarriesKeyboard(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload not JSON: %v", err)
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	block := domain.Block{
		Text: "<b>hello</b>",
		Controls: []domain.Control{
			{Label: "Next", Data: "dg|s1|0|next"},
			{Label: "Forward", Data: "dg|s1|0|forward"},
			{Label: "Skip", Data: "dg|s1|0|leave_unread"},
		},
	}
	if err := testTransport(srv).Send(context.Background(), "42", []domain.Block{block}); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	if got["parse_mode"] != "HTML" {
		t.Fatalf("parse_mode = %v", got["parse_mode"])
	}
	markup, ok := got["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("reply_markup missing: %v", got)
	}
	rows, _ := markup["inline_keyboard"].([]any)
	if len(rows) != 2 {
		t.Fatalf("keyboard rows = %d, want 2 (two buttons per row)", len(rows))
	}
}

func TestSendWithoutTokenFails(t *testing.T) {
	t.Parallel()

	tr := NewTransport("")
	if err := tr.Send(context.Background(), "42", []domain.Block{{Text: "x"}}); err == nil {
		t.Fatal("Send = nil error, want misconfiguration failure")
	}
}

func TestPollDecodesCallbackAndCommand(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true,"result":[
			{"update_id":10,"message":{"text":"/digest","chat":{"id":42}}},
			{"update_id":11,"callback_query":{"id":"cb1","data":"dg|s1|0|next","message":{"chat":{"id":42}}}}
		]}`)
	}))
	defer srv.Close()

	updates, err := testTransport(srv).Poll(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if updates[0].Command != "/digest" || updates[0].ChatID != "42" {
		t.Fatalf("command update = %+v", updates[0])
	}
	if updates[1].Callback != "dg|s1|0|next" || updates[1].CallbackID != "cb1" {
		t.Fatalf("callback update = %+v", updates[1])
	}
}

func TestCallSurfacesAPIErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"ok":false,"description":"Bad Request: message text is empty"}`)
	}))
	defer srv.Close()

	err := testTransport(srv).Send(context.Background(), "42", []domain.Block{{Text: ""}})
	if err == nil {
		t.Fatal("Send = nil error, want API failure")
	}
}
