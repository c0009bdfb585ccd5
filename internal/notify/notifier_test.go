package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordSender struct {
	titles   []string
	messages []string
}

func (s *recordSender) Send(_ context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordSender) Name() string { return "record" }

func TestNotifier_FiltersByEvent(t *testing.T) {
	sender := &recordSender{}
	n := NewNotifier([]Sender{sender}, []string{"settle_failed"}, testLogger())
	ctx := context.Background()

	n.Alert(ctx, "settle_failed", "market 1 failed", nil)
	n.Alert(ctx, "low_treasury", "balance low", nil)

	if len(sender.titles) != 1 {
		t.Fatalf("delivered %d alerts, want 1", len(sender.titles))
	}
	if sender.titles[0] != "candled: settle_failed" {
		t.Errorf("title = %q", sender.titles[0])
	}
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	sender := &recordSender{}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	n.Alert(context.Background(), "anything", "msg", nil)

	if len(sender.titles) != 1 {
		t.Errorf("delivered %d alerts, want 1", len(sender.titles))
	}
}

func TestNotifier_FormatsFieldsSorted(t *testing.T) {
	sender := &recordSender{}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	n.Alert(context.Background(), "settle_failed", "settle failed", map[string]string{
		"market_id": "1756339200",
		"error":     "rpc timeout",
	})

	got := sender.messages[0]
	want := "settle failed\nerror: rpc timeout\nmarket_id: 1756339200"
	if got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestWebhookSender(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL)
	if err := s.Send(context.Background(), "candled: low_treasury", "balance 10"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(received["content"], "**candled: low_treasury**") {
		t.Errorf("content = %q", received["content"])
	}
}

func TestTelegramSender(t *testing.T) {
	var path string
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("bot-token", "chat-42")
	s.apiBase = srv.URL
	if err := s.Send(context.Background(), "candled: settle_failed", "market 1"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botbot-token/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if received["chat_id"] != "chat-42" {
		t.Errorf("chat_id = %q", received["chat_id"])
	}
	if !strings.Contains(received["text"], "*candled: settle_failed*") {
		t.Errorf("text = %q", received["text"])
	}
}

func TestWebhookSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL)
	if err := s.Send(context.Background(), "t", "m"); err == nil {
		t.Error("want error on non-2xx status")
	}
}
