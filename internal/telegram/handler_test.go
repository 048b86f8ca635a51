package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/munin-ai/munin/internal/homeassistant"
	"github.com/munin-ai/munin/pkg/models"
)

func TestSplitMessage_Short(t *testing.T) {
	parts := SplitMessage("hello", 4000)
	if len(parts) != 1 || parts[0] != "hello" {
		t.Errorf("parts = %v", parts)
	}
}

func TestSplitMessage_ParagraphBoundary(t *testing.T) {
	first := strings.Repeat("a", 60)
	second := strings.Repeat("b", 60)
	parts := SplitMessage(first+"\n\n"+second, 100)
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	if parts[0] != first || parts[1] != second {
		t.Errorf("split at wrong point: %d/%d chars", len(parts[0]), len(parts[1]))
	}
}

func TestSplitMessage_SentenceBoundary(t *testing.T) {
	first := strings.Repeat("a", 70) + ". "
	second := strings.Repeat("b", 60)
	parts := SplitMessage(first+second, 100)
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	if !strings.HasSuffix(parts[0], ".") {
		t.Errorf("first part should end at the sentence: %q", parts[0])
	}
	if parts[1] != second {
		t.Errorf("second part = %q", parts[1])
	}
}

func TestSplitMessage_WordBoundary(t *testing.T) {
	words := strings.Repeat("word ", 40) // 200 chars, no sentences
	parts := SplitMessage(strings.TrimSpace(words), 100)
	if len(parts) < 2 {
		t.Fatalf("parts = %d, want at least 2", len(parts))
	}
	for _, part := range parts {
		if len(part) > 100 {
			t.Errorf("part exceeds limit: %d chars", len(part))
		}
		if strings.Contains(part, "wor d") || strings.HasPrefix(part, "d ") {
			t.Errorf("word broken mid-way: %q", part)
		}
	}
}

func TestSplitMessage_HardBreakWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 250)
	parts := SplitMessage(text, 100)
	if len(parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(parts))
	}
	if len(parts[0]) != 100 || len(parts[1]) != 100 || len(parts[2]) != 50 {
		t.Errorf("lengths = %d/%d/%d", len(parts[0]), len(parts[1]), len(parts[2]))
	}
}

// sendCapture records telegram_bot.send_message calls.
type sendCapture struct {
	messages []string
	targets  []float64
}

func captureClient(t *testing.T, capture *sendCapture) *homeassistant.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		message, _ := body["message"].(string)
		target, _ := body["target"].(float64)
		capture.messages = append(capture.messages, message)
		capture.targets = append(capture.targets, target)
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)
	return homeassistant.NewClient(homeassistant.ClientConfig{URL: server.URL, Token: "t"})
}

func telegramEvent(t *testing.T, msg homeassistant.TelegramEvent) homeassistant.Event {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return homeassistant.Event{EventType: "telegram_text", Data: data}
}

func TestHandler_OwnerFilter(t *testing.T) {
	capture := &sendCapture{}
	var handled []string
	h := &Handler{
		client:  captureClient(t, capture),
		ownerID: 42,
		handle: func(ctx context.Context, text string, user models.UserContext) string {
			handled = append(handled, text)
			return "reply to " + text
		},
		log: slog.Default(),
	}

	h.onEvent(telegramEvent(t, homeassistant.TelegramEvent{UserID: 99, ChatID: 99, Text: "intruder"}))
	if len(handled) != 0 {
		t.Fatal("message from non-owner was handled")
	}

	h.onEvent(telegramEvent(t, homeassistant.TelegramEvent{
		UserID: 42, ChatID: 42, Text: "hello", FromFirstName: "Ada", FromUsername: "ada"}))
	if len(handled) != 1 || handled[0] != "hello" {
		t.Errorf("handled = %v", handled)
	}
	if len(capture.messages) != 1 || capture.messages[0] != "reply to hello" {
		t.Errorf("sent = %v", capture.messages)
	}
	if capture.targets[0] != 42 {
		t.Errorf("target = %v", capture.targets[0])
	}
}

func TestHandler_CommandEvents(t *testing.T) {
	capture := &sendCapture{}
	var handled []string
	h := &Handler{
		client:  captureClient(t, capture),
		ownerID: 42,
		handle: func(ctx context.Context, text string, user models.UserContext) string {
			handled = append(handled, text)
			return ""
		},
		log: slog.Default(),
	}

	h.onEvent(telegramEvent(t, homeassistant.TelegramEvent{
		UserID: 42, ChatID: 42, Command: "/status", Args: []string{"verbose"}}))
	if len(handled) != 1 || handled[0] != "/status verbose" {
		t.Errorf("handled = %v", handled)
	}
	// Empty reply sends nothing.
	if len(capture.messages) != 0 {
		t.Errorf("sent = %v", capture.messages)
	}
}

func TestHandler_CommandArgsArePassedAsWords(t *testing.T) {
	capture := &sendCapture{}
	var handled []string
	h := &Handler{
		client:  captureClient(t, capture),
		ownerID: 42,
		handle: func(ctx context.Context, text string, user models.UserContext) string {
			handled = append(handled, text)
			return ""
		},
		log: slog.Default(),
	}

	// Raw event payload as the telegram_bot integration emits it: args
	// is a JSON array of words.
	raw := []byte(`{"user_id": 42, "chat_id": 42, "command": "/automation", "args": ["lights", "off"]}`)
	h.onEvent(homeassistant.Event{EventType: "telegram_command", Data: raw})
	if len(handled) != 1 || handled[0] != "/automation lights off" {
		t.Errorf("handled = %v", handled)
	}

	// A bare command without args still goes through.
	raw = []byte(`{"user_id": 42, "chat_id": 42, "command": "/status"}`)
	h.onEvent(homeassistant.Event{EventType: "telegram_command", Data: raw})
	if len(handled) != 2 || handled[1] != "/status" {
		t.Errorf("handled = %v", handled)
	}
}

func TestHandler_SendsLongRepliesInParts(t *testing.T) {
	capture := &sendCapture{}
	h := &Handler{client: captureClient(t, capture), ownerID: 42, log: slog.Default()}

	long := strings.Repeat("line of text\n", 700) // ~9100 chars
	if err := h.SendMessage(context.Background(), 42, long); err != nil {
		t.Fatal(err)
	}
	if len(capture.messages) < 3 {
		t.Errorf("messages = %d, want at least 3", len(capture.messages))
	}
	for _, msg := range capture.messages {
		if len(msg) > maxMessageLength {
			t.Errorf("message exceeds limit: %d chars", len(msg))
		}
	}
}

func TestHandler_SendNotification(t *testing.T) {
	capture := &sendCapture{}
	h := &Handler{client: captureClient(t, capture), ownerID: 42, log: slog.Default()}

	if err := h.SendNotification(context.Background(), "Alert", "The basement sensor is offline."); err != nil {
		t.Fatal(err)
	}
	if len(capture.messages) != 1 {
		t.Fatalf("messages = %d", len(capture.messages))
	}
	if capture.messages[0] != "*Alert*\n\nThe basement sensor is offline." {
		t.Errorf("message = %q", capture.messages[0])
	}
	if capture.targets[0] != 42 {
		t.Errorf("target = %v", capture.targets[0])
	}
}
