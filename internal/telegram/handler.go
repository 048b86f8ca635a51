// Package telegram routes Telegram traffic through Home Assistant's
// telegram_bot integration: inbound via telegram_text/telegram_command
// events on the event bus, outbound via the send_message service.
package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/munin-ai/munin/internal/homeassistant"
	"github.com/munin-ai/munin/pkg/models"
)

// maxMessageLength stays under Telegram's 4096-character limit with some
// margin for formatting.
const maxMessageLength = 4000

// MessageHandler processes one inbound message and returns the reply
// text, or empty for no reply.
type MessageHandler func(ctx context.Context, text string, user models.UserContext) string

// Handler connects the event bridge to the conversation manager for one
// owner. Messages from any other Telegram user are dropped.
type Handler struct {
	client  *homeassistant.Client
	ownerID int64
	handle  MessageHandler
	log     *slog.Logger
}

// Config parameterizes a Handler.
type Config struct {
	Client  *homeassistant.Client
	OwnerID int64
	Handle  MessageHandler
}

// NewHandler creates a handler and registers it on the bridge for both
// telegram event types.
func NewHandler(cfg Config, bridge *homeassistant.Bridge) *Handler {
	h := &Handler{
		client:  cfg.Client,
		ownerID: cfg.OwnerID,
		handle:  cfg.Handle,
		log:     slog.With("component", "telegram"),
	}
	bridge.RegisterHandler("telegram_text", h.onEvent)
	bridge.RegisterHandler("telegram_command", h.onEvent)
	bridge.Subscribe("telegram_text")
	bridge.Subscribe("telegram_command")
	return h
}

func (h *Handler) onEvent(event homeassistant.Event) {
	var msg homeassistant.TelegramEvent
	if err := json.Unmarshal(event.Data, &msg); err != nil {
		h.log.Error("malformed telegram event", "error", err)
		return
	}

	if msg.UserID != h.ownerID {
		h.log.Warn("ignoring message from unauthorized user",
			"user_id", msg.UserID, "expected", h.ownerID)
		return
	}

	text := msg.Text
	if text == "" && msg.Command != "" {
		text = strings.TrimSpace(msg.Command + " " + strings.Join(msg.Args, " "))
	}
	if text == "" {
		return
	}

	user := models.UserContext{
		UserID:      formatUserID(msg.UserID),
		Username:    msg.FromUsername,
		DisplayName: strings.TrimSpace(msg.FromFirstName + " " + msg.FromLastName),
		Source:      models.SourceTelegram,
	}

	reply := h.handle(context.Background(), text, user)
	if reply == "" {
		return
	}
	if err := h.SendMessage(context.Background(), msg.ChatID, reply); err != nil {
		h.log.Error("sending reply failed", "error", err, "chat_id", msg.ChatID)
	}
}

// SendMessage delivers text to a chat, splitting messages that exceed
// the Telegram length limit.
func (h *Handler) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, part := range SplitMessage(text, maxMessageLength) {
		if err := h.client.SendTelegramMessage(ctx, chatID, part); err != nil {
			return err
		}
	}
	return nil
}

// SendNotification delivers a proactive message to the owner's private
// chat, optionally titled.
func (h *Handler) SendNotification(ctx context.Context, title, text string) error {
	message := text
	if title != "" {
		message = "*" + title + "*\n\n" + text
	}
	return h.SendMessage(ctx, h.ownerID, message)
}

// SplitMessage splits text into parts of at most maxLength characters,
// preferring paragraph breaks, then line breaks, then sentence ends,
// then word boundaries. A break point is only used when it lands past
// the midpoint of the window.
func SplitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var parts []string
	remaining := text
	for remaining != "" {
		if len(remaining) <= maxLength {
			parts = append(parts, remaining)
			break
		}

		window := remaining[:maxLength]
		splitPoint := maxLength

		if idx := strings.LastIndex(window, "\n\n"); idx > maxLength/2 {
			splitPoint = idx + 2
		} else if idx := strings.LastIndex(window, "\n"); idx > maxLength/2 {
			splitPoint = idx + 1
		} else if idx, width := lastSentenceEnd(window); idx > maxLength/2 {
			splitPoint = idx + width
		} else if idx := strings.LastIndex(window, " "); idx > maxLength/2 {
			splitPoint = idx + 1
		}

		parts = append(parts, strings.TrimRight(remaining[:splitPoint], " \n"))
		remaining = strings.TrimLeft(remaining[splitPoint:], " \n")
	}
	return parts
}

func formatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// lastSentenceEnd finds the rightmost sentence terminator followed by a
// space, returning its index and the separator width.
func lastSentenceEnd(window string) (int, int) {
	best := -1
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, sep); idx > best {
			best = idx
		}
	}
	return best, 2
}
