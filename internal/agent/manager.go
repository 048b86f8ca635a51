// Package agent runs the conversation loop: per-user history, mode
// commands, the bounded planning loop, and audit writes.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/munin-ai/munin/internal/llm"
	"github.com/munin-ai/munin/internal/mode"
	"github.com/munin-ai/munin/internal/store"
	"github.com/munin-ai/munin/internal/tools"
	"github.com/munin-ai/munin/pkg/models"
)

const (
	defaultMaxHistory        = 40
	defaultMaxToolIterations = 10

	emptyResponseFallback = "I apologize, but I couldn't generate a response. Please try again."
	iterationsFallback    = "I've been working on this for a while and hit a limit. Here's what I found so far - let me know if you need me to continue."
)

// Config parameterizes a Manager.
type Config struct {
	Provider llm.Provider
	Registry *tools.Registry
	Modes    *mode.Manager
	Store    *store.Store

	MaxHistory        int
	MaxToolIterations int
}

// conversation is one user's serialized message history. The mutex also
// serializes two messages from the same user arriving concurrently.
type conversation struct {
	mu      sync.Mutex
	history []models.Message
}

// Manager orchestrates conversations between users, the LLM, and the
// tool registry. Different users are processed independently; messages
// from the same user run strictly in arrival order.
type Manager struct {
	provider llm.Provider
	registry *tools.Registry
	modes    *mode.Manager
	store    *store.Store

	maxHistory        int
	maxToolIterations int

	mu    sync.Mutex
	users map[string]*conversation

	log *slog.Logger
}

// NewManager creates a manager, applying defaults for zero limits.
func NewManager(cfg Config) *Manager {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = defaultMaxToolIterations
	}
	return &Manager{
		provider:          cfg.Provider,
		registry:          cfg.Registry,
		modes:             cfg.Modes,
		store:             cfg.Store,
		maxHistory:        cfg.MaxHistory,
		maxToolIterations: cfg.MaxToolIterations,
		users:             make(map[string]*conversation),
		log:               slog.With("component", "agent"),
	}
}

func (m *Manager) conversation(userID string) *conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.users[userID]
	if !ok {
		conv = &conversation{}
		m.users[userID] = conv
	}
	return conv
}

// ProcessMessage handles one inbound user message end to end and returns
// the reply text. Mode commands and mode queries short-circuit without
// touching the LLM; everything else runs the planning loop.
func (m *Manager) ProcessMessage(ctx context.Context, text string, user models.UserContext) string {
	conv := m.conversation(user.UserID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	if target, ok := mode.ParseCommand(text); ok {
		reply, err := m.modes.Set(target)
		if err != nil {
			reply = "Error: " + err.Error()
		}
		m.auditExchange(ctx, text, reply, user)
		return reply
	}
	if mode.IsQuery(text) {
		reply := m.modes.StatusText()
		m.auditExchange(ctx, text, reply, user)
		return reply
	}

	conv.history = append(conv.history, models.NewUserMessage(text))
	conv.trim(m.maxHistory)

	m.auditMessage(ctx, models.MessageTypeUser, text, user)

	memorySummary := ""
	if m.store != nil {
		summary, err := m.store.Memories.GetMemorySummary(ctx)
		if err != nil {
			m.log.Warn("memory summary failed", "error", err)
		} else {
			memorySummary = summary
		}
	}
	system := buildSystemPrompt(m.modes.StatusText(), user, memorySummary)

	descriptors := m.registry.Descriptors()

	reply := iterationsFallback
	for iteration := 0; iteration < m.maxToolIterations; iteration++ {
		request := &llm.Request{
			Messages: conv.history,
			System:   system,
		}
		if len(descriptors) > 0 {
			request.Tools = descriptors
		}

		response, err := m.provider.Complete(ctx, request)
		if err != nil {
			m.log.Error("completion failed", "error", err, "user_id", user.UserID)
			reply = "Sorry, I ran into a problem talking to the language model: " + err.Error()
			break
		}

		if response.HasToolCalls() {
			conv.history = append(conv.history,
				models.NewAssistantMessage(response.Content, response.ToolCalls))
			for _, call := range response.ToolCalls {
				m.log.Info("executing tool", "tool", call.Name, "user_id", user.UserID)
				result := m.registry.Execute(ctx, call.Name, call.Arguments)
				isError := strings.HasPrefix(result, "Error:") ||
					strings.HasPrefix(result, "Error executing")
				conv.history = append(conv.history,
					models.NewToolResultMessage(call.ID, result, isError))
			}
			continue
		}

		if response.Content != "" {
			reply = response.Content
			conv.history = append(conv.history, models.NewAssistantMessage(reply, nil))
			conv.trim(m.maxHistory)
			m.auditMessage(ctx, models.MessageTypeAssistant, reply, user)
			return reply
		}

		m.log.Warn("empty response from provider", "user_id", user.UserID)
		reply = emptyResponseFallback
		break
	}

	conv.history = append(conv.history, models.NewAssistantMessage(reply, nil))
	conv.trim(m.maxHistory)
	m.auditMessage(ctx, models.MessageTypeAssistant, reply, user)
	return reply
}

// History returns the user-visible conversation: tool results and
// pure tool-use carrier messages are filtered out.
func (m *Manager) History(userID string) []models.Message {
	conv := m.conversation(userID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	visible := make([]models.Message, 0, len(conv.history))
	for _, msg := range conv.history {
		if msg.Role == models.RoleToolResult {
			continue
		}
		if msg.Role == models.RoleAssistant && msg.Content == "" {
			continue
		}
		visible = append(visible, msg)
	}
	return visible
}

// ClearHistory drops one user's in-memory history.
func (m *Manager) ClearHistory(userID string) {
	conv := m.conversation(userID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.history = nil
}

// LoadHistoryFromAudit rebuilds a user's history from the audit log,
// keeping the most recent limit user/assistant entries in chronological
// order. The in-memory history is replaced.
func (m *Manager) LoadHistoryFromAudit(ctx context.Context, userID string, limit int) error {
	if m.store == nil {
		return nil
	}
	if limit <= 0 {
		limit = m.maxHistory
	}

	entries, err := m.store.Audit.RecentLogsForUser(ctx, userID, 2*limit)
	if err != nil {
		return err
	}

	// Entries arrive newest-first; collect and reverse.
	var history []models.Message
	for _, entry := range entries {
		switch entry.MessageType {
		case models.MessageTypeUser:
			history = append(history, models.NewUserMessage(entry.Content))
		case models.MessageTypeAssistant:
			history = append(history, models.NewAssistantMessage(entry.Content, nil))
		}
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	conv := m.conversation(userID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.history = history
	m.log.Info("history restored from audit", "user_id", userID, "messages", len(history))
	return nil
}

// auditExchange writes a user utterance and the reply in one go, used by
// the mode short-circuit paths.
func (m *Manager) auditExchange(ctx context.Context, text, reply string, user models.UserContext) {
	m.auditMessage(ctx, models.MessageTypeUser, text, user)
	m.auditMessage(ctx, models.MessageTypeAssistant, reply, user)
}

func (m *Manager) auditMessage(ctx context.Context, messageType models.MessageType, content string, user models.UserContext) {
	if m.store == nil {
		return
	}
	if _, err := m.store.Audit.LogMessage(ctx, string(user.Source), messageType, content, user.UserID, "", nil); err != nil {
		m.log.Error("audit write failed", "error", err, "type", messageType)
	}
}

// trim keeps the most recent max messages.
func (c *conversation) trim(max int) {
	if len(c.history) > max {
		c.history = c.history[len(c.history)-max:]
	}
}
