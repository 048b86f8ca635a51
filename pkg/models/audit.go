package models

import "time"

// MessageType classifies an audit entry.
type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
	MessageTypeTool      MessageType = "tool"
	MessageTypeError     MessageType = "error"
)

// AuditEntry is one append-only record of a message or error. IDs are
// assigned by the store and increase monotonically.
type AuditEntry struct {
	ID             int64                `json:"id"`
	Timestamp      time.Time            `json:"timestamp"`
	Source         string               `json:"source"`
	UserID         string               `json:"user_id,omitempty"`
	SessionID      string               `json:"session_id,omitempty"`
	MessageType    MessageType          `json:"message_type"`
	Content        string               `json:"content"`
	Metadata       map[string]any       `json:"metadata,omitempty"`
	ToolExecutions []ToolExecutionEntry `json:"tool_executions,omitempty"`
}

// ToolExecutionEntry records one tool invocation, optionally linked to the
// audit entry of the message that triggered it.
type ToolExecutionEntry struct {
	ID           int64     `json:"id"`
	AuditLogID   *int64    `json:"audit_log_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	ToolName     string    `json:"tool_name"`
	Parameters   string    `json:"parameters"`
	Result       string    `json:"result,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}
