// Package models defines the shared data types exchanged between the
// conversation manager, the LLM providers, the tool registry, and the
// persistence layer.
package models

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// ToolCall is a request by the model to invoke a named tool.
// The ID pairs the call with its result within the same conversation.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult carries the outcome of one tool execution back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Message is one turn in a conversation. An assistant message carries text,
// tool calls, or both; a tool_result message carries exactly one result per
// originating tool call.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// NewUserMessage creates a user message with plain text content.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// NewAssistantMessage creates an assistant message. Either content or
// toolCalls may be empty, but not both in a well-formed conversation.
func NewAssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// NewToolResultMessage creates a tool_result message for a single call.
func NewToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{
		Role: RoleToolResult,
		ToolResults: []ToolResult{
			{ToolCallID: toolCallID, Content: content, IsError: isError},
		},
	}
}

// HasToolCalls reports whether the message carries at least one tool call.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// StopReason explains why the model stopped generating.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// Usage holds token accounting for one completion. Zero when the provider
// does not expose counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Response is the normalized result of one LLM completion.
type Response struct {
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
	Model      string     `json:"model"`
}

// HasToolCalls reports whether the response requests tool execution.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// ResponseChunk is one element of a streaming completion. Exactly one of
// DeltaContent, DeltaToolCall, or the final Response is set; Err terminates
// the stream early.
type ResponseChunk struct {
	DeltaContent  string
	DeltaToolCall *ToolCall
	IsFinal       bool
	Response      *Response
	Err           error
}
