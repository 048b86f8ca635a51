package llm

import (
	"encoding/json"
	"testing"

	"github.com/munin-ai/munin/pkg/models"
)

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "skynet", APIKey: "k", Model: "m"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNew_OpenAICompatibleAliases(t *testing.T) {
	for _, name := range []string{"openai", "azure", "ollama", "vllm"} {
		p, err := New(Config{Provider: name, APIKey: "k", Model: "m", BaseURL: "http://localhost:8000/v1"})
		if err != nil {
			t.Fatalf("New(%q) returned error: %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("Name() = %q, want %q", p.Name(), name)
		}
	}
}

func TestParseToolArguments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"valid object", `{"entity_id":"light.bedroom","brightness":255}`, 2},
		{"empty string", "", 0},
		{"whitespace", "  \n", 0},
		{"malformed json", `{"entity_id": light.`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := parseToolArguments(tt.raw)
			if args == nil {
				t.Fatal("arguments must never be nil")
			}
			if len(args) != tt.want {
				t.Errorf("len(args) = %d, want %d", len(args), tt.want)
			}
		})
	}
}

func TestStopReasonMapping(t *testing.T) {
	anthropicCases := map[string]models.StopReason{
		"end_turn":      models.StopEndTurn,
		"tool_use":      models.StopToolUse,
		"max_tokens":    models.StopMaxTokens,
		"stop_sequence": models.StopStopSequence,
		"pause_turn":    models.StopEndTurn,
	}
	for in, want := range anthropicCases {
		if got := mapAnthropicStopReason(in); got != want {
			t.Errorf("mapAnthropicStopReason(%q) = %q, want %q", in, got, want)
		}
	}

	openaiCases := map[string]models.StopReason{
		"stop":           models.StopEndTurn,
		"tool_calls":     models.StopToolUse,
		"function_call":  models.StopToolUse,
		"length":         models.StopMaxTokens,
		"content_filter": models.StopEndTurn,
	}
	for in, want := range openaiCases {
		if got := mapOpenAIFinishReason(in); got != want {
			t.Errorf("mapOpenAIFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenAIConvertMessages(t *testing.T) {
	p := newOpenAIProvider(Config{Provider: "openai", APIKey: "k", Model: "gpt-4o"})

	messages := []models.Message{
		models.NewUserMessage("check the lights"),
		models.NewAssistantMessage("checking", []models.ToolCall{
			{ID: "c1", Name: "get_entities", Arguments: map[string]any{"domain": "light"}},
		}),
		models.NewToolResultMessage("c1", "light.bedroom: on", false),
	}

	result := p.convertMessages(messages, "you are helpful")

	// system + user + assistant + one tool message per result
	if len(result) != 4 {
		t.Fatalf("len(result) = %d, want 4", len(result))
	}
	if result[0].Role != "system" || result[0].Content != "you are helpful" {
		t.Errorf("first message should be the system prompt, got %+v", result[0])
	}
	if result[2].Role != "assistant" || len(result[2].ToolCalls) != 1 {
		t.Errorf("assistant message should carry the tool call, got %+v", result[2])
	}
	if result[3].Role != "tool" || result[3].ToolCallID != "c1" {
		t.Errorf("tool result should link to c1, got %+v", result[3])
	}
}

func TestAnthropicConvertMessages(t *testing.T) {
	p := newAnthropicProvider(Config{Provider: "anthropic", APIKey: "k", Model: "claude-sonnet-4-20250514"})

	messages := []models.Message{
		models.NewUserMessage("hi"),
		models.NewAssistantMessage("on it", []models.ToolCall{
			{ID: "c1", Name: "get_state", Arguments: map[string]any{"entity_id": "light.bedroom"}},
		}),
		models.NewToolResultMessage("c1", "on", false),
	}

	result := p.convertMessages(messages)
	if len(result) != 3 {
		t.Fatalf("len(result) = %d, want 3", len(result))
	}
}

func TestConvertGeminiSchema(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {"type": "string", "enum": ["routine", "general"], "description": "kind"},
			"limit": {"type": "integer"}
		},
		"required": ["category"]
	}`)

	var schemaMap map[string]any
	if err := json.Unmarshal(raw, &schemaMap); err != nil {
		t.Fatal(err)
	}

	schema := convertGeminiSchema(schemaMap)
	if schema.Type != "OBJECT" {
		t.Errorf("type = %q, want OBJECT", schema.Type)
	}
	if len(schema.Properties) != 2 {
		t.Fatalf("properties = %d, want 2", len(schema.Properties))
	}
	cat := schema.Properties["category"]
	if cat == nil || len(cat.Enum) != 2 || cat.Description != "kind" {
		t.Errorf("category schema not converted: %+v", cat)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "category" {
		t.Errorf("required = %v", schema.Required)
	}
}

func TestToolNameForCallID(t *testing.T) {
	messages := []models.Message{
		models.NewAssistantMessage("", []models.ToolCall{{ID: "get_entities-ab12cd34", Name: "get_entities"}}),
	}
	if got := toolNameForCallID("get_entities-ab12cd34", messages); got != "get_entities" {
		t.Errorf("resolved name = %q", got)
	}
	// Unknown id falls back to the prefix before the mint suffix.
	if got := toolNameForCallID("call_service-ffffffff", nil); got != "call_service" {
		t.Errorf("fallback name = %q", got)
	}
}
