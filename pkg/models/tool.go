package models

import "encoding/json"

// ToolDescriptor describes one callable tool for the LLM: a unique name, a
// natural-language description, and a JSON-Schema object for its parameters.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCategory governs mode gating and rate limiting for a tool.
type ToolCategory string

const (
	CategoryReadOnly    ToolCategory = "read_only"
	CategoryWrite       ToolCategory = "write"
	CategoryDestructive ToolCategory = "destructive"
)
