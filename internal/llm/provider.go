// Package llm provides a provider-agnostic completion surface over the
// supported LLM vendors. Each adapter translates the shared message and tool
// shapes to its vendor's wire format and back.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/munin-ai/munin/pkg/models"
)

// Request is one completion request against a provider.
type Request struct {
	Messages    []models.Message
	Tools       []models.ToolDescriptor
	System      string
	MaxTokens   int
	Temperature float64
}

// Provider is the capability contract every adapter satisfies.
//
// Complete blocks until the provider finishes and returns the normalized
// response. Stream returns a lazy sequence of chunks terminated by exactly
// one chunk with IsFinal set, carrying the final Response. Adapters do not
// retry; retries, if any, belong to the caller.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*models.Response, error)
	Stream(ctx context.Context, req *Request) (<-chan models.ResponseChunk, error)
	Name() string
	Model() string
	Close() error
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7
)

// New constructs the provider named in cfg. Azure, Ollama, and vLLM reuse
// the OpenAI-compatible chat-completions surface with a substituted base URL.
func New(cfg Config) (Provider, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}

	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return newAnthropicProvider(cfg), nil
	case "openai", "azure", "ollama", "vllm":
		return newOpenAIProvider(cfg), nil
	case "gemini":
		return newGoogleProvider(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// collectStream drains a chunk stream into a buffered Response. Used by
// adapters whose native surface is streaming to implement Complete.
func collectStream(ctx context.Context, chunks <-chan models.ResponseChunk) (*models.Response, error) {
	var (
		content   strings.Builder
		toolCalls []models.ToolCall
		final     *models.Response
	)

	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.DeltaContent != "" {
			content.WriteString(chunk.DeltaContent)
		}
		if chunk.DeltaToolCall != nil {
			toolCalls = append(toolCalls, *chunk.DeltaToolCall)
		}
		if chunk.IsFinal {
			final = chunk.Response
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if final == nil {
		// The stream ended without a final chunk; assemble what arrived.
		final = &models.Response{StopReason: models.StopEndTurn}
	}
	if final.Content == "" {
		final.Content = content.String()
	}
	if len(final.ToolCalls) == 0 {
		final.ToolCalls = toolCalls
	}
	return final, nil
}

// parseToolArguments parses accumulated tool-call argument JSON. A parse
// failure yields an empty mapping, not an error, so one malformed call does
// not poison the turn.
func parseToolArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}
