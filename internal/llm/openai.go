package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/munin-ai/munin/pkg/models"
)

// openaiProvider adapts any OpenAI-compatible chat-completions surface.
// Azure, Ollama, and vLLM reuse it with a substituted base URL, so the
// provider name is carried from configuration rather than hardcoded.
//
// Tool calls stream incrementally: the id and function name arrive first,
// then argument JSON in fragments keyed by tool-call index. Fragments are
// accumulated and parsed once when the stream finishes.
type openaiProvider struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float64
	log         *slog.Logger
}

func newOpenAIProvider(cfg Config) *openaiProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = "openai"
	}
	return &openaiProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		name:        name,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		log:         slog.With("component", "llm", "provider", name),
	}
}

func (p *openaiProvider) Name() string  { return p.name }
func (p *openaiProvider) Model() string { return p.model }
func (p *openaiProvider) Close() error  { return nil }

func (p *openaiProvider) Complete(ctx context.Context, req *Request) (*models.Response, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return collectStream(ctx, chunks)
}

func (p *openaiProvider) Stream(ctx context.Context, req *Request) (<-chan models.ResponseChunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: p.convertMessages(req.Messages, req.System),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	} else {
		chatReq.MaxTokens = p.maxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	} else {
		chatReq.Temperature = float32(p.temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err)
	}

	out := make(chan models.ResponseChunk)
	go p.processStream(stream, out)
	return out, nil
}

// pendingToolCall accumulates one tool call across stream deltas.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

func (p *openaiProvider) processStream(stream *openai.ChatCompletionStream, out chan<- models.ResponseChunk) {
	defer close(out)
	defer stream.Close()

	var (
		content    strings.Builder
		pending    = map[int]*pendingToolCall{}
		order      []int
		usage      models.Usage
		stopReason models.StopReason = models.StopEndTurn
	)

	flush := func() []models.ToolCall {
		calls := make([]models.ToolCall, 0, len(pending))
		for _, idx := range order {
			pc := pending[idx]
			if pc == nil || pc.id == "" || pc.name == "" {
				continue
			}
			call := models.ToolCall{
				ID:        pc.id,
				Name:      pc.name,
				Arguments: parseToolArguments(pc.args.String()),
			}
			calls = append(calls, call)
		}
		return calls
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				calls := flush()
				for i := range calls {
					out <- models.ResponseChunk{DeltaToolCall: &calls[i]}
				}
				resp := &models.Response{
					Content:    content.String(),
					ToolCalls:  calls,
					StopReason: stopReason,
					Usage:      usage,
					Model:      p.model,
				}
				if resp.HasToolCalls() {
					resp.StopReason = models.StopToolUse
				}
				out <- models.ResponseChunk{IsFinal: true, Response: resp}
				return
			}
			out <- models.ResponseChunk{Err: p.wrapError(err)}
			return
		}

		if response.Usage != nil {
			usage.InputTokens = response.Usage.PromptTokens
			usage.OutputTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			out <- models.ResponseChunk{DeltaContent: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			pc := pending[index]
			if pc == nil {
				pc = &pendingToolCall{}
				pending[index] = pc
				order = append(order, index)
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pc.args.WriteString(tc.Function.Arguments)
			}
		}

		if reason := string(choice.FinishReason); reason != "" && reason != "null" {
			stopReason = mapOpenAIFinishReason(reason)
		}
	}
}

func (p *openaiProvider) convertMessages(messages []models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})

		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			result = append(result, oaiMsg)

		case models.RoleToolResult:
			// One message per result, linked by tool call id.
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		}
	}

	return result
}

func (p *openaiProvider) convertTools(tools []models.ToolDescriptor) []openai.Tool {
	result := make([]openai.Tool, len(tools))

	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Parameters, &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}

	return result
}

func (p *openaiProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return wrapProviderError(p.name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return wrapProviderError(p.name, reqErr.HTTPStatusCode, err)
	}
	return wrapProviderError(p.name, 0, err)
}

func mapOpenAIFinishReason(reason string) models.StopReason {
	switch reason {
	case "stop":
		return models.StopEndTurn
	case "tool_calls", "function_call":
		return models.StopToolUse
	case "length":
		return models.StopMaxTokens
	default:
		return models.StopEndTurn
	}
}
