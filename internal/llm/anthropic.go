package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/munin-ai/munin/pkg/models"
)

// anthropicProvider adapts the Anthropic Messages API. Tools use the
// first-class input_schema form; tool-use input arrives as partial JSON
// fragments that are accumulated per content block and parsed once at
// block end.
type anthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	log         *slog.Logger
}

func newAnthropicProvider(cfg Config) *anthropicProvider {
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{
		client:      anthropic.NewClient(options...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		log:         slog.With("component", "llm", "provider", "anthropic"),
	}
}

func (p *anthropicProvider) Name() string  { return "anthropic" }
func (p *anthropicProvider) Model() string { return p.model }
func (p *anthropicProvider) Close() error  { return nil }

func (p *anthropicProvider) Complete(ctx context.Context, req *Request) (*models.Response, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return collectStream(ctx, chunks)
}

func (p *anthropicProvider) Stream(ctx context.Context, req *Request) (<-chan models.ResponseChunk, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  p.convertMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	} else {
		params.Temperature = anthropic.Float(p.temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return nil, wrapProviderError(p.Name(), 0, err)
		}
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	out := make(chan models.ResponseChunk)
	go func() {
		defer close(out)

		var (
			content      strings.Builder
			toolCalls    []models.ToolCall
			currentTool  *models.ToolCall
			currentInput strings.Builder
			usage        models.Usage
			stopReason   models.StopReason = models.StopEndTurn
		)

		for stream.Next() {
			event := stream.Current()

			switch event.Type {
			case "message_start":
				start := event.AsMessageStart()
				usage.InputTokens = int(start.Message.Usage.InputTokens)

			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type == "tool_use" {
					toolUse := block.AsToolUse()
					currentTool = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
					currentInput.Reset()
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						content.WriteString(delta.Text)
						out <- models.ResponseChunk{DeltaContent: delta.Text}
					}
				case "input_json_delta":
					if delta.PartialJSON != "" {
						currentInput.WriteString(delta.PartialJSON)
					}
				}

			case "content_block_stop":
				if currentTool != nil {
					currentTool.Arguments = parseToolArguments(currentInput.String())
					toolCalls = append(toolCalls, *currentTool)
					out <- models.ResponseChunk{DeltaToolCall: currentTool}
					currentTool = nil
				}

			case "message_delta":
				delta := event.AsMessageDelta()
				if delta.Usage.OutputTokens > 0 {
					usage.OutputTokens = int(delta.Usage.OutputTokens)
				}
				if reason := string(delta.Delta.StopReason); reason != "" {
					stopReason = mapAnthropicStopReason(reason)
				}
			}
		}

		if err := stream.Err(); err != nil {
			out <- models.ResponseChunk{Err: p.wrapError(err)}
			return
		}

		resp := &models.Response{
			Content:    content.String(),
			ToolCalls:  toolCalls,
			StopReason: stopReason,
			Usage:      usage,
			Model:      p.model,
		}
		if resp.HasToolCalls() {
			resp.StopReason = models.StopToolUse
		}
		out <- models.ResponseChunk{IsFinal: true, Response: resp}
	}()

	return out, nil
}

func (p *anthropicProvider) convertMessages(messages []models.Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}

		case models.RoleToolResult:
			var blocks []anthropic.ContentBlockParamUnion
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewUserMessage(blocks...))
			}
		}
	}

	return result
}

func (p *anthropicProvider) convertTools(tools []models.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))

	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, err
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}

	return result, nil
}

func (p *anthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return wrapProviderError(p.Name(), apiErr.StatusCode, err)
	}
	return wrapProviderError(p.Name(), 0, err)
}

func mapAnthropicStopReason(reason string) models.StopReason {
	switch reason {
	case "end_turn":
		return models.StopEndTurn
	case "tool_use":
		return models.StopToolUse
	case "max_tokens":
		return models.StopMaxTokens
	case "stop_sequence":
		return models.StopStopSequence
	default:
		return models.StopEndTurn
	}
}
