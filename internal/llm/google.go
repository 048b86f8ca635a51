package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/munin-ai/munin/pkg/models"
)

// googleProvider adapts the Gemini generate-content surface. Gemini has no
// tool-call ids of its own, so the adapter mints one per function call and
// resolves ids back to function names when emitting FunctionResponse parts.
type googleProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
	log         *slog.Logger
}

func newGoogleProvider(cfg Config) (*googleProvider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, wrapProviderError("gemini", 0, fmt.Errorf("create client: %w", err))
	}
	return &googleProvider{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		log:         slog.With("component", "llm", "provider", "gemini"),
	}, nil
}

func (p *googleProvider) Name() string  { return "gemini" }
func (p *googleProvider) Model() string { return p.model }
func (p *googleProvider) Close() error  { return nil }

func (p *googleProvider) Complete(ctx context.Context, req *Request) (*models.Response, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return collectStream(ctx, chunks)
}

func (p *googleProvider) Stream(ctx context.Context, req *Request) (<-chan models.ResponseChunk, error) {
	contents := p.convertMessages(req.Messages)
	config := p.buildConfig(req)

	out := make(chan models.ResponseChunk)
	go func() {
		defer close(out)

		var (
			content    strings.Builder
			toolCalls  []models.ToolCall
			usage      models.Usage
			stopReason models.StopReason = models.StopEndTurn
		)

		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
			if err != nil {
				out <- models.ResponseChunk{Err: wrapProviderError(p.Name(), 0, err)}
				return
			}
			if resp == nil {
				continue
			}
			if resp.UsageMetadata != nil {
				usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
				usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}

			for _, candidate := range resp.Candidates {
				if candidate == nil {
					continue
				}
				if candidate.FinishReason == genai.FinishReasonMaxTokens {
					stopReason = models.StopMaxTokens
				}
				if candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" {
						content.WriteString(part.Text)
						out <- models.ResponseChunk{DeltaContent: part.Text}
					}
					if part.FunctionCall != nil {
						call := models.ToolCall{
							ID:        mintToolCallID(part.FunctionCall.Name),
							Name:      part.FunctionCall.Name,
							Arguments: part.FunctionCall.Args,
						}
						if call.Arguments == nil {
							call.Arguments = map[string]any{}
						}
						toolCalls = append(toolCalls, call)
						out <- models.ResponseChunk{DeltaToolCall: &call}
					}
				}
			}
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

func (p *googleProvider) convertMessages(messages []models.Message) []*genai.Content {
	var result []*genai.Content

	for _, msg := range messages {
		content := &genai.Content{}

		switch msg.Role {
		case models.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			// User turns and tool results both come from the user side.
			content.Role = genai.RoleUser
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}

		for _, tc := range msg.ToolCalls {
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					Name: tc.Name,
					Args: tc.Arguments,
				},
			})
		}

		for _, tr := range msg.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{
					"result": tr.Content,
					"error":  tr.IsError,
				}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     toolNameForCallID(tr.ToolCallID, messages),
					Response: response,
				},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result
}

func (p *googleProvider) buildConfig(req *Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	config.MaxOutputTokens = int32(maxTokens)

	temperature := float32(p.temperature)
	if req.Temperature > 0 {
		temperature = float32(req.Temperature)
	}
	config.Temperature = &temperature

	if len(req.Tools) > 0 {
		config.Tools = convertGeminiTools(req.Tools)
	}

	return config
}

func convertGeminiTools(tools []models.ToolDescriptor) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))

	for _, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Parameters, &schemaMap); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertGeminiSchema(schemaMap),
		})
	}

	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertGeminiSchema maps a JSON-Schema object onto Gemini's Schema type.
// Only the subset the tool descriptors use is covered.
func convertGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = convertGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = convertGeminiSchema(items)
	}

	return schema
}

func mintToolCallID(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

// toolNameForCallID resolves a minted call id back to its function name by
// scanning the assistant turns; falls back to the id's name prefix.
func toolNameForCallID(callID string, messages []models.Message) string {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID == callID {
				return tc.Name
			}
		}
	}
	if idx := strings.LastIndex(callID, "-"); idx > 0 {
		return callID[:idx]
	}
	return callID
}
