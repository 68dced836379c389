package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider implements Provider using the Anthropic Messages API.
// Each turn is a single non-streaming request; the response blocks are
// replayed as events so the agent loop sees the same shape as every other
// backend.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, baseURL, model string) *AnthropicProvider {
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.model }

func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  anthropicMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if tools := anthropicTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var text string
	var calls []*ToolCallRequest
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += b.Text
		case anthropic.ToolUseBlock:
			input := b.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			calls = append(calls, &ToolCallRequest{ID: b.ID, Name: b.Name, Input: input})
		}
	}
	return replay(text, calls, Usage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}), nil
}

// anthropicMessages converts unified messages to Anthropic API params.
func anthropicMessages(msgs []Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, c := range msg.Content {
			switch c.Type {
			case ContentTypeText:
				blocks = append(blocks, anthropic.NewTextBlock(c.Text))
			case ContentTypeToolUse:
				var input any
				if len(c.ToolInput) > 0 {
					_ = json.Unmarshal(c.ToolInput, &input)
				}
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ToolUseID, input, c.ToolName))
			case ContentTypeToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(c.ToolUseID, c.ToolResult, c.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch msg.Role {
		case RoleUser:
			params = append(params, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return params
}

func anthropicTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Parameters,
					Required:   t.Required,
				},
			},
		})
	}
	return result
}
