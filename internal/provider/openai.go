package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider implements Provider for every OpenAI-compatible chat
// completions endpoint (OpenAI, DeepSeek, Kimi, Qwen, local gateways).
type OpenAIProvider struct {
	client openai.Client
	model  string
	name   string
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		name:   compatibleName(baseURL),
	}
}

// compatibleName derives a display name from well-known gateway hosts.
func compatibleName(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "deepseek"):
		return "deepseek"
	case strings.Contains(baseURL, "moonshot"):
		return "kimi"
	case strings.Contains(baseURL, "dashscope"):
		return "qwen"
	default:
		return "openai"
	}
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.model }

func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: openaiMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if tools := openaiTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: response has no choices", p.name)
	}

	msg := resp.Choices[0].Message
	calls := make([]*ToolCallRequest, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		calls = append(calls, &ToolCallRequest{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(args),
		})
	}
	return replay(msg.Content, calls, Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}), nil
}

// openaiMessages flattens unified messages into the chat completions shape:
// tool results become individual tool-role messages.
func openaiMessages(req *ChatRequest) []openai.ChatCompletionMessageParamUnion {
	var params []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		params = append(params, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			for _, c := range msg.Content {
				switch c.Type {
				case ContentTypeText:
					params = append(params, openai.UserMessage(c.Text))
				case ContentTypeToolResult:
					params = append(params, openai.ToolMessage(c.ToolResult, c.ToolUseID))
				}
			}

		case RoleAssistant:
			var text string
			var toolCalls []openai.ChatCompletionMessageToolCallParam
			for _, c := range msg.Content {
				switch c.Type {
				case ContentTypeText:
					text += c.Text
				case ContentTypeToolUse:
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
						ID:   c.ToolUseID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      c.ToolName,
							Arguments: string(c.ToolInput),
						},
					})
				}
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)},
				ToolCalls: toolCalls,
			}
			params = append(params, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return params
}

func openaiTools(tools []ToolSchema) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, t := range tools {
		schema := shared.FunctionParameters{
			"type":       "object",
			"properties": t.Parameters,
		}
		if len(t.Required) > 0 {
			schema["required"] = t.Required
		}
		result = append(result, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  schema,
			},
		})
	}
	return result
}
