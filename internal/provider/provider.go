// Package provider defines the unified LLM provider interface and the
// conversation types shared by the agent, the tool executor and the
// verification gate. Each adapter (anthropic.go, openai.go, scripted.go)
// normalizes its backend into the same Event sequence.
package provider

import (
	"context"
	"encoding/json"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// Content is a single block within a message.
type Content struct {
	Type       ContentType     `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolUseID  string          `json:"tool_use_id,omitempty"` // tool_use / tool_result
	ToolName   string          `json:"tool_name,omitempty"`   // tool_use
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`  // tool_use
	ToolResult string          `json:"tool_result,omitempty"` // tool_result
	IsError    bool            `json:"is_error,omitempty"`    // tool_result
}

// Message is one entry of the conversation history.
type Message struct {
	Role    Role      `json:"role"`
	Content []Content `json:"content"`
}

// ToolUseMessage builds the assistant message that issues the given calls.
func ToolUseMessage(text string, calls ...*ToolCallRequest) Message {
	var contents []Content
	if text != "" {
		contents = append(contents, Content{Type: ContentTypeText, Text: text})
	}
	for _, tc := range calls {
		contents = append(contents, Content{
			Type:      ContentTypeToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.Name,
			ToolInput: tc.Input,
		})
	}
	return Message{Role: RoleAssistant, Content: contents}
}

// ToolResultMessage wraps tool_result blocks in a user-role message.
func ToolResultMessage(results ...Content) Message {
	return Message{Role: RoleUser, Content: results}
}

// ── Tool schema ──────────────────────────────────────────────────────────────

// ToolSchema describes a tool sent to the LLM (JSON Schema format).
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema properties
	Required    []string
}

// ── Request types ────────────────────────────────────────────────────────────

// ChatRequest is the unified request sent to a provider.
type ChatRequest struct {
	Model        string
	Messages     []Message
	Tools        []ToolSchema
	SystemPrompt string
	MaxTokens    int
}

// ── Events ───────────────────────────────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: text output from the model.
	EventTextDelta EventType = iota

	// EventToolCallDone: one complete tool call.
	EventToolCallDone

	// EventDone: end of the turn, carries token usage.
	EventDone

	// EventError: the turn failed.
	EventError
)

// Event is the unified output unit of a provider.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventToolCallDone
	ToolCall *ToolCallRequest

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// ToolCallRequest is one tool invocation, issued by the model or
// synthesized by the verification gate.
type ToolCallRequest struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Arguments decodes the call input into a generic map. Malformed input
// yields an empty map.
func (c *ToolCallRequest) Arguments() map[string]any {
	args := map[string]any{}
	if c == nil || len(c.Input) == 0 {
		return args
	}
	if err := json.Unmarshal(c.Input, &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// Usage records token consumption of one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all LLM backends.
type Provider interface {
	// Chat runs one model turn. The returned channel emits Events until
	// EventDone or EventError and is then closed; callers must drain it.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai".
	Name() string

	// DefaultModel returns the model used when the request names none.
	DefaultModel() string
}

// replay converts a finished turn into the event sequence on a closed,
// pre-filled channel.
func replay(text string, calls []*ToolCallRequest, usage Usage) <-chan Event {
	ch := make(chan Event, len(calls)+2)
	if text != "" {
		ch <- Event{Type: EventTextDelta, TextDelta: text}
	}
	for _, c := range calls {
		ch <- Event{Type: EventToolCallDone, ToolCall: c}
	}
	ch <- Event{Type: EventDone, Usage: &usage}
	close(ch)
	return ch
}
