// Package session holds the state of one conversation: the ordered
// message history, the most recent batch of tool invocations and token
// accounting.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/aictl/itaccess/internal/provider"
)

// Session holds the conversation state for one agent session.
type Session struct {
	ID           string             `json:"id"`
	Messages     []provider.Message `json:"messages"`
	CreatedAt    time.Time          `json:"created_at"`
	InputTokens  int                `json:"input_tokens"`
	OutputTokens int                `json:"output_tokens"`

	// lastCalls holds every tool_use of the latest assistant message that
	// issued any. It survives history trimming so the verification gate
	// never has to scan.
	lastCalls []*provider.ToolCallRequest
}

// New creates a new session with a unique ID.
func New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
}

// AddMessage appends a message to the history and advances the
// invocation cursor when the message issues tool calls. The cursor keeps
// all calls of that message, in order.
func (s *Session) AddMessage(msg provider.Message) {
	s.Messages = append(s.Messages, msg)
	if msg.Role != provider.RoleAssistant {
		return
	}
	var calls []*provider.ToolCallRequest
	for _, c := range msg.Content {
		if c.Type != provider.ContentTypeToolUse {
			continue
		}
		calls = append(calls, &provider.ToolCallRequest{
			ID:    c.ToolUseID,
			Name:  c.ToolName,
			Input: c.ToolInput,
		})
	}
	if len(calls) > 0 {
		s.lastCalls = calls
	}
}

// LastToolCalls returns the tool invocations of the most recent assistant
// message that issued any, or nil when the conversation has none.
func (s *Session) LastToolCalls() []*provider.ToolCallRequest {
	return s.lastCalls
}

// LastToolCall returns the final invocation of that batch, or nil.
func (s *Session) LastToolCall() *provider.ToolCallRequest {
	if len(s.lastCalls) == 0 {
		return nil
	}
	return s.lastCalls[len(s.lastCalls)-1]
}

// AddUsage records the token consumption of one model turn.
func (s *Session) AddUsage(u *provider.Usage) {
	if u == nil {
		return
	}
	s.InputTokens += u.InputTokens
	s.OutputTokens += u.OutputTokens
}

// TokensUsed returns input plus output tokens.
func (s *Session) TokensUsed() int {
	return s.InputTokens + s.OutputTokens
}

// Clear resets the history, the cursor and the token counters.
func (s *Session) Clear() {
	s.Messages = nil
	s.lastCalls = nil
	s.InputTokens = 0
	s.OutputTokens = 0
}

// EstimateTokens returns a rough token estimate (total chars / 4).
func (s *Session) EstimateTokens() int {
	return estimateMessagesTokens(s.Messages)
}
