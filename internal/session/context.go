package session

import (
	"encoding/json"

	"github.com/aictl/itaccess/internal/provider"
)

// Turn is one user request and everything that followed it, up to the
// next user text message.
type Turn struct {
	Messages []provider.Message
	// Complete is true when the turn ends with an assistant message that
	// issues no tool calls.
	Complete bool
}

// SplitTurns groups messages into turns. A turn starts at every user
// message carrying text; tool_result messages stay in the turn of the
// tool_use they answer.
func SplitTurns(messages []provider.Message) []Turn {
	var turns []Turn
	for _, msg := range messages {
		if isUserText(msg) || len(turns) == 0 {
			turns = append(turns, Turn{})
		}
		cur := &turns[len(turns)-1]
		cur.Messages = append(cur.Messages, msg)
	}
	for i := range turns {
		last := turns[i].Messages[len(turns[i].Messages)-1]
		turns[i].Complete = last.Role == provider.RoleAssistant && !hasToolUse(last)
	}
	return turns
}

// TruncateSession keeps the last keepTurns turns, deep-copied so that the
// result does not share content slices with messages.
func TruncateSession(messages []provider.Message, keepTurns int) []provider.Message {
	turns := SplitTurns(messages)
	if len(turns) > keepTurns {
		turns = turns[len(turns)-keepTurns:]
	}
	var out []provider.Message
	for _, t := range turns {
		for _, m := range t.Messages {
			out = append(out, copyMessage(m))
		}
	}
	return out
}

// TrimHistory drops whole turns from the front once estimated tokens
// exceed 80% of maxTokens. The current turn is always kept, so a tool_use
// is never separated from its tool_result.
func TrimHistory(messages []provider.Message, maxTokens int) []provider.Message {
	threshold := maxTokens * 80 / 100
	if len(messages) == 0 || estimateMessagesTokens(messages) <= threshold {
		return messages
	}

	turns := SplitTurns(messages)
	drop := 0
	total := estimateMessagesTokens(messages)
	for drop < len(turns)-1 && total > threshold {
		total -= estimateMessagesTokens(turns[drop].Messages)
		drop++
	}
	if drop == 0 {
		return messages
	}
	var out []provider.Message
	for _, t := range turns[drop:] {
		out = append(out, t.Messages...)
	}
	return out
}

func isUserText(msg provider.Message) bool {
	if msg.Role != provider.RoleUser {
		return false
	}
	for _, c := range msg.Content {
		if c.Type == provider.ContentTypeText {
			return true
		}
	}
	return false
}

func hasToolUse(msg provider.Message) bool {
	for _, c := range msg.Content {
		if c.Type == provider.ContentTypeToolUse {
			return true
		}
	}
	return false
}

func copyMessage(m provider.Message) provider.Message {
	out := provider.Message{Role: m.Role, Content: make([]provider.Content, len(m.Content))}
	copy(out.Content, m.Content)
	for i := range out.Content {
		if in := out.Content[i].ToolInput; in != nil {
			out.Content[i].ToolInput = append(json.RawMessage(nil), in...)
		}
	}
	return out
}

func estimateMessagesTokens(messages []provider.Message) int {
	total := 0
	for _, msg := range messages {
		for _, c := range msg.Content {
			total += len(c.Text)
			total += len(c.ToolResult)
			total += len(c.ToolInput)
		}
	}
	return total / 4
}
