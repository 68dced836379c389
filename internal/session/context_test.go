package session

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/aictl/itaccess/internal/provider"
)

// Helper to build messages for tests.
func userText(text string) provider.Message {
	return provider.Message{
		Role: provider.RoleUser,
		Content: []provider.Content{{
			Type: provider.ContentTypeText,
			Text: text,
		}},
	}
}

func assistantText(text string) provider.Message {
	return provider.Message{
		Role: provider.RoleAssistant,
		Content: []provider.Content{{
			Type: provider.ContentTypeText,
			Text: text,
		}},
	}
}

func assistantWithToolUse(text, toolID, toolName string) provider.Message {
	contents := []provider.Content{}
	if text != "" {
		contents = append(contents, provider.Content{
			Type: provider.ContentTypeText,
			Text: text,
		})
	}
	contents = append(contents, provider.Content{
		Type:      provider.ContentTypeToolUse,
		ToolUseID: toolID,
		ToolName:  toolName,
		ToolInput: json.RawMessage(`{"user_id":"user_001"}`),
	})
	return provider.Message{Role: provider.RoleAssistant, Content: contents}
}

func toolResult(toolID, result string) provider.Message {
	return provider.Message{
		Role: provider.RoleUser,
		Content: []provider.Content{{
			Type:       provider.ContentTypeToolResult,
			ToolUseID:  toolID,
			ToolResult: result,
		}},
	}
}

func multiToolResult(pairs ...string) provider.Message {
	var contents []provider.Content
	for i := 0; i < len(pairs); i += 2 {
		contents = append(contents, provider.Content{
			Type:       provider.ContentTypeToolResult,
			ToolUseID:  pairs[i],
			ToolResult: pairs[i+1],
		})
	}
	return provider.Message{Role: provider.RoleUser, Content: contents}
}

// --- SplitTurns tests ---

func TestSplitTurns_Empty(t *testing.T) {
	turns := SplitTurns(nil)
	if turns != nil {
		t.Errorf("expected nil, got %v", turns)
	}
}

func TestSplitTurns_SimpleConversation(t *testing.T) {
	msgs := []provider.Message{
		userText("hello"),
		assistantText("hi"),
	}
	turns := SplitTurns(msgs)
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if len(turns[0].Messages) != 2 {
		t.Errorf("expected 2 messages in turn, got %d", len(turns[0].Messages))
	}
	if !turns[0].Complete {
		t.Error("expected turn to be complete")
	}
}

func TestSplitTurns_TwoRounds(t *testing.T) {
	msgs := []provider.Message{
		userText("first"),
		assistantText("response1"),
		userText("second"),
		assistantText("response2"),
	}
	turns := SplitTurns(msgs)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if len(turns[0].Messages) != 2 {
		t.Errorf("turn 0: expected 2 messages, got %d", len(turns[0].Messages))
	}
	if len(turns[1].Messages) != 2 {
		t.Errorf("turn 1: expected 2 messages, got %d", len(turns[1].Messages))
	}
}

func TestSplitTurns_WithToolUse(t *testing.T) {
	// One turn with tool use chain.
	msgs := []provider.Message{
		userText("who is user_001?"),
		assistantWithToolUse("checking...", "t1", "get_user_info"),
		toolResult("t1", "{\"user_id\":\"user_001\"}"),
		assistantText("That is Alice Johnson."),
	}
	turns := SplitTurns(msgs)
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if len(turns[0].Messages) != 4 {
		t.Errorf("expected 4 messages, got %d", len(turns[0].Messages))
	}
	if !turns[0].Complete {
		t.Error("expected turn to be complete")
	}
}

func TestSplitTurns_MultiToolChain(t *testing.T) {
	// One turn with multiple tool use rounds.
	msgs := []provider.Message{
		userText("give user_001 read on res_001"),
		assistantWithToolUse("checking the user", "t1", "get_user_info"),
		toolResult("t1", "{}"),
		assistantWithToolUse("granting", "t2", "grant_access"),
		toolResult("t2", "{\"permission_id\":\"perm_new_001\"}"),
		assistantText("Access granted."),
	}
	turns := SplitTurns(msgs)
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn (multi-tool chain), got %d", len(turns))
	}
	if len(turns[0].Messages) != 6 {
		t.Errorf("expected 6 messages, got %d", len(turns[0].Messages))
	}
}

func TestSplitTurns_IncompleteTurn(t *testing.T) {
	// Turn ending with tool_use (no result yet).
	msgs := []provider.Message{
		userText("revoke user_002 on res_002"),
		assistantWithToolUse("revoking", "t1", "revoke_access"),
	}
	turns := SplitTurns(msgs)
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Complete {
		t.Error("expected incomplete turn")
	}
}

func TestSplitTurns_ToolUseFollowedByNewUser(t *testing.T) {
	// Turn 1 with tool chain, then turn 2 new user input.
	msgs := []provider.Message{
		userText("first request"),
		assistantWithToolUse("checking", "t1", "get_user_info"),
		toolResult("t1", "{}"),
		assistantText("done"),
		userText("second request"),
		assistantText("done again"),
	}
	turns := SplitTurns(msgs)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if len(turns[0].Messages) != 4 {
		t.Errorf("turn 0: expected 4 messages, got %d", len(turns[0].Messages))
	}
	if len(turns[1].Messages) != 2 {
		t.Errorf("turn 1: expected 2 messages, got %d", len(turns[1].Messages))
	}
}

// --- TruncateSession tests ---

func TestTruncateSession_NoTruncation(t *testing.T) {
	msgs := []provider.Message{
		userText("hello"),
		assistantText("hi"),
	}
	result := TruncateSession(msgs, 10)
	if len(result) != 2 {
		t.Errorf("expected 2 messages (no truncation), got %d", len(result))
	}
}

func TestTruncateSession_Truncates(t *testing.T) {
	var msgs []provider.Message
	for i := 0; i < 20; i++ {
		msgs = append(msgs,
			userText("question"),
			assistantText("answer"),
		)
	}

	result := TruncateSession(msgs, 5)
	// 5 turns * 2 messages = 10 messages.
	if len(result) != 10 {
		t.Errorf("expected 10 messages (5 turns), got %d", len(result))
	}

	// Verify the kept messages are from the last 5 turns.
	if result[0].Content[0].Text != "question" {
		t.Error("first kept message should be user text")
	}
}

func TestTruncateSession_DeepCopy(t *testing.T) {
	original := strings.Repeat("data", 1000)
	msgs := []provider.Message{
		userText("old"),
		assistantText("old response"),
		userText("keep1"),
		assistantText("keep1 response"),
		userText("keep2"),
		assistantText(original),
	}

	result := TruncateSession(msgs, 2)

	// Modify original to verify deep copy.
	msgs[5].Content[0].Text = "MODIFIED"

	// Result should not be affected.
	found := false
	for _, msg := range result {
		for _, c := range msg.Content {
			if c.Text == original {
				found = true
			}
			if c.Text == "MODIFIED" {
				t.Error("deep copy failed: result was affected by original mutation")
			}
		}
	}
	if !found {
		t.Error("expected to find original text in deep-copied result")
	}
}

func TestTruncateSession_PreservesToolChains(t *testing.T) {
	msgs := []provider.Message{
		// Turn 1 (old, will be truncated).
		userText("old request"),
		assistantWithToolUse("checking", "t1", "get_user_info"),
		toolResult("t1", "{}"),
		assistantText("old done"),
		// Turn 2 (keep).
		userText("new request"),
		assistantWithToolUse("checking", "t2", "get_user_info"),
		toolResult("t2", "{}"),
		assistantText("new done"),
	}

	result := TruncateSession(msgs, 1)

	// Should keep only the last turn (4 messages).
	if len(result) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(result))
	}

	// Verify tool_use/tool_result pair is intact.
	hasUse := false
	hasResult := false
	for _, msg := range result {
		for _, c := range msg.Content {
			if c.Type == provider.ContentTypeToolUse && c.ToolUseID == "t2" {
				hasUse = true
			}
			if c.Type == provider.ContentTypeToolResult && c.ToolUseID == "t2" {
				hasResult = true
			}
		}
	}
	if !hasUse || !hasResult {
		t.Error("tool_use/tool_result pair for t2 should be preserved")
	}
}

// --- TrimHistory tests ---

func TestTrimHistory_UnderThreshold(t *testing.T) {
	msgs := []provider.Message{userText("hello"), assistantText("hi")}
	if got := TrimHistory(msgs, 1000); len(got) != 2 {
		t.Errorf("expected no trimming, got %d messages", len(got))
	}
}

func TestTrimHistory_DropsWholeTurns(t *testing.T) {
	big := strings.Repeat("x", 4000)
	msgs := []provider.Message{
		userText("old request"),
		assistantWithToolUse("", "t1", "grant_access"),
		toolResult("t1", big),
		assistantText("old done"),
		userText("new request"),
		assistantWithToolUse("", "t2", "get_user_permissions"),
		toolResult("t2", "[]"),
	}

	got := TrimHistory(msgs, 500)
	if len(got) != 3 {
		t.Fatalf("expected the current turn only (3 messages), got %d", len(got))
	}
	if !isUserText(got[0]) {
		t.Error("trimmed history must start with a user request")
	}
	if got[2].Content[0].ToolUseID != "t2" {
		t.Error("tool_result for t2 was separated from its tool_use")
	}
}

func TestTrimHistory_KeepsCurrentTurnEvenWhenLarge(t *testing.T) {
	big := strings.Repeat("x", 8000)
	msgs := []provider.Message{
		userText("request"),
		assistantWithToolUse("", "t1", "get_user_info"),
		toolResult("t1", big),
	}
	if got := TrimHistory(msgs, 100); len(got) != 3 {
		t.Errorf("current turn must never be trimmed, got %d messages", len(got))
	}
}
