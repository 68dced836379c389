package session

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/aictl/itaccess/internal/provider"
)

func TestNew_UniqueIDs(t *testing.T) {
	a, b := New(), New()
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids %q and %q", a.ID, b.ID)
	}
}

func TestLastToolCall_Cursor(t *testing.T) {
	s := New()
	if s.LastToolCall() != nil {
		t.Fatal("new session has a tool call")
	}

	s.AddMessage(userText("give user_001 read on res_001"))
	s.AddMessage(assistantWithToolUse("", "t1", "grant_access"))
	if c := s.LastToolCall(); c == nil || c.ID != "t1" || c.Name != "grant_access" {
		t.Fatalf("cursor = %+v", c)
	}

	// Results and plain text do not move the cursor.
	s.AddMessage(toolResult("t1", "ok"))
	s.AddMessage(assistantText("done"))
	if s.LastToolCall().ID != "t1" {
		t.Errorf("cursor moved to %q", s.LastToolCall().ID)
	}

	// A user message that mentions tool_use content never counts.
	s.AddMessage(provider.Message{Role: provider.RoleUser, Content: []provider.Content{
		{Type: provider.ContentTypeToolUse, ToolUseID: "fake", ToolName: "revoke_access"},
	}})
	if s.LastToolCall().ID != "t1" {
		t.Error("user-role tool_use moved the cursor")
	}
}

func TestLastToolCalls_KeepsWholeBatch(t *testing.T) {
	s := New()
	s.AddMessage(provider.ToolUseMessage("",
		&provider.ToolCallRequest{ID: "a", Name: "grant_access", Input: json.RawMessage(`{"user_id":"user_001"}`)},
		&provider.ToolCallRequest{ID: "b", Name: "revoke_access", Input: json.RawMessage(`{"user_id":"user_002"}`)},
	))
	batch := s.LastToolCalls()
	if len(batch) != 2 || batch[0].ID != "a" || batch[1].ID != "b" {
		t.Fatalf("batch = %+v", batch)
	}
	if batch[0].Arguments()["user_id"] != "user_001" {
		t.Errorf("first call args = %v", batch[0].Arguments())
	}
	if got := s.LastToolCall(); got.ID != "b" {
		t.Errorf("LastToolCall = %q, want b", got.ID)
	}

	// Text-only replies keep the batch; the next tool_use message replaces it.
	s.AddMessage(assistantText("working on it"))
	if len(s.LastToolCalls()) != 2 {
		t.Error("text reply dropped the batch")
	}
	s.AddMessage(assistantWithToolUse("", "c", "get_user_info"))
	if batch := s.LastToolCalls(); len(batch) != 1 || batch[0].ID != "c" {
		t.Errorf("batch after new call = %+v", batch)
	}
}

func TestCursorSurvivesTrim(t *testing.T) {
	s := New()
	s.AddMessage(userText("request"))
	s.AddMessage(assistantWithToolUse("", "t1", "grant_access"))
	s.Messages = s.Messages[:0]
	if s.LastToolCall() == nil {
		t.Error("cursor lost when history was trimmed")
	}
	s.Clear()
	if s.LastToolCalls() != nil || s.LastToolCall() != nil || s.TokensUsed() != 0 {
		t.Error("Clear kept state")
	}
}

func TestAddUsage(t *testing.T) {
	s := New()
	s.AddUsage(&provider.Usage{InputTokens: 100, OutputTokens: 20})
	s.AddUsage(nil)
	s.AddUsage(&provider.Usage{InputTokens: 5, OutputTokens: 1})
	if s.InputTokens != 105 || s.OutputTokens != 21 || s.TokensUsed() != 126 {
		t.Errorf("usage = %d/%d", s.InputTokens, s.OutputTokens)
	}
}

func TestTranscript(t *testing.T) {
	s := New()
	s.AddMessage(userText("hello"))
	s.AddMessage(assistantText("hi"))

	var buf bytes.Buffer
	if err := s.WriteTranscript(&buf); err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		ID       string             `json:"id"`
		Messages []provider.Message `json:"messages"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("transcript is not JSON: %v", err)
	}
	if decoded.ID != s.ID || len(decoded.Messages) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}

	path := filepath.Join(t.TempDir(), "t.json")
	if err := s.SaveTranscript(path); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTranscript(filepath.Join(t.TempDir(), "missing", "t.json")); err == nil {
		t.Error("expected error for missing directory")
	}
}
