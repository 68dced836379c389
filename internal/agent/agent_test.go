package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/aictl/itaccess/internal/config"
	"github.com/aictl/itaccess/internal/gate"
	"github.com/aictl/itaccess/internal/permission"
	"github.com/aictl/itaccess/internal/provider"
	"github.com/aictl/itaccess/internal/store"
	"github.com/aictl/itaccess/internal/toolkit"
	"github.com/aictl/itaccess/internal/tools"
	"github.com/aictl/itaccess/internal/tui"
)

type testRig struct {
	agent    *Agent
	io       *tui.BufferIO
	provider *provider.ScriptedProvider
	tk       *toolkit.Toolkit
}

type rigOption func(cfg *config.Config)

func newRig(t *testing.T, turns []provider.ScriptTurn, opts ...rigOption) *testRig {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SystemPrompt = "You manage IT access."
	cfg.Permissions.Mode = config.ModeAutoApprove
	for _, o := range opts {
		o(cfg)
	}

	s, err := store.NewMemoryStore(store.SampleSnapshot(), nil)
	if err != nil {
		t.Fatal(err)
	}
	tk := toolkit.New(s, nil)
	reg := tools.AccessRegistry(tk)
	exec := tools.NewExecutor(reg, permission.NewDefaultPolicy(&cfg.Permissions), nil, nil)

	var g *gate.Gate
	if cfg.Gate.Enabled {
		if g, err = gate.New(reg); err != nil {
			t.Fatal(err)
		}
	}

	p := provider.NewScriptedProvider(turns...)
	ui := tui.NewBufferIO()
	a := New(p, exec, cfg, ui, Options{Gate: g, Store: s})
	return &testRig{agent: a, io: ui, provider: p, tk: tk}
}

func call(name string, input map[string]any) provider.ScriptCall {
	return provider.ScriptCall{Name: name, Input: input}
}

func turn(text string, calls ...provider.ScriptCall) provider.ScriptTurn {
	return provider.ScriptTurn{Text: text, ToolCalls: calls}
}

func (r *testRig) permissionCount(t *testing.T, userID string) int {
	t.Helper()
	perms, err := r.tk.GetUserPermissions(userID)
	if err != nil {
		t.Fatal(err)
	}
	return len(perms)
}

func toolNames(events []tui.ToolEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

func TestRunOnce_GrantIsVerifiedBeforeModelResumes(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{
		turn("", call("grant_access", map[string]any{"user_id": "user_001", "resource_id": "res_001", "access_level": "read"})),
		turn("Alice now has read access."),
	})

	if err := r.agent.RunOnce(context.Background(), "Give Alice read access to the engineering drive"); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	events := r.io.Tools()
	if got := strings.Join(toolNames(events), ","); got != "grant_access,get_user_permissions" {
		t.Fatalf("tool sequence = %s", got)
	}
	verify := events[1]
	if !strings.HasPrefix(verify.ID, "verify_") || verify.IsError {
		t.Errorf("verification event = %+v", verify)
	}
	if !strings.Contains(verify.Result, "perm_new_001") {
		t.Errorf("verification result = %s", verify.Result)
	}
	if r.permissionCount(t, "user_001") != 1 {
		t.Error("grant not applied")
	}

	// The second model turn sees the verification result last.
	reqs := r.provider.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d", len(reqs))
	}
	msgs := reqs[1].Messages
	last := msgs[len(msgs)-1]
	if last.Role != provider.RoleUser || last.Content[0].ToolUseID != verify.ID {
		t.Errorf("last message before resume = %+v", last)
	}
	injected := msgs[len(msgs)-2]
	if injected.Role != provider.RoleAssistant || injected.Content[0].ToolName != "get_user_permissions" {
		t.Errorf("injected call = %+v", injected)
	}
	if r.io.Output() != "Alice now has read access." {
		t.Errorf("output = %q", r.io.Output())
	}
}

func TestRunOnce_RevokeIsVerified(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{
		turn("", call("revoke_access", map[string]any{"user_id": "user_002", "resource_id": "res_002"})),
		turn("Revoked."),
	})
	if err := r.agent.RunOnce(context.Background(), "Remove Bob from Project Alpha"); err != nil {
		t.Fatal(err)
	}
	events := r.io.Tools()
	if len(events) != 2 || events[1].Name != "get_user_permissions" || events[1].Result != "[]" {
		t.Fatalf("events = %+v", events)
	}
	if r.permissionCount(t, "user_002") != 0 {
		t.Error("revoke not applied")
	}
}

func TestRunOnce_WritesInMultiCallTurnAreVerified(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{
		turn("",
			call("grant_access", map[string]any{"user_id": "user_001", "resource_id": "res_001", "access_level": "read"}),
			call("revoke_access", map[string]any{"user_id": "user_002", "resource_id": "res_002"}),
			call("get_user_info", map[string]any{"user_id": "user_001"}),
		),
		turn("Done."),
	})
	if err := r.agent.RunOnce(context.Background(), "Move Project Alpha access from Bob to Alice"); err != nil {
		t.Fatal(err)
	}

	events := r.io.Tools()
	want := "grant_access,revoke_access,get_user_info,get_user_permissions,get_user_permissions"
	if got := strings.Join(toolNames(events), ","); got != want {
		t.Fatalf("tool sequence = %s", got)
	}
	if !strings.Contains(events[3].Result, "user_001") || events[4].Result != "[]" {
		t.Errorf("verification events = %+v", events[3:])
	}

	// Both results answer one injected message before the model resumes.
	msgs := r.provider.Requests()[1].Messages
	last := msgs[len(msgs)-1]
	if len(last.Content) != 2 || last.Content[0].ToolUseID != events[3].ID || last.Content[1].ToolUseID != events[4].ID {
		t.Errorf("last message before resume = %+v", last)
	}
}

func TestRunOnce_FailedWriteIsNotVerified(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{
		turn("", call("grant_access", map[string]any{"user_id": "user_003", "resource_id": "res_001", "access_level": "read"})),
		turn("Charlie is terminated."),
	})
	if err := r.agent.RunOnce(context.Background(), "Grant Charlie access"); err != nil {
		t.Fatal(err)
	}
	events := r.io.Tools()
	if len(events) != 1 || !events[0].IsError || !strings.Contains(events[0].Result, "terminated") {
		t.Fatalf("events = %+v", events)
	}
}

func TestRunOnce_ReadsAreNotVerified(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{
		turn("", call("get_user_info", map[string]any{"user_id": "user_001"}),
			call("get_user_permissions", map[string]any{"user_id": "user_001"})),
		turn("Alice has no permissions."),
	})
	if err := r.agent.RunOnce(context.Background(), "What can Alice access?"); err != nil {
		t.Fatal(err)
	}
	if n := len(r.io.Tools()); n != 2 {
		t.Errorf("tool events = %d, want 2", n)
	}
}

func TestRunOnce_GateDisabled(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{
		turn("", call("grant_access", map[string]any{"user_id": "user_001", "resource_id": "res_001", "access_level": "read"})),
		turn("Done."),
	}, func(cfg *config.Config) { cfg.Gate.Enabled = false })

	if err := r.agent.RunOnce(context.Background(), "grant"); err != nil {
		t.Fatal(err)
	}
	if got := toolNames(r.io.Tools()); len(got) != 1 {
		t.Errorf("tools = %v, want only the grant", got)
	}
}

func TestRunOnce_DeclinedWriteStops(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{
		turn("", call("grant_access", map[string]any{"user_id": "user_001", "resource_id": "res_001", "access_level": "admin"})),
		turn("never reached"),
	}, func(cfg *config.Config) { cfg.Permissions.Mode = config.ModeInteractive })
	r.io.SetApprove(false)

	if err := r.agent.RunOnce(context.Background(), "make Alice admin"); err != nil {
		t.Fatal(err)
	}
	if got := r.io.Confirmations(); len(got) != 1 || got[0] != "grant_access" {
		t.Errorf("confirmations = %v", got)
	}
	if r.provider.Remaining() != 1 {
		t.Error("loop should stop after the declined call")
	}
	if r.permissionCount(t, "user_001") != 0 {
		t.Error("declined grant was applied")
	}
	events := r.io.Tools()
	if len(events) != 1 || events[0].Result != "Interrupted" {
		t.Errorf("events = %+v", events)
	}
}

func TestRunOnce_ReadOnlyModeBlocksWrites(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{
		turn("", call("revoke_access", map[string]any{"user_id": "user_002", "resource_id": "res_002"})),
		turn("I cannot change access in read-only mode."),
	}, func(cfg *config.Config) { cfg.Permissions.Mode = config.ModeReadOnly })

	if err := r.agent.RunOnce(context.Background(), "revoke"); err != nil {
		t.Fatal(err)
	}
	events := r.io.Tools()
	if len(events) != 1 || !strings.HasPrefix(events[0].Result, "Blocked:") {
		t.Errorf("events = %+v", events)
	}
	if r.permissionCount(t, "user_002") != 1 {
		t.Error("blocked revoke was applied")
	}
}

func TestRunOnce_MaxIterations(t *testing.T) {
	lookup := call("get_user_info", map[string]any{"user_id": "user_001"})
	r := newRig(t, []provider.ScriptTurn{turn("", lookup), turn("", lookup)},
		func(cfg *config.Config) { cfg.MaxIterations = 2 })

	if err := r.agent.RunOnce(context.Background(), "loop"); err != nil {
		t.Fatal(err)
	}
	msgs := r.agent.Session().Messages
	last := msgs[len(msgs)-1]
	if !last.Content[0].IsError || !strings.Contains(last.Content[0].ToolResult, "iteration limit") {
		t.Errorf("last message = %+v", last)
	}
	if !containsMessage(r.io.SystemMessages(), "max iterations") {
		t.Errorf("system messages = %v", r.io.SystemMessages())
	}
}

func TestRunOnce_RepeatedCallsStop(t *testing.T) {
	retry := call("grant_access", map[string]any{"user_id": "user_003", "resource_id": "res_001", "access_level": "read"})
	turns := make([]provider.ScriptTurn, repeatStopThreshold)
	for i := range turns {
		turns[i] = turn("", retry)
	}
	r := newRig(t, turns)

	if err := r.agent.RunOnce(context.Background(), "grant Charlie"); err != nil {
		t.Fatal(err)
	}
	// The last batch is answered without running.
	if n := len(r.io.Tools()); n != repeatStopThreshold-1 {
		t.Errorf("executed %d calls, want %d", n, repeatStopThreshold-1)
	}
	if !containsMessage(r.io.SystemMessages(), "repeating") || !containsMessage(r.io.SystemMessages(), "stopping") {
		t.Errorf("system messages = %v", r.io.SystemMessages())
	}
}

func TestRunOnce_ProviderExhausted(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{
		turn("", call("get_user_info", map[string]any{"user_id": "user_001"})),
	})
	err := r.agent.RunOnce(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "LLM call failed") {
		t.Errorf("err = %v", err)
	}
}

func TestRun_SlashCommands(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{turn("Hello.")})
	r.io = tui.NewBufferIO("/state user_002", "/help", "hello", "/history", "/cost", "/clear", "/quit", "never read")
	r.agent.io = r.io

	if err := r.agent.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	msgs := r.io.SystemMessages()
	if !strings.Contains(msgs[0], "perm_001") || !strings.Contains(msgs[0], "State hash:") {
		t.Errorf("/state output = %q", msgs[0])
	}
	if !strings.Contains(msgs[1], "/state") {
		t.Errorf("/help output = %q", msgs[1])
	}
	if !strings.Contains(msgs[2], "History (2 messages)") {
		t.Errorf("/history output = %q", msgs[2])
	}
	if msgs[len(msgs)-1] != "Bye." {
		t.Errorf("last message = %q", msgs[len(msgs)-1])
	}
	if len(r.agent.Session().Messages) != 0 {
		t.Error("/clear did not reset the session")
	}
}

func TestRun_CompactKeepsLastTurns(t *testing.T) {
	r := newRig(t, []provider.ScriptTurn{turn("Hello."), turn("Again.")})
	r.io = tui.NewBufferIO("hello", "again", "/compact 1", "/history", "/compact zero", "/quit")
	r.agent.io = r.io

	if err := r.agent.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	msgs := r.io.SystemMessages()
	if !containsMessage(msgs, "Compacted history: 4 -> 2 messages.") {
		t.Errorf("system messages = %q", msgs)
	}
	if !containsMessage(msgs, "History (2 messages)") {
		t.Errorf("/history after compact = %q", msgs)
	}
	hist := r.agent.Session().Messages
	if len(hist) != 2 || hist[0].Content[0].Text != "again" {
		t.Errorf("kept history = %+v", hist)
	}
	if errs := r.io.Errors(); len(errs) != 1 || !strings.Contains(errs[0], "Usage: /compact") {
		t.Errorf("errors = %v", errs)
	}
}

func TestRun_ErrorsAreReportedAndLoopContinues(t *testing.T) {
	r := newRig(t, nil)
	r.io = tui.NewBufferIO("first", "second")
	r.agent.io = r.io

	if err := r.agent.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(r.io.Errors()); n != 2 {
		t.Errorf("errors = %v", r.io.Errors())
	}
}

func TestFormatState(t *testing.T) {
	snap := store.SampleSnapshot()
	all := FormatState(snap, "")
	if !strings.Contains(all, "Permissions (1)") || !strings.Contains(all, snap.Hash()) {
		t.Errorf("all = %q", all)
	}
	if none := FormatState(snap, "user_001"); !strings.Contains(none, "Permissions (0)") {
		t.Errorf("filtered = %q", none)
	}
}

func containsMessage(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}
