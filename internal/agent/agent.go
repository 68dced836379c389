// Package agent runs the conversation loop between the operator, the model
// and the access tools, routing every tool result through the verification
// gate before the model is consulted again.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/aictl/itaccess/internal/config"
	"github.com/aictl/itaccess/internal/gate"
	"github.com/aictl/itaccess/internal/metrics"
	"github.com/aictl/itaccess/internal/provider"
	"github.com/aictl/itaccess/internal/session"
	"github.com/aictl/itaccess/internal/store"
	"github.com/aictl/itaccess/internal/tools"
	"github.com/aictl/itaccess/internal/tui"
)

// Options carries the optional collaborators of an Agent.
type Options struct {
	// Gate enforces verification after writes. Nil disables it.
	Gate *gate.Gate
	// Store backs the /state command.
	Store   store.Store
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Session resumes an existing conversation; nil starts a new one.
	Session *session.Session
}

// Agent orchestrates the interactive loop between operator, LLM and tools.
type Agent struct {
	provider     provider.Provider
	executor     *tools.Executor
	gate         *gate.Gate
	store        store.Store
	config       *config.Config
	session      *session.Session
	systemPrompt string
	io           tui.IO
	log          *zap.Logger
	metrics      *metrics.Metrics
	guard        loopGuard
}

// New creates an Agent. The IO doubles as the executor's confirmer.
func New(p provider.Provider, exec *tools.Executor, cfg *config.Config, ui tui.IO, opts Options) *Agent {
	base := cfg.SystemPrompt
	if base == "" {
		cwd, _ := os.Getwd()
		base = loadSystemPrompt(cwd)
	}
	sess := opts.Session
	if sess == nil {
		sess = session.New()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	exec.SetConfirmer(ui)

	return &Agent{
		provider:     p,
		executor:     exec,
		gate:         opts.Gate,
		store:        opts.Store,
		config:       cfg,
		session:      sess,
		systemPrompt: base,
		io:           ui,
		log:          log.With(zap.String("session", sess.ID)),
		metrics:      opts.Metrics,
	}
}

// Session returns the conversation state.
func (a *Agent) Session() *session.Session {
	return a.session
}

// Run starts the interactive REPL loop.
func (a *Agent) Run(ctx context.Context) error {
	for {
		input, err := a.io.ReadInput()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			handled, quit := a.handleSlashCommand(input)
			if quit {
				return nil
			}
			if handled {
				continue
			}
		}

		if err := a.RunOnce(ctx, input); err != nil {
			if ctx.Err() != nil {
				a.io.SystemMessage("\nInterrupted.")
				return ctx.Err()
			}
			a.io.Error(err.Error())
		}
	}
}

// RunOnce sends one operator message and runs the loop until the model
// answers without tool calls.
func (a *Agent) RunOnce(ctx context.Context, prompt string) error {
	a.io.UserMessage(prompt)
	a.session.AddMessage(provider.Message{
		Role:    provider.RoleUser,
		Content: []provider.Content{{Type: provider.ContentTypeText, Text: prompt}},
	})
	a.guard.reset()
	return a.runAgentLoop(ctx)
}

// handleSlashCommand processes built-in commands. Returns (handled, quit).
func (a *Agent) handleSlashCommand(input string) (bool, bool) {
	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		a.io.SystemMessage("Bye.")
		return true, true
	case "/clear":
		a.session.Clear()
		a.guard.reset()
		a.io.SystemMessage("Session cleared.")
		return true, false
	case "/history":
		a.io.SystemMessage(formatHistory(a.session.Messages))
		return true, false
	case "/compact":
		return a.handleCompact(arg), false
	case "/cost":
		a.io.SystemMessage(fmt.Sprintf("Tokens used: %d (in %d, out %d)",
			a.session.TokensUsed(), a.session.InputTokens, a.session.OutputTokens))
		return true, false
	case "/state":
		return a.handleState(arg), false
	case "/save":
		return a.handleSave(arg), false
	case "/config":
		return a.handleConfig(), false
	case "/help":
		return a.handleHelp(), false
	default:
		return false, false
	}
}

func (a *Agent) handleHelp() bool {
	a.io.SystemMessage(`Available commands:
  /help              Show this help message
  /state [user_id]   Show permissions (all, or of one user) and the state hash
  /history           Show message history
  /compact [turns]   Keep only the last turns of history (default 5)
  /save <path>       Write the conversation transcript as JSON
  /config            Show current configuration
  /cost              Show token usage
  /clear             Clear message history
  /quit              Exit`)
	return true
}

const defaultCompactTurns = 5

// handleCompact drops all but the last n turns from the history. The
// session's invocation cursor is left alone.
func (a *Agent) handleCompact(arg string) bool {
	n := defaultCompactTurns
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 1 {
			a.io.Error("Usage: /compact [turns], turns >= 1")
			return true
		}
		n = v
	}
	before := len(a.session.Messages)
	a.session.Messages = session.TruncateSession(a.session.Messages, n)
	a.io.SystemMessage(fmt.Sprintf("Compacted history: %d -> %d messages.", before, len(a.session.Messages)))
	return true
}

func (a *Agent) handleState(userID string) bool {
	if a.store == nil {
		a.io.Error("No store attached.")
		return true
	}
	snap, err := a.store.Snapshot()
	if err != nil {
		a.io.Error("Snapshot failed: " + err.Error())
		return true
	}
	a.io.SystemMessage(FormatState(snap, userID))
	return true
}

func (a *Agent) handleSave(path string) bool {
	if path == "" {
		a.io.SystemMessage("Usage: /save <path>")
		return true
	}
	if err := a.session.SaveTranscript(path); err != nil {
		a.io.Error("Save failed: " + err.Error())
		return true
	}
	a.io.SystemMessage(fmt.Sprintf("Transcript saved: %s (%d messages)", path, len(a.session.Messages)))
	return true
}

func (a *Agent) handleConfig() bool {
	model := a.config.Model
	if model == "" {
		model = a.provider.DefaultModel()
	}
	gateState := "disabled"
	if a.gate != nil {
		gateState = "enabled (" + a.gate.State().String() + ")"
	}
	a.io.SystemMessage(fmt.Sprintf(`Current configuration:
  Provider:       %s
  Model:          %s
  Max iterations: %d
  Permission:     %s
  Store backend:  %s
  Gate:           %s
  Session ID:     %s
  Messages:       %d
  Tokens used:    %d`,
		a.provider.Name(),
		model,
		a.config.MaxIterations,
		a.config.Permissions.Mode,
		a.config.Store.Backend,
		gateState,
		a.session.ID,
		len(a.session.Messages),
		a.session.TokensUsed(),
	))
	return true
}

// FormatState lists the permission table, optionally for one user,
// followed by the hash of the whole state.
func FormatState(snap *store.Snapshot, userID string) string {
	perms := make([]store.Permission, 0, len(snap.Permissions))
	for _, p := range snap.Permissions {
		if userID == "" || p.UserID == userID {
			perms = append(perms, p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].PermissionID < perms[j].PermissionID })

	var sb strings.Builder
	fmt.Fprintf(&sb, "Permissions (%d):\n", len(perms))
	for _, p := range perms {
		fmt.Fprintf(&sb, "  %-14s %-10s %-10s %-6s %s\n", p.PermissionID, p.UserID, p.ResourceID, p.AccessLevel, p.GrantedDate)
	}
	fmt.Fprintf(&sb, "State hash: %s", snap.Hash())
	return sb.String()
}

func formatHistory(messages []provider.Message) string {
	if len(messages) == 0 {
		return "No history."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n=== History (%d messages) ===\n", len(messages))
	for i, msg := range messages {
		fmt.Fprintf(&sb, "[%d] %s:\n", i, msg.Role)
		for _, c := range msg.Content {
			switch c.Type {
			case provider.ContentTypeText:
				fmt.Fprintf(&sb, "    text: %s\n", truncate(c.Text, 100))
			case provider.ContentTypeToolUse:
				fmt.Fprintf(&sb, "    tool_use %s: %s(%s)\n", c.ToolUseID, c.ToolName, truncate(string(c.ToolInput), 60))
			case provider.ContentTypeToolResult:
				status := "ok"
				if c.IsError {
					status = "err"
				}
				fmt.Fprintf(&sb, "    tool_result[%s] %s: %s\n", status, c.ToolUseID, truncate(c.ToolResult, 60))
			}
		}
	}
	sb.WriteString("===")
	return sb.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
