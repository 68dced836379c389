// Package gate enforces read-after-write verification. After every tool
// result it inspects the latest batch of invocations in the session; for
// every user touched by a successful write in that batch it appends a
// synthesized get_user_permissions call, which the agent must execute
// before the model is consulted again.
package gate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aictl/itaccess/internal/metrics"
	"github.com/aictl/itaccess/internal/provider"
	"github.com/aictl/itaccess/internal/session"
	"github.com/aictl/itaccess/internal/tools"
)

// DefaultVerifyTool is the read injected after a write.
const DefaultVerifyTool = tools.NameGetUserPermissions

// State is the gate's position in the verification cycle.
type State int

const (
	// Idle: no verification outstanding.
	Idle State = iota
	// PendingResponse: a verification call was injected and its result has
	// not been reviewed yet.
	PendingResponse
)

func (s State) String() string {
	if s == PendingResponse {
		return "pending_response"
	}
	return "idle"
}

// Pass-through reasons, also used as metric labels.
const (
	ReasonErrorResult = "error_result"
	ReasonNoResult    = "no_result"
	ReasonNoCall      = "no_call"
	ReasonNotWrite    = "not_write"
	ReasonNoUserID    = "no_user_id"
)

// KindLookup resolves a tool name to its declared kind.
type KindLookup interface {
	Kind(name string) (tools.Kind, bool)
}

// Decision is the outcome of one review. An empty Verify means pass-through.
type Decision struct {
	// Verify holds one verification call per distinct user written to, in
	// the order the writes were issued.
	Verify []*provider.ToolCallRequest
	// Reason explains a pass-through; empty on interception.
	Reason string
}

// Intercepted reports whether verification calls were injected.
func (d Decision) Intercepted() bool {
	return len(d.Verify) > 0
}

// Gate is the verification state machine of one conversation.
type Gate struct {
	kinds      KindLookup
	verifyTool string
	log        *zap.Logger
	metrics    *metrics.Metrics
	newID      func() string
	state      State
}

type Option func(*Gate)

func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithVerifyTool overrides the verification tool name.
func WithVerifyTool(name string) Option {
	return func(g *Gate) { g.verifyTool = name }
}

// WithIDGenerator replaces the id source for synthesized calls.
func WithIDGenerator(f func() string) Option {
	return func(g *Gate) { g.newID = f }
}

// New creates a gate. The verification tool must be registered as
// tools.KindVerify so that a synthesized call can never trigger another.
func New(kinds KindLookup, opts ...Option) (*Gate, error) {
	g := &Gate{
		kinds:      kinds,
		verifyTool: DefaultVerifyTool,
		log:        zap.NewNop(),
		newID:      verifyID,
	}
	for _, opt := range opts {
		opt(g)
	}
	kind, ok := kinds.Kind(g.verifyTool)
	if !ok {
		return nil, fmt.Errorf("verification tool %q is not registered", g.verifyTool)
	}
	if kind != tools.KindVerify {
		return nil, fmt.Errorf("verification tool %q has kind %s, want %s", g.verifyTool, kind, tools.KindVerify)
	}
	return g, nil
}

func verifyID() string {
	return "verify_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// State returns the current state.
func (g *Gate) State() State {
	return g.state
}

// Review appends the tool-result message to sess and decides whether
// verification calls must follow. On interception the synthesized calls are
// appended to sess as one assistant message and returned; the caller
// executes them and passes their results back through Review.
//
// Review never fails: malformed history degrades to pass-through.
func (g *Gate) Review(sess *session.Session, results provider.Message) Decision {
	sess.AddMessage(results)

	batch := sess.LastToolCalls()
	d, writes := g.decide(batch, results)
	if !d.Intercepted() {
		g.state = Idle
		g.metrics.PassThrough(d.Reason)
		g.log.Debug("gate pass-through", zap.String("reason", d.Reason))
		return d
	}

	if g.state == PendingResponse {
		// New writes landed before the previous verification was
		// reviewed; they get their own verification.
		g.log.Info("verification superseded by newer writes", zap.Int("writes", len(writes)))
	}
	sess.AddMessage(provider.ToolUseMessage("", d.Verify...))
	g.state = PendingResponse
	for i, v := range d.Verify {
		g.metrics.VerificationInjected(writes[i].Name)
		g.log.Info("verification injected",
			zap.String("write_tool", writes[i].Name),
			zap.String("write_id", writes[i].ID),
			zap.String("verify_id", v.ID),
		)
	}
	return d
}

// decide pairs every call of the batch with its result. Each distinct user
// of a successful write gets one verification call; writes[i] is the first
// write that caused Verify[i]. Without any, the reason of the batch's last
// call explains the pass-through.
func (g *Gate) decide(batch []*provider.ToolCallRequest, results provider.Message) (Decision, []*provider.ToolCallRequest) {
	if len(batch) == 0 {
		return Decision{Reason: ReasonNoCall}, nil
	}

	var (
		d      Decision
		writes []*provider.ToolCallRequest
		seen   = map[string]bool{}
		reason string
	)
	for _, call := range batch {
		userID, why := g.verifiedUser(call, results, len(batch) == 1)
		if why != "" {
			reason = why
			continue
		}
		reason = ""
		if seen[userID] {
			continue
		}
		seen[userID] = true
		input, _ := json.Marshal(map[string]string{"user_id": userID})
		d.Verify = append(d.Verify, &provider.ToolCallRequest{
			ID:    g.newID(),
			Name:  g.verifyTool,
			Input: input,
		})
		writes = append(writes, call)
	}
	if !d.Intercepted() {
		d.Reason = reason
	}
	return d, writes
}

// verifiedUser returns the user a call must be verified for, or the
// pass-through reason when it needs none.
func (g *Gate) verifiedUser(call *provider.ToolCallRequest, results provider.Message, single bool) (string, string) {
	res, ok := resultFor(call.ID, results, single)
	if !ok {
		return "", ReasonNoResult
	}
	if res.IsError {
		return "", ReasonErrorResult
	}
	if kind, ok := g.kinds.Kind(call.Name); !ok || kind != tools.KindWrite {
		return "", ReasonNotWrite
	}
	userID, ok := call.Arguments()["user_id"].(string)
	if !ok || userID == "" {
		return "", ReasonNoUserID
	}
	return userID, ""
}

// resultFor finds the tool_result answering callID. For a single-call batch
// the last tool_result in the message stands in when no block carries that
// id; in a larger batch results are only paired by id.
func resultFor(callID string, msg provider.Message, fallback bool) (provider.Content, bool) {
	var last provider.Content
	found := false
	for _, c := range msg.Content {
		if c.Type != provider.ContentTypeToolResult {
			continue
		}
		if c.ToolUseID == callID {
			return c, true
		}
		last, found = c, true
	}
	return last, fallback && found
}
