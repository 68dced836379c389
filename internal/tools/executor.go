package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/aictl/itaccess/internal/accesserr"
	"github.com/aictl/itaccess/internal/metrics"
	"github.com/aictl/itaccess/internal/permission"
)

// outputLimit caps the bytes of a single result fed back to the model.
const outputLimit = 16 * 1024

// Confirmer asks the operator to approve a call. It is an interface so
// tools does not import the UI package.
type Confirmer interface {
	Confirm(name, params string, kind Kind) bool
}

// Executor runs tool calls with policy checks, timeouts, logging and
// metrics. Tool errors never escape: they become error results carrying
// the error message verbatim.
type Executor struct {
	registry       *Registry
	confirmer      Confirmer
	policy         permission.Policy
	log            *zap.Logger
	metrics        *metrics.Metrics
	defaultTimeout time.Duration
}

// NewExecutor creates a tool executor. log and m may be nil.
func NewExecutor(registry *Registry, policy permission.Policy, log *zap.Logger, m *metrics.Metrics) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		registry:       registry,
		policy:         policy,
		log:            log,
		metrics:        m,
		defaultTimeout: 30 * time.Second,
	}
}

// SetConfirmer injects the UI-layer confirmer.
func (e *Executor) SetConfirmer(c Confirmer) {
	e.confirmer = c
}

// Registry returns the underlying tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs a single tool call.
func (e *Executor) Execute(ctx context.Context, name string, params json.RawMessage) ToolResult {
	tool, ok := e.registry.Get(name)
	if !ok {
		e.log.Warn("unknown tool requested", zap.String("tool", name))
		return ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}
	}
	kind := tool.Kind()
	log := e.log.With(zap.String("tool", name), zap.Stringer("kind", kind))

	if errors.Is(ctx.Err(), context.Canceled) {
		return ToolResult{Content: "Interrupted", IsError: true, UserCancelled: true}
	}

	switch e.policy.Check(name, kind.Mutating(), params) {
	case permission.Deny:
		log.Info("tool call denied by policy")
		e.metrics.ToolCall(name, kind.String(), "denied", 0)
		// The model sees the reason and can adjust; the loop continues.
		return ToolResult{Content: fmt.Sprintf("Blocked: %s denied by policy", name), IsError: true}
	case permission.NeedConfirmation:
		if e.confirmer != nil && !e.confirmer.Confirm(name, string(params), kind) {
			log.Info("tool call declined by operator")
			e.metrics.ToolCall(name, kind.String(), "declined", 0)
			return ToolResult{Content: "Interrupted", IsError: true, UserCancelled: true}
		}
	case permission.Allow:
	}

	ctx, cancel := context.WithTimeout(ctx, e.defaultTimeout)
	defer cancel()

	start := time.Now()
	result, err := tool.Execute(ctx, params)
	elapsed := time.Since(start)

	if err != nil {
		outcome := accesserr.Label(err)
		e.metrics.ToolCall(name, kind.String(), outcome, elapsed)
		if outcome == "internal" {
			log.Error("tool failed", zap.Error(err))
		} else {
			log.Info("tool rejected call", zap.String("outcome", outcome), zap.Error(err))
		}
		return ToolResult{Content: err.Error(), IsError: true}
	}

	e.metrics.ToolCall(name, kind.String(), "ok", elapsed)
	log.Debug("tool succeeded", zap.Duration("elapsed", elapsed))

	if len(result.Content) > outputLimit {
		result.Content = truncateHeadTail(result.Content, outputLimit)
	}
	return result
}

// truncateHeadTail keeps the head (60%) and tail (40%) of a string,
// omitting the middle. Both cuts fall on rune boundaries.
func truncateHeadTail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	head := maxLen * 3 / 5
	for head > 0 && !utf8.RuneStart(s[head]) {
		head--
	}
	tailStart := len(s) - maxLen*2/5
	for tailStart < len(s) && !utf8.RuneStart(s[tailStart]) {
		tailStart++
	}
	omitted := tailStart - head
	return s[:head] + fmt.Sprintf("\n\n[...%d chars omitted...]\n\n", omitted) + s[tailStart:]
}
