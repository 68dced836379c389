package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aictl/itaccess/internal/provider"
	"github.com/aictl/itaccess/internal/session"
)

const (
	historyTokenBudget = 100_000
	maxResponseTokens  = 4096
)

// runAgentLoop executes the core loop:
//  1. Send the history to the LLM and collect text and tool calls
//  2. With no tool calls, return and wait for the operator
//  3. Execute the calls and hand their results to the gate
//  4. Execute every verification the gate injects, then loop
func (a *Agent) runAgentLoop(ctx context.Context) error {
	maxIter := a.config.MaxIterations
	if maxIter <= 0 {
		maxIter = 25
	}

	for iteration := range maxIter {
		a.session.Messages = session.TrimHistory(a.session.Messages, historyTokenBudget)

		req := &provider.ChatRequest{
			Model:        a.config.Model,
			Messages:     a.session.Messages,
			Tools:        a.executor.Registry().Schemas(),
			SystemPrompt: a.systemPrompt,
			MaxTokens:    maxResponseTokens,
		}

		events, err := a.provider.Chat(ctx, req)
		if err != nil {
			return fmt.Errorf("LLM call failed: %w", err)
		}

		a.io.ThinkingStart()
		text, calls, err := a.collect(events)
		if err != nil {
			return err
		}
		a.io.TextDone(text)

		a.session.AddMessage(provider.ToolUseMessage(text, calls...))
		if len(calls) == 0 {
			return nil
		}

		// Every tool_use needs a tool_result, so a stopped batch is still
		// answered before returning to the operator.
		if iteration == maxIter-1 {
			a.io.SystemMessage(fmt.Sprintf("warning: reached max iterations (%d), stopping", maxIter))
			a.review(ctx, abortResults(calls, "Stopped: iteration limit reached"))
			return nil
		}
		switch a.guard.check(calls) {
		case guardStop:
			a.log.Warn("repeated tool calls, stopping", zap.String("tool", calls[0].Name))
			a.io.SystemMessage("warning: the same tool calls were repeated too often, stopping")
			a.review(ctx, abortResults(calls, "Stopped: identical call repeated"))
			return nil
		case guardWarn:
			a.io.SystemMessage("warning: the model is repeating the same tool calls")
		}

		results, cancelled := a.executeToolCalls(ctx, calls)
		a.review(ctx, provider.ToolResultMessage(results...))
		if cancelled {
			a.io.SystemMessage("Interrupted.")
			return nil
		}
	}
	return nil
}

// collect drains one model turn.
func (a *Agent) collect(events <-chan provider.Event) (string, []*provider.ToolCallRequest, error) {
	var text strings.Builder
	var calls []*provider.ToolCallRequest
	var streamErr error

	for event := range events {
		switch event.Type {
		case provider.EventTextDelta:
			a.io.TextDelta(event.TextDelta)
			text.WriteString(event.TextDelta)
		case provider.EventToolCallDone:
			calls = append(calls, event.ToolCall)
		case provider.EventDone:
			if event.Usage != nil {
				a.session.AddUsage(event.Usage)
				a.metrics.LLMTurn(event.Usage.InputTokens, event.Usage.OutputTokens)
				a.io.SetTokens(a.session.TokensUsed())
			}
		case provider.EventError:
			streamErr = event.Error
		}
	}
	if streamErr != nil {
		return "", nil, fmt.Errorf("stream error: %w", streamErr)
	}
	return text.String(), calls, nil
}

// executeToolCalls runs each call in order and returns the tool_result
// blocks. cancelled is set when the operator declined a call or the
// context ended; remaining calls are answered without running.
func (a *Agent) executeToolCalls(ctx context.Context, calls []*provider.ToolCallRequest) ([]provider.Content, bool) {
	results := make([]provider.Content, 0, len(calls))
	cancelled := false
	for _, call := range calls {
		if cancelled {
			results = append(results, errorResult(call.ID, "Interrupted"))
			continue
		}
		var res provider.Content
		res, cancelled = a.runCall(ctx, call)
		results = append(results, res)
	}
	return results, cancelled
}

func (a *Agent) runCall(ctx context.Context, call *provider.ToolCallRequest) (provider.Content, bool) {
	a.io.ToolStart(call.ID, call.Name, string(call.Input))
	r := a.executor.Execute(ctx, call.Name, call.Input)
	a.io.ToolDone(call.ID, call.Name, r.Content, r.IsError)
	return provider.Content{
		Type:       provider.ContentTypeToolResult,
		ToolUseID:  call.ID,
		ToolResult: r.Content,
		IsError:    r.IsError,
	}, r.UserCancelled
}

// review appends results to the session through the gate and runs every
// verification call it injects. The verification tool is a read, so the
// chain ends after one round of injected calls.
func (a *Agent) review(ctx context.Context, results provider.Message) {
	if a.gate == nil {
		a.session.AddMessage(results)
		return
	}
	d := a.gate.Review(a.session, results)
	for d.Intercepted() {
		verified := make([]provider.Content, len(d.Verify))
		for i, call := range d.Verify {
			verified[i], _ = a.runCall(ctx, call)
		}
		d = a.gate.Review(a.session, provider.ToolResultMessage(verified...))
	}
}

func abortResults(calls []*provider.ToolCallRequest, reason string) provider.Message {
	results := make([]provider.Content, len(calls))
	for i, c := range calls {
		results[i] = errorResult(c.ID, reason)
	}
	return provider.ToolResultMessage(results...)
}

func errorResult(id, msg string) provider.Content {
	return provider.Content{
		Type:       provider.ContentTypeToolResult,
		ToolUseID:  id,
		ToolResult: msg,
		IsError:    true,
	}
}
