// Package tui holds the terminal-facing side of the agent: the IO
// contract the agent loop talks to, a plain line-oriented terminal
// implementation and an in-memory implementation for tests and scripted
// runs.
package tui

import "github.com/aictl/itaccess/internal/tools"

// IO is everything the agent loop needs from a user interface.
type IO interface {
	// ReadInput blocks for the next line of user input; io.EOF ends the session.
	ReadInput() (string, error)
	UserMessage(text string)

	ThinkingStart()
	TextDelta(delta string)
	TextDone(full string)

	ToolStart(id, name, params string)
	ToolDone(id, name, result string, isError bool)

	// Confirm asks the operator to approve a mutating call.
	Confirm(name, params string, kind tools.Kind) bool

	SystemMessage(text string)
	Error(msg string)
	SetTokens(n int)
}
