// Package tools defines the tool contract exposed to the model, the
// registry that holds the access tools, and the executor that runs a call
// through policy, confirmation, logging and metrics.
package tools

import (
	"context"
	"encoding/json"
)

// Kind classifies a tool for the verification gate and the permission
// policy. The set is closed: every tool declares exactly one kind.
type Kind int

const (
	// KindRead looks up state without changing it.
	KindRead Kind = iota
	// KindWrite mutates the access store and must be followed by a
	// verification read.
	KindWrite
	// KindVerify is the read used to confirm a write. It never triggers
	// another verification.
	KindVerify
	// KindGeneric covers tools outside the access model, e.g. escalation.
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindVerify:
		return "verify"
	case KindGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// Mutating reports whether calls of this kind change the store.
func (k Kind) Mutating() bool {
	return k == KindWrite
}

// ToolResult is what the model sees after a call.
type ToolResult struct {
	Content string
	IsError bool

	// UserCancelled is set when the operator declined or interrupted the
	// call; the agent loop stops instead of feeding the result back.
	UserCancelled bool
}

// Tool is one capability offered to the model.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema properties of the input object.
	Parameters() map[string]any
	Required() []string
	Kind() Kind
	Execute(ctx context.Context, params json.RawMessage) (ToolResult, error)
}
