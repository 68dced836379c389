// Package permission decides whether a tool call may run, must be
// confirmed by the operator, or is refused outright.
package permission

import "encoding/json"

// Decision represents the outcome of a permission check.
type Decision int

const (
	Allow            Decision = iota // Automatically allowed
	Deny                             // Denied
	NeedConfirmation                 // Requires operator confirmation
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case NeedConfirmation:
		return "confirm"
	default:
		return "unknown"
	}
}

// Policy checks whether a tool call should be allowed. mutating reports
// whether the tool changes the access store.
type Policy interface {
	Check(toolName string, mutating bool, params json.RawMessage) Decision
}
