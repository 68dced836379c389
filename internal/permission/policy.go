package permission

import (
	"encoding/json"

	"github.com/aictl/itaccess/internal/config"
)

// DefaultPolicy implements permission checks based on config.
type DefaultPolicy struct {
	Mode           string
	ProtectedUsers map[string]bool
}

// NewDefaultPolicy creates a policy from config.
func NewDefaultPolicy(cfg *config.PermissionConfig) *DefaultPolicy {
	protected := make(map[string]bool, len(cfg.ProtectedUsers))
	for _, id := range cfg.ProtectedUsers {
		protected[id] = true
	}
	mode := cfg.Mode
	if mode == "" {
		mode = config.ModeInteractive
	}
	return &DefaultPolicy{Mode: mode, ProtectedUsers: protected}
}

// Check determines whether a tool call is allowed. Reads always run.
// Writes against a protected user are denied in every mode.
func (p *DefaultPolicy) Check(toolName string, mutating bool, params json.RawMessage) Decision {
	if !mutating {
		return Allow
	}
	if p.targetsProtectedUser(params) {
		return Deny
	}
	switch p.Mode {
	case config.ModeAutoApprove:
		return Allow
	case config.ModeReadOnly:
		return Deny
	default:
		return NeedConfirmation
	}
}

func (p *DefaultPolicy) targetsProtectedUser(params json.RawMessage) bool {
	if len(p.ProtectedUsers) == 0 {
		return false
	}
	var args struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return false
	}
	return p.ProtectedUsers[args.UserID]
}
