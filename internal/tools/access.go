package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/aictl/itaccess/internal/accesserr"
	"github.com/aictl/itaccess/internal/store"
	"github.com/aictl/itaccess/internal/toolkit"
)

// Tool names as the model sees them.
const (
	NameGetUserInfo        = "get_user_info"
	NameGetUserPermissions = "get_user_permissions"
	NameGrantAccess        = "grant_access"
	NameRevokeAccess       = "revoke_access"
	NameTransferToHuman    = "transfer_to_human_agents"
)

// AccessRegistry returns a registry holding the five access tools, all
// bound to tk.
func AccessRegistry(tk *toolkit.Toolkit) *Registry {
	r := NewRegistry()
	r.Register(&GetUserInfoTool{tk: tk})
	r.Register(&GetUserPermissionsTool{tk: tk})
	r.Register(&GrantAccessTool{tk: tk})
	r.Register(&RevokeAccessTool{tk: tk})
	r.Register(&TransferToHumanTool{tk: tk})
	return r
}

var userIDParam = map[string]any{
	"type":        "string",
	"description": "The unique identifier of the user, such as 'user_001'.",
}

var resourceIDParam = map[string]any{
	"type":        "string",
	"description": "The resource identifier, such as 'res_001'.",
}

// decode unmarshals the call input into v.
func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return accesserr.New(accesserr.ErrInvalidArgument, "invalid params: %v", err)
	}
	return nil
}

// require reports every argument whose value is empty.
func require(args map[string]string) error {
	var missing []string
	for name, value := range args {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return accesserr.New(accesserr.ErrInvalidArgument, "missing required argument: %s", strings.Join(missing, ", "))
}

func jsonResult(v any) (ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Content: string(data)}, nil
}

// ---------- get_user_info ----------

type GetUserInfoTool struct{ tk *toolkit.Toolkit }

func (t *GetUserInfoTool) Name() string { return NameGetUserInfo }
func (t *GetUserInfoTool) Kind() Kind   { return KindRead }

func (t *GetUserInfoTool) Description() string {
	return "Get information about a user by their user ID: name, email, department, role and status."
}

func (t *GetUserInfoTool) Parameters() map[string]any {
	return map[string]any{"user_id": userIDParam}
}

func (t *GetUserInfoTool) Required() []string { return []string{"user_id"} }

func (t *GetUserInfoTool) Execute(_ context.Context, params json.RawMessage) (ToolResult, error) {
	var p struct {
		UserID string `json:"user_id"`
	}
	if err := decode(params, &p); err != nil {
		return ToolResult{}, err
	}
	if err := require(map[string]string{"user_id": p.UserID}); err != nil {
		return ToolResult{}, err
	}
	u, err := t.tk.GetUserInfo(p.UserID)
	if err != nil {
		return ToolResult{}, err
	}
	return jsonResult(u)
}

// ---------- get_user_permissions ----------

// GetUserPermissionsTool is also the verification read injected after
// every successful write.
type GetUserPermissionsTool struct{ tk *toolkit.Toolkit }

func (t *GetUserPermissionsTool) Name() string { return NameGetUserPermissions }
func (t *GetUserPermissionsTool) Kind() Kind   { return KindVerify }

func (t *GetUserPermissionsTool) Description() string {
	return "Get all permissions for a specific user, showing which resources they can access and at what level."
}

func (t *GetUserPermissionsTool) Parameters() map[string]any {
	return map[string]any{"user_id": userIDParam}
}

func (t *GetUserPermissionsTool) Required() []string { return []string{"user_id"} }

func (t *GetUserPermissionsTool) Execute(_ context.Context, params json.RawMessage) (ToolResult, error) {
	var p struct {
		UserID string `json:"user_id"`
	}
	if err := decode(params, &p); err != nil {
		return ToolResult{}, err
	}
	if err := require(map[string]string{"user_id": p.UserID}); err != nil {
		return ToolResult{}, err
	}
	perms, err := t.tk.GetUserPermissions(p.UserID)
	if err != nil {
		return ToolResult{}, err
	}
	if perms == nil {
		perms = []store.Permission{}
	}
	return jsonResult(perms)
}

// ---------- grant_access ----------

type GrantAccessTool struct{ tk *toolkit.Toolkit }

func (t *GrantAccessTool) Name() string { return NameGrantAccess }
func (t *GrantAccessTool) Kind() Kind   { return KindWrite }

func (t *GrantAccessTool) Description() string {
	return "Grant a user access to a resource. Only active users can be granted access, " +
		"and a user can hold at most one permission per resource. Returns the new permission."
}

func (t *GrantAccessTool) Parameters() map[string]any {
	levels := accessLevelNames()
	return map[string]any{
		"user_id":     userIDParam,
		"resource_id": resourceIDParam,
		"access_level": map[string]any{
			"type":        "string",
			"description": "Level of access: " + strings.Join(levels, ", ") + ".",
			"enum":        levels,
		},
	}
}

// accessLevelNames lists the levels the store accepts, in store order.
func accessLevelNames() []string {
	names := make([]string, len(store.AccessLevels))
	for i, l := range store.AccessLevels {
		names[i] = string(l)
	}
	return names
}

func (t *GrantAccessTool) Required() []string {
	return []string{"user_id", "resource_id", "access_level"}
}

func (t *GrantAccessTool) Execute(_ context.Context, params json.RawMessage) (ToolResult, error) {
	var p struct {
		UserID      string `json:"user_id"`
		ResourceID  string `json:"resource_id"`
		AccessLevel string `json:"access_level"`
	}
	if err := decode(params, &p); err != nil {
		return ToolResult{}, err
	}
	// access_level is validated by the toolkit so that an unknown user or
	// resource is reported first.
	if err := require(map[string]string{"user_id": p.UserID, "resource_id": p.ResourceID}); err != nil {
		return ToolResult{}, err
	}
	perm, err := t.tk.GrantAccess(p.UserID, p.ResourceID, store.AccessLevel(p.AccessLevel))
	if err != nil {
		return ToolResult{}, err
	}
	return jsonResult(perm)
}

// ---------- revoke_access ----------

type RevokeAccessTool struct{ tk *toolkit.Toolkit }

func (t *RevokeAccessTool) Name() string { return NameRevokeAccess }
func (t *RevokeAccessTool) Kind() Kind   { return KindWrite }

func (t *RevokeAccessTool) Description() string {
	return "Revoke a user's access to a resource. Returns a confirmation message."
}

func (t *RevokeAccessTool) Parameters() map[string]any {
	return map[string]any{
		"user_id":     userIDParam,
		"resource_id": resourceIDParam,
	}
}

func (t *RevokeAccessTool) Required() []string { return []string{"user_id", "resource_id"} }

func (t *RevokeAccessTool) Execute(_ context.Context, params json.RawMessage) (ToolResult, error) {
	var p struct {
		UserID     string `json:"user_id"`
		ResourceID string `json:"resource_id"`
	}
	if err := decode(params, &p); err != nil {
		return ToolResult{}, err
	}
	if err := require(map[string]string{"user_id": p.UserID, "resource_id": p.ResourceID}); err != nil {
		return ToolResult{}, err
	}
	msg, err := t.tk.RevokeAccess(p.UserID, p.ResourceID)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Content: msg}, nil
}

// ---------- transfer_to_human_agents ----------

type TransferToHumanTool struct{ tk *toolkit.Toolkit }

func (t *TransferToHumanTool) Name() string { return NameTransferToHuman }
func (t *TransferToHumanTool) Kind() Kind   { return KindGeneric }

func (t *TransferToHumanTool) Description() string {
	return "Transfer the conversation to a human agent. Use this when the request needs manager " +
		"approval, involves sensitive access, or is outside the scope of automated handling."
}

func (t *TransferToHumanTool) Parameters() map[string]any {
	return map[string]any{
		"summary": map[string]any{
			"type":        "string",
			"description": "Summary of the issue and why it needs human attention.",
		},
	}
}

func (t *TransferToHumanTool) Required() []string { return []string{"summary"} }

func (t *TransferToHumanTool) Execute(_ context.Context, params json.RawMessage) (ToolResult, error) {
	var p struct {
		Summary string `json:"summary"`
	}
	// Escalation never fails; a malformed summary is simply ignored.
	_ = decode(params, &p)
	return ToolResult{Content: t.tk.EscalateToHuman(p.Summary)}, nil
}
