package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aictl/itaccess/internal/accesserr"
	"github.com/aictl/itaccess/internal/store"
	"github.com/aictl/itaccess/internal/toolkit"
)

func newAccessRegistry(t *testing.T) *Registry {
	t.Helper()
	s, err := store.NewMemoryStore(store.SampleSnapshot(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return AccessRegistry(toolkit.New(s, nil))
}

func call(t *testing.T, r *Registry, name, input string) (ToolResult, error) {
	t.Helper()
	tool, ok := r.Get(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	return tool.Execute(context.Background(), json.RawMessage(input))
}

func TestAccessRegistry_Kinds(t *testing.T) {
	r := newAccessRegistry(t)
	want := map[string]Kind{
		NameGetUserInfo:        KindRead,
		NameGetUserPermissions: KindVerify,
		NameGrantAccess:        KindWrite,
		NameRevokeAccess:       KindWrite,
		NameTransferToHuman:    KindGeneric,
	}
	if len(r.All()) != len(want) {
		t.Fatalf("registry has %d tools, want %d", len(r.All()), len(want))
	}
	for name, kind := range want {
		got, ok := r.Kind(name)
		if !ok || got != kind {
			t.Errorf("Kind(%s) = %v, %v; want %v", name, got, ok, kind)
		}
	}
	if _, ok := r.Kind("bash"); ok {
		t.Error("unknown tool reported a kind")
	}
}

func TestAccessRegistry_Schemas(t *testing.T) {
	r := newAccessRegistry(t)
	schemas := r.Schemas()
	if schemas[0].Name != NameGetUserInfo {
		t.Errorf("schemas not sorted: first = %s", schemas[0].Name)
	}
	for _, s := range schemas {
		for _, req := range s.Required {
			if _, ok := s.Parameters[req]; !ok {
				t.Errorf("%s requires undeclared parameter %s", s.Name, req)
			}
		}
	}
}

func TestGrantAccessTool_LevelsFollowStore(t *testing.T) {
	tool, _ := newAccessRegistry(t).Get(NameGrantAccess)
	param := tool.Parameters()["access_level"].(map[string]any)
	enum := param["enum"].([]string)
	if len(enum) != len(store.AccessLevels) {
		t.Fatalf("enum = %v, store levels = %v", enum, store.AccessLevels)
	}
	for i, l := range store.AccessLevels {
		if enum[i] != string(l) {
			t.Errorf("enum[%d] = %s, want %s", i, enum[i], l)
		}
	}
}

func TestGrantAccessTool(t *testing.T) {
	r := newAccessRegistry(t)

	res, err := call(t, r, NameGrantAccess, `{"user_id":"user_001","resource_id":"res_001","access_level":"read"}`)
	if err != nil {
		t.Fatal(err)
	}
	var p store.Permission
	if err := json.Unmarshal([]byte(res.Content), &p); err != nil {
		t.Fatalf("result is not a permission: %v", err)
	}
	if p.PermissionID != "perm_new_001" || p.GrantedDate != "2024-05-15" {
		t.Errorf("permission = %+v", p)
	}

	_, err = call(t, r, NameGrantAccess, `{"user_id":"user_001","resource_id":"res_001","access_level":"superadmin"}`)
	if err == nil || err.Error() != "Invalid access level: superadmin" {
		t.Errorf("err = %v", err)
	}
}

func TestGetUserPermissionsTool_EmptyList(t *testing.T) {
	r := newAccessRegistry(t)
	res, err := call(t, r, NameGetUserPermissions, `{"user_id":"user_001"}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "[]" {
		t.Errorf("content = %q, want []", res.Content)
	}
}

func TestRevokeAccessTool(t *testing.T) {
	r := newAccessRegistry(t)
	res, err := call(t, r, NameRevokeAccess, `{"user_id":"user_002","resource_id":"res_002"}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "Access revoked: user_002 no longer has access to res_002" {
		t.Errorf("content = %q", res.Content)
	}
	_, err = call(t, r, NameRevokeAccess, `{"user_id":"user_002","resource_id":"res_002"}`)
	if err == nil || err.Error() != "No permission found for user user_002 on resource res_002" {
		t.Errorf("err = %v", err)
	}
}

func TestAccessTools_BadInput(t *testing.T) {
	r := newAccessRegistry(t)
	tests := []struct {
		tool, input string
	}{
		{NameGetUserInfo, `{}`},
		{NameGetUserInfo, `{"user_id": 7}`},
		{NameGetUserPermissions, `not json`},
		{NameGrantAccess, `{"user_id":"user_001"}`},
		{NameRevokeAccess, `{"resource_id":"res_001"}`},
	}
	for _, tt := range tests {
		_, err := call(t, r, tt.tool, tt.input)
		if !errors.Is(err, accesserr.ErrInvalidArgument) {
			t.Errorf("%s(%s): err = %v, want ErrInvalidArgument", tt.tool, tt.input, err)
		}
	}
	_, err := call(t, r, NameRevokeAccess, `{}`)
	if err == nil || err.Error() != "missing required argument: resource_id, user_id" {
		t.Errorf("err = %v", err)
	}
}

func TestTransferToHumanTool(t *testing.T) {
	r := newAccessRegistry(t)
	for _, input := range []string{`{"summary":"needs approval"}`, `garbage`, ``} {
		res, err := call(t, r, NameTransferToHuman, input)
		if err != nil || res.Content != "Transfer successful" {
			t.Errorf("input %q: %+v, %v", input, res, err)
		}
	}
}
