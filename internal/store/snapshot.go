package store

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Snapshot is the full content of the three tables, keyed by identifier.
// It is both the initial population format and the dump format.
type Snapshot struct {
	Users       map[string]User       `json:"users" yaml:"users"`
	Resources   map[string]Resource   `json:"resources" yaml:"resources"`
	Permissions map[string]Permission `json:"permissions" yaml:"permissions"`
}

var validate = validator.New()

// LoadSnapshot reads a snapshot from a JSON or YAML file and validates it.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return snap, nil
}

// ParseSnapshot decodes a snapshot. JSON is accepted since it is valid YAML.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	snap.ensureMaps()
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Snapshot) ensureMaps() {
	if s.Users == nil {
		s.Users = make(map[string]User)
	}
	if s.Resources == nil {
		s.Resources = make(map[string]Resource)
	}
	if s.Permissions == nil {
		s.Permissions = make(map[string]Permission)
	}
}

// Validate checks field constraints on every row plus the referential and
// uniqueness invariants of the permission table.
func (s *Snapshot) Validate() error {
	var errs []error
	for key, u := range s.Users {
		if err := validate.Struct(u); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", key, err))
		}
		if u.UserID != key {
			errs = append(errs, fmt.Errorf("user key %s does not match user_id %s", key, u.UserID))
		}
	}
	for key, r := range s.Resources {
		if err := validate.Struct(r); err != nil {
			errs = append(errs, fmt.Errorf("resource %s: %w", key, err))
		}
		if r.ResourceID != key {
			errs = append(errs, fmt.Errorf("resource key %s does not match resource_id %s", key, r.ResourceID))
		}
	}
	pairs := make(map[[2]string]string, len(s.Permissions))
	for key, p := range s.Permissions {
		if err := validate.Struct(p); err != nil {
			errs = append(errs, fmt.Errorf("permission %s: %w", key, err))
		}
		if p.PermissionID != key {
			errs = append(errs, fmt.Errorf("permission key %s does not match permission_id %s", key, p.PermissionID))
		}
		if _, ok := s.Users[p.UserID]; !ok {
			errs = append(errs, fmt.Errorf("permission %s: unknown user %s", key, p.UserID))
		}
		if _, ok := s.Resources[p.ResourceID]; !ok {
			errs = append(errs, fmt.Errorf("permission %s: unknown resource %s", key, p.ResourceID))
		}
		pair := [2]string{p.UserID, p.ResourceID}
		if other, dup := pairs[pair]; dup {
			errs = append(errs, fmt.Errorf("permissions %s and %s both link %s to %s", other, key, p.UserID, p.ResourceID))
		}
		pairs[pair] = key
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Users:       make(map[string]User, len(s.Users)),
		Resources:   make(map[string]Resource, len(s.Resources)),
		Permissions: make(map[string]Permission, len(s.Permissions)),
	}
	for k, v := range s.Users {
		out.Users[k] = v
	}
	for k, v := range s.Resources {
		out.Resources[k] = v
	}
	for k, v := range s.Permissions {
		out.Permissions[k] = v
	}
	return out
}

// Hash returns a stable sha256 of the snapshot. encoding/json sorts map keys,
// so equal table contents always hash the same.
func (s *Snapshot) Hash() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// SampleSnapshot returns a small directory used by the CLI when no snapshot
// file is configured.
func SampleSnapshot() *Snapshot {
	return &Snapshot{
		Users: map[string]User{
			"user_001": {UserID: "user_001", Name: "Alice Johnson", Email: "alice.johnson@company.com", Department: "Engineering", Role: "Software Engineer", Status: StatusActive},
			"user_002": {UserID: "user_002", Name: "Bob Smith", Email: "bob.smith@company.com", Department: "Marketing", Role: "Marketing Manager", Status: StatusActive},
			"user_003": {UserID: "user_003", Name: "Charlie Brown", Email: "charlie.brown@company.com", Department: "Engineering", Role: "Former Contractor", Status: StatusTerminated},
		},
		Resources: map[string]Resource{
			"res_001": {ResourceID: "res_001", Name: "Engineering Shared Drive", Type: ResourceDrive, OwnerDepartment: "Engineering"},
			"res_002": {ResourceID: "res_002", Name: "Project Alpha Folder", Type: ResourceFolder, OwnerDepartment: "Engineering"},
		},
		Permissions: map[string]Permission{
			"perm_001": {PermissionID: "perm_001", UserID: "user_002", ResourceID: "res_002", AccessLevel: AccessRead, GrantedDate: "2024-01-15"},
		},
	}
}
