package store

import (
	"fmt"
	"sort"
)

// MemoryStore implements Store with plain maps keyed by identifier.
type MemoryStore struct {
	users       map[string]User
	resources   map[string]Resource
	permissions map[string]Permission
	ids         *IDPool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore populates a MemoryStore from snap. The snapshot is copied,
// so later changes to it do not leak into the store.
func NewMemoryStore(snap *Snapshot, ids *IDPool) (*MemoryStore, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	if ids == nil {
		ids = NewIDPool(nil)
	}
	cp := snap.Clone()
	return &MemoryStore{
		users:       cp.Users,
		resources:   cp.Resources,
		permissions: cp.Permissions,
		ids:         ids,
	}, nil
}

func (s *MemoryStore) User(id string) (User, error) {
	u, ok := s.users[id]
	if !ok {
		return User{}, userNotFound(id)
	}
	return u, nil
}

func (s *MemoryStore) Resource(id string) (Resource, error) {
	r, ok := s.resources[id]
	if !ok {
		return Resource{}, resourceNotFound(id)
	}
	return r, nil
}

func (s *MemoryStore) FindPermission(userID, resourceID string) (Permission, bool, error) {
	for _, p := range s.permissions {
		if p.UserID == userID && p.ResourceID == resourceID {
			return p, true, nil
		}
	}
	return Permission{}, false, nil
}

func (s *MemoryStore) ListPermissions(userID string) ([]Permission, error) {
	out := make([]Permission, 0)
	for _, p := range s.permissions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PermissionID < out[j].PermissionID
	})
	return out, nil
}

func (s *MemoryStore) InsertPermission(p Permission) (Permission, error) {
	if _, found, _ := s.FindPermission(p.UserID, p.ResourceID); found {
		return Permission{}, permissionConflict(p.UserID, p.ResourceID)
	}
	id, err := s.ids.Next(func(id string) (bool, error) {
		_, used := s.permissions[id]
		return used, nil
	})
	if err != nil {
		return Permission{}, err
	}
	p.PermissionID = id
	s.permissions[id] = p
	return p, nil
}

func (s *MemoryStore) DeletePermission(userID, resourceID string) (Permission, error) {
	p, found, _ := s.FindPermission(userID, resourceID)
	if !found {
		return Permission{}, permissionNotFound(userID, resourceID)
	}
	delete(s.permissions, p.PermissionID)
	return p, nil
}

func (s *MemoryStore) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{Users: s.users, Resources: s.resources, Permissions: s.permissions}
	return snap.Clone(), nil
}

func (s *MemoryStore) Close() error { return nil }
