// Package store holds the in-memory relational tables (users, resources,
// permissions) backing one access-management session.
//
// A Store is owned by exactly one conversation and is not safe for
// concurrent use; callers sharing one must serialize access.
package store

import (
	"fmt"

	"github.com/aictl/itaccess/internal/accesserr"
)

// Store abstracts the table set (plain maps or an in-memory SQLite database).
type Store interface {
	// User returns the user with the given id or an ErrNotFound error.
	User(id string) (User, error)

	// Resource returns the resource with the given id or an ErrNotFound error.
	Resource(id string) (Resource, error)

	// FindPermission looks up the permission for a (user, resource) pair.
	// A missing permission is reported with found=false, not an error.
	FindPermission(userID, resourceID string) (p Permission, found bool, err error)

	// ListPermissions returns the user's permissions ordered by id.
	ListPermissions(userID string) ([]Permission, error)

	// InsertPermission stores p under a freshly allocated id and returns the
	// stored record. It fails with ErrConflict when the pair already has a
	// permission and with ErrConfigurationExhausted when the id pool is empty.
	InsertPermission(p Permission) (Permission, error)

	// DeletePermission removes the permission for the pair and returns it.
	DeletePermission(userID, resourceID string) (Permission, error)

	// Snapshot returns a copy of every table.
	Snapshot() (*Snapshot, error)

	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Open builds a store of the named backend populated from snap.
func Open(backend string, snap *Snapshot, ids *IDPool) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(snap, ids)
	case BackendSQLite:
		return NewSQLiteStore(snap, ids)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// DefaultPermissionIDs is the fixed pool new permission ids are drawn from.
var DefaultPermissionIDs = []string{"perm_new_001", "perm_new_002", "perm_new_003"}

// IDPool allocates permission ids deterministically: the first id of the
// pool not currently in use wins.
type IDPool struct {
	ids []string
}

// NewIDPool creates a pool over ids. An empty list falls back to
// DefaultPermissionIDs.
func NewIDPool(ids []string) *IDPool {
	if len(ids) == 0 {
		ids = DefaultPermissionIDs
	}
	cp := make([]string, len(ids))
	copy(cp, ids)
	return &IDPool{ids: cp}
}

// Next returns the first id for which inUse reports false.
func (p *IDPool) Next(inUse func(id string) (bool, error)) (string, error) {
	for _, id := range p.ids {
		used, err := inUse(id)
		if err != nil {
			return "", fmt.Errorf("check permission id %s: %w", id, err)
		}
		if !used {
			return id, nil
		}
	}
	return "", accesserr.New(accesserr.ErrConfigurationExhausted, "Too many permissions created")
}

func userNotFound(id string) error {
	return accesserr.New(accesserr.ErrNotFound, "User %s not found", id)
}

func resourceNotFound(id string) error {
	return accesserr.New(accesserr.ErrNotFound, "Resource %s not found", id)
}

func permissionNotFound(userID, resourceID string) error {
	return accesserr.New(accesserr.ErrNotFound, "No permission found for user %s on resource %s", userID, resourceID)
}

func permissionConflict(userID, resourceID string) error {
	return accesserr.New(accesserr.ErrConflict, "User %s already has access to %s", userID, resourceID)
}
