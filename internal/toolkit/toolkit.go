// Package toolkit implements the IT access domain operations on top of a
// resource store: user lookup, permission listing, grant, revoke and
// escalation to a human agent.
package toolkit

import (
	"fmt"

	"github.com/aictl/itaccess/internal/accesserr"
	"github.com/aictl/itaccess/internal/store"
)

// DefaultGrantDate is stamped on new permissions unless another clock is set.
const DefaultGrantDate = "2024-05-15"

// Clock supplies the grant date for new permissions.
type Clock interface {
	Today() string
}

// FixedClock always returns the same date, keeping results reproducible.
type FixedClock string

func (c FixedClock) Today() string { return string(c) }

// Toolkit holds exactly one store and never copies its data.
type Toolkit struct {
	store store.Store
	clock Clock
}

// New creates a Toolkit over s. A nil clock means FixedClock(DefaultGrantDate).
func New(s store.Store, clock Clock) *Toolkit {
	if clock == nil {
		clock = FixedClock(DefaultGrantDate)
	}
	return &Toolkit{store: s, clock: clock}
}

// Store returns the underlying store.
func (t *Toolkit) Store() store.Store {
	return t.store
}

// GetUserInfo returns the user with the given id.
func (t *Toolkit) GetUserInfo(userID string) (store.User, error) {
	return t.store.User(userID)
}

// GetUserPermissions returns every permission the user holds. Unknown users
// simply have none.
func (t *Toolkit) GetUserPermissions(userID string) ([]store.Permission, error) {
	return t.store.ListPermissions(userID)
}

// GrantAccess creates a permission for (userID, resourceID). Checks run in a
// fixed order (existence, level, user status, duplicate) and the store is
// only touched once all of them pass.
func (t *Toolkit) GrantAccess(userID, resourceID string, level store.AccessLevel) (store.Permission, error) {
	user, err := t.store.User(userID)
	if err != nil {
		return store.Permission{}, err
	}
	if _, err := t.store.Resource(resourceID); err != nil {
		return store.Permission{}, err
	}
	if !level.Valid() {
		return store.Permission{}, accesserr.New(accesserr.ErrInvalidArgument, "Invalid access level: %s", level)
	}
	if user.Status != store.StatusActive {
		return store.Permission{}, accesserr.New(accesserr.ErrPolicyViolation, "Cannot grant access to %s user", user.Status)
	}

	p, err := t.store.InsertPermission(store.Permission{
		UserID:      userID,
		ResourceID:  resourceID,
		AccessLevel: level,
		GrantedDate: t.clock.Today(),
	})
	if err != nil {
		return store.Permission{}, err
	}
	return p, nil
}

// RevokeAccess deletes the permission for (userID, resourceID) and returns a
// confirmation sentence.
func (t *Toolkit) RevokeAccess(userID, resourceID string) (string, error) {
	if _, err := t.store.DeletePermission(userID, resourceID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Access revoked: %s no longer has access to %s", userID, resourceID), nil
}

// EscalateToHuman hands the conversation off to a human agent. It never
// fails and never touches the store.
func (t *Toolkit) EscalateToHuman(summary string) string {
	return "Transfer successful"
}
