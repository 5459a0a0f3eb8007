package access

import (
	"sync"

	"nftsettle/native/common"
)

// Controller holds the two privileged capabilities of the platform. The
// owner governs the economic surface (fee rates, fee destination, approved
// currencies). The protocol admin is a separate, narrower capability that
// governs cross-module rewiring and operational recovery. The two roles are
// independent: holding one grants nothing from the other.
type Controller struct {
	mu    sync.RWMutex
	owner [20]byte
	admin [20]byte
}

// NewController constructs a controller with the initial role holders.
func NewController(owner, admin [20]byte) *Controller {
	return &Controller{owner: owner, admin: admin}
}

// Owner reports the current owner.
func (c *Controller) Owner() [20]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

// Admin reports the current protocol admin.
func (c *Controller) Admin() [20]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admin
}

// RequireOwner fails with ErrUnauthorized unless caller is the owner.
func (c *Controller) RequireOwner(caller [20]byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if caller != c.owner {
		return common.ErrUnauthorized
	}
	return nil
}

// RequireAdmin fails with ErrUnauthorized unless caller is the protocol
// admin.
func (c *Controller) RequireAdmin(caller [20]byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if caller != c.admin {
		return common.ErrUnauthorized
	}
	return nil
}

// TransferOwnership hands the owner capability to a new account. Only the
// current owner may transfer it.
func (c *Controller) TransferOwnership(caller, next [20]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.owner {
		return common.ErrUnauthorized
	}
	c.owner = next
	return nil
}

// TransferAdmin hands the protocol admin capability to a new account. Only
// the current admin may transfer it.
func (c *Controller) TransferAdmin(caller, next [20]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.admin {
		return common.ErrUnauthorized
	}
	c.admin = next
	return nil
}
