package assets

import (
	"math/big"
	"sync"
)

// TransferHook observes completed custody transfers. Hooks run after
// ownership has moved and before Transfer returns, which lets tests model
// receiver callbacks that attempt to re-enter an engine mid-settlement.
type TransferHook func(from, to [20]byte, tokenID uint64)

type royalty struct {
	receiver [20]byte
	bps      uint32
}

// MemoryRegistry is an in-process Registry with operator approvals, optional
// per-token royalty metadata and transfer hooks. It backs the daemon's local
// mode and the engine test suites.
type MemoryRegistry struct {
	mu        sync.RWMutex
	owners    map[uint64][20]byte
	operators map[[20]byte]map[[20]byte]bool
	royalties map[uint64]royalty
	hook      TransferHook
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		owners:    make(map[uint64][20]byte),
		operators: make(map[[20]byte]map[[20]byte]bool),
		royalties: make(map[uint64]royalty),
	}
}

// Mint records the initial owner of a token.
func (r *MemoryRegistry) Mint(owner [20]byte, tokenID uint64) {
	r.mu.Lock()
	r.owners[tokenID] = owner
	r.mu.Unlock()
}

// SetApproval grants or revokes operator rights over all of owner's tokens.
func (r *MemoryRegistry) SetApproval(owner, operator [20]byte, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := r.operators[owner]
	if ops == nil {
		ops = make(map[[20]byte]bool)
		r.operators[owner] = ops
	}
	ops[operator] = approved
}

// SetRoyalty configures royalty metadata for a token. Basis points are
// relative to the sale price.
func (r *MemoryRegistry) SetRoyalty(tokenID uint64, receiver [20]byte, bps uint32) {
	r.mu.Lock()
	r.royalties[tokenID] = royalty{receiver: receiver, bps: bps}
	r.mu.Unlock()
}

// SetTransferHook installs a hook invoked after each successful transfer.
func (r *MemoryRegistry) SetTransferHook(hook TransferHook) {
	r.mu.Lock()
	r.hook = hook
	r.mu.Unlock()
}

// OwnerOf implements Registry.
func (r *MemoryRegistry) OwnerOf(tokenID uint64) ([20]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return [20]byte{}, ErrUnknownToken
	}
	return owner, nil
}

// Transfer implements Registry.
func (r *MemoryRegistry) Transfer(caller, from, to [20]byte, tokenID uint64) error {
	r.mu.Lock()
	owner, ok := r.owners[tokenID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownToken
	}
	if owner != from {
		r.mu.Unlock()
		return ErrWrongOwner
	}
	if caller != owner && !r.operators[owner][caller] {
		r.mu.Unlock()
		return ErrNotAuthorized
	}
	r.owners[tokenID] = to
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(from, to, tokenID)
	}
	return nil
}

// SupportsRoyalty implements Registry. Support is reported as soon as any
// token carries royalty metadata.
func (r *MemoryRegistry) SupportsRoyalty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.royalties) > 0
}

// RoyaltyInfo implements Registry. Tokens without metadata settle with zero
// royalty.
func (r *MemoryRegistry) RoyaltyInfo(tokenID uint64, salePrice *big.Int) ([20]byte, *big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.royalties[tokenID]
	if !ok || salePrice == nil {
		return [20]byte{}, big.NewInt(0), nil
	}
	amount := new(big.Int).Mul(salePrice, new(big.Int).SetUint64(uint64(info.bps)))
	amount.Div(amount, big.NewInt(10_000))
	return info.receiver, amount, nil
}
