package assets

import (
	"errors"
	"math/big"
)

var (
	// ErrUnknownToken is returned when the token id has no recorded owner.
	ErrUnknownToken = errors.New("assets: unknown token")
	// ErrNotAuthorized is returned when the transfer caller neither owns the
	// token nor holds an operator approval from the owner.
	ErrNotAuthorized = errors.New("assets: caller not authorized")
	// ErrWrongOwner is returned when the declared source of a transfer does
	// not match the recorded owner.
	ErrWrongOwner = errors.New("assets: from is not the owner")
)

// Registry is the asset custody capability consumed by the settlement
// engines. Ownership and royalty metadata live with the collaborator; the
// engines only hold the escrow back-references needed to return assets.
type Registry interface {
	// OwnerOf reports the current owner of the token.
	OwnerOf(tokenID uint64) ([20]byte, error)
	// Transfer moves the token from one account to another on behalf of
	// caller. It fails when caller is neither the owner nor an approved
	// operator, leaving ownership unchanged.
	Transfer(caller, from, to [20]byte, tokenID uint64) error
	// SupportsRoyalty reports whether the registry exposes royalty metadata.
	// Registries without support settle with zero royalty.
	SupportsRoyalty() bool
	// RoyaltyInfo resolves the royalty receiver and amount for a sale of the
	// token at the given price.
	RoyaltyInfo(tokenID uint64, salePrice *big.Int) ([20]byte, *big.Int, error)
}

// Resolver maps an asset contract address to its registry. The auction
// engine settles assets from arbitrary contracts and resolves each through
// this view.
type Resolver interface {
	Registry(contract [20]byte) (Registry, bool)
}

// StaticResolver is a fixed contract-to-registry table.
type StaticResolver map[[20]byte]Registry

// Registry implements Resolver.
func (r StaticResolver) Registry(contract [20]byte) (Registry, bool) {
	reg, ok := r[contract]
	return reg, ok
}
