package market

import "math/big"

// ModuleName identifies the marketplace for pause gating.
const ModuleName = "market"

// NativeCurrency is the currency sentinel for native-coin settlement.
var NativeCurrency = [20]byte{}

// Listing captures the sale terms of a token held in marketplace custody.
// A listing with ForSale set implies the engine escrow account currently
// owns the token.
type Listing struct {
	Price    *big.Int
	Currency [20]byte
	ForSale  bool
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}
