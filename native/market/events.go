package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"nftsettle/core/types"
)

// Event type names are the wire contract consumed by external indexers and
// must not change.
const (
	EventTypeTokenOnSale      = "TokenOnSale"
	EventTypeSalePriceChanged = "SalePriceChanged"
	EventTypeTokenNotOnSale   = "TokenNotOnSale"
	EventTypeTokenBought      = "TokenBought"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewTokenOnSaleEvent returns the canonical payload for a new listing.
func NewTokenOnSaleEvent(owner [20]byte, tokenID uint64, price *big.Int, currency [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeTokenOnSale,
		Attributes: map[string]string{
			"owner":    hex.EncodeToString(owner[:]),
			"tokenId":  strconv.FormatUint(tokenID, 10),
			"price":    amountString(price),
			"currency": hex.EncodeToString(currency[:]),
		},
	}
}

// NewSalePriceChangedEvent returns the canonical payload for a price update.
func NewSalePriceChangedEvent(tokenID uint64, price *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeSalePriceChanged,
		Attributes: map[string]string{
			"tokenId": strconv.FormatUint(tokenID, 10),
			"price":   amountString(price),
		},
	}
}

// NewTokenNotOnSaleEvent returns the canonical payload for an unlisted
// token.
func NewTokenNotOnSaleEvent(tokenID uint64) *types.Event {
	return &types.Event{
		Type: EventTypeTokenNotOnSale,
		Attributes: map[string]string{
			"tokenId": strconv.FormatUint(tokenID, 10),
		},
	}
}

// NewTokenBoughtEvent returns the canonical payload for a completed buy.
func NewTokenBoughtEvent(tokenID uint64, buyer [20]byte, currency [20]byte, price, fee, royalty *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTokenBought,
		Attributes: map[string]string{
			"tokenId":  strconv.FormatUint(tokenID, 10),
			"buyer":    hex.EncodeToString(buyer[:]),
			"currency": hex.EncodeToString(currency[:]),
			"price":    amountString(price),
			"fee":      amountString(fee),
			"royalty":  amountString(royalty),
		},
	}
}
