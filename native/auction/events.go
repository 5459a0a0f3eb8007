package auction

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"nftsettle/core/types"
)

// Event type names are the wire contract consumed by external indexers and
// must not change.
const (
	EventTypeNewAuction       = "NewAuction"
	EventTypeAuctionCanceled  = "AuctionCanceled"
	EventTypeNewBid           = "NewBid"
	EventTypeAuctionFinalized = "AuctionFinalized"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewAuctionEvent returns the canonical payload for a created auction.
func NewAuctionEvent(index uint64, r *Record) *types.Event {
	return &types.Event{
		Type: EventTypeNewAuction,
		Attributes: map[string]string{
			"index":     strconv.FormatUint(index, 10),
			"creator":   hex.EncodeToString(r.Creator[:]),
			"asset":     hex.EncodeToString(r.AssetContract[:]),
			"tokenId":   strconv.FormatUint(r.TokenID, 10),
			"price":     amountString(r.BidAmount),
			"startTime": strconv.FormatInt(r.StartTime, 10),
			"duration":  strconv.FormatInt(r.Duration, 10),
			"currency":  hex.EncodeToString(r.Currency[:]),
		},
	}
}

// NewAuctionCanceledEvent returns the canonical payload for a canceled
// auction.
func NewAuctionCanceledEvent(index uint64, r *Record) *types.Event {
	return &types.Event{
		Type: EventTypeAuctionCanceled,
		Attributes: map[string]string{
			"asset":   hex.EncodeToString(r.AssetContract[:]),
			"tokenId": strconv.FormatUint(r.TokenID, 10),
			"index":   strconv.FormatUint(index, 10),
		},
	}
}

// NewBidEvent returns the canonical payload for an accepted bid.
func NewBidEvent(index uint64, r *Record, bidder [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeNewBid,
		Attributes: map[string]string{
			"asset":   hex.EncodeToString(r.AssetContract[:]),
			"tokenId": strconv.FormatUint(r.TokenID, 10),
			"index":   strconv.FormatUint(index, 10),
			"bidder":  hex.EncodeToString(bidder[:]),
			"amount":  amountString(amount),
		},
	}
}

// NewAuctionFinalizedEvent returns the canonical payload for a settled
// auction.
func NewAuctionFinalizedEvent(index uint64, r *Record, buyer [20]byte, price, fee, royalty *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAuctionFinalized,
		Attributes: map[string]string{
			"asset":    hex.EncodeToString(r.AssetContract[:]),
			"tokenId":  strconv.FormatUint(r.TokenID, 10),
			"buyer":    hex.EncodeToString(buyer[:]),
			"index":    strconv.FormatUint(index, 10),
			"currency": hex.EncodeToString(r.Currency[:]),
			"price":    amountString(price),
			"fee":      amountString(fee),
			"royalty":  amountString(royalty),
		},
	}
}
