package fees

import (
	"encoding/hex"
	"strconv"

	"nftsettle/core/types"
)

const (
	// EventTypeCoinFeeChanged marks a change of the native-coin fee rate.
	EventTypeCoinFeeChanged = "CoinFeeChanged"
	// EventTypeTokenFeeChanged marks a change of the platform-token fee rate.
	EventTypeTokenFeeChanged = "TokenFeeChanged"
)

// NewCoinFeeChangedEvent returns the canonical payload for a native-coin fee
// rate change.
func NewCoinFeeChangedEvent(account [20]byte, newFee, oldFee uint32) *types.Event {
	return newFeeEvent(EventTypeCoinFeeChanged, account, newFee, oldFee)
}

// NewTokenFeeChangedEvent returns the canonical payload for a platform-token
// fee rate change.
func NewTokenFeeChangedEvent(account [20]byte, newFee, oldFee uint32) *types.Event {
	return newFeeEvent(EventTypeTokenFeeChanged, account, newFee, oldFee)
}

func newFeeEvent(eventType string, account [20]byte, newFee, oldFee uint32) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"account": hex.EncodeToString(account[:]),
			"newFee":  strconv.FormatUint(uint64(newFee), 10),
			"oldFee":  strconv.FormatUint(uint64(oldFee), 10),
		},
	}
}
