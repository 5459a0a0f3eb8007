package auction

import "math/big"

// ModuleName identifies the auction engine for pause gating.
const ModuleName = "auction"

// Status is the time-derived lifecycle position of an auction. It is a pure
// function of the record's start time and duration against a supplied
// timestamp; no status field is stored, so it cannot drift.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusFinished
)

// String renders the status for events and RPC responses.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Record is one auction in the append-only arena. Records are never
// removed; Finalized marks the terminal settled/canceled/recovered states
// orthogonally to the time-derived status.
//
// BidAmount starts at the creator's asking price and is monotonically
// non-decreasing once a real bid lands. A nil Bidder means no bid has been
// placed and the asset is escrowed only because it was deposited at
// creation.
type Record struct {
	AssetContract [20]byte
	TokenID       uint64
	Currency      [20]byte
	Creator       [20]byte
	StartTime     int64
	Duration      int64
	BidAmount     *big.Int
	Bidder        *[20]byte
	BidCount      uint32
	Finalized     bool
}

// StatusAt derives the auction status at the given timestamp.
func (r *Record) StatusAt(now int64) Status {
	if r == nil || now < r.StartTime {
		return StatusPending
	}
	if now < r.StartTime+r.Duration {
		return StatusActive
	}
	return StatusFinished
}

// Clone returns a deep copy of the record so callers can safely mutate the
// copy without affecting the stored instance.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.BidAmount != nil {
		clone.BidAmount = new(big.Int).Set(r.BidAmount)
	} else {
		clone.BidAmount = big.NewInt(0)
	}
	if r.Bidder != nil {
		bidder := *r.Bidder
		clone.Bidder = &bidder
	}
	return &clone
}
