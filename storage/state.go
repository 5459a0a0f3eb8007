package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"nftsettle/core/types"
	"nftsettle/native/auction"
	"nftsettle/native/market"
)

// Key layout. Auction keys are zero-padded so lexicographic iteration
// yields arena order.
const (
	keyListingPrefix  = "listing/"
	keyAuctionPrefix  = "auction/"
	keyCurrencyPrefix = "currency/"
	keyEventPrefix    = "event/"
	keyFees           = "meta/fees"
	keyRoles          = "meta/roles"
)

type listingRecord struct {
	Price    string `json:"price"`
	Currency string `json:"currency"`
	ForSale  bool   `json:"forSale"`
	Owner    string `json:"owner"`
}

type auctionRecord struct {
	Asset     string  `json:"asset"`
	TokenID   uint64  `json:"tokenId"`
	Currency  string  `json:"currency"`
	Creator   string  `json:"creator"`
	StartTime int64   `json:"startTime"`
	Duration  int64   `json:"duration"`
	BidAmount string  `json:"bidAmount"`
	Bidder    *string `json:"bidder,omitempty"`
	BidCount  uint32  `json:"bidCount"`
	Finalized bool    `json:"finalized"`
}

// FeeSnapshot persists the owner-mutable fee configuration across restarts.
type FeeSnapshot struct {
	CoinBps     uint32 `json:"coinBps"`
	TokenBps    uint32 `json:"tokenBps"`
	Destination string `json:"destination"`
}

// RoleSnapshot persists the current role holders across restarts.
type RoleSnapshot struct {
	Owner string `json:"owner"`
	Admin string `json:"admin"`
}

// StoredEvent is a journaled engine event with its backfill sequence.
type StoredEvent struct {
	Seq   uint64       `json:"seq"`
	Event *types.Event `json:"event"`
}

func encodeAddr(a [20]byte) string { return hex.EncodeToString(a[:]) }

func decodeAddr(s string) ([20]byte, error) {
	var out [20]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 20 {
		return out, fmt.Errorf("storage: address must be 20 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func decodeAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("storage: invalid amount %q", s)
	}
	return v, nil
}

// State is the write-through settlement state store. All reads are served
// from memory; every mutation is committed to the backing database before
// it is visible, so a daemon restart reloads the exact committed state.
//
// State implements the state interfaces consumed by the marketplace and
// auction engines.
type State struct {
	mu sync.RWMutex
	db Database

	listings   map[uint64]*market.Listing
	owners     map[uint64][20]byte
	currencies map[[20]byte]bool
	auctions   []*auction.Record
	nextEvent  uint64
}

// OpenState loads the committed settlement state from the database.
func OpenState(db Database) (*State, error) {
	s := &State{
		db:         db,
		listings:   make(map[uint64]*market.Listing),
		owners:     make(map[uint64][20]byte),
		currencies: make(map[[20]byte]bool),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) load() error {
	err := s.db.Iterate([]byte(keyListingPrefix), func(key, value []byte) error {
		tokenID, err := strconv.ParseUint(string(key[len(keyListingPrefix):]), 10, 64)
		if err != nil {
			return fmt.Errorf("storage: bad listing key %q: %w", key, err)
		}
		var rec listingRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		price, err := decodeAmount(rec.Price)
		if err != nil {
			return err
		}
		currency, err := decodeAddr(rec.Currency)
		if err != nil {
			return err
		}
		owner, err := decodeAddr(rec.Owner)
		if err != nil {
			return err
		}
		s.listings[tokenID] = &market.Listing{Price: price, Currency: currency, ForSale: rec.ForSale}
		s.owners[tokenID] = owner
		return nil
	})
	if err != nil {
		return err
	}
	err = s.db.Iterate([]byte(keyAuctionPrefix), func(key, value []byte) error {
		var rec auctionRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		record, err := rec.toRecord()
		if err != nil {
			return err
		}
		s.auctions = append(s.auctions, record)
		return nil
	})
	if err != nil {
		return err
	}
	err = s.db.Iterate([]byte(keyCurrencyPrefix), func(key, value []byte) error {
		currency, err := decodeAddr(string(key[len(keyCurrencyPrefix):]))
		if err != nil {
			return err
		}
		s.currencies[currency] = true
		return nil
	})
	if err != nil {
		return err
	}
	return s.db.Iterate([]byte(keyEventPrefix), func(key, value []byte) error {
		seq, err := strconv.ParseUint(string(key[len(keyEventPrefix):]), 10, 64)
		if err != nil {
			return fmt.Errorf("storage: bad event key %q: %w", key, err)
		}
		if seq >= s.nextEvent {
			s.nextEvent = seq + 1
		}
		return nil
	})
}

func (r auctionRecord) toRecord() (*auction.Record, error) {
	asset, err := decodeAddr(r.Asset)
	if err != nil {
		return nil, err
	}
	currency, err := decodeAddr(r.Currency)
	if err != nil {
		return nil, err
	}
	creator, err := decodeAddr(r.Creator)
	if err != nil {
		return nil, err
	}
	amount, err := decodeAmount(r.BidAmount)
	if err != nil {
		return nil, err
	}
	record := &auction.Record{
		AssetContract: asset,
		TokenID:       r.TokenID,
		Currency:      currency,
		Creator:       creator,
		StartTime:     r.StartTime,
		Duration:      r.Duration,
		BidAmount:     amount,
		BidCount:      r.BidCount,
		Finalized:     r.Finalized,
	}
	if r.Bidder != nil {
		bidder, err := decodeAddr(*r.Bidder)
		if err != nil {
			return nil, err
		}
		record.Bidder = &bidder
	}
	return record, nil
}

func fromRecord(record *auction.Record) auctionRecord {
	rec := auctionRecord{
		Asset:     encodeAddr(record.AssetContract),
		TokenID:   record.TokenID,
		Currency:  encodeAddr(record.Currency),
		Creator:   encodeAddr(record.Creator),
		StartTime: record.StartTime,
		Duration:  record.Duration,
		BidAmount: record.BidAmount.String(),
		BidCount:  record.BidCount,
		Finalized: record.Finalized,
	}
	if record.Bidder != nil {
		bidder := encodeAddr(*record.Bidder)
		rec.Bidder = &bidder
	}
	return rec
}

func listingKey(tokenID uint64) []byte {
	return []byte(fmt.Sprintf(keyListingPrefix+"%020d", tokenID))
}

func auctionKey(index uint64) []byte {
	return []byte(fmt.Sprintf(keyAuctionPrefix+"%020d", index))
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf(keyEventPrefix+"%020d", seq))
}

// ListingPut commits the listing and owner back-reference.
func (s *State) ListingPut(tokenID uint64, listing *market.Listing, owner [20]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := listingRecord{
		Price:    listing.Price.String(),
		Currency: encodeAddr(listing.Currency),
		ForSale:  listing.ForSale,
		Owner:    encodeAddr(owner),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.db.Put(listingKey(tokenID), raw); err != nil {
		return err
	}
	s.listings[tokenID] = listing.Clone()
	s.owners[tokenID] = owner
	return nil
}

// ListingGet returns the listing and recorded owner.
func (s *State) ListingGet(tokenID uint64) (*market.Listing, [20]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	listing, ok := s.listings[tokenID]
	if !ok {
		return nil, [20]byte{}, false
	}
	return listing.Clone(), s.owners[tokenID], true
}

// ListingClear removes the listing and owner back-reference.
func (s *State) ListingClear(tokenID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete(listingKey(tokenID)); err != nil {
		return err
	}
	delete(s.listings, tokenID)
	delete(s.owners, tokenID)
	return nil
}

// CurrencyAdd approves a settlement currency. Idempotent.
func (s *State) CurrencyAdd(currency [20]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put([]byte(keyCurrencyPrefix+encodeAddr(currency)), []byte{1}); err != nil {
		return err
	}
	s.currencies[currency] = true
	return nil
}

// CurrencyRemove revokes a settlement currency.
func (s *State) CurrencyRemove(currency [20]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete([]byte(keyCurrencyPrefix + encodeAddr(currency))); err != nil {
		return err
	}
	delete(s.currencies, currency)
	return nil
}

// CurrencyApproved reports whether the currency is approved.
func (s *State) CurrencyApproved(currency [20]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currencies[currency]
}

// AuctionAppend commits a new auction record and returns its stable index.
func (s *State) AuctionAppend(record *auction.Record) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := uint64(len(s.auctions))
	raw, err := json.Marshal(fromRecord(record))
	if err != nil {
		return 0, err
	}
	if err := s.db.Put(auctionKey(index), raw); err != nil {
		return 0, err
	}
	s.auctions = append(s.auctions, record.Clone())
	return index, nil
}

// AuctionGet returns a copy of the auction record.
func (s *State) AuctionGet(index uint64) (*auction.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index >= uint64(len(s.auctions)) {
		return nil, false
	}
	return s.auctions[index].Clone(), true
}

// AuctionPut commits a replacement for an existing record.
func (s *State) AuctionPut(index uint64, record *auction.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= uint64(len(s.auctions)) {
		return fmt.Errorf("storage: auction %d not found", index)
	}
	raw, err := json.Marshal(fromRecord(record))
	if err != nil {
		return err
	}
	if err := s.db.Put(auctionKey(index), raw); err != nil {
		return err
	}
	s.auctions[index] = record.Clone()
	return nil
}

// AuctionCount reports the number of auctions ever created.
func (s *State) AuctionCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.auctions))
}

// EventAppend journals an emitted event and returns its sequence number.
func (s *State) EventAppend(evt *types.Event) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextEvent
	raw, err := json.Marshal(StoredEvent{Seq: seq, Event: evt})
	if err != nil {
		return 0, err
	}
	if err := s.db.Put(eventKey(seq), raw); err != nil {
		return 0, err
	}
	s.nextEvent = seq + 1
	return seq, nil
}

// EventsSince returns journaled events with sequence >= from, for indexer
// backfill.
func (s *State) EventsSince(from uint64) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StoredEvent
	err := s.db.Iterate([]byte(keyEventPrefix), func(key, value []byte) error {
		var stored StoredEvent
		if err := json.Unmarshal(value, &stored); err != nil {
			return err
		}
		if stored.Seq >= from {
			out = append(out, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FeesPut commits the fee snapshot.
func (s *State) FeesPut(snapshot FeeSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(keyFees), raw)
}

// FeesGet returns the committed fee snapshot, if any.
func (s *State) FeesGet() (FeeSnapshot, bool, error) {
	ok, err := s.db.Has([]byte(keyFees))
	if err != nil || !ok {
		return FeeSnapshot{}, false, err
	}
	raw, err := s.db.Get([]byte(keyFees))
	if err != nil {
		return FeeSnapshot{}, false, err
	}
	var snapshot FeeSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return FeeSnapshot{}, false, err
	}
	return snapshot, true, nil
}

// RolesPut commits the role snapshot.
func (s *State) RolesPut(snapshot RoleSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(keyRoles), raw)
}

// RolesGet returns the committed role snapshot, if any.
func (s *State) RolesGet() (RoleSnapshot, bool, error) {
	ok, err := s.db.Has([]byte(keyRoles))
	if err != nil || !ok {
		return RoleSnapshot{}, false, err
	}
	raw, err := s.db.Get([]byte(keyRoles))
	if err != nil {
		return RoleSnapshot{}, false, err
	}
	var snapshot RoleSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return RoleSnapshot{}, false, err
	}
	return snapshot, true, nil
}
