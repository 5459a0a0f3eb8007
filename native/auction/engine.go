package auction

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"nftsettle/core/events"
	"nftsettle/core/types"
	"nftsettle/native/access"
	"nftsettle/native/assets"
	"nftsettle/native/common"
	"nftsettle/native/fees"
	"nftsettle/native/ledger"
)

var (
	errNilState    = errors.New("auction engine: state not configured")
	errNilResolver = errors.New("auction engine: asset resolver not configured")
	errNilLedger   = errors.New("auction engine: ledger not configured")
	errNilFees     = errors.New("auction engine: fee provider not configured")

	// ErrNotFound rejects operations on unknown auction indexes.
	ErrNotFound = errors.New("auction not found")
	// ErrUnknownAsset rejects auctions on contracts the resolver cannot map
	// to a registry.
	ErrUnknownAsset = errors.New("unknown asset contract")
	// ErrNotActive rejects bids outside the active window or on finalized
	// auctions.
	ErrNotActive = errors.New("auction not active")
	// ErrDoesNotOutbid rejects bids that do not beat the current amount.
	ErrDoesNotOutbid = errors.New("bid does not outbid current amount")
	// ErrHasBid rejects cancellation once a bid has landed.
	ErrHasBid = errors.New("auction already has a bid")
	// ErrNotFinished rejects finalization and winner queries before the
	// auction end.
	ErrNotFinished = errors.New("auction not finished")
	// ErrNoBid rejects finalization of auctions nobody bid on.
	ErrNoBid = errors.New("auction has no bid")
	// ErrAlreadyFinalized guards the terminal flag.
	ErrAlreadyFinalized = errors.New("auction already finalized")
	// ErrInvalidDuration rejects non-positive auction durations.
	ErrInvalidDuration = errors.New("invalid auction duration")
)

type engineState interface {
	AuctionAppend(*Record) (uint64, error)
	AuctionGet(index uint64) (*Record, bool)
	AuctionPut(index uint64, record *Record) error
	AuctionCount() uint64
	CurrencyApproved(currency [20]byte) bool
}

// Engine runs English auctions over assets from arbitrary contracts. The
// auction ledger is an append-only arena: records are indexed by a stable,
// monotonically increasing handle and never removed. Fee rates are read
// from the marketplace's policy through the fees.Provider view.
type Engine struct {
	state         engineState
	resolver      assets.Resolver
	ledger        ledger.Ledger
	feeView       fees.Provider
	roles         *access.Controller
	pauses        common.PauseView
	emitter       events.Emitter
	guard         common.CallGuard
	escrow        [20]byte
	platformToken [20]byte
	nowFn         func() int64
}

// NewEngine creates an auction engine escrowing assets under the given
// account. Collaborators are wired via the Set methods.
func NewEngine(escrow [20]byte) *Engine {
	return &Engine{
		escrow:  escrow,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetResolver configures the asset contract resolver.
func (e *Engine) SetResolver(resolver assets.Resolver) { e.resolver = resolver }

// SetLedger configures the value transfer backend.
func (e *Engine) SetLedger(l ledger.Ledger) { e.ledger = l }

// SetFeeProvider configures the fee rate view consulted at finalization.
func (e *Engine) SetFeeProvider(view fees.Provider) { e.feeView = view }

// SetRoles configures the access controller gating recovery.
func (e *Engine) SetRoles(roles *access.Controller) { e.roles = roles }

// SetPauses configures the module pause view.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetPlatformToken records the designated platform token for fee rate
// selection.
func (e *Engine) SetPlatformToken(token [20]byte) { e.platformToken = token }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by mutating operations.
// Primarily intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	switch {
	case e == nil, e.state == nil:
		return errNilState
	case e.resolver == nil:
		return errNilResolver
	case e.ledger == nil:
		return errNilLedger
	case e.feeView == nil:
		return errNilFees
	}
	return nil
}

func (e *Engine) registryFor(contract [20]byte) (assets.Registry, error) {
	registry, ok := e.resolver.Registry(contract)
	if !ok || registry == nil {
		return nil, ErrUnknownAsset
	}
	return registry, nil
}

func (e *Engine) loadRecord(index uint64) (*Record, error) {
	record, ok := e.state.AuctionGet(index)
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// Create escrows the asset and appends a new auction record. A zero start
// time means the auction starts immediately. Returns the new stable index.
func (e *Engine) Create(caller [20]byte, assetContract [20]byte, tokenID uint64, startPrice *big.Int, startTime, duration int64, currency [20]byte) (uint64, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return 0, err
	}
	defer release()
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return 0, err
	}
	if e.ledger.IsContract(caller) {
		return 0, common.ErrOnlyDirectCallers
	}
	if startPrice == nil || startPrice.Sign() <= 0 {
		return 0, common.ErrInvalidPrice
	}
	if duration <= 0 {
		return 0, ErrInvalidDuration
	}
	if !e.state.CurrencyApproved(currency) {
		return 0, common.ErrUnapprovedCurrency
	}
	if startTime == 0 {
		startTime = e.now()
	}
	registry, err := e.registryFor(assetContract)
	if err != nil {
		return 0, err
	}
	if err := registry.Transfer(caller, caller, e.escrow, tokenID); err != nil {
		return 0, fmt.Errorf("%w: %s", common.ErrTransferDenied, err)
	}
	record := &Record{
		AssetContract: assetContract,
		TokenID:       tokenID,
		Currency:      currency,
		Creator:       caller,
		StartTime:     startTime,
		Duration:      duration,
		BidAmount:     new(big.Int).Set(startPrice),
	}
	index, err := e.state.AuctionAppend(record)
	if err != nil {
		// Return the asset rather than strand it in escrow.
		_ = registry.Transfer(e.escrow, e.escrow, caller, tokenID)
		return 0, err
	}
	e.emit(NewAuctionEvent(index, record))
	return index, nil
}

// Cancel terminates an auction nobody has bid on and returns the asset to
// its creator.
func (e *Engine) Cancel(caller [20]byte, index uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	record, err := e.loadRecord(index)
	if err != nil {
		return err
	}
	if record.Finalized {
		return ErrAlreadyFinalized
	}
	if caller != record.Creator {
		return common.ErrUnauthorized
	}
	if record.Bidder != nil {
		return ErrHasBid
	}
	registry, err := e.registryFor(record.AssetContract)
	if err != nil {
		return err
	}
	record.Finalized = true
	if err := e.state.AuctionPut(index, record); err != nil {
		return err
	}
	if err := registry.Transfer(e.escrow, e.escrow, record.Creator, record.TokenID); err != nil {
		record.Finalized = false
		_ = e.state.AuctionPut(index, record)
		return fmt.Errorf("%w: %s", common.ErrTransferDenied, err)
	}
	e.emit(NewAuctionCanceledEvent(index, record))
	return nil
}

// Bid replaces the current bid. The first bid must meet the asking price;
// every later bid must strictly exceed the standing one. Incoming funds are
// secured in escrow before the previous bidder's refund leaves it, so a
// partial failure can never leave the escrow insolvent.
//
// payment is the attached native amount; it must equal the bid exactly for
// native auctions and is ignored for token auctions, where the bid is
// pulled via the bidder's allowance instead.
func (e *Engine) Bid(caller [20]byte, index uint64, amount, payment *big.Int) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	record, err := e.loadRecord(index)
	if err != nil {
		return err
	}
	if record.Finalized {
		return ErrNotActive
	}
	if record.StatusAt(e.now()) != StatusActive {
		return ErrNotActive
	}
	if e.ledger.IsContract(caller) {
		return common.ErrOnlyDirectCallers
	}
	if amount == nil || amount.Sign() <= 0 {
		return common.ErrInvalidPrice
	}
	cmp := amount.Cmp(record.BidAmount)
	if record.Bidder == nil {
		if cmp < 0 {
			return ErrDoesNotOutbid
		}
	} else if cmp <= 0 {
		return ErrDoesNotOutbid
	}

	var unwind []func()
	fail := func(err error) error {
		for i := len(unwind) - 1; i >= 0; i-- {
			unwind[i]()
		}
		return err
	}

	// Secure the incoming bid first.
	if record.Currency == ([20]byte{}) {
		if payment == nil || payment.Cmp(amount) != 0 {
			return common.ErrInsufficientPayment
		}
		if err := e.ledger.Send(caller, e.escrow, amount); err != nil {
			return fail(fmt.Errorf("%w: %s", common.ErrInsufficientPayment, err))
		}
	} else {
		if err := e.ledger.TransferFrom(record.Currency, e.escrow, caller, e.escrow, amount); err != nil {
			return fail(fmt.Errorf("%w: %s", common.ErrInsufficientPayment, err))
		}
	}
	unwind = append(unwind, func() { _ = e.payOut(record.Currency, caller, amount) })

	// Then release the refund.
	if record.Bidder != nil {
		previous := *record.Bidder
		refund := new(big.Int).Set(record.BidAmount)
		if err := e.payOut(record.Currency, previous, refund); err != nil {
			return fail(fmt.Errorf("%w: refund: %s", common.ErrTransferDenied, err))
		}
		unwind = append(unwind, func() { _ = e.payBack(record.Currency, previous, refund) })
	}

	bidder := caller
	record.BidAmount = new(big.Int).Set(amount)
	record.Bidder = &bidder
	record.BidCount++
	if err := e.state.AuctionPut(index, record); err != nil {
		return fail(err)
	}
	e.emit(NewBidEvent(index, record, caller, amount))
	return nil
}

// Finalize settles a finished auction: fee and royalty are split out of the
// winning bid, the creator receives the remainder, and the asset moves to
// the winner. The terminal flag is committed before any external transfer
// executes.
func (e *Engine) Finalize(index uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	record, err := e.loadRecord(index)
	if err != nil {
		return err
	}
	if record.Finalized {
		return ErrAlreadyFinalized
	}
	if record.StatusAt(e.now()) != StatusFinished {
		return ErrNotFinished
	}
	if record.Bidder == nil {
		return ErrNoBid
	}
	registry, err := e.registryFor(record.AssetContract)
	if err != nil {
		return err
	}
	winner := *record.Bidder
	price := new(big.Int).Set(record.BidAmount)

	feeAmount := fees.Compute(price, e.feeRate(record.Currency))
	royaltyReceiver, royaltyAmount, err := royaltyFor(registry, record.TokenID, price)
	if err != nil {
		return err
	}
	// Same tie-break as the marketplace: a royalty equal to the full price
	// is reduced by the platform fee; one merely close to it is not, and
	// the creator remainder is silently skipped when fee+royalty exceeds
	// the price.
	if royaltyAmount.Cmp(price) == 0 {
		royaltyAmount = new(big.Int).Sub(royaltyAmount, feeAmount)
	}

	var unwind []func()
	fail := func(err error) error {
		for i := len(unwind) - 1; i >= 0; i-- {
			unwind[i]()
		}
		return err
	}

	// Terminal flag before effects.
	record.Finalized = true
	if err := e.state.AuctionPut(index, record); err != nil {
		return err
	}
	unwind = append(unwind, func() {
		record.Finalized = false
		_ = e.state.AuctionPut(index, record)
	})

	paidRoyalty := big.NewInt(0)
	if royaltyReceiver != record.Creator && royaltyAmount.Sign() > 0 {
		if err := e.payOut(record.Currency, royaltyReceiver, royaltyAmount); err != nil {
			return fail(fmt.Errorf("%w: royalty: %s", common.ErrTransferDenied, err))
		}
		amt := new(big.Int).Set(royaltyAmount)
		receiver := royaltyReceiver
		unwind = append(unwind, func() { _ = e.payBack(record.Currency, receiver, amt) })
		paidRoyalty = amt
	}
	paidFee := big.NewInt(0)
	if feeAmount.Sign() > 0 {
		destination := e.feeView.FeeDestination()
		if err := e.payOut(record.Currency, destination, feeAmount); err != nil {
			return fail(fmt.Errorf("%w: fee: %s", common.ErrTransferDenied, err))
		}
		amt := new(big.Int).Set(feeAmount)
		unwind = append(unwind, func() { _ = e.payBack(record.Currency, destination, amt) })
		paidFee = amt
	}
	remainder := new(big.Int).Sub(price, paidFee)
	remainder.Sub(remainder, paidRoyalty)
	if remainder.Sign() > 0 {
		if err := e.payOut(record.Currency, record.Creator, remainder); err != nil {
			return fail(fmt.Errorf("%w: creator payout: %s", common.ErrTransferDenied, err))
		}
		amt := new(big.Int).Set(remainder)
		unwind = append(unwind, func() { _ = e.payBack(record.Currency, record.Creator, amt) })
	}

	if err := registry.Transfer(e.escrow, e.escrow, winner, record.TokenID); err != nil {
		return fail(fmt.Errorf("%w: %s", common.ErrTransferDenied, err))
	}

	e.emit(NewAuctionFinalizedEvent(index, record, winner, price, paidFee, paidRoyalty))
	return nil
}

// RecoverAsset is the administrative escape hatch: it terminates a
// non-finalized auction, refunds any standing bid and returns the asset to
// the creator. Protocol-admin-gated; not part of the normal flow.
func (e *Engine) RecoverAsset(caller [20]byte, index uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := e.ready(); err != nil {
		return err
	}
	if e.roles == nil {
		return common.ErrUnauthorized
	}
	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	record, err := e.loadRecord(index)
	if err != nil {
		return err
	}
	if record.Finalized {
		return ErrAlreadyFinalized
	}
	registry, err := e.registryFor(record.AssetContract)
	if err != nil {
		return err
	}

	var unwind []func()
	fail := func(err error) error {
		for i := len(unwind) - 1; i >= 0; i-- {
			unwind[i]()
		}
		return err
	}

	record.Finalized = true
	if err := e.state.AuctionPut(index, record); err != nil {
		return err
	}
	unwind = append(unwind, func() {
		record.Finalized = false
		_ = e.state.AuctionPut(index, record)
	})

	if record.Bidder != nil {
		bidder := *record.Bidder
		refund := new(big.Int).Set(record.BidAmount)
		if err := e.payOut(record.Currency, bidder, refund); err != nil {
			return fail(fmt.Errorf("%w: refund: %s", common.ErrTransferDenied, err))
		}
		unwind = append(unwind, func() { _ = e.payBack(record.Currency, bidder, refund) })
	}
	if err := registry.Transfer(e.escrow, e.escrow, record.Creator, record.TokenID); err != nil {
		return fail(fmt.Errorf("%w: %s", common.ErrTransferDenied, err))
	}
	e.emit(NewAuctionCanceledEvent(index, record))
	return nil
}

// RewireResolver swaps the asset resolver. Protocol-admin-gated: this is
// the cross-engine address rewiring path, distinct from owner operations.
func (e *Engine) RewireResolver(caller [20]byte, resolver assets.Resolver) error {
	if e == nil || e.roles == nil {
		return common.ErrUnauthorized
	}
	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if resolver == nil {
		return errNilResolver
	}
	e.resolver = resolver
	return nil
}

// RewireFees swaps the fee provider the engine settles against.
// Protocol-admin-gated.
func (e *Engine) RewireFees(caller [20]byte, view fees.Provider) error {
	if e == nil || e.roles == nil {
		return common.ErrUnauthorized
	}
	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if view == nil {
		return errNilFees
	}
	e.feeView = view
	return nil
}

func (e *Engine) feeRate(currency [20]byte) uint32 {
	if e.platformToken != ([20]byte{}) && currency == e.platformToken {
		return e.feeView.PlatformFeeInToken()
	}
	return e.feeView.PlatformFeeInCoin()
}

func royaltyFor(registry assets.Registry, tokenID uint64, price *big.Int) ([20]byte, *big.Int, error) {
	if !registry.SupportsRoyalty() {
		return [20]byte{}, big.NewInt(0), nil
	}
	receiver, amount, err := registry.RoyaltyInfo(tokenID, price)
	if err != nil {
		return [20]byte{}, nil, fmt.Errorf("auction engine: royalty lookup: %w", err)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	return receiver, new(big.Int).Set(amount), nil
}

func (e *Engine) payOut(currency [20]byte, to [20]byte, amount *big.Int) error {
	if currency == ([20]byte{}) {
		return e.ledger.Send(e.escrow, to, amount)
	}
	return e.ledger.Transfer(currency, e.escrow, to, amount)
}

func (e *Engine) payBack(currency [20]byte, from [20]byte, amount *big.Int) error {
	if currency == ([20]byte{}) {
		return e.ledger.Send(from, e.escrow, amount)
	}
	return e.ledger.Transfer(currency, from, e.escrow, amount)
}

// Count reports the number of auctions ever created.
func (e *Engine) Count() uint64 {
	if e == nil || e.state == nil {
		return 0
	}
	return e.state.AuctionCount()
}

// Get returns a copy of the auction record.
func (e *Engine) Get(index uint64) (*Record, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	record, ok := e.state.AuctionGet(index)
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// GetStatus derives the auction status at the given timestamp.
func (e *Engine) GetStatus(index uint64, now int64) (Status, error) {
	record, ok := e.state.AuctionGet(index)
	if !ok {
		return StatusPending, ErrNotFound
	}
	return record.StatusAt(now), nil
}

// IsActive reports whether the auction accepts bids at the timestamp.
func (e *Engine) IsActive(index uint64, now int64) (bool, error) {
	status, err := e.GetStatus(index, now)
	if err != nil {
		return false, err
	}
	return status == StatusActive, nil
}

// IsFinished reports whether the bidding window has closed at the
// timestamp.
func (e *Engine) IsFinished(index uint64, now int64) (bool, error) {
	status, err := e.GetStatus(index, now)
	if err != nil {
		return false, err
	}
	return status == StatusFinished, nil
}

// GetCurrentBidOwner returns the standing bidder, if any.
func (e *Engine) GetCurrentBidOwner(index uint64) ([20]byte, bool, error) {
	record, ok := e.state.AuctionGet(index)
	if !ok {
		return [20]byte{}, false, ErrNotFound
	}
	if record.Bidder == nil {
		return [20]byte{}, false, nil
	}
	return *record.Bidder, true, nil
}

// GetCurrentBidAmount returns the standing bid, which is the asking price
// until a bid lands.
func (e *Engine) GetCurrentBidAmount(index uint64) (*big.Int, error) {
	record, ok := e.state.AuctionGet(index)
	if !ok {
		return nil, ErrNotFound
	}
	if record.BidAmount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(record.BidAmount), nil
}

// GetBidCount returns the number of accepted bids.
func (e *Engine) GetBidCount(index uint64) (uint32, error) {
	record, ok := e.state.AuctionGet(index)
	if !ok {
		return 0, ErrNotFound
	}
	return record.BidCount, nil
}

// GetWinner returns the winning bidder. It fails with ErrNotFinished while
// the auction is still running and ErrNoBid when nobody bid.
func (e *Engine) GetWinner(index uint64, now int64) ([20]byte, error) {
	record, ok := e.state.AuctionGet(index)
	if !ok {
		return [20]byte{}, ErrNotFound
	}
	if record.StatusAt(now) != StatusFinished {
		return [20]byte{}, ErrNotFinished
	}
	if record.Bidder == nil {
		return [20]byte{}, ErrNoBid
	}
	return *record.Bidder, nil
}
