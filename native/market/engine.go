package market

import (
	"errors"
	"fmt"
	"math/big"

	"nftsettle/core/events"
	"nftsettle/core/types"
	"nftsettle/native/access"
	"nftsettle/native/assets"
	"nftsettle/native/common"
	"nftsettle/native/fees"
	"nftsettle/native/ledger"
)

var (
	errNilState    = errors.New("market engine: state not configured")
	errNilRegistry = errors.New("market engine: asset registry not configured")
	errNilLedger   = errors.New("market engine: ledger not configured")
	errNilPolicy   = errors.New("market engine: fee policy not configured")

	// ErrNotForSale rejects buys and mutations on tokens without an active
	// listing.
	ErrNotForSale = errors.New("token not for sale")
)

type engineState interface {
	ListingPut(tokenID uint64, listing *Listing, owner [20]byte) error
	ListingGet(tokenID uint64) (*Listing, [20]byte, bool)
	ListingClear(tokenID uint64) error
	CurrencyAdd(currency [20]byte) error
	CurrencyRemove(currency [20]byte) error
	CurrencyApproved(currency [20]byte) bool
}

// Engine is the fixed-price exchange. It escrows listed tokens under its
// own account, settles buys atomically against the ledger and asset
// registry, and owns the platform fee policy consulted by the auction
// engine.
type Engine struct {
	state         engineState
	registry      assets.Registry
	ledger        ledger.Ledger
	policy        *fees.Policy
	roles         *access.Controller
	pauses        common.PauseView
	emitter       events.Emitter
	guard         common.CallGuard
	escrow        [20]byte
	platformToken [20]byte
}

// NewEngine creates a marketplace engine escrowing assets under the given
// account. Collaborators are wired via the Set methods.
func NewEngine(escrow [20]byte) *Engine {
	return &Engine{
		escrow:  escrow,
		emitter: events.NoopEmitter{},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the asset registry holding token custody.
func (e *Engine) SetRegistry(registry assets.Registry) { e.registry = registry }

// SetLedger configures the value transfer backend.
func (e *Engine) SetLedger(l ledger.Ledger) { e.ledger = l }

// SetPolicy configures the platform fee policy.
func (e *Engine) SetPolicy(policy *fees.Policy) { e.policy = policy }

// SetRoles configures the access controller gating admin operations.
func (e *Engine) SetRoles(roles *access.Controller) { e.roles = roles }

// SetPauses configures the module pause view.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetPlatformToken records the designated platform token. Settlements in
// this token use the token fee rate; everything else, including native
// coin, uses the coin rate.
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

// Escrow reports the engine's custody account.
func (e *Engine) Escrow() [20]byte { return e.escrow }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) ready() error {
	switch {
	case e == nil, e.state == nil:
		return errNilState
	case e.registry == nil:
		return errNilRegistry
	case e.ledger == nil:
		return errNilLedger
	case e.policy == nil:
		return errNilPolicy
	}
	return nil
}

// InitCurrencies seeds the approved currency set with the native-coin
// sentinel and the configured platform token, mirroring initialization of
// the source system. Idempotent.
func (e *Engine) InitCurrencies() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.state.CurrencyAdd(NativeCurrency); err != nil {
		return err
	}
	if e.platformToken != ([20]byte{}) {
		if err := e.state.CurrencyAdd(e.platformToken); err != nil {
			return err
		}
	}
	return nil
}

// GetListing returns the listing and recorded owner for the token.
func (e *Engine) GetListing(tokenID uint64) (*Listing, [20]byte, bool) {
	if e == nil || e.state == nil {
		return nil, [20]byte{}, false
	}
	listing, owner, ok := e.state.ListingGet(tokenID)
	if !ok {
		return nil, [20]byte{}, false
	}
	return listing.Clone(), owner, true
}

// CurrencyApproved reports whether the currency may denominate sales.
func (e *Engine) CurrencyApproved(currency [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	return e.state.CurrencyApproved(currency)
}

// ListForSale records a listing and takes custody of the token. The caller
// must be able to transfer the token (owner or approved operator); the
// custody transfer itself is the ownership check.
func (e *Engine) ListForSale(caller [20]byte, tokenID uint64, price *big.Int, currency [20]byte) error {
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
	if price == nil || price.Sign() <= 0 {
		return common.ErrInvalidPrice
	}
	if !e.state.CurrencyApproved(currency) {
		return common.ErrUnapprovedCurrency
	}
	if err := e.registry.Transfer(caller, caller, e.escrow, tokenID); err != nil {
		return fmt.Errorf("%w: %s", common.ErrTransferDenied, err)
	}
	listing := &Listing{Price: new(big.Int).Set(price), Currency: currency, ForSale: true}
	if err := e.state.ListingPut(tokenID, listing, caller); err != nil {
		// Return the asset rather than strand it in escrow.
		_ = e.registry.Transfer(e.escrow, e.escrow, caller, tokenID)
		return err
	}
	e.emit(NewTokenOnSaleEvent(caller, tokenID, listing.Price, currency))
	return nil
}

// UpdatePrice changes the asking price of an active listing in place.
func (e *Engine) UpdatePrice(caller [20]byte, tokenID uint64, newPrice *big.Int) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if newPrice == nil || newPrice.Sign() <= 0 {
		return common.ErrInvalidPrice
	}
	listing, owner, ok := e.state.ListingGet(tokenID)
	if !ok || !listing.ForSale {
		return ErrNotForSale
	}
	if caller != owner {
		return common.ErrUnauthorized
	}
	updated := listing.Clone()
	updated.Price = new(big.Int).Set(newPrice)
	if err := e.state.ListingPut(tokenID, updated, owner); err != nil {
		return err
	}
	e.emit(NewSalePriceChangedEvent(tokenID, updated.Price))
	return nil
}

// Unlist withdraws the listing and returns custody to the recorded owner.
func (e *Engine) Unlist(caller [20]byte, tokenID uint64) error {
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
	listing, owner, ok := e.state.ListingGet(tokenID)
	if !ok || !listing.ForSale {
		return ErrNotForSale
	}
	if caller != owner {
		return common.ErrUnauthorized
	}
	prev := listing.Clone()
	if err := e.state.ListingClear(tokenID); err != nil {
		return err
	}
	if err := e.registry.Transfer(e.escrow, e.escrow, owner, tokenID); err != nil {
		_ = e.state.ListingPut(tokenID, prev, owner)
		return fmt.Errorf("%w: %s", common.ErrTransferDenied, err)
	}
	e.emit(NewTokenNotOnSaleEvent(tokenID))
	return nil
}

// Buy settles an active listing atomically: funds are pulled from the
// buyer, the fee and royalty split is computed and disbursed, and custody
// moves from escrow to the buyer. Any failure unwinds every effect already
// applied so the operation is all-or-nothing.
//
// payment is the attached native amount; it must equal the price exactly
// for native listings and is ignored for token listings, where the price is
// pulled via the buyer's allowance instead.
func (e *Engine) Buy(caller [20]byte, tokenID uint64, payment *big.Int) error {
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
	if e.ledger.IsContract(caller) {
		return common.ErrOnlyDirectCallers
	}
	listing, seller, ok := e.state.ListingGet(tokenID)
	if !ok || !listing.ForSale {
		return ErrNotForSale
	}
	price := new(big.Int).Set(listing.Price)
	currency := listing.Currency

	feeAmount := fees.Compute(price, e.feeRate(currency))
	royaltyReceiver, royaltyAmount, err := e.royaltyFor(tokenID, price)
	if err != nil {
		return err
	}
	// When the naive royalty equals the full price, make room for the
	// platform fee by reducing the royalty. This is the source system's
	// tie-break: royalties merely close to the price can still push
	// fee+royalty past it, in which case the seller remainder below is
	// silently zero.
	if royaltyAmount.Cmp(price) == 0 {
		royaltyAmount = new(big.Int).Sub(royaltyAmount, feeAmount)
	}

	if currency == NativeCurrency {
		if payment == nil || payment.Cmp(price) != 0 {
			return common.ErrInsufficientPayment
		}
	}

	var unwind []func()
	fail := func(err error) error {
		for i := len(unwind) - 1; i >= 0; i-- {
			unwind[i]()
		}
		return err
	}

	// Internal state first: the listing is gone before any external
	// balance or custody mutation executes.
	prev := listing.Clone()
	if err := e.state.ListingClear(tokenID); err != nil {
		return err
	}
	unwind = append(unwind, func() { _ = e.state.ListingPut(tokenID, prev, seller) })

	// Secure the buyer's funds in escrow.
	if currency == NativeCurrency {
		if err := e.ledger.Send(caller, e.escrow, price); err != nil {
			return fail(fmt.Errorf("%w: %s", common.ErrInsufficientPayment, err))
		}
	} else {
		if err := e.ledger.TransferFrom(currency, e.escrow, caller, e.escrow, price); err != nil {
			return fail(fmt.Errorf("%w: %s", common.ErrInsufficientPayment, err))
		}
	}
	unwind = append(unwind, func() { _ = e.payOut(currency, caller, price) })

	fee, royalty, err := e.disburse(currency, seller, royaltyReceiver, price, feeAmount, royaltyAmount, &unwind)
	if err != nil {
		return fail(err)
	}

	if err := e.registry.Transfer(e.escrow, e.escrow, caller, tokenID); err != nil {
		return fail(fmt.Errorf("%w: %s", common.ErrTransferDenied, err))
	}

	e.emit(NewTokenBoughtEvent(tokenID, caller, currency, price, fee, royalty))
	return nil
}

// feeRate selects the platform fee rate for the settlement currency.
func (e *Engine) feeRate(currency [20]byte) uint32 {
	if e.platformToken != ([20]byte{}) && currency == e.platformToken {
		return e.policy.PlatformFeeInToken()
	}
	return e.policy.PlatformFeeInCoin()
}

func (e *Engine) royaltyFor(tokenID uint64, price *big.Int) ([20]byte, *big.Int, error) {
	if !e.registry.SupportsRoyalty() {
		return [20]byte{}, big.NewInt(0), nil
	}
	receiver, amount, err := e.registry.RoyaltyInfo(tokenID, price)
	if err != nil {
		return [20]byte{}, nil, fmt.Errorf("market engine: royalty lookup: %w", err)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	return receiver, new(big.Int).Set(amount), nil
}

// disburse routes royalty, platform fee and seller remainder out of escrow,
// appending a compensating transfer per completed payout. The returned fee
// and royalty are the amounts actually paid. Royalty is waived when the
// receiver is the seller; the remainder is paid only when positive, so a
// royalty within fee distance of the price silently consumes the seller
// payout.
func (e *Engine) disburse(currency [20]byte, seller, royaltyReceiver [20]byte, price, feeAmount, royaltyAmount *big.Int, unwind *[]func()) (*big.Int, *big.Int, error) {
	paidRoyalty := big.NewInt(0)
	if royaltyReceiver != seller && royaltyAmount.Sign() > 0 {
		if err := e.payOut(currency, royaltyReceiver, royaltyAmount); err != nil {
			return nil, nil, fmt.Errorf("%w: royalty: %s", common.ErrTransferDenied, err)
		}
		amt := new(big.Int).Set(royaltyAmount)
		*unwind = append(*unwind, func() { _ = e.payBack(currency, royaltyReceiver, amt) })
		paidRoyalty = amt
	}
	paidFee := big.NewInt(0)
	if feeAmount.Sign() > 0 {
		destination := e.policy.FeeDestination()
		if err := e.payOut(currency, destination, feeAmount); err != nil {
			return nil, nil, fmt.Errorf("%w: fee: %s", common.ErrTransferDenied, err)
		}
		amt := new(big.Int).Set(feeAmount)
		*unwind = append(*unwind, func() { _ = e.payBack(currency, destination, amt) })
		paidFee = amt
	}
	remainder := new(big.Int).Sub(price, paidFee)
	remainder.Sub(remainder, paidRoyalty)
	if remainder.Sign() > 0 {
		if err := e.payOut(currency, seller, remainder); err != nil {
			return nil, nil, fmt.Errorf("%w: seller payout: %s", common.ErrTransferDenied, err)
		}
		amt := new(big.Int).Set(remainder)
		*unwind = append(*unwind, func() { _ = e.payBack(currency, seller, amt) })
	}
	return paidFee, paidRoyalty, nil
}

func (e *Engine) payOut(currency [20]byte, to [20]byte, amount *big.Int) error {
	if currency == NativeCurrency {
		return e.ledger.Send(e.escrow, to, amount)
	}
	return e.ledger.Transfer(currency, e.escrow, to, amount)
}

func (e *Engine) payBack(currency [20]byte, from [20]byte, amount *big.Int) error {
	if currency == NativeCurrency {
		return e.ledger.Send(from, e.escrow, amount)
	}
	return e.ledger.Transfer(currency, from, e.escrow, amount)
}

// UpdateFee replaces the platform fee rates. Owner-gated.
func (e *Engine) UpdateFee(caller [20]byte, coinBps, tokenBps uint32) error {
	if e == nil || e.roles == nil || e.policy == nil {
		return errNilPolicy
	}
	if err := e.roles.RequireOwner(caller); err != nil {
		return err
	}
	return e.policy.UpdateFee(caller, coinBps, tokenBps)
}

// SetFeeDestination updates the fee routing account. Owner-gated.
func (e *Engine) SetFeeDestination(caller, destination [20]byte) error {
	if e == nil || e.roles == nil || e.policy == nil {
		return errNilPolicy
	}
	if err := e.roles.RequireOwner(caller); err != nil {
		return err
	}
	e.policy.SetDestination(destination)
	return nil
}

// AddCurrency approves a settlement currency. Owner-gated.
func (e *Engine) AddCurrency(caller, currency [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.roles == nil {
		return common.ErrUnauthorized
	}
	if err := e.roles.RequireOwner(caller); err != nil {
		return err
	}
	return e.state.CurrencyAdd(currency)
}

// RemoveCurrency revokes a settlement currency. Owner-gated. Existing
// listings in the currency still settle; only new listings are blocked.
func (e *Engine) RemoveCurrency(caller, currency [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.roles == nil {
		return common.ErrUnauthorized
	}
	if err := e.roles.RequireOwner(caller); err != nil {
		return err
	}
	return e.state.CurrencyRemove(currency)
}

// RewireRegistry swaps the asset registry. Protocol-admin-gated; this is
// the narrow capability distinct from ownership.
func (e *Engine) RewireRegistry(caller [20]byte, registry assets.Registry) error {
	if e == nil || e.roles == nil {
		return common.ErrUnauthorized
	}
	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if registry == nil {
		return errNilRegistry
	}
	e.registry = registry
	return nil
}
