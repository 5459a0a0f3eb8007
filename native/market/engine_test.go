package market

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nftsettle/core/events"
	"nftsettle/core/types"
	"nftsettle/native/access"
	"nftsettle/native/assets"
	"nftsettle/native/common"
	"nftsettle/native/fees"
	"nftsettle/native/ledger"
)

type mockState struct {
	listings   map[uint64]*Listing
	owners     map[uint64][20]byte
	currencies map[[20]byte]bool
}

func newMockState() *mockState {
	return &mockState{
		listings:   make(map[uint64]*Listing),
		owners:     make(map[uint64][20]byte),
		currencies: make(map[[20]byte]bool),
	}
}

func (m *mockState) ListingPut(tokenID uint64, listing *Listing, owner [20]byte) error {
	m.listings[tokenID] = listing.Clone()
	m.owners[tokenID] = owner
	return nil
}

func (m *mockState) ListingGet(tokenID uint64) (*Listing, [20]byte, bool) {
	listing, ok := m.listings[tokenID]
	if !ok {
		return nil, [20]byte{}, false
	}
	return listing.Clone(), m.owners[tokenID], true
}

func (m *mockState) ListingClear(tokenID uint64) error {
	delete(m.listings, tokenID)
	delete(m.owners, tokenID)
	return nil
}

func (m *mockState) CurrencyAdd(currency [20]byte) error {
	m.currencies[currency] = true
	return nil
}

func (m *mockState) CurrencyRemove(currency [20]byte) error {
	delete(m.currencies, currency)
	return nil
}

func (m *mockState) CurrencyApproved(currency [20]byte) bool {
	return m.currencies[currency]
}

type captureEmitter struct {
	events []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	if payload, ok := evt.(events.Payload); ok {
		c.events = append(c.events, payload.Event())
	}
}

func (c *captureEmitter) last() *types.Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

type fixture struct {
	engine   *Engine
	state    *mockState
	registry *assets.MemoryRegistry
	book     *ledger.MemoryLedger
	policy   *fees.Policy
	emitter  *captureEmitter
	pauses   *common.PauseSet

	escrow        [20]byte
	owner         [20]byte
	admin         [20]byte
	feeDest       [20]byte
	platformToken [20]byte
}

func newFixture(t *testing.T, coinBps, tokenBps uint32) *fixture {
	t.Helper()
	f := &fixture{
		state:         newMockState(),
		registry:      assets.NewMemoryRegistry(),
		book:          ledger.NewMemoryLedger(),
		emitter:       &captureEmitter{},
		pauses:        common.NewPauseSet(),
		escrow:        addr(0xE5),
		owner:         addr(0x01),
		admin:         addr(0x02),
		feeDest:       addr(0xFE),
		platformToken: addr(0xDD),
	}
	policy, err := fees.NewPolicy(coinBps, tokenBps, f.feeDest)
	require.NoError(t, err)
	f.policy = policy

	engine := NewEngine(f.escrow)
	engine.SetState(f.state)
	engine.SetRegistry(f.registry)
	engine.SetLedger(f.book)
	engine.SetPolicy(policy)
	engine.SetRoles(access.NewController(f.owner, f.admin))
	engine.SetPauses(f.pauses)
	engine.SetPlatformToken(f.platformToken)
	engine.SetEmitter(f.emitter)
	require.NoError(t, engine.InitCurrencies())
	f.engine = engine
	return f
}

func (f *fixture) list(t *testing.T, seller [20]byte, tokenID uint64, price int64, currency [20]byte) {
	t.Helper()
	f.registry.Mint(seller, tokenID)
	require.NoError(t, f.engine.ListForSale(seller, tokenID, big.NewInt(price), currency))
}

func TestListForSaleTakesCustody(t *testing.T) {
	f := newFixture(t, 250, 100)
	seller := addr(0x10)
	f.list(t, seller, 1, 100, NativeCurrency)

	got, err := f.registry.OwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, f.escrow, got)

	listing, recordedOwner, ok := f.engine.GetListing(1)
	require.True(t, ok)
	require.True(t, listing.ForSale)
	require.Equal(t, int64(100), listing.Price.Int64())
	require.Equal(t, seller, recordedOwner)

	evt := f.emitter.last()
	require.Equal(t, EventTypeTokenOnSale, evt.Type)
	require.Equal(t, "100", evt.Attributes["price"])
}

func TestListForSaleValidation(t *testing.T) {
	f := newFixture(t, 250, 100)
	seller := addr(0x10)
	f.registry.Mint(seller, 1)

	require.ErrorIs(t, f.engine.ListForSale(seller, 1, big.NewInt(0), NativeCurrency), common.ErrInvalidPrice)
	require.ErrorIs(t, f.engine.ListForSale(seller, 1, nil, NativeCurrency), common.ErrInvalidPrice)
	require.ErrorIs(t, f.engine.ListForSale(seller, 1, big.NewInt(5), addr(0x77)), common.ErrUnapprovedCurrency)

	// Not the owner of the token: custody transfer is denied.
	require.ErrorIs(t, f.engine.ListForSale(addr(0x11), 1, big.NewInt(5), NativeCurrency), common.ErrTransferDenied)

	// Platform token was seeded alongside the native sentinel.
	require.True(t, f.engine.CurrencyApproved(f.platformToken))
}

func TestUpdatePriceOwnerGated(t *testing.T) {
	f := newFixture(t, 250, 100)
	seller := addr(0x10)
	f.list(t, seller, 1, 100, NativeCurrency)

	require.ErrorIs(t, f.engine.UpdatePrice(addr(0x11), 1, big.NewInt(200)), common.ErrUnauthorized)
	require.ErrorIs(t, f.engine.UpdatePrice(seller, 2, big.NewInt(200)), ErrNotForSale)
	require.NoError(t, f.engine.UpdatePrice(seller, 1, big.NewInt(200)))

	listing, _, _ := f.engine.GetListing(1)
	require.Equal(t, int64(200), listing.Price.Int64())
	require.Equal(t, EventTypeSalePriceChanged, f.emitter.last().Type)
}

func TestUnlistReturnsCustody(t *testing.T) {
	f := newFixture(t, 250, 100)
	seller := addr(0x10)
	f.list(t, seller, 1, 100, NativeCurrency)

	require.ErrorIs(t, f.engine.Unlist(addr(0x11), 1), common.ErrUnauthorized)
	require.NoError(t, f.engine.Unlist(seller, 1))

	got, err := f.registry.OwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, seller, got)
	_, _, ok := f.engine.GetListing(1)
	require.False(t, ok)
	require.Equal(t, EventTypeTokenNotOnSale, f.emitter.last().Type)
}

func TestBuyNativeSettlement(t *testing.T) {
	f := newFixture(t, 250, 100) // 2.5% coin fee
	seller := addr(0x10)
	buyer := addr(0x20)
	f.list(t, seller, 1, 1000, NativeCurrency)
	f.book.MintNative(buyer, big.NewInt(1000))

	// Exact payment required.
	require.ErrorIs(t, f.engine.Buy(buyer, 1, big.NewInt(999)), common.ErrInsufficientPayment)
	require.NoError(t, f.engine.Buy(buyer, 1, big.NewInt(1000)))

	require.Equal(t, int64(0), f.book.BalanceOf(buyer).Int64())
	require.Equal(t, int64(975), f.book.BalanceOf(seller).Int64())
	require.Equal(t, int64(25), f.book.BalanceOf(f.feeDest).Int64())
	require.Equal(t, int64(0), f.book.BalanceOf(f.escrow).Int64())

	got, err := f.registry.OwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, buyer, got)

	_, _, ok := f.engine.GetListing(1)
	require.False(t, ok)

	evt := f.emitter.last()
	require.Equal(t, EventTypeTokenBought, evt.Type)
	require.Equal(t, "25", evt.Attributes["fee"])
	require.Equal(t, "0", evt.Attributes["royalty"])

	// Already sold.
	require.ErrorIs(t, f.engine.Buy(buyer, 1, big.NewInt(1000)), ErrNotForSale)
}

func TestBuyTokenSettlementWithRoyalty(t *testing.T) {
	f := newFixture(t, 250, 100) // 1% token fee
	seller := addr(0x10)
	buyer := addr(0x20)
	creator := addr(0x30)
	token := f.platformToken

	f.registry.SetRoyalty(1, creator, 500) // 5%
	f.list(t, seller, 1, 1000, token)
	f.book.MintToken(token, buyer, big.NewInt(1000))

	// No allowance yet: the pull aborts the whole buy.
	require.ErrorIs(t, f.engine.Buy(buyer, 1, nil), common.ErrInsufficientPayment)
	listing, _, ok := f.engine.GetListing(1)
	require.True(t, ok)
	require.True(t, listing.ForSale)

	f.book.Approve(token, buyer, f.escrow, big.NewInt(1000))
	require.NoError(t, f.engine.Buy(buyer, 1, nil))

	// price 1000 = royalty 50 + fee 10 + seller 940; nothing stays in escrow.
	require.Equal(t, int64(50), f.book.TokenBalanceOf(token, creator).Int64())
	require.Equal(t, int64(10), f.book.TokenBalanceOf(token, f.feeDest).Int64())
	require.Equal(t, int64(940), f.book.TokenBalanceOf(token, seller).Int64())
	require.Equal(t, int64(0), f.book.TokenBalanceOf(token, f.escrow).Int64())

	evt := f.emitter.last()
	require.Equal(t, "10", evt.Attributes["fee"])
	require.Equal(t, "50", evt.Attributes["royalty"])
}

func TestBuyRoyaltyEqualToPriceMakesRoomForFee(t *testing.T) {
	f := newFixture(t, 250, 100)
	seller := addr(0x10)
	buyer := addr(0x20)
	creator := addr(0x30)

	f.registry.SetRoyalty(1, creator, 10_000) // 100% royalty
	f.list(t, seller, 1, 1000, NativeCurrency)
	f.book.MintNative(buyer, big.NewInt(1000))

	require.NoError(t, f.engine.Buy(buyer, 1, big.NewInt(1000)))

	// Royalty is reduced by the fee; the seller remainder is zero and is
	// silently skipped.
	require.Equal(t, int64(975), f.book.BalanceOf(creator).Int64())
	require.Equal(t, int64(25), f.book.BalanceOf(f.feeDest).Int64())
	require.Equal(t, int64(0), f.book.BalanceOf(seller).Int64())
	require.Equal(t, int64(0), f.book.BalanceOf(f.escrow).Int64())
}

func TestBuyRoyaltyNearPriceBoundary(t *testing.T) {
	// Known boundary case: a royalty close to but not equal to the price is
	// not reduced, so fee+royalty exceeds the price and the seller payout is
	// silently omitted rather than erroring.
	f := newFixture(t, 250, 100)
	seller := addr(0x10)
	buyer := addr(0x20)
	creator := addr(0x30)

	f.registry.SetRoyalty(1, creator, 9_900) // 99% royalty, 2.5% fee
	f.list(t, seller, 1, 1000, NativeCurrency)
	f.book.MintNative(buyer, big.NewInt(1000))
	f.book.MintNative(f.escrow, big.NewInt(100)) // engine float absorbs the overshoot

	require.NoError(t, f.engine.Buy(buyer, 1, big.NewInt(1000)))

	require.Equal(t, int64(990), f.book.BalanceOf(creator).Int64())
	require.Equal(t, int64(25), f.book.BalanceOf(f.feeDest).Int64())
	require.Equal(t, int64(0), f.book.BalanceOf(seller).Int64())
	// fee+royalty = 1015 > price: the escrow float covered 15.
	require.Equal(t, int64(85), f.book.BalanceOf(f.escrow).Int64())
}

func TestBuyRoyaltyWaivedForSeller(t *testing.T) {
	f := newFixture(t, 0, 0)
	seller := addr(0x10)
	buyer := addr(0x20)

	f.registry.SetRoyalty(1, seller, 500)
	f.list(t, seller, 1, 1000, NativeCurrency)
	f.book.MintNative(buyer, big.NewInt(1000))

	require.NoError(t, f.engine.Buy(buyer, 1, big.NewInt(1000)))

	// The royalty receiver is the seller: no separate royalty leg, the full
	// price lands with the seller.
	require.Equal(t, int64(1000), f.book.BalanceOf(seller).Int64())
	require.Equal(t, "0", f.emitter.last().Attributes["royalty"])
}

func TestBuyRejectsContractCallers(t *testing.T) {
	f := newFixture(t, 250, 100)
	seller := addr(0x10)
	bot := addr(0xB0)
	f.list(t, seller, 1, 100, NativeCurrency)
	f.book.MintNative(bot, big.NewInt(100))
	f.book.MarkContract(bot)

	require.ErrorIs(t, f.engine.Buy(bot, 1, big.NewInt(100)), common.ErrOnlyDirectCallers)
}

func TestBuyInsufficientNativeBalanceRollsBack(t *testing.T) {
	f := newFixture(t, 250, 100)
	seller := addr(0x10)
	buyer := addr(0x20)
	f.list(t, seller, 1, 1000, NativeCurrency)
	f.book.MintNative(buyer, big.NewInt(500))

	require.ErrorIs(t, f.engine.Buy(buyer, 1, big.NewInt(1000)), common.ErrInsufficientPayment)

	// The listing was restored and custody never moved.
	listing, owner, ok := f.engine.GetListing(1)
	require.True(t, ok)
	require.True(t, listing.ForSale)
	require.Equal(t, seller, owner)
	got, err := f.registry.OwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, f.escrow, got)
	require.Equal(t, int64(500), f.book.BalanceOf(buyer).Int64())
}

func TestReentrantBuyRejected(t *testing.T) {
	f := newFixture(t, 250, 100)
	seller := addr(0x10)
	buyer := addr(0x20)
	f.list(t, seller, 1, 100, NativeCurrency)
	f.list(t, seller, 2, 100, NativeCurrency)
	f.book.MintNative(buyer, big.NewInt(200))

	var hookErr error
	hooked := false
	f.registry.SetTransferHook(func(from, to [20]byte, tokenID uint64) {
		if hooked {
			return
		}
		hooked = true
		hookErr = f.engine.Buy(buyer, 2, big.NewInt(100))
	})

	require.NoError(t, f.engine.Buy(buyer, 1, big.NewInt(100)))
	require.ErrorIs(t, hookErr, common.ErrReentrantCall)

	// The second listing is untouched.
	listing, _, ok := f.engine.GetListing(2)
	require.True(t, ok)
	require.True(t, listing.ForSale)
}

func TestMarketPause(t *testing.T) {
	f := newFixture(t, 250, 100)
	seller := addr(0x10)
	f.registry.Mint(seller, 1)

	f.pauses.SetPaused(ModuleName, true)
	require.ErrorIs(t, f.engine.ListForSale(seller, 1, big.NewInt(100), NativeCurrency), common.ErrModulePaused)

	f.pauses.SetPaused(ModuleName, false)
	require.NoError(t, f.engine.ListForSale(seller, 1, big.NewInt(100), NativeCurrency))
}

func TestAdminSurfaceGating(t *testing.T) {
	f := newFixture(t, 250, 100)
	stranger := addr(0x66)
	currency := addr(0x77)

	require.ErrorIs(t, f.engine.UpdateFee(stranger, 100, 100), common.ErrUnauthorized)
	require.ErrorIs(t, f.engine.AddCurrency(stranger, currency), common.ErrUnauthorized)
	require.ErrorIs(t, f.engine.SetFeeDestination(stranger, stranger), common.ErrUnauthorized)
	require.ErrorIs(t, f.engine.RewireRegistry(f.owner, assets.NewMemoryRegistry()), common.ErrUnauthorized)

	require.NoError(t, f.engine.UpdateFee(f.owner, 100, 100))
	require.NoError(t, f.engine.AddCurrency(f.owner, currency))
	require.True(t, f.engine.CurrencyApproved(currency))
	require.NoError(t, f.engine.RemoveCurrency(f.owner, currency))
	require.False(t, f.engine.CurrencyApproved(currency))
	require.NoError(t, f.engine.RewireRegistry(f.admin, assets.NewMemoryRegistry()))
}
