package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"nftsettle/native/access"
	"nftsettle/native/assets"
	"nftsettle/native/auction"
	"nftsettle/native/common"
	"nftsettle/native/fees"
	"nftsettle/native/ledger"
	"nftsettle/native/market"
	"nftsettle/storage"
)

const testJWTSecret = "test-admin-secret"

func addr(b byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = b
	}
	return a
}

func hexAddr(b byte) string {
	a := addr(b)
	return fmt.Sprintf("0x%x", a[:])
}

type testEnv struct {
	server   *Server
	registry *assets.MemoryRegistry
	ledger   *ledger.MemoryLedger
	state    *storage.State
	escrow   [20]byte
	owner    [20]byte
	admin    [20]byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	escrow := addr(0xec)
	owner := addr(0x01)
	admin := addr(0x02)

	registry := assets.NewMemoryRegistry()
	led := ledger.NewMemoryLedger()
	state, err := storage.OpenState(storage.NewMemDB())
	require.NoError(t, err)

	policy, err := fees.NewPolicy(250, 250, addr(0xfe))
	require.NoError(t, err)
	roles := access.NewController(owner, admin)
	pauses := common.NewPauseSet()

	feed := NewFeed(state, nil)
	policy.SetEmitter(feed)

	mkt := market.NewEngine(escrow)
	mkt.SetState(state)
	mkt.SetRegistry(registry)
	mkt.SetLedger(led)
	mkt.SetPolicy(policy)
	mkt.SetRoles(roles)
	mkt.SetPauses(pauses)
	mkt.SetEmitter(feed)
	require.NoError(t, mkt.InitCurrencies())

	auc := auction.NewEngine(escrow)
	auc.SetState(state)
	auc.SetResolver(assets.StaticResolver{addr(0x0a): registry})
	auc.SetLedger(led)
	auc.SetFeeProvider(policy)
	auc.SetRoles(roles)
	auc.SetPauses(pauses)
	auc.SetEmitter(feed)

	server := NewServer(ServerConfig{
		Market:    mkt,
		Auction:   auc,
		Pauses:    pauses,
		Policy:    policy,
		Roles:     roles,
		State:     state,
		Feed:      feed,
		JWTSecret: testJWTSecret,
	})

	return &testEnv{
		server:   server,
		registry: registry,
		ledger:   led,
		state:    state,
		escrow:   escrow,
		owner:    owner,
		admin:    admin,
	}
}

func (env *testEnv) call(t *testing.T, method string, params interface{}, headers map[string]string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	var rawParams []json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		require.NoError(t, err)
		rawParams = []json.RawMessage{encoded}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  rawParams,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func adminToken(t *testing.T) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestMarketListAndGetListing(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x11)
	env.registry.Mint(seller, 7)

	rec, resp := env.call(t, "market_list", marketListParams{
		Caller:  hexAddr(0x11),
		TokenID: 7,
		Price:   "1000",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	// Custody moved to escrow.
	ownerNow, err := env.registry.OwnerOf(7)
	require.NoError(t, err)
	require.Equal(t, env.escrow, ownerNow)

	rec, resp = env.call(t, "market_getListing", marketTokenParams{TokenID: 7}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	var listing listingJSON
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &listing))
	require.Equal(t, "1000", listing.Price)
	require.True(t, listing.ForSale)
}

func TestMarketBuySettlesOverRPC(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x11)
	buyer := addr(0x22)
	env.registry.Mint(seller, 7)
	env.ledger.MintNative(buyer, big.NewInt(5000))

	_, resp := env.call(t, "market_list", marketListParams{
		Caller:  hexAddr(0x11),
		TokenID: 7,
		Price:   "1000",
	}, nil)
	require.Nil(t, resp.Error)

	rec, resp := env.call(t, "market_buy", marketBuyParams{
		Caller:  hexAddr(0x22),
		TokenID: 7,
		Payment: "1000",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	ownerNow, err := env.registry.OwnerOf(7)
	require.NoError(t, err)
	require.Equal(t, buyer, ownerNow)
	// 2.5% platform fee on 1000.
	require.Equal(t, int64(975), env.ledger.BalanceOf(seller).Int64())
}

func TestMarketBuyErrorsMapToCodes(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.call(t, "market_buy", marketBuyParams{
		Caller:  hexAddr(0x22),
		TokenID: 99,
		Payment: "1000",
	}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNotFound, resp.Error.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.call(t, "admin_setFees", adminSetFeesParams{
		Caller:   hexAddr(0x01),
		CoinBps:  100,
		TokenBps: 100,
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestAdminSetFeesWithToken(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.call(t, "admin_setFees", adminSetFeesParams{
		Caller:   hexAddr(0x01),
		CoinBps:  100,
		TokenBps: 150,
	}, map[string]string{"Authorization": adminToken(t)})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	// The change is snapshotted for restart recovery.
	snapshot, ok, err := env.state.FeesGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(100), snapshot.CoinBps)
	require.Equal(t, uint32(150), snapshot.TokenBps)
}

func TestAdminSetFeesRejectsNonOwnerCaller(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.call(t, "admin_setFees", adminSetFeesParams{
		Caller:   hexAddr(0x33),
		CoinBps:  100,
		TokenBps: 100,
	}, map[string]string{"Authorization": adminToken(t)})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeForbidden, resp.Error.Code)
}

func TestAdminPauseBlocksMutations(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Mint(addr(0x11), 7)

	_, resp := env.call(t, "admin_pause", adminModuleParams{
		Caller: hexAddr(0x02),
		Module: market.ModuleName,
	}, map[string]string{"Authorization": adminToken(t)})
	require.Nil(t, resp.Error)

	rec, resp := env.call(t, "market_list", marketListParams{
		Caller:  hexAddr(0x11),
		TokenID: 7,
		Price:   "1000",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)

	_, resp = env.call(t, "admin_resume", adminModuleParams{
		Caller: hexAddr(0x02),
		Module: market.ModuleName,
	}, map[string]string{"Authorization": adminToken(t)})
	require.Nil(t, resp.Error)

	_, resp = env.call(t, "market_list", marketListParams{
		Caller:  hexAddr(0x11),
		TokenID: 7,
		Price:   "1000",
	}, nil)
	require.Nil(t, resp.Error)
}

func TestAuctionLifecycleOverRPC(t *testing.T) {
	env := newTestEnv(t)
	creator := addr(0x11)
	bidder := addr(0x22)
	env.registry.Mint(creator, 5)
	env.ledger.MintNative(bidder, big.NewInt(5000))

	_, resp := env.call(t, "auction_create", auctionCreateParams{
		Caller:     hexAddr(0x11),
		Asset:      hexAddr(0x0a),
		TokenID:    5,
		StartPrice: "100",
		Duration:   3600,
	}, nil)
	require.Nil(t, resp.Error)

	var created map[string]uint64
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &created))
	index := created["index"]

	_, resp = env.call(t, "auction_bid", auctionBidParams{
		Caller:  hexAddr(0x22),
		Index:   index,
		Amount:  "200",
		Payment: "200",
	}, nil)
	require.Nil(t, resp.Error)

	_, resp = env.call(t, "auction_bidInfo", auctionIndexParams{Index: index}, nil)
	require.Nil(t, resp.Error)
	info, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "200", info["amount"])

	_, resp = env.call(t, "auction_status", auctionIndexParams{Index: index}, nil)
	require.Nil(t, resp.Error)

	rec, resp := env.call(t, "auction_get", auctionIndexParams{Index: index}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record auctionJSON
	raw, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &record))
	require.Equal(t, uint32(1), record.BidCount)
	require.NotNil(t, record.Bidder)
}

func TestEventsSinceReturnsJournal(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Mint(addr(0x11), 7)

	_, resp := env.call(t, "market_list", marketListParams{
		Caller:  hexAddr(0x11),
		TokenID: 7,
		Price:   "1000",
	}, nil)
	require.Nil(t, resp.Error)

	_, resp = env.call(t, "events_since", eventsSinceParams{From: 0}, nil)
	require.Nil(t, resp.Error)

	var events []storage.StoredEvent
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &events))
	require.NotEmpty(t, events)
	require.Equal(t, market.EventTypeTokenOnSale, events[0].Event.Type)
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec, resp := env.call(t, "bogus_method", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestInvalidAddressRejected(t *testing.T) {
	env := newTestEnv(t)
	rec, resp := env.call(t, "market_list", marketListParams{
		Caller:  "not-an-address",
		TokenID: 1,
		Price:   "10",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestAdminTransferOwnershipPersists(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.call(t, "admin_transferOwnership", adminAddressParams{
		Caller:  hexAddr(0x01),
		Address: hexAddr(0x44),
	}, map[string]string{"Authorization": adminToken(t)})
	require.Nil(t, resp.Error)

	snapshot, ok, err := env.state.RolesGet()
	require.NoError(t, err)
	require.True(t, ok)
	// Hex() renders EIP-55 mixed case; compare case-insensitively.
	require.True(t, strings.EqualFold(hexAddr(0x44), snapshot.Owner))

	// The old owner no longer passes role checks.
	rec, resp := env.call(t, "admin_setFees", adminSetFeesParams{
		Caller:   hexAddr(0x01),
		CoinBps:  100,
		TokenBps: 100,
	}, map[string]string{"Authorization": adminToken(t)})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, resp.Error)
}
