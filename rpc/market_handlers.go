package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

type marketListParams struct {
	Caller   string `json:"caller"`
	TokenID  uint64 `json:"tokenId"`
	Price    string `json:"price"`
	Currency string `json:"currency,omitempty"`
}

type marketSetPriceParams struct {
	Caller  string `json:"caller"`
	TokenID uint64 `json:"tokenId"`
	Price   string `json:"price"`
}

type marketTokenParams struct {
	Caller  string `json:"caller"`
	TokenID uint64 `json:"tokenId"`
}

type marketBuyParams struct {
	Caller  string `json:"caller"`
	TokenID uint64 `json:"tokenId"`
	Payment string `json:"payment,omitempty"`
}

type marketCurrencyParams struct {
	Currency string `json:"currency"`
}

type listingJSON struct {
	TokenID  uint64 `json:"tokenId"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	ForSale  bool   `json:"forSale"`
	Seller   string `json:"seller"`
}

// parseAddress decodes a 0x-prefixed hex address param. The zero address is
// valid and denotes the native currency.
func parseAddress(value string) ([20]byte, error) {
	if value == "" {
		return [20]byte{}, nil
	}
	if !ethcommon.IsHexAddress(value) {
		return [20]byte{}, fmt.Errorf("invalid address %q", value)
	}
	return ethcommon.HexToAddress(value), nil
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return json.Unmarshal([]byte("{}"), out)
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleMarketList(w http.ResponseWriter, req *RPCRequest) {
	var params marketListParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	currency, err := parseAddress(params.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := parseBigInt(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.ListForSale(caller, params.TokenID, price, currency); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"listed": true})
}

func (s *Server) handleMarketSetPrice(w http.ResponseWriter, req *RPCRequest) {
	var params marketSetPriceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := parseBigInt(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.UpdatePrice(caller, params.TokenID, price); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleMarketUnlist(w http.ResponseWriter, req *RPCRequest) {
	var params marketTokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.Unlist(caller, params.TokenID); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"unlisted": true})
}

func (s *Server) handleMarketBuy(w http.ResponseWriter, req *RPCRequest) {
	var params marketBuyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payment := new(big.Int)
	if params.Payment != "" {
		if payment, err = parseBigInt(params.Payment); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	if err := s.market.Buy(caller, params.TokenID, payment); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"bought": true})
}

func (s *Server) handleMarketGetListing(w http.ResponseWriter, req *RPCRequest) {
	var params marketTokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	listing, seller, ok := s.market.GetListing(params.TokenID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "listing not found", nil)
		return
	}
	writeResult(w, req.ID, listingJSON{
		TokenID:  params.TokenID,
		Price:    listing.Price.String(),
		Currency: ethcommon.Address(listing.Currency).Hex(),
		ForSale:  listing.ForSale,
		Seller:   ethcommon.Address(seller).Hex(),
	})
}

func (s *Server) handleMarketCurrencyApproved(w http.ResponseWriter, req *RPCRequest) {
	var params marketCurrencyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	currency, err := parseAddress(params.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]bool{"approved": s.market.CurrencyApproved(currency)})
}
