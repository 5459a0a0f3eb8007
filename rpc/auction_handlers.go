package rpc

import (
	"math/big"
	"net/http"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftsettle/native/auction"
)

type auctionCreateParams struct {
	Caller     string `json:"caller"`
	Asset      string `json:"asset"`
	TokenID    uint64 `json:"tokenId"`
	StartPrice string `json:"startPrice"`
	StartTime  int64  `json:"startTime,omitempty"`
	Duration   int64  `json:"duration"`
	Currency   string `json:"currency,omitempty"`
}

type auctionBidParams struct {
	Caller  string `json:"caller"`
	Index   uint64 `json:"index"`
	Amount  string `json:"amount"`
	Payment string `json:"payment,omitempty"`
}

type auctionActorParams struct {
	Caller string `json:"caller"`
	Index  uint64 `json:"index"`
}

type auctionIndexParams struct {
	Index uint64 `json:"index"`
}

type auctionJSON struct {
	Index     uint64  `json:"index"`
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
	Status    string  `json:"status"`
}

func auctionToJSON(index uint64, record *auction.Record, now int64) auctionJSON {
	out := auctionJSON{
		Index:     index,
		Asset:     ethcommon.Address(record.AssetContract).Hex(),
		TokenID:   record.TokenID,
		Currency:  ethcommon.Address(record.Currency).Hex(),
		Creator:   ethcommon.Address(record.Creator).Hex(),
		StartTime: record.StartTime,
		Duration:  record.Duration,
		BidAmount: record.BidAmount.String(),
		BidCount:  record.BidCount,
		Finalized: record.Finalized,
		Status:    record.StatusAt(now).String(),
	}
	if record.Bidder != nil {
		bidder := ethcommon.Address(*record.Bidder).Hex()
		out.Bidder = &bidder
	}
	return out
}

func (s *Server) handleAuctionCreate(w http.ResponseWriter, req *RPCRequest) {
	var params auctionCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	currency, err := parseAddress(params.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	startPrice, err := parseBigInt(params.StartPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	index, err := s.auction.Create(caller, asset, params.TokenID, startPrice, params.StartTime, params.Duration, currency)
	if err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"index": index})
}

func (s *Server) handleAuctionBid(w http.ResponseWriter, req *RPCRequest) {
	var params auctionBidParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseBigInt(params.Amount)
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
	if err := s.auction.Bid(caller, params.Index, amount, payment); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"accepted": true})
}

func (s *Server) handleAuctionCancel(w http.ResponseWriter, req *RPCRequest) {
	var params auctionActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.auction.Cancel(caller, params.Index); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"canceled": true})
}

func (s *Server) handleAuctionFinalize(w http.ResponseWriter, req *RPCRequest) {
	var params auctionIndexParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if err := s.auction.Finalize(params.Index); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"finalized": true})
}

func (s *Server) handleAuctionGet(w http.ResponseWriter, req *RPCRequest) {
	var params auctionIndexParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	record, ok := s.auction.Get(params.Index)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "auction not found", nil)
		return
	}
	writeResult(w, req.ID, auctionToJSON(params.Index, record, time.Now().Unix()))
}

func (s *Server) handleAuctionCount(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, map[string]uint64{"count": s.auction.Count()})
}

func (s *Server) handleAuctionStatus(w http.ResponseWriter, req *RPCRequest) {
	var params auctionIndexParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	status, err := s.auction.GetStatus(params.Index, time.Now().Unix())
	if err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": status.String()})
}

func (s *Server) handleAuctionBidInfo(w http.ResponseWriter, req *RPCRequest) {
	var params auctionIndexParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	amount, err := s.auction.GetCurrentBidAmount(params.Index)
	if err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	count, err := s.auction.GetBidCount(params.Index)
	if err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	result := map[string]interface{}{
		"amount":   amount.String(),
		"bidCount": count,
	}
	bidder, ok, err := s.auction.GetCurrentBidOwner(params.Index)
	if err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	if ok {
		result["bidder"] = ethcommon.Address(bidder).Hex()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleAuctionWinner(w http.ResponseWriter, req *RPCRequest) {
	var params auctionIndexParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	winner, err := s.auction.GetWinner(params.Index, time.Now().Unix())
	if err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"winner": ethcommon.Address(winner).Hex()})
}
