package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"nftsettle/native/access"
	"nftsettle/native/auction"
	"nftsettle/native/common"
	"nftsettle/native/fees"
	"nftsettle/native/market"
	"nftsettle/storage"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	mutationsPerMin = 60
	mutationBurst   = 10
	authClockSkew   = 2 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeNotFound       = -32030
	codeConflict       = -32031
	codeForbidden      = -32032
)

// Server exposes the marketplace and auction engines over JSON-RPC, plus a
// websocket event stream and Prometheus metrics.
type Server struct {
	market  *market.Engine
	auction *auction.Engine
	pauses  *common.PauseSet
	policy  *fees.Policy
	roles   *access.Controller
	state   *storage.State
	feed    *Feed
	logger  *slog.Logger

	jwtSecret []byte

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// ServerConfig bundles the collaborators the RPC server fronts.
type ServerConfig struct {
	Market    *market.Engine
	Auction   *auction.Engine
	Pauses    *common.PauseSet
	Policy    *fees.Policy
	Roles     *access.Controller
	State     *storage.State
	Feed      *Feed
	Logger    *slog.Logger
	JWTSecret string
}

func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		market:    cfg.Market,
		auction:   cfg.Auction,
		pauses:    cfg.Pauses,
		policy:    cfg.Policy,
		roles:     cfg.Roles,
		state:     cfg.State,
		feed:      cfg.Feed,
		logger:    logger,
		jwtSecret: []byte(strings.TrimSpace(cfg.JWTSecret)),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Router builds the HTTP surface: the JSON-RPC endpoint, the event stream,
// health, and metrics.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/rpc", s.handle)
	r.Get("/events/ws", s.handleEventsWS)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves the router until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("JSON-RPC server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := uuid.NewString()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", requestID)

	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	s.logger.Info("rpc request", "requestId", requestID, "method", req.Method, "source", clientSource(r))
	metrics().requests.WithLabelValues(req.Method, "received").Inc()
	defer metrics().latency.WithLabelValues(req.Method).Observe(time.Since(started).Seconds())

	if mutatingMethod(req.Method) && !s.allowSource(clientSource(r)) {
		metrics().errors.WithLabelValues(req.Method, "rate_limited").Inc()
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "request rate exceeded", nil)
		return
	}
	if adminMethod(req.Method) {
		if authErr := s.requireAuth(r); authErr != nil {
			metrics().errors.WithLabelValues(req.Method, "unauthorized").Inc()
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	switch req.Method {
	case "market_list":
		s.handleMarketList(w, req)
	case "market_setPrice":
		s.handleMarketSetPrice(w, req)
	case "market_unlist":
		s.handleMarketUnlist(w, req)
	case "market_buy":
		s.handleMarketBuy(w, req)
	case "market_getListing":
		s.handleMarketGetListing(w, req)
	case "market_currencyApproved":
		s.handleMarketCurrencyApproved(w, req)
	case "auction_create":
		s.handleAuctionCreate(w, req)
	case "auction_bid":
		s.handleAuctionBid(w, req)
	case "auction_cancel":
		s.handleAuctionCancel(w, req)
	case "auction_finalize":
		s.handleAuctionFinalize(w, req)
	case "auction_get":
		s.handleAuctionGet(w, req)
	case "auction_count":
		s.handleAuctionCount(w, req)
	case "auction_status":
		s.handleAuctionStatus(w, req)
	case "auction_bidInfo":
		s.handleAuctionBidInfo(w, req)
	case "auction_winner":
		s.handleAuctionWinner(w, req)
	case "admin_setFees":
		s.handleAdminSetFees(w, req)
	case "admin_setFeeDestination":
		s.handleAdminSetFeeDestination(w, req)
	case "admin_addCurrency":
		s.handleAdminAddCurrency(w, req)
	case "admin_removeCurrency":
		s.handleAdminRemoveCurrency(w, req)
	case "admin_recoverAsset":
		s.handleAdminRecoverAsset(w, req)
	case "admin_pause":
		s.handleAdminPause(w, req)
	case "admin_resume":
		s.handleAdminResume(w, req)
	case "admin_transferOwnership":
		s.handleAdminTransferOwnership(w, req)
	case "admin_transferAdmin":
		s.handleAdminTransferAdmin(w, req)
	case "events_since":
		s.handleEventsSince(w, req)
	default:
		metrics().errors.WithLabelValues(req.Method, "method_not_found").Inc()
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

func mutatingMethod(method string) bool {
	switch method {
	case "market_list", "market_setPrice", "market_unlist", "market_buy",
		"auction_create", "auction_bid", "auction_cancel", "auction_finalize":
		return true
	}
	return adminMethod(method)
}

func adminMethod(method string) bool {
	return strings.HasPrefix(method, "admin_")
}

// requireAuth validates the HS256 bearer token guarding the admin surface.
// Role checks on the caller address still happen inside the engines.
func (s *Server) requireAuth(r *http.Request) *RPCError {
	if len(s.jwtSecret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "admin authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tokenString == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithLeeway(authClockSkew))
	if err != nil || !token.Valid {
		return &RPCError{Code: codeUnauthorized, Message: "invalid admin credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(mutationsPerMin)/60.0, mutationBurst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeEngineError maps engine sentinel errors onto RPC error codes.
func writeEngineError(w http.ResponseWriter, id interface{}, method string, err error) {
	status := http.StatusBadRequest
	code := codeServerError
	switch {
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrOnlyDirectCallers):
		status, code = http.StatusForbidden, codeForbidden
	case errors.Is(err, market.ErrNotForSale), errors.Is(err, auction.ErrNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, common.ErrModulePaused), errors.Is(err, common.ErrReentrantCall),
		errors.Is(err, auction.ErrHasBid), errors.Is(err, auction.ErrAlreadyFinalized),
		errors.Is(err, auction.ErrNotActive), errors.Is(err, auction.ErrNotFinished):
		status, code = http.StatusConflict, codeConflict
	case errors.Is(err, common.ErrInvalidPrice), errors.Is(err, common.ErrUnapprovedCurrency),
		errors.Is(err, common.ErrInsufficientPayment), errors.Is(err, auction.ErrDoesNotOutbid),
		errors.Is(err, auction.ErrInvalidDuration), errors.Is(err, auction.ErrNoBid),
		errors.Is(err, auction.ErrUnknownAsset):
		status, code = http.StatusBadRequest, codeInvalidParams
	default:
		status, code = http.StatusInternalServerError, codeServerError
	}
	metrics().errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	writeError(w, status, id, code, err.Error(), nil)
}

func parseBigInt(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("amount required")
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return v, nil
}
