package rpc

import (
	"net/http"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftsettle/storage"
)

type adminSetFeesParams struct {
	Caller   string `json:"caller"`
	CoinBps  uint32 `json:"coinBps"`
	TokenBps uint32 `json:"tokenBps"`
}

type adminAddressParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

type adminRecoverParams struct {
	Caller string `json:"caller"`
	Index  uint64 `json:"index"`
}

type adminModuleParams struct {
	Caller string `json:"caller"`
	Module string `json:"module"`
}

func (s *Server) handleAdminSetFees(w http.ResponseWriter, req *RPCRequest) {
	var params adminSetFeesParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.UpdateFee(caller, params.CoinBps, params.TokenBps); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	s.persistFees()
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleAdminSetFeeDestination(w http.ResponseWriter, req *RPCRequest) {
	var params adminAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	destination, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.SetFeeDestination(caller, destination); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	s.persistFees()
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleAdminAddCurrency(w http.ResponseWriter, req *RPCRequest) {
	var params adminAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	currency, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.AddCurrency(caller, currency); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"added": true})
}

func (s *Server) handleAdminRemoveCurrency(w http.ResponseWriter, req *RPCRequest) {
	var params adminAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	currency, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.RemoveCurrency(caller, currency); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"removed": true})
}

func (s *Server) handleAdminRecoverAsset(w http.ResponseWriter, req *RPCRequest) {
	var params adminRecoverParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.auction.RecoverAsset(caller, params.Index); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"recovered": true})
}

func (s *Server) handleAdminPause(w http.ResponseWriter, req *RPCRequest) {
	s.setModulePaused(w, req, true)
}

func (s *Server) handleAdminResume(w http.ResponseWriter, req *RPCRequest) {
	s.setModulePaused(w, req, false)
}

func (s *Server) setModulePaused(w http.ResponseWriter, req *RPCRequest, paused bool) {
	var params adminModuleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.roles.RequireAdmin(caller); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	if params.Module == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "module required", nil)
		return
	}
	s.pauses.SetPaused(params.Module, paused)
	s.logger.Info("module pause updated", "module", params.Module, "paused", paused)
	writeResult(w, req.ID, map[string]bool{"paused": paused})
}

func (s *Server) handleAdminTransferOwnership(w http.ResponseWriter, req *RPCRequest) {
	s.transferRole(w, req, s.roles.TransferOwnership)
}

func (s *Server) handleAdminTransferAdmin(w http.ResponseWriter, req *RPCRequest) {
	s.transferRole(w, req, s.roles.TransferAdmin)
}

func (s *Server) transferRole(w http.ResponseWriter, req *RPCRequest, transfer func(caller, next [20]byte) error) {
	var params adminAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	next, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := transfer(caller, next); err != nil {
		writeEngineError(w, req.ID, req.Method, err)
		return
	}
	s.persistRoles()
	writeResult(w, req.ID, map[string]bool{"transferred": true})
}

// persistFees snapshots the live fee policy so a restart restores admin
// changes made since the config file was written.
func (s *Server) persistFees() {
	if s.state == nil || s.policy == nil {
		return
	}
	snapshot := storage.FeeSnapshot{
		CoinBps:     s.policy.PlatformFeeInCoin(),
		TokenBps:    s.policy.PlatformFeeInToken(),
		Destination: ethcommon.Address(s.policy.FeeDestination()).Hex(),
	}
	if err := s.state.FeesPut(snapshot); err != nil {
		s.logger.Error("fee snapshot persist failed", "error", err)
	}
}

// persistRoles snapshots the current role holders, mirroring persistFees.
func (s *Server) persistRoles() {
	if s.state == nil || s.roles == nil {
		return
	}
	snapshot := storage.RoleSnapshot{
		Owner: ethcommon.Address(s.roles.Owner()).Hex(),
		Admin: ethcommon.Address(s.roles.Admin()).Hex(),
	}
	if err := s.state.RolesPut(snapshot); err != nil {
		s.logger.Error("role snapshot persist failed", "error", err)
	}
}
