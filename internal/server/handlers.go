package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"distributor/docs/schema/openapi"
	"distributor/internal/distributor"
	"distributor/pkg/domain"

	"github.com/go-chi/chi/v5"
)

// signerHeader carries the address that authorizes a request. It stands in
// for a signature.
const signerHeader = "X-Signer"

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  uint32 `json:"code,omitempty"`
}

type amountBody struct {
	Amount domain.Amount `json:"amount"`
}

type claimStatus struct {
	Address    domain.Address `json:"address"`
	Claimed    bool           `json:"claimed"`
	Allocation domain.Amount  `json:"allocation"`
}

type initializeRequest struct {
	Token    domain.Address `json:"token"`
	Admin    domain.Address `json:"admin"`
	Deadline domain.Height  `json:"deadline"`
}

type distributionRequest struct {
	Entries []distributor.Allocation `json:"entries"`
}

type adminRequest struct {
	Admin domain.Address `json:"admin"`
}

type claimRequest struct {
	User domain.Address `json:"user"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if ce, ok := domain.AsContractError(err); ok {
		writeJSON(w, contractStatus(ce), errorBody{Error: ce.Name, Code: ce.Code})
		return
	}
	var rv domain.RuleViolationError
	if errors.As(err, &rv) {
		writeJSON(w, http.StatusConflict, errorBody{Error: rv.Error()})
		return
	}
	s.log.Error("server: request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

// contractStatus maps a contract error to an HTTP status: authorization
// failures are 403, malformed arguments 400, every lifecycle violation 409.
func contractStatus(ce domain.ContractError) int {
	switch ce {
	case domain.ErrUnauthorized:
		return http.StatusForbidden
	case domain.ErrInvalidArgument, distributor.ErrDeadlineOutOfRange:
		return http.StatusBadRequest
	case domain.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf(format, args...)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid request body: %v", err)
		return false
	}
	return true
}

// signer returns the X-Signer address. A missing header yields the zero
// address, which authorizes nothing.
func signer(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	raw := r.Header.Get(signerHeader)
	if raw == "" {
		return domain.Address{}, true
	}
	addr, err := domain.ParseAddress(raw)
	if err != nil {
		badRequest(w, "invalid %s header: %v", signerHeader, err)
		return domain.Address{}, false
	}
	return addr, true
}

func pathAddress(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		badRequest(w, "invalid address: %v", err)
		return domain.Address{}, false
	}
	return addr, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "height": s.cfg.Host.Height()})
}

func handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.Spec())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Distributor.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	claimed, err := s.cfg.Distributor.GetClaimed(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	allocation, err := s.cfg.Distributor.GetAllocation(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimStatus{Address: addr, Claimed: claimed, Allocation: allocation})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	balance, err := s.cfg.Token.Balance(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: balance})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.cfg.Events.Events(r.URL.Query().Get("topic"))})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.cfg.Distributor.Initialize(r.Context(), req.Token, req.Admin, req.Deadline); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetDistribution(w http.ResponseWriter, r *http.Request) {
	from, ok := signer(w, r)
	if !ok {
		return
	}
	var req distributionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.cfg.Distributor.SetDistribution(r.Context(), from, req.Entries); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	from, ok := signer(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Distributor.Finalize(r.Context(), from); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	from, ok := signer(w, r)
	if !ok {
		return
	}
	var req adminRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.cfg.Distributor.SetAdmin(r.Context(), from, req.Admin); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePostClaim(w http.ResponseWriter, r *http.Request) {
	from, ok := signer(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := s.cfg.Distributor.ClaimAs(r.Context(), from, req.User)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: amount})
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	amount, err := s.cfg.Distributor.Refund(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: amount})
}
