package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/psinet-protocol/psinet/internal/identity"
)

// handleCreateChain handles POST /api/chains — record an ordered sequence of
// unit IDs as a chain.
func (s *Server) handleCreateChain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Contexts []string `json:"contexts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Contexts) == 0 {
		writeError(w, http.StatusBadRequest, "contexts is required")
		return
	}

	chain, err := s.ledger.CreateChain(req.Contexts)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityRequired) {
			writeError(w, http.StatusConflict, "node has no identity")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create chain")
		return
	}
	writeJSON(w, http.StatusCreated, chain)
}

// handleGetChain handles GET /api/chains/{id}.
func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	chain, ok := s.ledger.GetChain(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "chain not found")
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

// handleVerifyChain handles GET /api/chains/{id}/verify — walk the chain and
// report the first break, if any. Verification failure is data, not an HTTP
// error: an invalid chain still returns 200 with the result.
func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.ledger.GetChain(id); !ok {
		writeError(w, http.StatusNotFound, "chain not found")
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.VerifyChain(id))
}
