package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/psinet-protocol/psinet/internal/identity"
	"github.com/psinet-protocol/psinet/internal/ledger"
)

// handleCreateContext handles POST /api/contexts — create and sign a unit.
func (s *Server) handleCreateContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     string         `json:"type"`
		Content  map[string]any `json:"content"`
		Previous *string        `json:"previous"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == nil {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	unit, err := s.ledger.CreateUnit(ledger.ContextType(req.Type), req.Content, req.Previous, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrIdentityRequired):
			writeError(w, http.StatusConflict, "node has no identity")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, unit)
}

// handleQueryContexts handles GET /api/contexts — filter registered units.
func (s *Server) handleQueryContexts(w http.ResponseWriter, r *http.Request) {
	q := ledger.Query{
		Type:  ledger.ContextType(r.URL.Query().Get("type")),
		Owner: r.URL.Query().Get("owner"),
		After: r.URL.Query().Get("after"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}

	units := s.ledger.QueryUnits(q)
	if units == nil {
		units = []*ledger.ContextUnit{}
	}
	writeJSON(w, http.StatusOK, units)
}

// handleGetContext handles GET /api/contexts/{id}.
func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	unit, err := s.ledger.LoadUnit(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "context not found")
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

// handleVerifyContext handles GET /api/contexts/{id}/verify — check the
// unit's signature against the node's public key.
func (s *Server) handleVerifyContext(w http.ResponseWriter, r *http.Request) {
	unit, err := s.ledger.LoadUnit(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "context not found")
		return
	}
	ident := s.ids.Identity()
	if ident == nil {
		writeError(w, http.StatusConflict, "node has no identity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"context_id": unit.ID,
		"valid":      s.ledger.VerifyUnitSignature(unit, ident.PublicKey),
	})
}

// handleContextAccess handles GET /api/contexts/{id}/access — run the payment
// decision for the requester. Granted access is 200; otherwise the response
// is a real HTTP 402 carrying the payment contract.
func (s *Server) handleContextAccess(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("id")
	requester := r.URL.Query().Get("requester")
	if requester == "" {
		writeError(w, http.StatusBadRequest, "requester is required")
		return
	}

	resp, err := s.gate.Authorize(contextID, requester)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "authorization failed")
		return
	}
	if resp != nil {
		writeJSON(w, http.StatusPaymentRequired, resp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access":     "granted",
		"context_id": contextID,
	})
}
