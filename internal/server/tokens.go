package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/psinet-protocol/psinet/internal/capability"
	"github.com/psinet-protocol/psinet/internal/identity"
)

// handleGrantToken handles POST /api/tokens — issue a signed capability
// token from this node to a grantee.
func (s *Server) handleGrantToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Capability string  `json:"capability"`
		GrantedTo  string  `json:"granted_to"`
		ContextID  *string `json:"context_id"`
		TTLSeconds int64   `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.GrantedTo == "" {
		writeError(w, http.StatusBadRequest, "granted_to is required")
		return
	}
	if req.TTLSeconds <= 0 {
		req.TTLSeconds = 3600
	}

	token, err := s.caps.Grant(capability.Capability(req.Capability), req.GrantedTo, req.ContextID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityRequired) {
			writeError(w, http.StatusConflict, "node has no identity")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// handleCheckToken handles POST /api/tokens/check — evaluate a presented
// token against a required capability and optional context.
func (s *Server) handleCheckToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token     *capability.AccessToken `json:"token"`
		Required  string                  `json:"required"`
		ContextID *string                 `json:"context_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Token == nil {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	allowed := s.caps.Check(req.Token, capability.Capability(req.Required), req.ContextID)
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}
