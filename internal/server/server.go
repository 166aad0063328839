// Package server exposes the node's HTTP API: context units and chains,
// capability tokens, and x402 payment gating.
package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/psinet-protocol/psinet/internal/capability"
	"github.com/psinet-protocol/psinet/internal/identity"
	"github.com/psinet-protocol/psinet/internal/ledger"
	"github.com/psinet-protocol/psinet/internal/payment"
	"github.com/psinet-protocol/psinet/internal/ratelimit"
)

// Server is the main HTTP server for the PsiNet node API.
type Server struct {
	ids     *identity.Manager
	ledger  *ledger.Ledger
	caps    *capability.Service
	gate    *payment.Gate
	limiter *ratelimit.Limiter
	mux     *http.ServeMux
}

// New creates a Server with all routes registered. Requests are rate limited
// per client IP at 120 requests per minute.
func New(ids *identity.Manager, led *ledger.Ledger, caps *capability.Service, gate *payment.Gate) *Server {
	s := &Server{
		ids:     ids,
		ledger:  led,
		caps:    caps,
		gate:    gate,
		limiter: ratelimit.New(120, time.Minute),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(getIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	// Health and node info
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/identity", s.handleIdentity)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	// Context units
	s.mux.HandleFunc("POST /api/contexts", s.handleCreateContext)
	s.mux.HandleFunc("GET /api/contexts", s.handleQueryContexts)
	s.mux.HandleFunc("GET /api/contexts/{id}", s.handleGetContext)
	s.mux.HandleFunc("GET /api/contexts/{id}/verify", s.handleVerifyContext)
	s.mux.HandleFunc("GET /api/contexts/{id}/access", s.handleContextAccess)

	// Chains
	s.mux.HandleFunc("POST /api/chains", s.handleCreateChain)
	s.mux.HandleFunc("GET /api/chains/{id}", s.handleGetChain)
	s.mux.HandleFunc("GET /api/chains/{id}/verify", s.handleVerifyChain)

	// Capability tokens
	s.mux.HandleFunc("POST /api/tokens", s.handleGrantToken)
	s.mux.HandleFunc("POST /api/tokens/check", s.handleCheckToken)

	// Payments
	s.mux.HandleFunc("POST /api/payments/requirements", s.handleSetRequirement)
	s.mux.HandleFunc("GET /api/payments/requirements/{context}", s.handleGetRequirement)
	s.mux.HandleFunc("POST /api/payments/channels", s.handleOpenChannel)
	s.mux.HandleFunc("GET /api/payments/channels/{id}", s.handleGetChannel)
	s.mux.HandleFunc("POST /api/payments/channels/{id}/close", s.handleCloseChannel)
	s.mux.HandleFunc("POST /api/payments/receipts", s.handleRecordReceipt)
	s.mux.HandleFunc("POST /api/payments/receipts/{id}/confirm", s.handleConfirmReceipt)
	s.mux.HandleFunc("POST /api/payments/invoices", s.handleGenerateInvoice)
	s.mux.HandleFunc("GET /api/payments/stats", s.handlePaymentStats)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "psinet",
		"did":     s.ids.DID(),
	})
}

// handleIdentity returns the node's DID document.
func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	doc := s.ids.Document()
	if doc == nil {
		writeError(w, http.StatusNotFound, "node has no identity")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleStats returns ledger counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Stats())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// getIP extracts the client IP from a request, respecting X-Forwarded-For
// for proxied deployments.
func getIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
