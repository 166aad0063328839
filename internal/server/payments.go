package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/psinet-protocol/psinet/internal/payment"
)

// handleSetRequirement handles POST /api/payments/requirements — monetize a
// context.
func (s *Server) handleSetRequirement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContextID        string `json:"context_id"`
		PricingModel     string `json:"pricing_model"`
		Amount           string `json:"amount"`
		Currency         string `json:"currency"`
		RecipientAddress string `json:"recipient_address"`
		TTLSeconds       *int64 `json:"ttl_seconds"`
		Description      string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ContextID == "" {
		writeError(w, http.StatusBadRequest, "context_id is required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	var ttl *time.Duration
	if req.TTLSeconds != nil {
		d := time.Duration(*req.TTLSeconds) * time.Second
		ttl = &d
	}

	requirement, err := s.gate.SetRequirement(req.ContextID, payment.PricingModel(req.PricingModel), amount, payment.Method(req.Currency), req.RecipientAddress, ttl, req.Description)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, requirement)
}

// handleGetRequirement handles GET /api/payments/requirements/{context}.
func (s *Server) handleGetRequirement(w http.ResponseWriter, r *http.Request) {
	req, ok := s.gate.Requirement(r.PathValue("context"))
	if !ok {
		writeError(w, http.StatusNotFound, "no requirement for context")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// handleOpenChannel handles POST /api/payments/channels — open a
// micropayment channel toward this node.
func (s *Server) handleOpenChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PayerDID   string `json:"payer_did"`
		Capacity   string `json:"capacity"`
		Currency   string `json:"currency"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PayerDID == "" {
		writeError(w, http.StatusBadRequest, "payer_did is required")
		return
	}
	capacity, err := decimal.NewFromString(req.Capacity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid capacity")
		return
	}
	if req.TTLSeconds <= 0 {
		req.TTLSeconds = 86400
	}

	ch, err := s.gate.OpenChannel(req.PayerDID, capacity, payment.Method(req.Currency), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

// handleGetChannel handles GET /api/payments/channels/{id}.
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.gate.Channel(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// handleCloseChannel handles POST /api/payments/channels/{id}/close.
func (s *Server) handleCloseChannel(w http.ResponseWriter, r *http.Request) {
	err := s.gate.CloseChannel(r.PathValue("id"))
	switch {
	case errors.Is(err, payment.ErrUnknownChannel):
		writeError(w, http.StatusNotFound, "channel not found")
	case errors.Is(err, payment.ErrChannelClosed):
		writeError(w, http.StatusConflict, "channel is not open")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to close channel")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	}
}

// handleRecordReceipt handles POST /api/payments/receipts — submit a payment
// for a monetized context. The receipt starts pending.
func (s *Server) handleRecordReceipt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContextID       string `json:"context_id"`
		PayerDID        string `json:"payer_did"`
		TransactionHash string `json:"transaction_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ContextID == "" || req.PayerDID == "" {
		writeError(w, http.StatusBadRequest, "context_id and payer_did are required")
		return
	}

	receipt, err := s.gate.RecordReceipt(req.ContextID, req.PayerDID, req.TransactionHash)
	if err != nil {
		if errors.Is(err, payment.ErrNoRequirement) {
			writeError(w, http.StatusNotFound, "no requirement for context")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to record receipt")
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// handleConfirmReceipt handles POST /api/payments/receipts/{id}/confirm —
// run external verification over a pending receipt.
func (s *Server) handleConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	confirmed, err := s.gate.ConfirmReceipt(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, payment.ErrUnknownReceipt) {
			writeError(w, http.StatusNotFound, "receipt not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to confirm receipt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"confirmed": confirmed})
}

// handleGenerateInvoice handles POST /api/payments/invoices.
func (s *Server) handleGenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContextID   string `json:"context_id"`
		Amount      string `json:"amount"`
		Currency    string `json:"currency"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	currency := payment.Method(req.Currency)
	if !currency.Valid() {
		writeError(w, http.StatusBadRequest, "unknown payment method")
		return
	}

	writeJSON(w, http.StatusCreated, s.gate.GenerateInvoice(req.ContextID, amount, currency, req.Description))
}

// handlePaymentStats handles GET /api/payments/stats.
func (s *Server) handlePaymentStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gate.Stats())
}
