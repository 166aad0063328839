// Package payment implements x402 gating for context access: payment
// requirements, receipts, and micropayment channels, with the decision
// procedure that grants access or returns a 402-shaped response.
package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PricingModel is the closed set of pricing models a requirement can use.
type PricingModel string

const (
	Free         PricingModel = "free"
	PayPerAccess PricingModel = "pay_per_access"
	PayPerQuery  PricingModel = "pay_per_query"
	Subscription PricingModel = "subscription"
	PayPerToken  PricingModel = "pay_per_token"
	Auction      PricingModel = "auction"
)

// Valid reports whether p is a known pricing model.
func (p PricingModel) Valid() bool {
	switch p {
	case Free, PayPerAccess, PayPerQuery, Subscription, PayPerToken, Auction:
		return true
	}
	return false
}

// Method is the closed set of supported payment methods.
type Method string

const (
	Bitcoin      Method = "bitcoin"
	Ethereum     Method = "ethereum"
	Lightning    Method = "lightning"
	CustomToken  Method = "custom_token"
	ArweaveAR    Method = "arweave_ar"
	IPFSFilecoin Method = "ipfs_filecoin"
)

// Valid reports whether m is a known payment method.
func (m Method) Valid() bool {
	switch m {
	case Bitcoin, Ethereum, Lightning, CustomToken, ArweaveAR, IPFSFilecoin:
		return true
	}
	return false
}

// Status is a receipt's lifecycle state. A receipt is created pending,
// becomes confirmed or failed after external verification, and never leaves
// confirmed except through an explicit refund.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
	StatusRefunded  Status = "refunded"
)

// ChannelStatus is a payment channel's lifecycle state.
type ChannelStatus string

const (
	ChannelOpen     ChannelStatus = "open"
	ChannelClosed   ChannelStatus = "closed"
	ChannelDisputed ChannelStatus = "disputed"
)

// Payment errors surfaced to callers. Insufficient balance is not among
// them: within Authorize it is an expected outcome that falls through to the
// 402 response rather than an error.
var (
	ErrNoRequirement  = errors.New("payment: no requirement registered for context")
	ErrUnknownChannel = errors.New("payment: unknown channel")
	ErrChannelClosed  = errors.New("payment: channel is not open")
	ErrUnknownReceipt = errors.New("payment: unknown receipt")
)

// Requirement defines what a requester must pay to access one context.
// One active requirement per context.
type Requirement struct {
	PricingModel     PricingModel    `json:"pricing_model"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         Method          `json:"currency"`
	RecipientAddress string          `json:"recipient_address"`
	Expires          *time.Time      `json:"expires,omitempty"`
	Description      string          `json:"description,omitempty"`
	ContextID        string          `json:"context_id"`
}

// Lapsed reports whether the requirement's expiry has passed. A lapsed
// requirement means free access.
func (r *Requirement) Lapsed(now time.Time) bool {
	return r.Expires != nil && now.After(*r.Expires)
}

// Receipt proves a payment was submitted and tracks its verification state.
type Receipt struct {
	ReceiptID       string          `json:"receipt_id"`
	PayerDID        string          `json:"payer_did"`
	RecipientDID    string          `json:"recipient_did"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        Method          `json:"currency"`
	TransactionHash string          `json:"transaction_hash"`
	Status          Status          `json:"status"`
	Timestamp       time.Time       `json:"timestamp"`
	ContextID       string          `json:"context_id"`
}

// Channel is a Lightning-style micropayment channel: a balance reservation
// that permits repeated small deductions without per-transaction settlement.
// Invariant: 0 <= CurrentBalance <= TotalCapacity at all times; the balance
// only decreases, via successful deductions.
type Channel struct {
	ChannelID      string          `json:"channel_id"`
	PayerDID       string          `json:"payer_did"`
	RecipientDID   string          `json:"recipient_did"`
	TotalCapacity  decimal.Decimal `json:"total_capacity"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Currency       Method          `json:"currency"`
	Opened         time.Time       `json:"opened"`
	Expires        time.Time       `json:"expires"`
	Status         ChannelStatus   `json:"status"`
}

// X402Response is the 402 Payment Required contract any serving layer can
// render. HTTP transport itself is a front-end concern.
type X402Response struct {
	StatusCode             int          `json:"status_code"`
	Message                string       `json:"message"`
	PaymentRequirement     *Requirement `json:"payment_requirement"`
	PaymentMethodsAccepted []Method     `json:"payment_methods_accepted"`
	PaymentEndpoint        string       `json:"payment_endpoint"`
}
