package payment

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Gate decides whether a requester may access a context, based on payment
// requirements, receipts, and channel balances. Safe for concurrent use: the
// gate mutex makes the read-compare-deduct step on channel balances a single
// critical section, so two concurrent authorizations can never jointly
// overdraw a channel. The external verifier is never called under the lock.
type Gate struct {
	mu       sync.Mutex
	nodeDID  string
	store    Store
	verifier Verifier
	wallets  map[Method]string

	requirements map[string]*Requirement // keyed by context ID
	receipts     map[string]*Receipt     // keyed by receipt ID
	channels     map[string]*Channel     // keyed by channel ID
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithStore enables write-through persistence and loads existing state.
func WithStore(s Store) GateOption {
	return func(g *Gate) { g.store = s }
}

// WithVerifier injects the external payment verifier. Defaults to a
// StaticVerifier that accepts everything, mirroring a demo deployment.
func WithVerifier(v Verifier) GateOption {
	return func(g *Gate) { g.verifier = v }
}

// WithWallet registers the node's receiving address for a payment method.
func WithWallet(m Method, address string) GateOption {
	return func(g *Gate) { g.wallets[m] = address }
}

// NewGate creates a Gate for the node identified by nodeDID.
func NewGate(nodeDID string, opts ...GateOption) (*Gate, error) {
	g := &Gate{
		nodeDID:      nodeDID,
		verifier:     StaticVerifier{Result: true},
		wallets:      make(map[Method]string),
		requirements: make(map[string]*Requirement),
		receipts:     make(map[string]*Receipt),
		channels:     make(map[string]*Channel),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.store != nil {
		reqs, receipts, channels, err := g.store.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load payment state: %w", err)
		}
		g.requirements = reqs
		g.receipts = receipts
		g.channels = channels
	}
	return g, nil
}

// SetRequirement registers (or replaces) the payment requirement for a
// context. A nil ttl means the requirement never lapses.
func (g *Gate) SetRequirement(contextID string, model PricingModel, amount decimal.Decimal, currency Method, recipientAddress string, ttl *time.Duration, description string) (*Requirement, error) {
	if !model.Valid() {
		return nil, fmt.Errorf("payment: unknown pricing model %q", model)
	}
	if !currency.Valid() {
		return nil, fmt.Errorf("payment: unknown payment method %q", currency)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("payment: negative amount %s", amount)
	}

	req := &Requirement{
		PricingModel:     model,
		Amount:           amount,
		Currency:         currency,
		RecipientAddress: recipientAddress,
		Description:      description,
		ContextID:        contextID,
	}
	if description == "" {
		req.Description = "Payment for context " + shortID(contextID)
	}
	if ttl != nil {
		expires := time.Now().UTC().Add(*ttl)
		req.Expires = &expires
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.store != nil {
		if err := g.store.SaveRequirement(req); err != nil {
			return nil, err
		}
	}
	g.requirements[contextID] = req
	return req, nil
}

// Requirement returns the active requirement for a context, if any.
func (g *Gate) Requirement(contextID string) (*Requirement, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.requirements[contextID]
	return r, ok
}

// Authorize runs the access decision for (contextID, requesterDID). A nil
// response means access is granted; otherwise the response carries the 402
// payment-required contract. The decision order:
//
//  1. No requirement registered: granted (free).
//  2. Requirement lapsed: granted; a lapsed requirement means free access.
//  3. A confirmed receipt exists for this context and requester: granted.
//     Once paid, a context stays accessible to that requester indefinitely.
//  4. An open, unexpired channel from the requester to this node covers the
//     amount: deduct it atomically and grant.
//  5. Otherwise: payment required.
func (g *Gate) Authorize(contextID, requesterDID string) (*X402Response, error) {
	now := time.Now().UTC()

	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requirements[contextID]
	if !ok {
		return nil, nil
	}
	if req.Lapsed(now) {
		return nil, nil
	}

	for _, r := range g.receipts {
		if r.ContextID == contextID && r.PayerDID == requesterDID && r.Status == StatusConfirmed {
			return nil, nil
		}
	}

	for _, ch := range g.channels {
		if ch.PayerDID != requesterDID || ch.RecipientDID != g.nodeDID {
			continue
		}
		if ch.Status != ChannelOpen || now.After(ch.Expires) {
			continue
		}
		if ch.CurrentBalance.LessThan(req.Amount) {
			continue
		}

		// Deduct. Persist before mutating so a failed write leaves the
		// in-memory balance untouched.
		newBalance := ch.CurrentBalance.Sub(req.Amount)
		if g.store != nil {
			updated := *ch
			updated.CurrentBalance = newBalance
			if err := g.store.SaveChannel(&updated); err != nil {
				return nil, fmt.Errorf("persist channel deduction: %w", err)
			}
		}
		ch.CurrentBalance = newBalance
		return nil, nil
	}

	return &X402Response{
		StatusCode:             402,
		Message:                "Payment Required",
		PaymentRequirement:     req,
		PaymentMethodsAccepted: []Method{Bitcoin, Ethereum, Lightning},
		PaymentEndpoint:        "psinet://payments/" + g.nodeDID,
	}, nil
}

// OpenChannel opens a micropayment channel from payerDID to this node.
// The balance starts at full capacity.
func (g *Gate) OpenChannel(payerDID string, capacity decimal.Decimal, currency Method, ttl time.Duration) (*Channel, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("payment: unknown payment method %q", currency)
	}
	if capacity.IsNegative() || capacity.IsZero() {
		return nil, fmt.Errorf("payment: channel capacity must be positive, got %s", capacity)
	}

	now := time.Now().UTC()
	ch := &Channel{
		ChannelID:      ulid.Make().String(),
		PayerDID:       payerDID,
		RecipientDID:   g.nodeDID,
		TotalCapacity:  capacity,
		CurrentBalance: capacity,
		Currency:       currency,
		Opened:         now,
		Expires:        now.Add(ttl),
		Status:         ChannelOpen,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.store != nil {
		if err := g.store.SaveChannel(ch); err != nil {
			return nil, err
		}
	}
	g.channels[ch.ChannelID] = ch
	return ch, nil
}

// Channel returns a channel by ID.
func (g *Gate) Channel(channelID string) (*Channel, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.channels[channelID]
	if !ok {
		return nil, false
	}
	copied := *ch
	return &copied, true
}

// CloseChannel marks a channel closed. Reporting the remaining balance is
// the caller's responsibility; there is no automatic settlement.
func (g *Gate) CloseChannel(channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.channels[channelID]
	if !ok {
		return ErrUnknownChannel
	}
	if ch.Status != ChannelOpen {
		return ErrChannelClosed
	}

	if g.store != nil {
		updated := *ch
		updated.Status = ChannelClosed
		if err := g.store.SaveChannel(&updated); err != nil {
			return fmt.Errorf("persist channel close: %w", err)
		}
	}
	ch.Status = ChannelClosed
	return nil
}

// RecordReceipt creates a pending receipt for a payment submitted against
// the context's requirement.
func (g *Gate) RecordReceipt(contextID, payerDID, transactionHash string) (*Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requirements[contextID]
	if !ok {
		return nil, ErrNoRequirement
	}

	r := &Receipt{
		ReceiptID:       ulid.Make().String(),
		PayerDID:        payerDID,
		RecipientDID:    g.nodeDID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		TransactionHash: transactionHash,
		Status:          StatusPending,
		Timestamp:       time.Now().UTC(),
		ContextID:       contextID,
	}

	if g.store != nil {
		if err := g.store.SaveReceipt(r); err != nil {
			return nil, err
		}
	}
	g.receipts[r.ReceiptID] = r
	return r, nil
}

// ConfirmReceipt runs the external verifier over a pending receipt and
// records the outcome: confirmed on success, failed otherwise. Re-confirming
// an already confirmed receipt is a no-op returning true. Only pending and
// failed receipts can transition to confirmed; a refunded receipt stays
// refunded, even when a confirm races the refund. The verifier runs outside
// the gate lock.
func (g *Gate) ConfirmReceipt(receiptID string) (bool, error) {
	g.mu.Lock()
	r, ok := g.receipts[receiptID]
	if !ok {
		g.mu.Unlock()
		return false, ErrUnknownReceipt
	}
	switch r.Status {
	case StatusConfirmed:
		g.mu.Unlock()
		return true, nil
	case StatusPending, StatusFailed:
	default:
		status := r.Status
		g.mu.Unlock()
		return false, fmt.Errorf("payment: receipt %s is %s and cannot be confirmed", receiptID, status)
	}
	currency := r.Currency
	txHash := r.TransactionHash
	amount := r.Amount
	recipient := ""
	if req, ok := g.requirements[r.ContextID]; ok {
		recipient = req.RecipientAddress
	}
	g.mu.Unlock()

	verified := g.verifier.Verify(currency, txHash, amount, recipient)

	g.mu.Lock()
	defer g.mu.Unlock()

	// Recheck: the status may have moved while the verifier ran unlocked.
	switch r.Status {
	case StatusConfirmed:
		return true, nil
	case StatusPending, StatusFailed:
	default:
		return false, fmt.Errorf("payment: receipt %s is %s and cannot be confirmed", receiptID, r.Status)
	}

	status := StatusFailed
	if verified {
		status = StatusConfirmed
	}
	if g.store != nil {
		updated := *r
		updated.Status = status
		if err := g.store.SaveReceipt(&updated); err != nil {
			return false, fmt.Errorf("persist receipt status: %w", err)
		}
	}
	r.Status = status
	return verified, nil
}

// RefundReceipt moves a confirmed receipt to refunded. Only confirmed
// receipts can be refunded.
func (g *Gate) RefundReceipt(receiptID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.receipts[receiptID]
	if !ok {
		return ErrUnknownReceipt
	}
	if r.Status != StatusConfirmed {
		return fmt.Errorf("payment: receipt %s is %s, only confirmed receipts can be refunded", receiptID, r.Status)
	}

	if g.store != nil {
		updated := *r
		updated.Status = StatusRefunded
		if err := g.store.SaveReceipt(&updated); err != nil {
			return fmt.Errorf("persist receipt refund: %w", err)
		}
	}
	r.Status = StatusRefunded
	return nil
}

// Receipt returns a receipt by ID.
func (g *Gate) Receipt(receiptID string) (*Receipt, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.receipts[receiptID]
	if !ok {
		return nil, false
	}
	copied := *r
	return &copied, true
}

// shortID truncates an ID for display in generated descriptions.
func shortID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}
