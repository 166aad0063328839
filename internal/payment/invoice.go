package payment

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Invoice is a payment request a front end can render, including a URI
// suitable for QR encoding.
type Invoice struct {
	InvoiceID        string          `json:"invoice_id"`
	ContextID        string          `json:"context_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         Method          `json:"currency"`
	RecipientAddress string          `json:"recipient_address"`
	RecipientDID     string          `json:"recipient_did"`
	Description      string          `json:"description"`
	Created          time.Time       `json:"created"`
	QRCodeData       string          `json:"qr_code_data"`
}

// GenerateInvoice builds an invoice for paying the given amount toward a
// context, using the node's registered wallet address for the currency.
func (g *Gate) GenerateInvoice(contextID string, amount decimal.Decimal, currency Method, description string) *Invoice {
	g.mu.Lock()
	address := g.wallets[currency]
	g.mu.Unlock()

	return &Invoice{
		InvoiceID:        ulid.Make().String(),
		ContextID:        contextID,
		Amount:           amount,
		Currency:         currency,
		RecipientAddress: address,
		RecipientDID:     g.nodeDID,
		Description:      description,
		Created:          time.Now().UTC(),
		QRCodeData:       paymentURI(currency, address, amount),
	}
}

// paymentURI renders the wallet URI scheme for a payment method.
func paymentURI(currency Method, address string, amount decimal.Decimal) string {
	switch currency {
	case Bitcoin:
		return "bitcoin:" + address + "?amount=" + amount.String()
	case Ethereum:
		return "ethereum:" + address + "?value=" + amount.String()
	case Lightning:
		return "lightning:" + address + "?amount=" + amount.String()
	default:
		return string(currency) + ":" + address + "?amount=" + amount.String()
	}
}
