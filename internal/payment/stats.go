package payment

import "github.com/shopspring/decimal"

// PricingStats summarizes the gate's payment activity.
type PricingStats struct {
	TotalReceipts     int               `json:"total_receipts"`
	ConfirmedPayments int               `json:"confirmed_payments"`
	PendingPayments   int               `json:"pending_payments"`
	TotalRevenue      map[string]string `json:"total_revenue"` // currency -> decimal string
	OpenChannels      int               `json:"open_channels"`
	MonetizedContexts int               `json:"monetized_contexts"`
}

// Stats computes receipt, revenue, and channel counters.
func (g *Gate) Stats() PricingStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := PricingStats{
		TotalReceipts:     len(g.receipts),
		MonetizedContexts: len(g.requirements),
		TotalRevenue:      make(map[string]string),
	}

	revenue := make(map[Method]decimal.Decimal)
	for _, r := range g.receipts {
		if r.Status != StatusConfirmed {
			continue
		}
		stats.ConfirmedPayments++
		revenue[r.Currency] = revenue[r.Currency].Add(r.Amount)
	}
	stats.PendingPayments = stats.TotalReceipts - stats.ConfirmedPayments

	for currency, total := range revenue {
		stats.TotalRevenue[string(currency)] = total.String()
	}

	for _, ch := range g.channels {
		if ch.Status == ChannelOpen {
			stats.OpenChannels++
		}
	}
	return stats
}
