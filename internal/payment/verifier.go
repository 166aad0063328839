package payment

import "github.com/shopspring/decimal"

// Verifier checks a submitted payment against its settlement layer. It is a
// pluggable collaborator: the gate treats a false result as data (payment
// not confirmed), not as a fault, and must remain idempotent and
// side-effect-free on the ledger beyond the receipt status write.
type Verifier interface {
	Verify(currency Method, transactionRef string, expectedAmount decimal.Decimal, recipientAddress string) bool
}

// StaticVerifier returns a fixed result for every payment. It stands in for
// real chain verification in demos and tests; production deployments inject
// a verifier backed by their settlement infrastructure.
type StaticVerifier struct {
	Result bool
}

// Verify returns the configured result regardless of input.
func (v StaticVerifier) Verify(Method, string, decimal.Decimal, string) bool {
	return v.Result
}
