// Package publish replicates context units to external networks. Publishers
// return a storage reference the ledger can attach to the unit, so readers
// can locate the replica later. Replication is best-effort and never blocks
// local ledger writes.
package publish

import (
	"context"

	"github.com/psinet-protocol/psinet/internal/ledger"
)

// Publisher pushes a context unit to one storage or relay network and
// returns an opaque reference (CID, event ID, URL) for it.
type Publisher interface {
	// Name identifies the backend for storage-ref bookkeeping ("ipfs",
	// "nostr").
	Name() string
	Publish(ctx context.Context, unit *ledger.ContextUnit) (ref string, err error)
}
