package publish

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/psinet-protocol/psinet/internal/canonical"
	"github.com/psinet-protocol/psinet/internal/ledger"
)

// Parameterized-replaceable kinds for context units. The base kind covers
// types without a dedicated mapping; the "d" tag carries the unit ID, so
// republishing the same unit replaces the prior event instead of duplicating
// it.
const (
	KindContextUnit  = 30078
	KindConversation = 30079
	KindMemory       = 30080
	KindSkill        = 30081
	KindKnowledge    = 30082
)

// NostrPublisher signs context units as parameterized-replaceable events and
// publishes them to a set of relays. The returned reference is the event ID.
type NostrPublisher struct {
	relays  []string
	privKey string
	pubKey  string
}

// NewNostrPublisher creates a publisher signing with privKey (hex). An empty
// privKey generates an ephemeral key, useful for demos.
func NewNostrPublisher(relays []string, privKey string) (*NostrPublisher, error) {
	if privKey == "" {
		privKey = nostr.GeneratePrivateKey()
	}
	pub, err := nostr.GetPublicKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("derive nostr pubkey: %w", err)
	}
	return &NostrPublisher{relays: relays, privKey: privKey, pubKey: pub}, nil
}

// Name implements Publisher.
func (p *NostrPublisher) Name() string { return "nostr" }

// Publish signs the unit as an event and sends it to every configured relay.
// It succeeds if at least one relay accepts the event.
func (p *NostrPublisher) Publish(ctx context.Context, unit *ledger.ContextUnit) (string, error) {
	payload, err := canonical.Marshal(unit)
	if err != nil {
		return "", fmt.Errorf("encode unit: %w", err)
	}

	ev := nostr.Event{
		PubKey:    p.pubKey,
		CreatedAt: nostr.Now(),
		Kind:      eventKind(unit.Type),
		Tags: nostr.Tags{
			nostr.Tag{"d", unit.ID},
			nostr.Tag{"t", string(unit.Type)},
			nostr.Tag{"owner", unit.Owner},
		},
		Content: string(payload),
	}
	if err := ev.Sign(p.privKey); err != nil {
		return "", fmt.Errorf("sign event: %w", err)
	}

	var lastErr error
	accepted := 0
	for _, url := range p.relays {
		relay, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			lastErr = fmt.Errorf("connect %s: %w", url, err)
			continue
		}
		if err := relay.Publish(ctx, ev); err != nil {
			lastErr = fmt.Errorf("publish to %s: %w", url, err)
			relay.Close()
			continue
		}
		relay.Close()
		accepted++
	}
	if accepted == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no relays configured")
		}
		return "", fmt.Errorf("nostr publish: %w", lastErr)
	}
	return ev.ID, nil
}

// eventKind maps a context type to its event kind.
func eventKind(t ledger.ContextType) int {
	switch t {
	case ledger.TypeConversation:
		return KindConversation
	case ledger.TypeMemory:
		return KindMemory
	case ledger.TypeSkill:
		return KindSkill
	case ledger.TypeKnowledge:
		return KindKnowledge
	default:
		return KindContextUnit
	}
}
