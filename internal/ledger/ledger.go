package ledger

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/psinet-protocol/psinet/internal/identity"
)

// Ledger creates, signs, stores, and verifies context units and chains.
// Safe for concurrent use: unit and chain registration is append-only by ID,
// and creating the same content twice is an idempotent no-op because content
// addressing guarantees the duplicates are semantically identical.
type Ledger struct {
	mu    sync.RWMutex
	ids   *identity.Manager
	store Store

	units  map[string]*ContextUnit
	order  []string // insertion order, backs query iteration
	chains map[string]*ContextChain
}

// New creates a Ledger bound to an identity manager and a store.
func New(ids *identity.Manager, store Store) *Ledger {
	return &Ledger{
		ids:    ids,
		store:  store,
		units:  make(map[string]*ContextUnit),
		chains: make(map[string]*ContextChain),
	}
}

// Hydrate loads every stored unit and chain into the in-memory index, sorted
// by timestamp so query order survives restarts. Call once after New when
// reopening an existing data directory.
func (l *Ledger) Hydrate() error {
	units, err := l.store.ListUnits()
	if err != nil {
		return fmt.Errorf("hydrate units: %w", err)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Timestamp < units[j].Timestamp })

	chains, err := l.store.ListChains()
	if err != nil {
		return fmt.Errorf("hydrate chains: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range units {
		l.register(u)
	}
	for _, c := range chains {
		l.chains[c.ChainID] = c
	}
	return nil
}

// CreateUnit builds, content-addresses, signs, and stores a new unit in one
// call. There is no persisted draft state: the unit either comes back stored
// or not at all. A failed store write registers nothing in memory.
func (l *Ledger) CreateUnit(typ ContextType, content map[string]any, previous *string, metadata map[string]any) (*ContextUnit, error) {
	if l.ids.DID() == "" {
		return nil, identity.ErrIdentityRequired
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("ledger: unknown context type %q", typ)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	unit := &ContextUnit{
		Type:        typ,
		Content:     content,
		Owner:       l.ids.DID(),
		Previous:    previous,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Metadata:    metadata,
		StorageRefs: map[string]string{},
	}

	id, err := ContentHash(unit)
	if err != nil {
		return nil, err
	}
	unit.ID = id

	l.mu.Lock()
	defer l.mu.Unlock()

	// Identical content, owner, previous, and timestamp hash to the same ID;
	// the second write is a no-op, not an error.
	if existing, ok := l.units[id]; ok {
		return existing, nil
	}

	payload, err := signaturePayload(unit)
	if err != nil {
		return nil, err
	}
	sig, err := l.ids.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign unit: %w", err)
	}
	unit.Signature = base64.StdEncoding.EncodeToString(sig)

	if err := l.store.SaveUnit(unit); err != nil {
		return nil, err
	}
	l.register(unit)
	return unit, nil
}

// register adds a unit to the in-memory index. Caller holds l.mu.
func (l *Ledger) register(u *ContextUnit) {
	if _, ok := l.units[u.ID]; ok {
		return
	}
	l.units[u.ID] = u
	l.order = append(l.order, u.ID)
}

// VerifyUnitSignature recomputes the signed payload exactly as construction
// did and checks the signature. Units without a signature verify false.
func (l *Ledger) VerifyUnitSignature(u *ContextUnit, pub []byte) bool {
	if u == nil || u.Signature == "" {
		return false
	}
	payload, err := signaturePayload(u)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(u.Signature)
	if err != nil {
		return false
	}
	return l.ids.Verify(pub, payload, sig)
}

// GetUnit returns a registered unit by ID.
func (l *Ledger) GetUnit(id string) (*ContextUnit, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.units[id]
	return u, ok
}

// LoadUnit returns a unit from memory, falling back to the store and
// registering the result on a hit.
func (l *Ledger) LoadUnit(id string) (*ContextUnit, error) {
	if u, ok := l.GetUnit(id); ok {
		return u, nil
	}
	u, err := l.store.LoadUnit(id)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.register(u)
	l.mu.Unlock()
	return u, nil
}

// CreateChain records an ordered sequence of unit IDs as a chain. Linkage is
// not verified at creation time; VerifyChain is a separate, re-runnable,
// side-effect-free operation.
func (l *Ledger) CreateChain(unitIDs []string) (*ContextChain, error) {
	if l.ids.DID() == "" {
		return nil, identity.ErrIdentityRequired
	}

	seed := l.ids.DID() + ":" + strings.Join(unitIDs, ",") + ":" + strconv.FormatInt(time.Now().UnixNano(), 10)
	sum := sha256.Sum256([]byte(seed))
	chain := &ContextChain{
		ChainID:  hex.EncodeToString(sum[:])[:16],
		Contexts: append([]string(nil), unitIDs...),
		Owner:    l.ids.DID(),
		Created:  time.Now().UTC().Format(time.RFC3339Nano),
	}

	if err := l.store.SaveChain(chain); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.chains[chain.ChainID] = chain
	l.mu.Unlock()
	return chain, nil
}

// GetChain returns a registered chain by ID.
func (l *Ledger) GetChain(id string) (*ContextChain, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.chains[id]
	return c, ok
}

// ExportUnit writes a unit's JSON document to path.
func (l *Ledger) ExportUnit(id, path string) error {
	u, err := l.LoadUnit(id)
	if err != nil {
		return fmt.Errorf("export unit %s: %w", id, err)
	}
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return fmt.Errorf("encode unit: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// ImportUnit reads a unit document from path, persists it, and registers it.
// The unit keeps its original ID; VerifyChain will catch tampered imports.
func (l *Ledger) ImportUnit(path string) (*ContextUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	u, err := decodeUnit(data)
	if err != nil {
		return nil, fmt.Errorf("parse import: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("import: unit has no id")
	}

	if err := l.store.SaveUnit(u); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.register(u)
	l.mu.Unlock()
	return u, nil
}

// SetStorageRef records an external publication reference (e.g. an IPFS CID)
// on a stored unit. The reference is bookkeeping only; verification never
// depends on it.
func (l *Ledger) SetStorageRef(id, backend, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.units[id]
	if !ok {
		return ErrNotFound
	}

	// Persist before mutating so a failed write leaves the in-memory unit
	// untouched.
	refs := make(map[string]string, len(u.StorageRefs)+1)
	for k, v := range u.StorageRefs {
		refs[k] = v
	}
	refs[backend] = ref

	updated := *u
	updated.StorageRefs = refs
	if err := l.store.SaveUnit(&updated); err != nil {
		return err
	}
	u.StorageRefs = refs
	return nil
}

// Stats summarizes the ledger's in-memory state.
type Stats struct {
	DID    string `json:"did"`
	Units  int    `json:"contexts_count"`
	Chains int    `json:"chains_count"`
}

// Stats returns counts of registered units and chains.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{DID: l.ids.DID(), Units: len(l.units), Chains: len(l.chains)}
}
