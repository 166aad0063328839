package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manager generates, persists, and loads identities, and exposes signing
// for the ledger and capability layers.
//
// Layout under the storage directory:
//
//	dids/did_psinet_<suffix>.json  — DID document
//	keys/did_psinet_<suffix>.key   — private key (0600, optionally sealed)
type Manager struct {
	dir        string
	backend    Backend
	passphrase string

	identity *Identity
	doc      *Document
	signer   Signer
}

// Option configures a Manager.
type Option func(*Manager)

// WithBackend selects the signing backend. Passing nil leaves the manager
// without crypto; operations that need it return ErrCryptoUnavailable.
func WithBackend(b Backend) Option {
	return func(m *Manager) { m.backend = b }
}

// WithPassphrase seals private key files under the given passphrase.
func WithPassphrase(p string) Option {
	return func(m *Manager) { m.passphrase = p }
}

// NewManager creates a Manager rooted at dir with the Ed25519 backend unless
// overridden. The dids/ and keys/ subdirectories are created on demand.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	m := &Manager{dir: dir, backend: Ed25519Backend{}}
	for _, opt := range opts {
		opt(m)
	}
	for _, sub := range []string{"dids", "keys"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0700); err != nil {
			return nil, fmt.Errorf("init identity storage: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) docPath(did string) string {
	return filepath.Join(m.dir, "dids", fileStem(did)+".json")
}

func (m *Manager) keyPath(did string) string {
	return filepath.Join(m.dir, "keys", fileStem(did)+".key")
}

// Generate creates a new keypair, derives its DID, persists the DID document
// and key file, and binds the identity to the manager.
func (m *Manager) Generate() (*Identity, error) {
	if m.backend == nil {
		return nil, ErrCryptoUnavailable
	}

	signer, err := m.backend.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}

	now := time.Now().UTC()
	pub := signer.Public()
	did := DIDFromPublicKey(pub)

	doc := NewDocument(did, pub, now)
	if err := m.saveDocument(doc); err != nil {
		return nil, err
	}
	if err := writeKeyFile(m.keyPath(did), signer.KeyBytes(), m.passphrase); err != nil {
		return nil, err
	}

	m.identity = &Identity{DID: did, PublicKey: pub, CreatedAt: now}
	m.doc = doc
	m.signer = signer
	return m.identity, nil
}

// Load binds an existing identity from storage.
func (m *Manager) Load(did string) (*Identity, error) {
	if m.backend == nil {
		return nil, ErrCryptoUnavailable
	}

	data, err := os.ReadFile(m.docPath(did))
	if err != nil {
		return nil, fmt.Errorf("load DID document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse DID document: %w", err)
	}

	keyBytes, err := readKeyFile(m.keyPath(did), m.passphrase)
	if err != nil {
		return nil, err
	}
	signer, err := m.backend.FromKeyBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("restore signer: %w", err)
	}

	created, err := time.Parse(time.RFC3339, doc.Created)
	if err != nil {
		return nil, fmt.Errorf("parse DID document created time: %w", err)
	}

	m.identity = &Identity{DID: doc.DID, PublicKey: signer.Public(), CreatedAt: created}
	m.doc = &doc
	m.signer = signer
	return m.identity, nil
}

func (m *Manager) saveDocument(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode DID document: %w", err)
	}
	if err := os.WriteFile(m.docPath(doc.DID), data, 0644); err != nil {
		return fmt.Errorf("write DID document: %w", err)
	}
	return nil
}

// Identity returns the bound identity, or nil when none is bound.
func (m *Manager) Identity() *Identity {
	return m.identity
}

// DID returns the bound identity's DID, or "".
func (m *Manager) DID() string {
	if m.identity == nil {
		return ""
	}
	return m.identity.DID
}

// Document returns the bound identity's DID document, or nil.
func (m *Manager) Document() *Document {
	return m.doc
}

// Sign signs the exact byte sequence passed. Callers canonicalize first.
func (m *Manager) Sign(payload []byte) ([]byte, error) {
	if m.backend == nil {
		return nil, ErrCryptoUnavailable
	}
	if m.signer == nil {
		return nil, ErrIdentityRequired
	}
	return m.signer.Sign(payload)
}

// Verify reports whether sig is a valid signature over payload by the holder
// of pub. It is pure and returns false on malformed input, never an error.
func (m *Manager) Verify(pub, payload, sig []byte) bool {
	if m.backend == nil {
		return false
	}
	return m.backend.Verify(pub, payload, sig)
}
