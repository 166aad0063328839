package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
)

// ErrCryptoUnavailable is returned by operations that need a signing backend
// when the manager was constructed without one. This is a configuration
// fault for the operator, not a crash.
var ErrCryptoUnavailable = errors.New("identity: no signing backend configured")

// ErrIdentityRequired is returned by operations that need a bound signing
// identity before one has been generated or loaded.
var ErrIdentityRequired = errors.New("identity: no identity bound, generate or load one first")

// Signer holds a private key and signs raw payloads. Callers canonicalize
// and pre-hash; Sign never hashes beyond what the algorithm itself requires.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	Public() ed25519.PublicKey
	// KeyBytes returns the private key material in the backend's key file
	// format, for persistence through the keystore.
	KeyBytes() []byte
}

// Backend is an injected signing capability. The backend is chosen at
// construction time so callers select secure or demo signing explicitly
// instead of silently degrading.
type Backend interface {
	// Generate creates a fresh signer.
	Generate() (Signer, error)
	// FromKeyBytes restores a signer from a stored key file.
	FromKeyBytes(data []byte) (Signer, error)
	// Verify reports whether sig is a valid signature over payload by the
	// holder of pub. It returns false, never an error, on malformed input.
	Verify(pub, payload, sig []byte) bool
}

// Ed25519Backend is the secure default backend.
type Ed25519Backend struct{}

type ed25519Signer struct {
	priv ed25519.PrivateKey
}

func (s *ed25519Signer) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, payload), nil
}

func (s *ed25519Signer) Public() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

func (s *ed25519Signer) KeyBytes() []byte {
	return []byte(s.priv)
}

// Generate creates a new Ed25519 keypair.
func (Ed25519Backend) Generate() (Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &ed25519Signer{priv: priv}, nil
}

// FromKeyBytes restores a signer from the 64-byte Ed25519 private key format
// (the public key lives in its last 32 bytes).
func (Ed25519Backend) FromKeyBytes(data []byte) (Signer, error) {
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key file: expected %d bytes, got %d", ed25519.PrivateKeySize, len(data))
	}
	return &ed25519Signer{priv: ed25519.PrivateKey(data)}, nil
}

// Verify checks an Ed25519 signature. Malformed keys or signatures yield
// false rather than an error.
func (Ed25519Backend) Verify(pub, payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig)
}

// SimplifiedBackend produces hash-based pseudo-signatures with no private
// key at all. It exists for demos and tests on hosts without a use for real
// keys; anyone holding the public key can forge signatures. Never use it
// where signatures cross a trust boundary.
type SimplifiedBackend struct{}

type simplifiedSigner struct {
	pub ed25519.PublicKey
}

func simplifiedSig(pub, payload []byte) []byte {
	h := sha256.New()
	h.Write(pub)
	h.Write(payload)
	return h.Sum(nil)
}

func (s *simplifiedSigner) Sign(payload []byte) ([]byte, error) {
	return simplifiedSig(s.pub, payload), nil
}

func (s *simplifiedSigner) Public() ed25519.PublicKey {
	return s.pub
}

func (s *simplifiedSigner) KeyBytes() []byte {
	return []byte(s.pub)
}

// Generate creates a signer around a random 32-byte "public key".
func (SimplifiedBackend) Generate() (Signer, error) {
	pub := make([]byte, ed25519.PublicKeySize)
	if _, err := rand.Read(pub); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &simplifiedSigner{pub: ed25519.PublicKey(pub)}, nil
}

// FromKeyBytes restores a simplified signer; the key file holds only the
// 32-byte public key.
func (SimplifiedBackend) FromKeyBytes(data []byte) (Signer, error) {
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid key file: expected %d bytes, got %d", ed25519.PublicKeySize, len(data))
	}
	return &simplifiedSigner{pub: ed25519.PublicKey(data)}, nil
}

// Verify recomputes the pseudo-signature and compares in constant time.
func (SimplifiedBackend) Verify(pub, payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != sha256.Size {
		return false
	}
	return subtle.ConstantTimeCompare(simplifiedSig(pub, payload), sig) == 1
}
