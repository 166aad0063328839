// Package identity manages self-certifying PsiNet identities: Ed25519
// keypairs, DID derivation, DID documents, and signing.
//
// A DID is a deterministic one-way function of the public key, so no central
// registry is needed. Collisions between distinct public keys are not
// actively checked; the probability is negligible under a 256-bit digest.
package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"
)

// DIDPrefix is the method prefix for all PsiNet identifiers.
const DIDPrefix = "did:psinet:"

// Identity is a self-certifying identity bound to a keypair.
type Identity struct {
	DID       string            `json:"did"`
	PublicKey ed25519.PublicKey `json:"public_key"`
	CreatedAt time.Time         `json:"created_at"`
}

// VerificationMethod is one entry in a DID document's verification method list.
type VerificationMethod struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Controller      string `json:"controller"`
	PublicKeyBase64 string `json:"publicKeyBase64"`
}

// Document is the persisted DID document, one JSON file per identity.
type Document struct {
	DID                 string               `json:"did"`
	PublicKey           string               `json:"public_key"` // base64 raw bytes
	Created             string               `json:"created"`
	Updated             string               `json:"updated"`
	ServiceEndpoints    []string             `json:"service_endpoints"`
	VerificationMethods []VerificationMethod `json:"verification_methods"`
}

// DIDFromPublicKey derives the DID for a public key: the did:psinet: prefix
// followed by the first 16 hex characters of sha256(publicKeyBytes).
func DIDFromPublicKey(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return DIDPrefix + hex.EncodeToString(sum[:])[:16]
}

// NewDocument builds the DID document for a freshly generated identity.
func NewDocument(did string, pub ed25519.PublicKey, now time.Time) *Document {
	ts := now.UTC().Format(time.RFC3339)
	pubB64 := base64.StdEncoding.EncodeToString(pub)
	return &Document{
		DID:              did,
		PublicKey:        pubB64,
		Created:          ts,
		Updated:          ts,
		ServiceEndpoints: []string{},
		VerificationMethods: []VerificationMethod{
			{
				ID:              did + "#keys-1",
				Type:            "Ed25519VerificationKey2020",
				Controller:      did,
				PublicKeyBase64: pubB64,
			},
		},
	}
}

// fileStem converts a DID into a filesystem-safe name ("did:psinet:ab12" ->
// "did_psinet_ab12"). Shared by the document and key file paths.
func fileStem(did string) string {
	return strings.ReplaceAll(did, ":", "_")
}
