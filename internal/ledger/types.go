// Package ledger implements the PsiNet context ledger: content-addressed,
// signed context units linked blockchain-style into verifiable chains.
package ledger

import (
	"fmt"

	"github.com/psinet-protocol/psinet/internal/canonical"
)

// ContextType is the closed set of unit types the ledger accepts.
type ContextType string

const (
	TypeConversation ContextType = "conversation"
	TypeMemory       ContextType = "memory"
	TypeSkill        ContextType = "skill"
	TypeKnowledge    ContextType = "knowledge"
	TypeDocument     ContextType = "document"
	TypeEmbedding    ContextType = "embedding"
)

// Valid reports whether t is one of the known context types.
func (t ContextType) Valid() bool {
	switch t {
	case TypeConversation, TypeMemory, TypeSkill, TypeKnowledge, TypeDocument, TypeEmbedding:
		return true
	}
	return false
}

// ContextUnit is a single immutable unit of context. Its ID is the canonical
// content hash, so the identifier itself is a tamper-evidence check. Content
// changes require a new unit.
type ContextUnit struct {
	ID          string            `json:"id"`
	Type        ContextType       `json:"type"`
	Content     map[string]any    `json:"content"`
	Owner       string            `json:"owner"` // DID
	Previous    *string           `json:"previous"`
	Timestamp   string            `json:"timestamp"` // RFC3339Nano UTC
	Signature   string            `json:"signature,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	StorageRefs map[string]string `json:"storage_refs,omitempty"` // backend -> ref
}

// ContextChain is an ordered sequence of unit IDs. The sequence is stored
// independently of the unit-level previous links; VerifyChain checks that
// both agree.
type ContextChain struct {
	ChainID  string   `json:"chain_id"`
	Contexts []string `json:"contexts"`
	Owner    string   `json:"owner"` // DID
	Created  string   `json:"created"`
}

// ContentHash computes the content-addressed ID of a unit: the canonical
// hash over exactly {type, content, owner, previous, timestamp}.
func ContentHash(u *ContextUnit) (string, error) {
	h, err := canonical.Hash(map[string]any{
		"type":      u.Type,
		"content":   u.Content,
		"owner":     u.Owner,
		"previous":  u.Previous,
		"timestamp": u.Timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return h, nil
}

// signaturePayload is the canonical byte sequence a unit's signature covers.
// It double-covers the content hash so an unsigned mutation cannot splice a
// different previous pointer into a to-be-verified chain.
func signaturePayload(u *ContextUnit) ([]byte, error) {
	contentHash, err := ContentHash(u)
	if err != nil {
		return nil, err
	}
	data, err := canonical.Marshal(map[string]any{
		"id":           u.ID,
		"type":         u.Type,
		"owner":        u.Owner,
		"timestamp":    u.Timestamp,
		"content_hash": contentHash,
	})
	if err != nil {
		return nil, fmt.Errorf("signature payload: %w", err)
	}
	return data, nil
}
