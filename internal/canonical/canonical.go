// Package canonical implements the canonical JSON serialization shared by
// content hashing, signing, and storage. Every byte that is hashed or signed
// in PsiNet goes through Marshal, so hashing and persistence can never
// diverge silently.
//
// The canonical form is compact JSON with object keys sorted lexicographically
// at every nesting level. Array element order is preserved. Numbers keep their
// original literal representation.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Marshal serializes v into canonical JSON. Two semantically equal values
// always produce the same byte sequence.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}

	// Round-trip through map[string]any so that encoding/json emits object
	// keys in sorted order regardless of struct field order. UseNumber keeps
	// numeric literals intact instead of converting through float64.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var norm any
	if err := dec.Decode(&norm); err != nil {
		return nil, fmt.Errorf("canonical normalize: %w", err)
	}

	out, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("canonical remarshal: %w", err)
	}
	return out, nil
}

// Hash returns the lowercase hex SHA-256 digest of the canonical form of v.
func Hash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
