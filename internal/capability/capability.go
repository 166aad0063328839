// Package capability issues and checks signed, time-boxed access capability
// tokens: a grant of one specific permission from one DID to another,
// optionally scoped to a single context.
package capability

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/psinet-protocol/psinet/internal/canonical"
	"github.com/psinet-protocol/psinet/internal/identity"
)

// Capability is the closed set of permissions a token can carry.
// Capabilities are not hierarchical: admin does not imply read.
type Capability string

const (
	Read     Capability = "read"
	Write    Capability = "write"
	Share    Capability = "share"
	Delegate Capability = "delegate"
	Admin    Capability = "admin"
)

// Valid reports whether c is one of the known capabilities.
func (c Capability) Valid() bool {
	switch c {
	case Read, Write, Share, Delegate, Admin:
		return true
	}
	return false
}

// AccessToken is a time-boxed grant. Expiry is absolute: the token is valid
// only while now <= Expires.
type AccessToken struct {
	Capability Capability `json:"capability"`
	GrantedTo  string     `json:"granted_to"` // DID
	GrantedBy  string     `json:"granted_by"` // DID
	Expires    time.Time  `json:"expires"`
	ContextID  *string    `json:"context_id"`
	Signature  string     `json:"signature,omitempty"`
}

// Service grants tokens signed by the bound identity and checks tokens
// presented by callers.
type Service struct {
	ids *identity.Manager
}

// NewService creates a Service around an identity manager.
func NewService(ids *identity.Manager) *Service {
	return &Service{ids: ids}
}

// tokenPayload is the canonical field set a token's signature covers.
func tokenPayload(t *AccessToken) ([]byte, error) {
	data, err := canonical.Marshal(map[string]any{
		"capability": t.Capability,
		"granted_to": t.GrantedTo,
		"granted_by": t.GrantedBy,
		"expires":    t.Expires.UTC().Format(time.RFC3339Nano),
		"context_id": t.ContextID,
	})
	if err != nil {
		return nil, fmt.Errorf("token payload: %w", err)
	}
	return data, nil
}

// Grant issues a token for capability c to granteeDID, expiring after ttl.
// A nil contextID grants an unscoped token that matches any context.
func (s *Service) Grant(c Capability, granteeDID string, contextID *string, ttl time.Duration) (*AccessToken, error) {
	if s.ids.DID() == "" {
		return nil, identity.ErrIdentityRequired
	}
	if !c.Valid() {
		return nil, fmt.Errorf("capability: unknown capability %q", c)
	}

	token := &AccessToken{
		Capability: c,
		GrantedTo:  granteeDID,
		GrantedBy:  s.ids.DID(),
		Expires:    time.Now().UTC().Add(ttl),
		ContextID:  contextID,
	}

	payload, err := tokenPayload(token)
	if err != nil {
		return nil, err
	}
	sig, err := s.ids.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	token.Signature = base64.StdEncoding.EncodeToString(sig)
	return token, nil
}

// Check reports whether a token satisfies the required capability for an
// optional context. It fails closed: expired tokens, capability mismatches,
// and bound-context mismatches all return false. A token with no bound
// context matches any context query.
//
// Check deliberately performs no signature verification; that is a separate,
// explicit step (VerifyToken) a caller must take before trusting a token
// received over an untrusted channel. TODO: require VerifyToken inside Check
// once all token exchange paths carry the grantor's public key.
func (s *Service) Check(token *AccessToken, required Capability, contextID *string) bool {
	if token == nil {
		return false
	}
	if time.Now().After(token.Expires) {
		return false
	}
	if token.Capability != required {
		return false
	}
	if contextID != nil && token.ContextID != nil && *token.ContextID != *contextID {
		return false
	}
	return true
}

// VerifyToken checks the token's own signature against the grantor's public
// key. Returns false, never an error, on malformed input.
func (s *Service) VerifyToken(token *AccessToken, grantorPub []byte) bool {
	if token == nil || token.Signature == "" {
		return false
	}
	payload, err := tokenPayload(token)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(token.Signature)
	if err != nil {
		return false
	}
	return s.ids.Verify(grantorPub, payload, sig)
}
