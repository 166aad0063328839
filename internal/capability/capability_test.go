package capability

import (
	"errors"
	"testing"
	"time"

	"github.com/psinet-protocol/psinet/internal/identity"
)

func newTestService(t *testing.T) (*Service, *identity.Manager) {
	t.Helper()
	ids, err := identity.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new identity manager: %v", err)
	}
	if _, err := ids.Generate(); err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return NewService(ids), ids
}

func TestGrantAndCheck(t *testing.T) {
	s, ids := newTestService(t)

	token, err := s.Grant(Read, "did:psinet:grantee01", nil, time.Hour)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	if token.GrantedBy != ids.DID() {
		t.Errorf("granted_by = %s, want %s", token.GrantedBy, ids.DID())
	}
	if token.Signature == "" {
		t.Error("token has no signature")
	}

	if !s.Check(token, Read, nil) {
		t.Error("valid token failed check")
	}
}

func TestCheckExpiredToken(t *testing.T) {
	s, _ := newTestService(t)

	token, err := s.Grant(Read, "did:psinet:grantee01", nil, -time.Minute)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	// An expired token fails for every capability, including an exact match.
	for _, c := range []Capability{Read, Write, Share, Delegate, Admin} {
		if s.Check(token, c, nil) {
			t.Errorf("expired token passed check for %s", c)
		}
	}
}

func TestCheckCapabilityMismatch(t *testing.T) {
	s, _ := newTestService(t)

	token, err := s.Grant(Admin, "did:psinet:grantee01", nil, time.Hour)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	// Capabilities are not hierarchical: admin does not satisfy read.
	if s.Check(token, Read, nil) {
		t.Error("admin token satisfied a read check")
	}
	if !s.Check(token, Admin, nil) {
		t.Error("admin token failed an admin check")
	}
}

func TestCheckContextScoping(t *testing.T) {
	s, _ := newTestService(t)

	ctxA := "context-a"
	ctxB := "context-b"

	scoped, err := s.Grant(Read, "did:psinet:grantee01", &ctxA, time.Hour)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	unscoped, err := s.Grant(Read, "did:psinet:grantee01", nil, time.Hour)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	if !s.Check(scoped, Read, &ctxA) {
		t.Error("scoped token failed check for its own context")
	}
	if s.Check(scoped, Read, &ctxB) {
		t.Error("scoped token passed check for a different context")
	}
	// A token with no bound context matches any context query.
	if !s.Check(unscoped, Read, &ctxB) {
		t.Error("unscoped token failed check for a specific context")
	}
}

func TestGrantRequiresIdentity(t *testing.T) {
	ids, err := identity.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new identity manager: %v", err)
	}
	s := NewService(ids)

	if _, err := s.Grant(Read, "did:psinet:grantee01", nil, time.Hour); !errors.Is(err, identity.ErrIdentityRequired) {
		t.Fatalf("err = %v, want ErrIdentityRequired", err)
	}
}

func TestGrantRejectsUnknownCapability(t *testing.T) {
	s, _ := newTestService(t)

	if _, err := s.Grant(Capability("superuser"), "did:psinet:grantee01", nil, time.Hour); err == nil {
		t.Fatal("expected error for unknown capability")
	}
}

func TestVerifyToken(t *testing.T) {
	s, ids := newTestService(t)
	pub := ids.Identity().PublicKey

	token, err := s.Grant(Share, "did:psinet:grantee01", nil, time.Hour)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	if !s.VerifyToken(token, pub) {
		t.Error("valid token failed signature verification")
	}

	// Tampering with any covered field must invalidate the signature.
	token.GrantedTo = "did:psinet:attacker0"
	if s.VerifyToken(token, pub) {
		t.Error("tampered token passed signature verification")
	}
	token.GrantedTo = "did:psinet:grantee01"

	token.Capability = Admin
	if s.VerifyToken(token, pub) {
		t.Error("capability-escalated token passed signature verification")
	}
	token.Capability = Share

	if !s.VerifyToken(token, pub) {
		t.Error("restored token failed signature verification")
	}

	token.Signature = ""
	if s.VerifyToken(token, pub) {
		t.Error("unsigned token passed signature verification")
	}
}
