package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/psinet-protocol/psinet/internal/ledger"
)

func testUnit() *ledger.ContextUnit {
	return &ledger.ContextUnit{
		ID:        "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		Type:      ledger.TypeMemory,
		Content:   map[string]any{"note": "remember this"},
		Owner:     "did:psinet:aaaaaaaaaaaaaaaa",
		Timestamp: "2026-01-02T03:04:05.000000006Z",
	}
}

func TestIPFSPublish(t *testing.T) {
	unit := testUnit()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v0/add" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer f.Close()
		if hdr.Filename != unit.ID+".json" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		body, _ := io.ReadAll(f)
		var got ledger.ContextUnit
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("uploaded payload is not a unit: %v", err)
		}
		if got.ID != unit.ID {
			t.Errorf("uploaded ID = %q", got.ID)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"Name": hdr.Filename,
			"Hash": "QmTestCid",
			"Size": "123",
		})
	}))
	defer srv.Close()

	p := NewIPFSPublisher(srv.URL)
	if p.Name() != "ipfs" {
		t.Errorf("Name = %q", p.Name())
	}

	ref, err := p.Publish(context.Background(), unit)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ref != "QmTestCid" {
		t.Errorf("ref = %q, want QmTestCid", ref)
	}
}

func TestIPFSPublishServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "daemon not running", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewIPFSPublisher(srv.URL)
	if _, err := p.Publish(context.Background(), testUnit()); err == nil {
		t.Fatal("expected error on 500 response")
	} else if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("err = %v, want status in message", err)
	}
}

func TestNostrEventKinds(t *testing.T) {
	cases := []struct {
		typ  ledger.ContextType
		kind int
	}{
		{ledger.TypeConversation, KindConversation},
		{ledger.TypeMemory, KindMemory},
		{ledger.TypeSkill, KindSkill},
		{ledger.TypeKnowledge, KindKnowledge},
		{ledger.TypeDocument, KindContextUnit},
		{ledger.TypeEmbedding, KindContextUnit},
	}
	for _, tc := range cases {
		if got := eventKind(tc.typ); got != tc.kind {
			t.Errorf("eventKind(%s) = %d, want %d", tc.typ, got, tc.kind)
		}
	}
}

func TestNostrPublisherEphemeralKey(t *testing.T) {
	p, err := NewNostrPublisher(nil, "")
	if err != nil {
		t.Fatalf("NewNostrPublisher: %v", err)
	}
	if p.pubKey == "" {
		t.Error("ephemeral key produced empty pubkey")
	}
	if p.Name() != "nostr" {
		t.Errorf("Name = %q", p.Name())
	}

	// No relays configured: publish must fail, not hang or panic.
	if _, err := p.Publish(context.Background(), testUnit()); err == nil {
		t.Fatal("expected error with no relays")
	}
}

func TestNostrPublisherBadKey(t *testing.T) {
	if _, err := NewNostrPublisher(nil, "not-a-hex-key"); err == nil {
		t.Fatal("expected error for malformed private key")
	}
}
