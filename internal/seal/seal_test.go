package seal

import (
	"bytes"
	"testing"
)

func TestDeriveKey_ProducesDeterministicOutput(t *testing.T) {
	passphrase := "test-passphrase-123"
	salt := []byte("0123456789abcdef0123456789abcdef") // 32 bytes

	key1 := DeriveKey(passphrase, salt)
	key2 := DeriveKey(passphrase, salt)

	if len(key1) != 32 {
		t.Fatalf("expected key length 32, got %d", len(key1))
	}

	if !bytes.Equal(key1, key2) {
		t.Fatal("same passphrase and salt should produce the same key")
	}
}

func TestDeriveKey_DifferentPassphrasesDifferentKeys(t *testing.T) {
	salt := []byte("0123456789abcdef0123456789abcdef") // 32 bytes

	key1 := DeriveKey("passphrase-one", salt)
	key2 := DeriveKey("passphrase-two", salt)

	if bytes.Equal(key1, key2) {
		t.Fatal("different passphrases should produce different keys")
	}
}

func TestGenerateSalt(t *testing.T) {
	salt1 := GenerateSalt()
	salt2 := GenerateSalt()

	if len(salt1) != 32 {
		t.Fatalf("expected salt length 32, got %d", len(salt1))
	}

	if bytes.Equal(salt1, salt2) {
		t.Fatal("two generated salts should not be equal")
	}
}

func TestSealAndOpen(t *testing.T) {
	secret := []byte("ed25519-private-key-bytes-here")

	ciphertext, salt, nonce, err := Seal(secret, "hunter2")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if bytes.Contains(ciphertext, secret) {
		t.Fatal("ciphertext contains plaintext")
	}

	plaintext, err := Open(ciphertext, "hunter2", salt, nonce)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(plaintext, secret) {
		t.Fatal("round trip did not recover the plaintext")
	}
}

func TestOpen_WrongPassphrase(t *testing.T) {
	ciphertext, salt, nonce, err := Seal([]byte("key material"), "correct")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := Open(ciphertext, "wrong", salt, nonce); err == nil {
		t.Fatal("expected error for wrong passphrase, got nil")
	}
}

func TestOpen_TamperedCiphertext(t *testing.T) {
	ciphertext, salt, nonce, err := Seal([]byte("key material"), "correct")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	ciphertext[0] ^= 0xff

	if _, err := Open(ciphertext, "correct", salt, nonce); err == nil {
		t.Fatal("expected error for tampered ciphertext, got nil")
	}
}
