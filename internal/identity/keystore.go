package identity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/psinet-protocol/psinet/internal/seal"
)

// sealedKeyFile is the on-disk format for a passphrase-protected key. An
// unprotected key is written as raw key bytes instead, always 0600.
type sealedKeyFile struct {
	Sealed     bool   `json:"sealed"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// writeKeyFile persists key material at path with 0600 permissions,
// sealing it under passphrase when one is set.
func writeKeyFile(path string, key []byte, passphrase string) error {
	if passphrase == "" {
		if err := os.WriteFile(path, key, 0600); err != nil {
			return fmt.Errorf("write key file: %w", err)
		}
		return nil
	}

	ciphertext, salt, nonce, err := seal.Seal(key, passphrase)
	if err != nil {
		return fmt.Errorf("seal key: %w", err)
	}

	data, err := json.Marshal(sealedKeyFile{
		Sealed:     true,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// readKeyFile loads key material from path, unsealing it when the file is
// passphrase-protected.
func readKeyFile(path, passphrase string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var kf sealedKeyFile
	if err := json.Unmarshal(data, &kf); err != nil || !kf.Sealed {
		// Raw, unsealed key bytes.
		return data, nil
	}

	if passphrase == "" {
		return nil, fmt.Errorf("key file %s is sealed, passphrase required", path)
	}

	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	key, err := seal.Open(ciphertext, passphrase, salt, nonce)
	if err != nil {
		return nil, fmt.Errorf("unseal key file: %w", err)
	}
	return key, nil
}
