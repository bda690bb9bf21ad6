// Package credentials stores third-party platform passwords with
// reversible authenticated encryption. Platform logins need the plaintext
// back, so a one-way hash cannot serve here; AES-256-GCM with a key
// derived from the environment does.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prefix marks encrypted values so plaintext and ciphertext can coexist
// during migration.
const Prefix = "enc:"

type Vault struct {
	gcm cipher.AEAD
}

// NewVault derives an AES-256 key from rawKey: a base64-encoded 16/24/32
// byte key is used as-is, anything else is hashed to 32 bytes.
func NewVault(rawKey string) (*Vault, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, errors.New("credentials key not set")
	}

	key := deriveKey(rawKey)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Vault{gcm: gcm}, nil
}

func deriveKey(raw string) []byte {
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err == nil {
		switch len(decoded) {
		case 16, 24, 32:
			return decoded
		}
	}
	sum := sha256.Sum256([]byte(raw))
	return sum[:]
}

func (v *Vault) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := v.gcm.Seal(nonce, nonce, []byte(plain), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	if !strings.HasPrefix(stored, Prefix) {
		// Legacy plaintext value.
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, Prefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < v.gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := raw[:v.gcm.NonceSize()], raw[v.gcm.NonceSize():]
	plain, err := v.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}
