package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/arklim/realm-auth-service/internal/core/port"
)

// ErrCiphertextTooShort indicates the input cannot hold a nonce and tag.
var ErrCiphertextTooShort = errors.New("cipher: ciphertext too short")

// AESCipher seals cache values with AES-256-GCM under a key derived from a configured secret.
type AESCipher struct {
	aead cipher.AEAD
}

var _ port.Cipher = (*AESCipher)(nil)

// NewAESCipher derives a 256-bit key from secret.
func NewAESCipher(secret string) (*AESCipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("cipher: encryption key not configured")
	}

	key, err := deriveKey([]byte(secret), "cache-encryption", 32)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: new block: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: new gcm: %w", err)
	}
	return &AESCipher{aead: aead}, nil
}

// Encrypt returns nonce || ciphertext || tag.
func (c *AESCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cipher: nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt and authenticates the payload.
func (c *AESCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	size := c.aead.NonceSize()
	if len(ciphertext) < size+c.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	plain, err := c.aead.Open(nil, ciphertext[:size], ciphertext[size:], nil)
	if err != nil {
		return nil, fmt.Errorf("cipher: open: %w", err)
	}
	return plain, nil
}
