// Package crypto holds the symmetric cipher applied to device push
// credentials at the persistence boundary. Tokens are stored as
// nonce-prefixed AEAD ciphertext next to a SHA-256 lookup hash, so neither
// the database nor any read API ever sees a plaintext token.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

type TokenCipher struct {
	key []byte
}

// NewTokenCipher builds a cipher from a 32-byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &TokenCipher{key: key}, nil
}

// NewTokenCipherFromHex builds a cipher from a hex-encoded 32-byte key,
// the format used by the TOKEN_KEY environment variable.
func NewTokenCipherFromHex(hexKey string) (*TokenCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode token key: %w", err)
	}
	return NewTokenCipher(key)
}

// Encrypt seals the plaintext token and returns nonce||ciphertext.
func (c *TokenCipher) Encrypt(token string) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, []byte(token), nil), nil
}

// Decrypt opens a blob produced by Encrypt.
func (c *TokenCipher) Decrypt(blob []byte) (string, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", err
	}
	if len(blob) < aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open token ciphertext: %w", err)
	}
	return string(plain), nil
}

// Hash returns the hex SHA-256 digest of a token, used as the dedup key so
// the unique index never stores plaintext.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
