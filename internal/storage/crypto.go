package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	cipherKeyLen = 32
)

// ErrDecrypt is returned when a payload cannot be authenticated. Callers use
// it to trigger the legacy-format fallback.
var ErrDecrypt = errors.New("payload decryption failed")

// Cipher seals ledger snapshots with AES-256-GCM. The key is derived from the
// configured secret scoped to a user id, so blobs of different users never
// share a key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the user-scoped key with scrypt and builds the AEAD.
func NewCipher(secret, userID string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is required")
	}

	key, err := scrypt.Key([]byte(secret), []byte("diboas:"+userID), scryptN, scryptR, scryptP, cipherKeyLen)
	if err != nil {
		return nil, errors.Wrap(err, "derive encryption key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "init cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "init GCM")
	}

	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext; the random nonce is prepended to the result.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal.
func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize() {
		return nil, errors.Wrap(ErrDecrypt, "payload too short")
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(ErrDecrypt, err.Error())
	}
	return plaintext, nil
}
