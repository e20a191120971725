package settings

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var errDecrypt = errors.New("decrypt setting: authentication failed")

// Box encrypts setting values with NaCl secretbox.
type Box struct {
	key [32]byte
}

// NewBox derives the encryption key from secret.
func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, errors.New("secrets key is empty")
	}
	return &Box{key: sha256.Sum256([]byte(secret))}, nil
}

func (b *Box) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *Box) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode setting: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", errDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", errDecrypt
	}
	return string(plain), nil
}
