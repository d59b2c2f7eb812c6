package wallet

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	secretKeySize = 32
	nonceSize     = 24
)

var errOpen = errors.New("sealed attribute does not open with its key")

// seal encrypts plaintext under a fresh key. The ciphertext is base64(nonce || box).
func seal(plaintext string) (sealed string, key []byte, err error) {
	var k [secretKeySize]byte
	var nonce [nonceSize]byte
	if _, err := rand.Read(k[:]); err != nil {
		return "", nil, fmt.Errorf("generate attribute key: %w", err)
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", nil, fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &k)
	return base64.StdEncoding.EncodeToString(box), k[:], nil
}

// open reverses seal.
func open(sealed string, key []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed attribute: %w", err)
	}
	if len(raw) < nonceSize || len(key) != secretKeySize {
		return "", errOpen
	}
	var nonce [nonceSize]byte
	var k [secretKeySize]byte
	copy(nonce[:], raw[:nonceSize])
	copy(k[:], key)
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &k)
	if !ok {
		return "", errOpen
	}
	return string(plain), nil
}
