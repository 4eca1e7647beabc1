package cryptox

import (
	"fmt"

	"github.com/seteams/hubcore/internal/common"
	"golang.org/x/crypto/nacl/secretbox"
)

// MessageNonceSize is the secretbox nonce size.
const MessageNonceSize = 24

// GenerateSecret produces a fresh 32-byte symmetric secret, used both for
// room secrets and per-file encryption keys.
func (c *Context) GenerateSecret() ([]byte, error) {
	return c.randBytes(SecretKeySize)
}

// EncryptText encrypts a plaintext message body under the room secret.
// A fresh random nonce is generated for every call; nonces must never repeat
// under the same secret.
func (c *Context) EncryptText(plaintext string, secret []byte) (nonce, ciphertext []byte, err error) {
	key, err := toKey(secret)
	if err != nil {
		return nil, nil, err
	}

	nb, err := c.randBytes(MessageNonceSize)
	if err != nil {
		return nil, nil, err
	}
	var n [24]byte
	copy(n[:], nb)

	ciphertext = secretbox.Seal(nil, []byte(plaintext), &n, key)
	return nb, ciphertext, nil
}

// DecryptText authenticates and decrypts a message body. Returns
// common.ErrAuthenticationFailed on any tamper or key mismatch.
func (c *Context) DecryptText(ciphertext, nonce, secret []byte) (string, error) {
	key, err := toKey(secret)
	if err != nil {
		return "", err
	}
	if len(nonce) != MessageNonceSize {
		return "", fmt.Errorf("%w: nonce must be %d bytes", common.ErrAuthenticationFailed, MessageNonceSize)
	}
	var n [24]byte
	copy(n[:], nonce)

	plaintext, ok := secretbox.Open(nil, ciphertext, &n, key)
	if !ok {
		return "", common.ErrAuthenticationFailed
	}
	return string(plaintext), nil
}
