package cryptox

import (
	"fmt"

	"github.com/seteams/hubcore/internal/common"
	"golang.org/x/crypto/nacl/box"
)

// PublicKeySize and PrivateKeySize are the NaCl box key sizes.
const (
	PublicKeySize  = 32
	PrivateKeySize = 32
)

// GenerateKeyPair produces a fresh keypair suitable for anonymous sealed-box
// encryption.
func (c *Context) GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(c.rand)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoUnavailable, err)
	}
	return &KeyPair{PublicKey: pub[:], PrivateKey: priv[:]}, nil
}

// Seal encrypts message so only the holder of the private key matching
// recipientPublicKey can open it. An ephemeral sender key is generated
// internally, so no sender identity is exposed.
func (c *Context) Seal(message, recipientPublicKey []byte) ([]byte, error) {
	pk, err := toKey(recipientPublicKey)
	if err != nil {
		return nil, err
	}
	sealed, err := box.SealAnonymous(nil, message, pk, c.rand)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoUnavailable, err)
	}
	return sealed, nil
}

// Unseal opens a sealed message. Both halves of the recipient keypair are
// required. Returns common.ErrAuthenticationFailed if the ciphertext was not
// sealed for this keypair or has been tampered with.
func (c *Context) Unseal(sealed, privateKey, publicKey []byte) ([]byte, error) {
	pk, err := toKey(publicKey)
	if err != nil {
		return nil, err
	}
	sk, err := toKey(privateKey)
	if err != nil {
		return nil, err
	}
	message, ok := box.OpenAnonymous(nil, sealed, pk, sk)
	if !ok {
		return nil, common.ErrAuthenticationFailed
	}
	return message, nil
}

func toKey(b []byte) (*[32]byte, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: key must be 32 bytes, got %d", common.ErrAuthenticationFailed, len(b))
	}
	var k [32]byte
	copy(k[:], b)
	return &k, nil
}
