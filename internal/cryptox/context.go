// Package cryptox implements the cryptographic primitives of the hub core:
// sealed-box public-key encryption for key distribution, secretbox symmetric
// encryption for message bodies, and a chunked authenticated stream cipher
// for file contents.
//
// All primitives hang off a Context created once at process start and passed
// into every component, so there is no hidden module-level initialization
// state.
package cryptox

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/seteams/hubcore/internal/common"
)

// SecretKeySize is the size of room secrets and file-encryption keys.
const SecretKeySize = 32

// KeyPair holds a user's long-term keypair. The private key never leaves
// the local device.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// Context is a process-lifetime handle to the crypto primitives. It is safe
// for concurrent use.
type Context struct {
	rand io.Reader
}

// NewContext initializes the crypto layer and verifies the system randomness
// source works. Returns common.ErrCryptoUnavailable if it does not.
func NewContext() (*Context, error) {
	c := &Context{rand: rand.Reader}
	probe := make([]byte, 1)
	if _, err := io.ReadFull(c.rand, probe); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoUnavailable, err)
	}
	return c, nil
}

func (c *Context) randBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(c.rand, b); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoUnavailable, err)
	}
	return b, nil
}

// Wipe overwrites the contents of the provided byte slice with zeros.
// Used to discard transiently reconstructed secrets after use.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
