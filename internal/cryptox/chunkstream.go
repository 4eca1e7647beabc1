package cryptox

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/seteams/hubcore/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

// HeaderSize is the size of the public stream-initialization value shipped
// alongside the ciphertext. The first noncePrefixSize bytes seed the per-chunk
// nonces; the rest is random padding reserved for format evolution.
const HeaderSize = 24

const (
	noncePrefixSize = 4
	counterSize     = 8

	tagMessage byte = 0x00
	tagFinal   byte = 0x03
)

var errStreamFinished = errors.New("stream already finished")

// EncryptStream encrypts a file as an ordered sequence of independently
// authenticated chunks. Push calls are intrinsically sequential and must not
// be made concurrently against the same stream.
type EncryptStream struct {
	aead     cipher.AEAD
	header   []byte
	key      []byte
	counter  uint64
	finished bool
}

// NewEncryptStream generates a fresh per-file key and stream header.
// The key must never leave the device unwrapped; callers seal it to each
// recipient's public key before persisting anything.
func (c *Context) NewEncryptStream() (*EncryptStream, error) {
	key, err := c.GenerateSecret()
	if err != nil {
		return nil, err
	}
	header, err := c.randBytes(HeaderSize)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoUnavailable, err)
	}

	return &EncryptStream{aead: aead, header: header, key: key}, nil
}

// Header returns the public stream-initialization value.
func (s *EncryptStream) Header() []byte { return s.header }

// Key returns the per-file encryption key, to be sealed per recipient.
func (s *EncryptStream) Key() []byte { return s.key }

// Push encrypts and authenticates the next chunk. Exactly one final chunk
// must terminate the stream; for a zero-length file that is a single empty
// final chunk.
func (s *EncryptStream) Push(chunk []byte, final bool) ([]byte, error) {
	if s.finished {
		return nil, errStreamFinished
	}

	tag := tagMessage
	if final {
		tag = tagFinal
		s.finished = true
	}

	tagged := make([]byte, 0, 1+len(chunk))
	tagged = append(tagged, tag)
	tagged = append(tagged, chunk...)

	ct := s.aead.Seal(nil, chunkNonce(s.header, s.counter), tagged, nil)
	s.counter++
	return ct, nil
}

// DecryptStream is the pull side of EncryptStream. Chunks must be fed in the
// exact order they were produced; the nonce derivation is sequential, so a
// reordered or corrupted chunk fails authentication.
type DecryptStream struct {
	aead     cipher.AEAD
	header   []byte
	counter  uint64
	finished bool
}

// NewDecryptStream prepares decryption for the given header and unwrapped
// per-file key.
func (c *Context) NewDecryptStream(header, key []byte) (*DecryptStream, error) {
	if len(header) != HeaderSize {
		return nil, fmt.Errorf("%w: header must be %d bytes", common.ErrAuthenticationFailed, HeaderSize)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoUnavailable, err)
	}
	h := make([]byte, HeaderSize)
	copy(h, header)
	return &DecryptStream{aead: aead, header: h}, nil
}

// Pull authenticates and decrypts the next chunk, reporting whether it was
// the final one.
func (s *DecryptStream) Pull(ciphertext []byte) (plaintext []byte, final bool, err error) {
	if s.finished {
		return nil, false, errStreamFinished
	}

	tagged, err := s.aead.Open(nil, chunkNonce(s.header, s.counter), ciphertext, nil)
	if err != nil {
		return nil, false, common.ErrAuthenticationFailed
	}
	s.counter++

	if len(tagged) < 1 {
		return nil, false, common.ErrAuthenticationFailed
	}

	switch tagged[0] {
	case tagFinal:
		s.finished = true
		return tagged[1:], true, nil
	case tagMessage:
		return tagged[1:], false, nil
	default:
		return nil, false, common.ErrAuthenticationFailed
	}
}

// chunkNonce derives the 12-byte AEAD nonce for chunk i: the header's random
// prefix followed by the big-endian chunk counter.
func chunkNonce(header []byte, counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	copy(nonce, header[:noncePrefixSize])
	binary.BigEndian.PutUint64(nonce[noncePrefixSize:noncePrefixSize+counterSize], counter)
	return nonce
}
