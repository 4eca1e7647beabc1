// Package keystore manages the local user's long-term keypair.
//
// The private key never leaves the device. Loss of it is unrecoverable:
// there is no key recovery and no multi-device sync. Storage is pluggable —
// an in-memory variant for tests and ephemeral sessions, and a
// passphrase-encrypted file variant for persistence.
package keystore

import (
	"context"
	"errors"

	"github.com/seteams/hubcore/internal/common"
	"github.com/seteams/hubcore/internal/cryptox"
)

// SecretStore persists keypairs keyed by user id.
type SecretStore interface {
	// Load returns the stored keypair, or common.ErrorNotFound if absent.
	Load(ctx context.Context, userID string) (*cryptox.KeyPair, error)

	// Save stores the keypair for the user, replacing any previous one.
	Save(ctx context.Context, userID string, kp *cryptox.KeyPair) error

	// Clear removes the keypair. Used only on explicit logout.
	Clear(ctx context.Context, userID string) error
}

// Store wraps a SecretStore with the keypair lifecycle: created once per
// device if absent, never mutated afterwards.
type Store struct {
	crypto  *cryptox.Context
	secrets SecretStore
}

func New(crypto *cryptox.Context, secrets SecretStore) *Store {
	return &Store{crypto: crypto, secrets: secrets}
}

// EnsureKeyPair returns the user's keypair, generating and persisting a
// fresh one on first use.
func (s *Store) EnsureKeyPair(ctx context.Context, userID string) (*cryptox.KeyPair, error) {
	kp, err := s.secrets.Load(ctx, userID)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	kp, err = s.crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := s.secrets.Save(ctx, userID, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// Clear destroys the stored keypair. Everything sealed to it becomes
// permanently unreadable.
func (s *Store) Clear(ctx context.Context, userID string) error {
	return s.secrets.Clear(ctx, userID)
}
