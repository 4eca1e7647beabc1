package keystore

import (
	"context"
	"sync"

	"github.com/seteams/hubcore/internal/common"
	"github.com/seteams/hubcore/internal/cryptox"
)

// MemoryStore keeps keypairs in process memory only. Keys vanish with the
// process; intended for tests and ephemeral sessions.
type MemoryStore struct {
	mu    sync.RWMutex
	pairs map[string]*cryptox.KeyPair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pairs: make(map[string]*cryptox.KeyPair)}
}

func (m *MemoryStore) Load(ctx context.Context, userID string) (*cryptox.KeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kp, ok := m.pairs[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return kp, nil
}

func (m *MemoryStore) Save(ctx context.Context, userID string, kp *cryptox.KeyPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pairs[userID] = kp
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pairs, userID)
	return nil
}
