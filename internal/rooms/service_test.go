package rooms

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/seteams/hubcore/internal/common"
	"github.com/seteams/hubcore/internal/cryptox"
	"github.com/seteams/hubcore/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory fakes ---

type fakeIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]*Identity
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{identities: make(map[string]*Identity)}
}

func (f *fakeIdentityRepo) Publish(ctx context.Context, identity *Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identities[identity.UserID] = identity
	return nil
}

func (f *fakeIdentityRepo) Get(ctx context.Context, userID string) (*Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.identities[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return identity, nil
}

type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[string]*Room)}
}

func (f *fakeRoomRepo) CreateIfAbsent(ctx context.Context, room *Room) (bool, *Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.rooms[room.RoomID]; ok {
		return false, existing, nil
	}
	f.rooms[room.RoomID] = room
	return true, nil, nil
}

func (f *fakeRoomRepo) Get(ctx context.Context, roomID string) (*Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return room, nil
}

func (f *fakeRoomRepo) UpdateMembers(ctx context.Context, roomID string, members []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[roomID].Members = members
	return nil
}

func (f *fakeRoomRepo) MarkRotated(ctx context.Context, roomID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.rooms[roomID]
	room.RotatedAt = &at
	room.SecretVersion++
	return nil
}

type fakeKeyRepo struct {
	mu      sync.Mutex
	keys    map[string]map[string]*SealedRoomKey // roomID -> memberID
	upserts int
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{keys: make(map[string]map[string]*SealedRoomKey)}
}

func (f *fakeKeyRepo) Get(ctx context.Context, roomID, memberID string) (*SealedRoomKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[roomID][memberID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return key, nil
}

func (f *fakeKeyRepo) Upsert(ctx context.Context, key *SealedRoomKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[key.RoomID] == nil {
		f.keys[key.RoomID] = make(map[string]*SealedRoomKey)
	}
	f.keys[key.RoomID][key.MemberID] = key
	f.upserts++
	return nil
}

func (f *fakeKeyRepo) MemberIDsWithKeys(ctx context.Context, roomID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.keys[roomID] {
		ids = append(ids, id)
	}
	return ids, nil
}

// --- helpers ---

type env struct {
	crypto     *cryptox.Context
	identities *fakeIdentityRepo
	rooms      *fakeRoomRepo
	keys       *fakeKeyRepo
	service    *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	crypto, err := cryptox.NewContext()
	require.NoError(t, err)

	identities := newFakeIdentityRepo()
	roomRepo := newFakeRoomRepo()
	keyRepo := newFakeKeyRepo()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	return &env{
		crypto:     crypto,
		identities: identities,
		rooms:      roomRepo,
		keys:       keyRepo,
		service:    NewService(crypto, identities, roomRepo, keyRepo, logger),
	}
}

func (e *env) publishUser(t *testing.T, userID string) *cryptox.KeyPair {
	t.Helper()
	kp, err := e.crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, e.service.PublishIdentity(context.Background(), userID, kp.PublicKey))
	return kp
}

// --- tests ---

func TestGetPublicKey_RoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	alice := e.publishUser(t, "alice")

	got, err := e.service.GetPublicKey(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.PublicKey, got)

	_, err = e.service.GetPublicKey(ctx, "ghost")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestEnsureRoom_CreatesAndKeysAllMembers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	alice := e.publishUser(t, "alice")
	bob := e.publishUser(t, "bob")

	require.NoError(t, e.service.EnsureRoom(ctx, "r1", []string{"alice", "bob"}))

	secretA, err := e.service.GetRoomSecretForUser(ctx, "r1", "alice", alice.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	secretB, err := e.service.GetRoomSecretForUser(ctx, "r1", "bob", bob.PublicKey, bob.PrivateKey)
	require.NoError(t, err)

	assert.Equal(t, secretA, secretB, "both members must unseal the same secret")
	assert.Len(t, secretA, cryptox.SecretKeySize)
}

func TestEnsureRoom_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	alice := e.publishUser(t, "alice")
	e.publishUser(t, "bob")

	require.NoError(t, e.service.EnsureRoom(ctx, "r1", []string{"alice", "bob"}))

	secretBefore, err := e.service.GetRoomSecretForUser(ctx, "r1", "alice", alice.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	upsertsBefore := e.keys.upserts

	require.NoError(t, e.service.EnsureRoom(ctx, "r1", []string{"alice", "bob"}))

	room, err := e.rooms.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, room.Members)
	assert.Equal(t, upsertsBefore, e.keys.upserts, "no reseal when everyone is keyed")
	assert.Nil(t, room.RotatedAt)

	secretAfter, err := e.service.GetRoomSecretForUser(ctx, "r1", "alice", alice.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, secretBefore, secretAfter)
}

func TestEnsureRoom_NewMemberTriggersFullReseal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	alice := e.publishUser(t, "alice")
	bob := e.publishUser(t, "bob")

	require.NoError(t, e.service.EnsureRoom(ctx, "r1", []string{"alice"}))

	oldSecret, err := e.service.GetRoomSecretForUser(ctx, "r1", "alice", alice.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	require.NoError(t, e.service.EnsureRoom(ctx, "r1", []string{"alice", "bob"}))

	room, err := e.rooms.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, room.Members)
	require.NotNil(t, room.RotatedAt, "backfill must record a rotation")

	// Both the new and every previously-keyed member must hold the new secret.
	newSecretAlice, err := e.service.GetRoomSecretForUser(ctx, "r1", "alice", alice.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	newSecretBob, err := e.service.GetRoomSecretForUser(ctx, "r1", "bob", bob.PublicKey, bob.PrivateKey)
	require.NoError(t, err)

	assert.Equal(t, newSecretAlice, newSecretBob)
	assert.NotEqual(t, oldSecret, newSecretAlice, "backfill generates a new secret")
}

func TestEnsureRoom_SkipsUnpublishedMembers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	alice := e.publishUser(t, "alice")
	// carol never published a key

	require.NoError(t, e.service.EnsureRoom(ctx, "r1", []string{"alice", "carol"}))

	_, err := e.service.GetRoomSecretForUser(ctx, "r1", "alice", alice.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	carol := e.publishUser(t, "carol")
	_, err = e.service.GetRoomSecretForUser(ctx, "r1", "carol", carol.PublicKey, carol.PrivateKey)
	assert.True(t, errors.Is(err, common.ErrNoRoomKey), "unpublished member stays unkeyed until re-invocation")

	// After publishing, a new EnsureRoom call backfills carol.
	require.NoError(t, e.service.EnsureRoom(ctx, "r1", []string{"alice", "carol"}))

	secretCarol, err := e.service.GetRoomSecretForUser(ctx, "r1", "carol", carol.PublicKey, carol.PrivateKey)
	require.NoError(t, err)
	secretAlice, err := e.service.GetRoomSecretForUser(ctx, "r1", "alice", alice.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, secretAlice, secretCarol)
}

func TestEnsureRoom_LosingRacerAdoptsExistingRoom(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	alice := e.publishUser(t, "alice")
	e.publishUser(t, "bob")

	// Winner created the room first.
	require.NoError(t, e.service.EnsureRoom(ctx, "r1", []string{"alice"}))
	winnerSecret, err := e.service.GetRoomSecretForUser(ctx, "r1", "alice", alice.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	// Loser races with a create for the same room. CreateIfAbsent reports
	// the conflict and the loser merges instead of overwriting.
	created, existing, err := e.rooms.CreateIfAbsent(ctx, &Room{RoomID: "r1", Members: []string{"alice", "bob"}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"alice"}, existing.Members)

	require.NoError(t, e.service.EnsureRoom(ctx, "r1", []string{"alice", "bob"}))

	// Alice can still read: the winner's secret was either kept or she was
	// resealed under the rotated one together with bob.
	_, err = e.service.GetRoomSecretForUser(ctx, "r1", "alice", alice.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	_ = winnerSecret
}

func TestGetRoomSecretForUser_NoRoomKey(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	kp, err := e.crypto.GenerateKeyPair()
	require.NoError(t, err)

	_, err = e.service.GetRoomSecretForUser(ctx, "missing", "alice", kp.PublicKey, kp.PrivateKey)
	assert.True(t, errors.Is(err, common.ErrNoRoomKey))
}

func TestGetRoomSecretForUser_WrongKeypair(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	e.publishUser(t, "alice")
	require.NoError(t, e.service.EnsureRoom(ctx, "r1", []string{"alice"}))

	stranger, err := e.crypto.GenerateKeyPair()
	require.NoError(t, err)

	_, err = e.service.GetRoomSecretForUser(ctx, "r1", "alice", stranger.PublicKey, stranger.PrivateKey)
	assert.True(t, errors.Is(err, common.ErrAuthenticationFailed))
}
