package rooms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/seteams/hubcore/internal/common"
	"github.com/seteams/hubcore/internal/cryptox"
	"github.com/seteams/hubcore/internal/keycodec"
	"github.com/seteams/hubcore/internal/logging"
)

// Service creates rooms, distributes sealed room secrets and retrieves them
// for members.
type Service struct {
	crypto     *cryptox.Context
	identities IdentityRepository
	rooms      RoomRepository
	keys       RoomKeyRepository
	logger     logging.Logger
	now        func() time.Time
}

func NewService(crypto *cryptox.Context, identities IdentityRepository, rooms RoomRepository, keys RoomKeyRepository, logger logging.Logger) *Service {
	return &Service{
		crypto:     crypto,
		identities: identities,
		rooms:      rooms,
		keys:       keys,
		logger:     logger.With("module", "rooms"),
		now:        time.Now,
	}
}

// PublishIdentity upserts the user's public key record. Last write wins.
func (s *Service) PublishIdentity(ctx context.Context, userID string, publicKey []byte) error {
	return s.identities.Publish(ctx, &Identity{
		UserID:          userID,
		PublicKeyBase64: keycodec.Encode(publicKey),
	})
}

// GetPublicKey fetches a user's published public key from the directory.
// Returns common.ErrorNotFound for users that never published one.
func (s *Service) GetPublicKey(ctx context.Context, userID string) ([]byte, error) {
	identity, err := s.identities.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return keycodec.Decode(identity.PublicKeyBase64)
}

// lookupPublicKey resolves a member's published key, or nil if the member
// has not published one yet.
func (s *Service) lookupPublicKey(ctx context.Context, userID string) ([]byte, error) {
	identity, err := s.identities.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return keycodec.Decode(identity.PublicKeyBase64)
}

// EnsureRoom creates the room on first use and guarantees every member with
// a published key holds a sealed copy of the current room secret.
//
// On an existing room the requested members are merged into the membership
// set. If any current member lacks a sealed key, a new secret is generated
// and resealed to the FULL member set, not just the backfilled subset —
// skipping an already-keyed member here would silently cut them off from
// all future messages. Members without a published key are skipped, not
// errored; they stay unkeyed until they publish and some client calls
// EnsureRoom again.
func (s *Service) EnsureRoom(ctx context.Context, roomID string, memberIDs []string) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		room, err = s.createRoom(ctx, roomID, memberIDs)
		if err != nil || room == nil {
			return err
		}
		// Lost the create race; fall through and treat it as existing.
	}

	merged := unionMembers(room.Members, memberIDs)
	if len(merged) != len(room.Members) {
		if err := s.rooms.UpdateMembers(ctx, roomID, merged); err != nil {
			return err
		}
	}

	keyed, err := s.keys.MemberIDsWithKeys(ctx, roomID)
	if err != nil {
		return err
	}
	if !anyMissing(merged, keyed) {
		return nil
	}

	secret, err := s.crypto.GenerateSecret()
	if err != nil {
		return err
	}
	defer cryptox.Wipe(secret)

	if err := s.sealToMembers(ctx, roomID, secret, merged); err != nil {
		return err
	}

	if err := s.rooms.MarkRotated(ctx, roomID, s.now()); err != nil {
		return err
	}

	s.logger.Info(ctx, "room secret rotated", "roomId", roomID, "members", len(merged))
	return nil
}

// createRoom runs the atomic create-if-absent path. Returns (nil, nil) when
// this writer created and fully keyed the room, or the existing room when
// another writer won the race — the loser's secret is never persisted.
func (s *Service) createRoom(ctx context.Context, roomID string, memberIDs []string) (*Room, error) {
	room := &Room{
		RoomID:        roomID,
		Members:       unionMembers(nil, memberIDs),
		CreatedAt:     s.now(),
		SecretVersion: 1,
	}

	created, existing, err := s.rooms.CreateIfAbsent(ctx, room)
	if err != nil {
		return nil, err
	}
	if !created {
		return existing, nil
	}

	secret, err := s.crypto.GenerateSecret()
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(secret)

	if err := s.sealToMembers(ctx, roomID, secret, room.Members); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "room created", "roomId", roomID, "members", len(room.Members))
	return nil, nil
}

func (s *Service) sealToMembers(ctx context.Context, roomID string, secret []byte, memberIDs []string) error {
	for _, memberID := range memberIDs {
		pk, err := s.lookupPublicKey(ctx, memberID)
		if err != nil {
			return err
		}
		if pk == nil {
			s.logger.Warn(ctx, "member has no published key, skipping", "roomId", roomID, "memberId", memberID)
			continue
		}

		sealed, err := s.crypto.Seal(secret, pk)
		if err != nil {
			return err
		}

		err = s.keys.Upsert(ctx, &SealedRoomKey{
			RoomID:          roomID,
			MemberID:        memberID,
			SealedKeyBase64: keycodec.Encode(sealed),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetRoomSecretForUser looks up and unseals the member's copy of the room
// secret. Returns common.ErrNoRoomKey if absent (the caller should retry
// EnsureRoom) and common.ErrAuthenticationFailed on tamper or keypair
// mismatch.
func (s *Service) GetRoomSecretForUser(ctx context.Context, roomID, userID string, userPublicKey, userPrivateKey []byte) ([]byte, error) {
	key, err := s.keys.Get(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNoRoomKey
		}
		return nil, err
	}

	sealed, err := keycodec.Decode(key.SealedKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("malformed sealed key: %w", err)
	}

	return s.crypto.Unseal(sealed, userPrivateKey, userPublicKey)
}

func unionMembers(current, requested []string) []string {
	seen := make(map[string]struct{}, len(current)+len(requested))
	merged := make([]string, 0, len(current)+len(requested))
	for _, id := range current {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	for _, id := range requested {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	sort.Strings(merged)
	return merged
}

func anyMissing(members, keyed []string) bool {
	have := make(map[string]struct{}, len(keyed))
	for _, id := range keyed {
		have[id] = struct{}{}
	}
	for _, id := range members {
		if _, ok := have[id]; !ok {
			return true
		}
	}
	return false
}
