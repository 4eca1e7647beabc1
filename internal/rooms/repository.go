// Package rooms implements the room-key protocol: one symmetric secret per
// room, sealed individually to every member's public key.
package rooms

import (
	"context"
	"time"
)

// Identity is the published record binding a user id to a public key.
// Upsertable, last-write-wins on the key (trust-on-first-use, no server-side
// verification).
type Identity struct {
	UserID          string
	PublicKeyBase64 string
}

// Room is the membership document. Members is append-only; there is no
// leave/remove path, so a departed member keeps the secret already sealed
// to them.
type Room struct {
	RoomID        string
	Members       []string
	CreatedAt     time.Time
	SecretVersion int64
	RotatedAt     *time.Time
}

// SealedRoomKey holds the room secret sealed to one member. Every current
// member needs one before they can send or read messages.
type SealedRoomKey struct {
	RoomID          string
	MemberID        string
	SealedKeyBase64 string
}

// IdentityRepository is the document-store collaborator for identities.
type IdentityRepository interface {
	Publish(ctx context.Context, identity *Identity) error

	// Get returns common.ErrorNotFound for unpublished users.
	Get(ctx context.Context, userID string) (*Identity, error)
}

// RoomRepository is the document-store collaborator for room documents.
type RoomRepository interface {
	// CreateIfAbsent atomically creates the room document. If another
	// writer won the race, created is false and existing holds the stored
	// document; the caller must discard its generated secret.
	CreateIfAbsent(ctx context.Context, room *Room) (created bool, existing *Room, err error)

	// Get returns common.ErrorNotFound for unknown rooms.
	Get(ctx context.Context, roomID string) (*Room, error)

	UpdateMembers(ctx context.Context, roomID string, members []string) error

	// MarkRotated records a rotation timestamp and bumps the secret version.
	MarkRotated(ctx context.Context, roomID string, at time.Time) error
}

// RoomKeyRepository is the document-store collaborator for sealed room keys,
// one record per (room, member) pair.
type RoomKeyRepository interface {
	// Get returns common.ErrorNotFound if the member has no sealed key.
	Get(ctx context.Context, roomID, memberID string) (*SealedRoomKey, error)

	Upsert(ctx context.Context, key *SealedRoomKey) error

	// MemberIDsWithKeys lists the members that currently hold a sealed key.
	MemberIDsWithKeys(ctx context.Context, roomID string) ([]string, error)
}
