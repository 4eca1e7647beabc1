package pgdoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seteams/hubcore/internal/common"
	"github.com/seteams/hubcore/internal/dbx"
	"github.com/seteams/hubcore/internal/rooms"
)

type RoomRepository struct {
	db dbx.DBTX
}

func NewRoomRepository(db dbx.DBTX) *RoomRepository {
	return &RoomRepository{db: db}
}

// CreateIfAbsent inserts the room document. ON CONFLICT DO NOTHING makes the
// race deterministic: the loser gets created=false plus the stored document.
func (r *RoomRepository) CreateIfAbsent(ctx context.Context, room *rooms.Room) (bool, *rooms.Room, error) {
	members, err := json.Marshal(room.Members)
	if err != nil {
		return false, nil, fmt.Errorf("encoding members: %w", err)
	}

	query := `
		INSERT INTO rooms (room_id, members, created_at, secret_version)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (room_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, room.RoomID, members, room.CreatedAt)
	if err != nil {
		return false, nil, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return true, nil, nil
	}

	existing, err := r.Get(ctx, room.RoomID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *RoomRepository) Get(ctx context.Context, roomID string) (*rooms.Room, error) {
	query := `SELECT room_id, members, created_at, secret_version, rotated_at FROM rooms WHERE room_id=$1`

	result := &rooms.Room{}
	var members []byte
	var rotatedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, roomID).
		Scan(&result.RoomID, &members, &result.CreatedAt, &result.SecretVersion, &rotatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select room: %w", err)
	}

	if err := json.Unmarshal(members, &result.Members); err != nil {
		return nil, fmt.Errorf("decoding members: %w", err)
	}
	if rotatedAt.Valid {
		result.RotatedAt = &rotatedAt.Time
	}
	return result, nil
}

func (r *RoomRepository) UpdateMembers(ctx context.Context, roomID string, memberIDs []string) error {
	members, err := json.Marshal(memberIDs)
	if err != nil {
		return fmt.Errorf("encoding members: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET members=$2 WHERE room_id=$1`, roomID, members)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

// MarkRotated bumps the secret version alongside the timestamp.
func (r *RoomRepository) MarkRotated(ctx context.Context, roomID string, at time.Time) error {
	query := `UPDATE rooms SET rotated_at=$2, secret_version=secret_version+1 WHERE room_id=$1`
	res, err := r.db.ExecContext(ctx, query, roomID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

type RoomKeyRepository struct {
	db dbx.DBTX
}

func NewRoomKeyRepository(db dbx.DBTX) *RoomKeyRepository {
	return &RoomKeyRepository{db: db}
}

func (r *RoomKeyRepository) Get(ctx context.Context, roomID, memberID string) (*rooms.SealedRoomKey, error) {
	query := `SELECT room_id, member_id, sealed_key FROM room_keys WHERE room_id=$1 AND member_id=$2`

	result := &rooms.SealedRoomKey{}
	err := r.db.QueryRowContext(ctx, query, roomID, memberID).
		Scan(&result.RoomID, &result.MemberID, &result.SealedKeyBase64)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select room key: %w", err)
	}
	return result, nil
}

func (r *RoomKeyRepository) Upsert(ctx context.Context, key *rooms.SealedRoomKey) error {
	query := `
		INSERT INTO room_keys (room_id, member_id, sealed_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, member_id)
		DO UPDATE SET sealed_key = EXCLUDED.sealed_key
	`
	if _, err := r.db.ExecContext(ctx, query, key.RoomID, key.MemberID, key.SealedKeyBase64); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *RoomKeyRepository) MemberIDsWithKeys(ctx context.Context, roomID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT member_id FROM room_keys WHERE room_id=$1`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to select room keys: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var memberID string
		if err := rows.Scan(&memberID); err != nil {
			return nil, err
		}
		result = append(result, memberID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}
