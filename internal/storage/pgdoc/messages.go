package pgdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seteams/hubcore/internal/dbx"
	"github.com/seteams/hubcore/internal/messaging"
)

const defaultPollInterval = 2 * time.Second

// MessageRepository stores message documents and emulates change streaming
// by polling: each subscription re-reads the room's message list on an
// interval and delivers a full snapshot whenever it changed.
type MessageRepository struct {
	db           dbx.DBTX
	pollInterval time.Duration
}

func NewMessageRepository(db dbx.DBTX) *MessageRepository {
	return &MessageRepository{db: db, pollInterval: defaultPollInterval}
}

// Append stores the message, assigning the id and the server-side timestamp.
func (r *MessageRepository) Append(ctx context.Context, msg *messaging.EncryptedMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("encoding attachments: %w", err)
	}

	query := `
		INSERT INTO messages (id, room_id, sender_id, ciphertext, nonce, attachments)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ts
	`
	err = r.db.QueryRowContext(ctx, query,
		msg.ID, msg.RoomID, msg.SenderID, msg.CiphertextBase64, msg.NonceBase64, attachments).
		Scan(&msg.Timestamp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListByRoom(ctx context.Context, roomID string) ([]*messaging.EncryptedMessage, error) {
	query := `
		SELECT id, room_id, sender_id, ciphertext, nonce, ts, attachments
		FROM messages WHERE room_id=$1 ORDER BY ts ASC
	`
	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []*messaging.EncryptedMessage
	for rows.Next() {
		var item messaging.EncryptedMessage
		var attachments []byte
		if err := rows.Scan(&item.ID, &item.RoomID, &item.SenderID,
			&item.CiphertextBase64, &item.NonceBase64, &item.Timestamp, &attachments); err != nil {
			return nil, err
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &item.Attachments); err != nil {
				return nil, fmt.Errorf("decoding attachments: %w", err)
			}
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Subscribe starts the polling loop. The first snapshot is delivered
// immediately; afterwards one is delivered per poll that observed a change.
func (r *MessageRepository) Subscribe(ctx context.Context, roomID string) (messaging.MessageSubscription, error) {
	sub := &pollSubscription{
		snapshots: make(chan []*messaging.EncryptedMessage, 1),
		done:      make(chan struct{}),
	}
	go sub.run(ctx, r, roomID)
	return sub, nil
}

type pollSubscription struct {
	snapshots chan []*messaging.EncryptedMessage
	done      chan struct{}
	closeOnce sync.Once
}

func (s *pollSubscription) Snapshots() <-chan []*messaging.EncryptedMessage {
	return s.snapshots
}

func (s *pollSubscription) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *pollSubscription) run(ctx context.Context, repo *MessageRepository, roomID string) {
	defer close(s.snapshots)

	ticker := time.NewTicker(repo.pollInterval)
	defer ticker.Stop()

	var lastCount int
	var lastTS time.Time
	first := true

	for {
		msgs, err := repo.ListByRoom(ctx, roomID)
		if err == nil && (first || changed(msgs, lastCount, lastTS)) {
			first = false
			lastCount = len(msgs)
			if len(msgs) > 0 {
				lastTS = msgs[len(msgs)-1].Timestamp
			}
			// Stale undelivered snapshots are superseded, not queued.
			select {
			case <-s.snapshots:
			default:
			}
			select {
			case s.snapshots <- msgs:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

func changed(msgs []*messaging.EncryptedMessage, lastCount int, lastTS time.Time) bool {
	if len(msgs) != lastCount {
		return true
	}
	if len(msgs) == 0 {
		return false
	}
	return !msgs[len(msgs)-1].Timestamp.Equal(lastTS)
}
