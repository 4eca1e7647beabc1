// Package messaging encrypts, persists and streams room messages. Message
// bodies are encrypted under the room secret; the document store only ever
// sees ciphertext.
package messaging

import (
	"context"
	"time"
)

// Attachment references an encrypted file record by id. The file's own key
// distribution is handled by the transfer layer.
type Attachment struct {
	FileID   string `json:"fileId"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// EncryptedMessage is the stored message document. Immutable once written;
// ordering is by server-assigned timestamp ascending.
type EncryptedMessage struct {
	ID               string
	RoomID           string
	SenderID         string
	CiphertextBase64 string
	NonceBase64      string
	Timestamp        time.Time
	Attachments      []Attachment
}

// DecryptedMessage is what subscribers see.
type DecryptedMessage struct {
	ID          string
	SenderID    string
	Content     string
	Timestamp   time.Time
	Attachments []Attachment
}

// Snapshot is one delivery of the full current message list for a room.
// Decryption state is re-derived from each snapshot rather than diffed.
type Snapshot struct {
	Messages []DecryptedMessage
	Err      error
}

// MessageRepository is the document-store collaborator for messages.
type MessageRepository interface {
	// Append stores the message and assigns the server timestamp.
	Append(ctx context.Context, msg *EncryptedMessage) error

	// ListByRoom returns all messages ordered by timestamp ascending.
	ListByRoom(ctx context.Context, roomID string) ([]*EncryptedMessage, error)

	// Subscribe delivers the full current message list on every change
	// until the context is cancelled or the subscription is closed.
	Subscribe(ctx context.Context, roomID string) (MessageSubscription, error)
}

// MessageSubscription is a live ordered stream of message-list snapshots.
type MessageSubscription interface {
	Snapshots() <-chan []*EncryptedMessage
	Close()
}
