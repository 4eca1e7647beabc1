package messaging

import (
	"context"

	"github.com/seteams/hubcore/internal/cryptox"
	"github.com/seteams/hubcore/internal/keycodec"
	"github.com/seteams/hubcore/internal/logging"
	"github.com/seteams/hubcore/internal/rooms"
)

// Messenger sends and receives end-to-end encrypted room messages.
type Messenger struct {
	crypto   *cryptox.Context
	rooms    *rooms.Service
	messages MessageRepository
	logger   logging.Logger
}

func NewMessenger(crypto *cryptox.Context, roomService *rooms.Service, messages MessageRepository, logger logging.Logger) *Messenger {
	return &Messenger{
		crypto:   crypto,
		rooms:    roomService,
		messages: messages,
		logger:   logger.With("module", "messaging"),
	}
}

// Send encrypts plaintext under the room secret and appends it to the room.
// Nothing is persisted if any stage fails, so a failed send leaves no
// partial state behind.
func (m *Messenger) Send(ctx context.Context, roomID, senderID, plaintext string, kp *cryptox.KeyPair, attachments []Attachment) error {
	secret, err := m.rooms.GetRoomSecretForUser(ctx, roomID, senderID, kp.PublicKey, kp.PrivateKey)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(secret)

	nonce, ciphertext, err := m.crypto.EncryptText(plaintext, secret)
	if err != nil {
		return err
	}

	return m.messages.Append(ctx, &EncryptedMessage{
		RoomID:           roomID,
		SenderID:         senderID,
		CiphertextBase64: keycodec.Encode(ciphertext),
		NonceBase64:      keycodec.Encode(nonce),
		Attachments:      attachments,
	})
}

// Subscribe delivers decrypted snapshots of the room's message list until
// cancel is called or ctx is done. The room secret is fetched and unsealed
// once, on the first snapshot, and cached for the subscription's lifetime;
// starting a new subscription re-fetches it.
//
// Decryption failures surface on the snapshot's Err field and end the
// subscription — an authentication failure signals corruption or an active
// attack and is never skipped over.
func (m *Messenger) Subscribe(ctx context.Context, roomID, userID string, kp *cryptox.KeyPair) (<-chan Snapshot, func(), error) {
	sub, err := m.messages.Subscribe(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Snapshot)
	done := make(chan struct{})

	go func() {
		defer close(out)
		defer sub.Close()

		var secret []byte
		defer func() { cryptox.Wipe(secret) }()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case encrypted, ok := <-sub.Snapshots():
				if !ok {
					return
				}

				if secret == nil {
					secret, err = m.rooms.GetRoomSecretForUser(ctx, roomID, userID, kp.PublicKey, kp.PrivateKey)
					if err != nil {
						out <- Snapshot{Err: err}
						return
					}
				}

				decrypted, err := m.decryptSnapshot(encrypted, secret)
				if err != nil {
					out <- Snapshot{Err: err}
					return
				}

				select {
				case out <- Snapshot{Messages: decrypted}:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	var cancelOnce func()
	closed := false
	cancelOnce = func() {
		if !closed {
			closed = true
			close(done)
		}
	}

	return out, cancelOnce, nil
}

func (m *Messenger) decryptSnapshot(encrypted []*EncryptedMessage, secret []byte) ([]DecryptedMessage, error) {
	decrypted := make([]DecryptedMessage, 0, len(encrypted))
	for _, msg := range encrypted {
		ciphertext, err := keycodec.Decode(msg.CiphertextBase64)
		if err != nil {
			return nil, err
		}
		nonce, err := keycodec.Decode(msg.NonceBase64)
		if err != nil {
			return nil, err
		}

		content, err := m.crypto.DecryptText(ciphertext, nonce, secret)
		if err != nil {
			return nil, err
		}

		decrypted = append(decrypted, DecryptedMessage{
			ID:          msg.ID,
			SenderID:    msg.SenderID,
			Content:     content,
			Timestamp:   msg.Timestamp,
			Attachments: msg.Attachments,
		})
	}
	return decrypted, nil
}
