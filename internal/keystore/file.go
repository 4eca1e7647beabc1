package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/seteams/hubcore/internal/common"
	"github.com/seteams/hubcore/internal/cryptox"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
)

// FileStore persists keypairs encrypted at rest. The encryption key is
// derived from a passphrase with argon2id; the keypair JSON is sealed with
// AES-GCM, so a wrong passphrase fails authentication instead of yielding
// garbage key material.
type FileStore struct {
	dir        string
	passphrase []byte
}

func NewFileStore(dir string, passphrase []byte) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, passphrase: passphrase}, nil
}

type keyFile struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

type keyPairDoc struct {
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`
}

func (f *FileStore) path(userID string) string {
	return filepath.Join(f.dir, userID+".key")
}

func deriveFileKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

func (f *FileStore) Load(ctx context.Context, userID string) (*cryptox.KeyPair, error) {
	raw, err := os.ReadFile(f.path(userID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}

	key := deriveFileKey(f.passphrase, kf.Salt)
	defer cryptox.Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, kf.Nonce, kf.Ciphertext, nil)
	if err != nil {
		return nil, common.ErrAuthenticationFailed
	}
	defer cryptox.Wipe(plaintext)

	var doc keyPairDoc
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return nil, fmt.Errorf("parse keypair: %w", err)
	}

	return &cryptox.KeyPair{PublicKey: doc.PublicKey, PrivateKey: doc.PrivateKey}, nil
}

func (f *FileStore) Save(ctx context.Context, userID string, kp *cryptox.KeyPair) error {
	plaintext, err := json.Marshal(keyPairDoc{PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey})
	if err != nil {
		return err
	}
	defer cryptox.Wipe(plaintext)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	key := deriveFileKey(f.passphrase, salt)
	defer cryptox.Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	kf := keyFile{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aesgcm.Seal(nil, nonce, plaintext, nil),
	}

	raw, err := json.Marshal(kf)
	if err != nil {
		return err
	}

	return os.WriteFile(f.path(userID), raw, 0o600)
}

func (f *FileStore) Clear(ctx context.Context, userID string) error {
	err := os.Remove(f.path(userID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
