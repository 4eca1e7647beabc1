// Package transfer sequences secure file uploads and downloads:
// scan → preprocess → chunk-encrypt → persist → seal-key-per-recipient →
// metadata, and the reverse for download. Blob and document storage are
// opaque collaborators.
package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seteams/hubcore/internal/scanning"
)

// Status values for FileRecord.
const (
	StatusEncrypted = "encrypted"
	StatusExpired   = "expired"
)

// FileRecord is the immutable metadata document written at upload
// completion. Only expiry is applied afterwards, lazily.
type FileRecord struct {
	FileID       string
	OriginalName string
	OriginalSize int64
	MimeType     string
	FileHash     string

	HeaderBase64 string
	HeaderPath   string
	ChunkPaths   []string
	ChunkCount   int

	// SealedKeyByRecipient maps user id to the file key sealed to that
	// user. SealedKeyBase64 is the legacy single-recipient field, read as
	// a fallback.
	SealedKeyByRecipient map[string]string
	SealedKeyBase64      string

	ScanResult *scanning.Result

	RoomID     string
	UploadedBy string
	UploadedAt time.Time
	ExpiresAt  *time.Time
	Status     string
}

// BlobStore is the opaque blob-storage collaborator: bytes in, reference
// out. Paths are namespaced per file id.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte) (ref string, err error)
	Get(ctx context.Context, path string) ([]byte, error)

	// URL resolves a stored reference to a retrievable URL.
	URL(ctx context.Context, ref string) (string, error)
}

// FileRecordRepository is the document-store collaborator for file
// metadata.
type FileRecordRepository interface {
	Create(ctx context.Context, record *FileRecord) error

	// Get returns common.ErrorNotFound for unknown file ids.
	Get(ctx context.Context, fileID string) (*FileRecord, error)

	// MarkExpired applies lazy expiry.
	MarkExpired(ctx context.Context, fileID string) error
}

// SecurityScanError rejects an upload with the detected threats.
type SecurityScanError struct {
	Threats []scanning.Threat
}

func (e *SecurityScanError) Error() string {
	names := make([]string, 0, len(e.Threats))
	for _, threat := range e.Threats {
		names = append(names, threat.Name)
	}
	return fmt.Sprintf("file failed security scan: %s", strings.Join(names, ", "))
}

// ProgressFunc receives monotonically increasing percentages through the
// upload's fixed milestones. Callers must not assume uniform spacing.
type ProgressFunc func(percent float64)

func headerPath(fileID string) string {
	return fmt.Sprintf("encrypted/%s/header.bin", fileID)
}

func chunkPath(fileID string, index int) string {
	return fmt.Sprintf("encrypted/%s/chunk_%d.bin", fileID, index)
}
