package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/seteams/hubcore/internal/common"
	"github.com/seteams/hubcore/internal/cryptox"
	"github.com/seteams/hubcore/internal/imagex"
	"github.com/seteams/hubcore/internal/keycodec"
	"github.com/seteams/hubcore/internal/logging"
	"github.com/seteams/hubcore/internal/scanning"
)

// Progress milestones. Chunk uploads interpolate between chunkStart and
// chunkEnd.
const (
	progressScan       = 5
	progressPreprocess = 15
	progressEncrypt    = 30
	progressChunkStart = 40
	progressChunkEnd   = 90
	progressMetadata   = 95
	progressDone       = 100
)

// UploadOptions configure one upload.
type UploadOptions struct {
	RoomID     string
	UploadedBy string

	// Recipients maps user id to public key. The per-file encryption key
	// is sealed to every entry before any metadata is written.
	Recipients map[string][]byte

	ExpiresAt *time.Time

	StripExif      bool
	ReencodeImages bool
	ImageMaxSizeMB float64

	// ChunkSize defaults to common.DefaultChunkSize.
	ChunkSize int

	// Concurrency bounds the chunk-upload fan-out. Transfer order may
	// interleave; chunk indices keep reassembly deterministic.
	Concurrency int

	OnProgress ProgressFunc
}

// Uploader runs the upload sequence. Each stage's failure aborts all later
// stages; a failed upload writes no metadata document, so nothing ever
// references partially persisted chunks.
type Uploader struct {
	crypto   *cryptox.Context
	pipeline *scanning.Pipeline
	blobs    BlobStore
	records  FileRecordRepository
	logger   logging.Logger
	now      func() time.Time
}

func NewUploader(crypto *cryptox.Context, pipeline *scanning.Pipeline, blobs BlobStore, records FileRecordRepository, logger logging.Logger) *Uploader {
	return &Uploader{
		crypto:   crypto,
		pipeline: pipeline,
		blobs:    blobs,
		records:  records,
		logger:   logger.With("module", "upload"),
		now:      time.Now,
	}
}

// Upload scans, preprocesses, encrypts and persists the file, then writes
// its metadata document. Returns SecurityScanError when the scan verdict is
// unclean and common.ErrTransferFailed-wrapped errors for storage failures.
func (u *Uploader) Upload(ctx context.Context, name, mimeType string, content []byte, opts UploadOptions) (*FileRecord, error) {
	progress := newProgressReporter(opts.OnProgress)

	// 1. Scan.
	progress.report(progressScan)
	scanResult := u.pipeline.Scan(ctx, name, content)
	if !scanResult.Clean {
		u.logger.Warn(ctx, "upload rejected by scan", "name", name, "threats", len(scanResult.Threats))
		return nil, &SecurityScanError{Threats: scanResult.Threats}
	}

	// 2. Preprocess (images only).
	progress.report(progressPreprocess)
	processed, err := imagex.Process(content, mimeType, imagex.Options{
		StripExif: opts.StripExif,
		Reencode:  opts.ReencodeImages,
		MaxSizeMB: opts.ImageMaxSizeMB,
	})
	if err != nil {
		return nil, err
	}

	// 3. Chunk-encrypt. Push calls are sequential by construction.
	progress.report(progressEncrypt)
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = common.DefaultChunkSize
	}

	stream, err := u.crypto.NewEncryptStream()
	if err != nil {
		return nil, err
	}

	var chunks [][]byte
	for offset := 0; ; offset += chunkSize {
		end := offset + chunkSize
		if end > len(processed) {
			end = len(processed)
		}
		final := end == len(processed)
		ct, err := stream.Push(processed[offset:end], final)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ct)
		if final {
			break
		}
	}

	// 4. Seal the file key to every recipient before anything leaves the
	// device. The key itself is never persisted or transmitted unwrapped.
	sealedByRecipient := make(map[string]string, len(opts.Recipients))
	for userID, publicKey := range opts.Recipients {
		sealed, err := u.crypto.Seal(stream.Key(), publicKey)
		if err != nil {
			return nil, err
		}
		sealedByRecipient[userID] = keycodec.Encode(sealed)
	}
	cryptox.Wipe(stream.Key())

	// 5. Persist header and chunks.
	fileID := uuid.NewString()

	if _, err := u.blobs.Put(ctx, headerPath(fileID), stream.Header()); err != nil {
		return nil, fmt.Errorf("%w: header upload: %v", common.ErrTransferFailed, err)
	}

	chunkPaths, err := u.putChunks(ctx, fileID, chunks, opts.Concurrency, progress)
	if err != nil {
		return nil, err
	}

	// 6. Metadata document.
	progress.report(progressMetadata)
	record := &FileRecord{
		FileID:               fileID,
		OriginalName:         name,
		OriginalSize:         int64(len(processed)),
		MimeType:             mimeType,
		FileHash:             fileHash(processed),
		HeaderBase64:         keycodec.Encode(stream.Header()),
		HeaderPath:           headerPath(fileID),
		ChunkPaths:           chunkPaths,
		ChunkCount:           len(chunks),
		SealedKeyByRecipient: sealedByRecipient,
		ScanResult:           scanResult,
		RoomID:               opts.RoomID,
		UploadedBy:           opts.UploadedBy,
		UploadedAt:           u.now(),
		ExpiresAt:            opts.ExpiresAt,
		Status:               StatusEncrypted,
	}

	if err := u.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: metadata write: %v", common.ErrTransferFailed, err)
	}

	progress.report(progressDone)
	u.logger.Info(ctx, "file uploaded", "fileId", fileID, "chunks", len(chunks), "recipients", len(sealedByRecipient))
	return record, nil
}

// putChunks uploads chunk blobs with a bounded fan-out. Completion order may
// differ from chunk order; paths are recorded by index so the download side
// reassembles in the original sequence.
func (u *Uploader) putChunks(ctx context.Context, fileID string, chunks [][]byte, concurrency int, progress *progressReporter) ([]string, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	paths := make([]string, len(chunks))
	var completed int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			path := chunkPath(fileID, i)
			if _, err := u.blobs.Put(gctx, path, chunk); err != nil {
				return fmt.Errorf("%w: chunk %d upload: %v", common.ErrTransferFailed, i, err)
			}
			paths[i] = path

			mu.Lock()
			completed++
			fraction := float64(completed) / float64(len(chunks))
			mu.Unlock()
			progress.report(progressChunkStart + fraction*(progressChunkEnd-progressChunkStart))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func fileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// progressReporter keeps reported percentages monotonic even when chunk
// uploads complete out of order.
type progressReporter struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last float64
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (p *progressReporter) report(percent float64) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent <= p.last {
		return
	}
	p.last = percent
	p.fn(percent)
}
