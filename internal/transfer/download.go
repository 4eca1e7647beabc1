package transfer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seteams/hubcore/internal/common"
	"github.com/seteams/hubcore/internal/cryptox"
	"github.com/seteams/hubcore/internal/keycodec"
	"github.com/seteams/hubcore/internal/logging"
)

// DownloadResult is the reassembled plaintext plus the declared metadata.
type DownloadResult struct {
	Data     []byte
	Name     string
	MimeType string
}

// Downloader reverses the upload sequence for an authorized recipient.
type Downloader struct {
	crypto  *cryptox.Context
	blobs   BlobStore
	records FileRecordRepository
	logger  logging.Logger
	now     func() time.Time

	// Concurrency bounds the chunk-fetch fan-out. Fetches may complete in
	// any order; decryption is strictly sequential over the stored order.
	Concurrency int
}

func NewDownloader(crypto *cryptox.Context, blobs BlobStore, records FileRecordRepository, logger logging.Logger) *Downloader {
	return &Downloader{
		crypto:      crypto,
		blobs:       blobs,
		records:     records,
		logger:      logger.With("module", "download"),
		now:         time.Now,
		Concurrency: 4,
	}
}

// Download fetches the metadata document, unseals the file key for the
// requester and reassembles the plaintext. Returns
// common.ErrRecipientKeyMissing when no sealed-key entry resolves to the
// requester and common.ErrAuthenticationFailed on any corrupted chunk.
func (d *Downloader) Download(ctx context.Context, fileID, requesterID string, requesterKeys *cryptox.KeyPair) (*DownloadResult, error) {
	record, err := d.records.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if expired, err := d.applyLazyExpiry(ctx, record); err != nil {
		return nil, err
	} else if expired {
		return nil, common.ErrFileExpired
	}

	sealedKey, err := resolveSealedKey(record, requesterID)
	if err != nil {
		return nil, err
	}

	fileKey, err := d.crypto.Unseal(sealedKey, requesterKeys.PrivateKey, requesterKeys.PublicKey)
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(fileKey)

	header, err := d.blobs.Get(ctx, record.HeaderPath)
	if err != nil {
		return nil, fmt.Errorf("%w: header fetch: %v", common.ErrTransferFailed, err)
	}

	chunks, err := d.getChunks(ctx, record)
	if err != nil {
		return nil, err
	}

	// Decryption is strictly sequential: the stream state orders chunks.
	stream, err := d.crypto.NewDecryptStream(header, fileKey)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	for i, chunk := range chunks {
		plaintext, final, err := stream.Pull(chunk)
		if err != nil {
			return nil, err
		}
		out.Write(plaintext)
		if final && i != len(chunks)-1 {
			return nil, fmt.Errorf("%w: final chunk before end of stream", common.ErrAuthenticationFailed)
		}
	}

	d.logger.Info(ctx, "file downloaded", "fileId", fileID, "chunks", len(chunks))
	return &DownloadResult{
		Data:     out.Bytes(),
		Name:     record.OriginalName,
		MimeType: record.MimeType,
	}, nil
}

// resolveSealedKey prefers the per-recipient entry and falls back to the
// legacy single sealed key.
func resolveSealedKey(record *FileRecord, requesterID string) ([]byte, error) {
	if encoded, ok := record.SealedKeyByRecipient[requesterID]; ok {
		return keycodec.Decode(encoded)
	}
	if record.SealedKeyBase64 != "" {
		return keycodec.Decode(record.SealedKeyBase64)
	}
	return nil, common.ErrRecipientKeyMissing
}

func (d *Downloader) applyLazyExpiry(ctx context.Context, record *FileRecord) (bool, error) {
	if record.Status == StatusExpired {
		return true, nil
	}
	if record.ExpiresAt == nil || !record.ExpiresAt.Before(d.now()) {
		return false, nil
	}
	if err := d.records.MarkExpired(ctx, record.FileID); err != nil {
		return false, err
	}
	return true, nil
}

// getChunks fetches chunk blobs with a bounded fan-out, keeping stored
// order by index regardless of completion order.
func (d *Downloader) getChunks(ctx context.Context, record *FileRecord) ([][]byte, error) {
	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	chunks := make([][]byte, len(record.ChunkPaths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range record.ChunkPaths {
		g.Go(func() error {
			data, err := d.blobs.Get(gctx, path)
			if err != nil {
				return fmt.Errorf("%w: chunk %d fetch: %v", common.ErrTransferFailed, i, err)
			}
			mu.Lock()
			chunks[i] = data
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}
