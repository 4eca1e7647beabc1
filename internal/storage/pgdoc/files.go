package pgdoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seteams/hubcore/internal/common"
	"github.com/seteams/hubcore/internal/dbx"
	"github.com/seteams/hubcore/internal/scanning"
	"github.com/seteams/hubcore/internal/transfer"
)

type FileRecordRepository struct {
	db dbx.DBTX
}

func NewFileRecordRepository(db dbx.DBTX) *FileRecordRepository {
	return &FileRecordRepository{db: db}
}

func (r *FileRecordRepository) Create(ctx context.Context, record *transfer.FileRecord) error {
	chunkPaths, err := json.Marshal(record.ChunkPaths)
	if err != nil {
		return fmt.Errorf("encoding chunk paths: %w", err)
	}
	sealedKeys, err := json.Marshal(record.SealedKeyByRecipient)
	if err != nil {
		return fmt.Errorf("encoding sealed keys: %w", err)
	}
	scanResult, err := json.Marshal(record.ScanResult)
	if err != nil {
		return fmt.Errorf("encoding scan result: %w", err)
	}

	query := `
		INSERT INTO files (file_id, original_name, original_size, mime_type, file_hash,
			header_b64, header_path, chunk_paths, chunk_count,
			sealed_keys, sealed_key_legacy, scan_result,
			room_id, uploaded_by, uploaded_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = r.db.ExecContext(ctx, query,
		record.FileID, record.OriginalName, record.OriginalSize, record.MimeType, record.FileHash,
		record.HeaderBase64, record.HeaderPath, chunkPaths, record.ChunkCount,
		sealedKeys, record.SealedKeyBase64, scanResult,
		record.RoomID, record.UploadedBy, record.UploadedAt, record.ExpiresAt, record.Status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *FileRecordRepository) Get(ctx context.Context, fileID string) (*transfer.FileRecord, error) {
	query := `
		SELECT file_id, original_name, original_size, mime_type, file_hash,
			header_b64, header_path, chunk_paths, chunk_count,
			sealed_keys, sealed_key_legacy, scan_result,
			room_id, uploaded_by, uploaded_at, expires_at, status
		FROM files WHERE file_id=$1
	`

	record := &transfer.FileRecord{}
	var chunkPaths, sealedKeys, scanResult []byte
	var expiresAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, fileID).Scan(
		&record.FileID, &record.OriginalName, &record.OriginalSize, &record.MimeType, &record.FileHash,
		&record.HeaderBase64, &record.HeaderPath, &chunkPaths, &record.ChunkCount,
		&sealedKeys, &record.SealedKeyBase64, &scanResult,
		&record.RoomID, &record.UploadedBy, &record.UploadedAt, &expiresAt, &record.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}

	if err := json.Unmarshal(chunkPaths, &record.ChunkPaths); err != nil {
		return nil, fmt.Errorf("decoding chunk paths: %w", err)
	}
	if len(sealedKeys) > 0 {
		if err := json.Unmarshal(sealedKeys, &record.SealedKeyByRecipient); err != nil {
			return nil, fmt.Errorf("decoding sealed keys: %w", err)
		}
	}
	if len(scanResult) > 0 && string(scanResult) != "null" {
		record.ScanResult = &scanning.Result{}
		if err := json.Unmarshal(scanResult, record.ScanResult); err != nil {
			return nil, fmt.Errorf("decoding scan result: %w", err)
		}
	}
	if expiresAt.Valid {
		record.ExpiresAt = &expiresAt.Time
	}
	return record, nil
}

func (r *FileRecordRepository) MarkExpired(ctx context.Context, fileID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE files SET status=$2 WHERE file_id=$1`,
		fileID, transfer.StatusExpired)
	if err != nil {
		return fmt.Errorf("failed to mark expired: %w", err)
	}
	return requireOneRow(res)
}
