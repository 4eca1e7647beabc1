// Package pgdoc implements the document-store collaborators of the rooms,
// messaging and transfer packages over PostgreSQL. Repositories are bound to
// a dbx.DBTX so they run against *sql.DB or inside a transaction.
package pgdoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/seteams/hubcore/internal/common"
	"github.com/seteams/hubcore/internal/dbx"
	"github.com/seteams/hubcore/internal/rooms"
)

type IdentityRepository struct {
	db dbx.DBTX
}

func NewIdentityRepository(db dbx.DBTX) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Publish upserts the identity, last write wins on the public key.
func (r *IdentityRepository) Publish(ctx context.Context, identity *rooms.Identity) error {
	query := `
		INSERT INTO identities (user_id, public_key)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET public_key = EXCLUDED.public_key, published_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, identity.UserID, identity.PublicKeyBase64); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *IdentityRepository) Get(ctx context.Context, userID string) (*rooms.Identity, error) {
	query := `SELECT user_id, public_key FROM identities WHERE user_id=$1`

	result := &rooms.Identity{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&result.UserID, &result.PublicKeyBase64)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select identity: %w", err)
	}
	return result, nil
}
