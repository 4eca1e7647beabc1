package pgdoc

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/seteams/hubcore/internal/dbx"
	"github.com/seteams/hubcore/internal/messaging"
	"github.com/seteams/hubcore/internal/rooms"
	"github.com/seteams/hubcore/internal/storage/pgdoc/migrations"
	"github.com/seteams/hubcore/internal/transfer"
)

// Manager vends PostgreSQL-backed repository implementations and exposes a
// schema migration hook.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Identities(db dbx.DBTX) rooms.IdentityRepository {
	return NewIdentityRepository(db)
}

func (m *Manager) Rooms(db dbx.DBTX) rooms.RoomRepository {
	return NewRoomRepository(db)
}

func (m *Manager) RoomKeys(db dbx.DBTX) rooms.RoomKeyRepository {
	return NewRoomKeyRepository(db)
}

func (m *Manager) Messages(db dbx.DBTX) messaging.MessageRepository {
	return NewMessageRepository(db)
}

func (m *Manager) Files(db dbx.DBTX) transfer.FileRecordRepository {
	return NewFileRecordRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *Manager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetDialect("pgx")
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}
