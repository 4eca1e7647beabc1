// Package app wires the hub core together: configuration, logging, the
// document and blob stores, the scan pipeline and the domain services.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/seteams/hubcore/internal/config"
	"github.com/seteams/hubcore/internal/cryptox"
	"github.com/seteams/hubcore/internal/identity"
	"github.com/seteams/hubcore/internal/keystore"
	"github.com/seteams/hubcore/internal/logging"
	"github.com/seteams/hubcore/internal/messaging"
	"github.com/seteams/hubcore/internal/rooms"
	"github.com/seteams/hubcore/internal/scanning"
	"github.com/seteams/hubcore/internal/storage/pgdoc"
	"github.com/seteams/hubcore/internal/storage/s3blob"
	"github.com/seteams/hubcore/internal/transfer"
)

// App holds the wired services. Construct with NewApp, run migrations and
// signal handling with Run, release resources with Close.
type App struct {
	Config     *config.Config
	Logger     logging.Logger
	Crypto     *cryptox.Context
	Keys       *keystore.Store
	Rooms      *rooms.Service
	Messenger  *messaging.Messenger
	Uploader   *transfer.Uploader
	Downloader *transfer.Downloader

	db      *sql.DB
	manager *pgdoc.Manager
}

// NewApp builds the full service graph. The passphrase protects the local
// keypair files; it is held by the keystore only.
func NewApp(ctx context.Context, cfg *config.Config, passphrase []byte) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	crypto, err := cryptox.NewContext()
	if err != nil {
		return nil, fmt.Errorf("crypto init error: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	manager := pgdoc.NewManager()

	blobs, err := s3blob.New(ctx, s3blob.Config{
		Region:          cfg.S3Region,
		AccessKey:       cfg.S3AccessKey,
		SecretKey:       cfg.S3SecretKey,
		BaseEndpoint:    cfg.S3BaseEndpoint,
		Bucket:          cfg.S3Bucket,
		SignedURLExpiry: cfg.SignedURLExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	fileSecrets, err := keystore.NewFileStore(cfg.KeyStoreDir, passphrase)
	if err != nil {
		return nil, fmt.Errorf("keystore init error: %w", err)
	}
	keys := keystore.New(crypto, fileSecrets)

	pipeline := scanning.NewPipeline(logger, buildScanners(cfg)...)

	roomService := rooms.NewService(crypto,
		manager.Identities(db), manager.Rooms(db), manager.RoomKeys(db), logger)
	messenger := messaging.NewMessenger(crypto, roomService, manager.Messages(db), logger)
	uploader := transfer.NewUploader(crypto, pipeline, blobs, manager.Files(db), logger)
	downloader := transfer.NewDownloader(crypto, blobs, manager.Files(db), logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Crypto:     crypto,
		Keys:       keys,
		Rooms:      roomService,
		Messenger:  messenger,
		Uploader:   uploader,
		Downloader: downloader,
		db:         db,
		manager:    manager,
	}, nil
}

// buildScanners assembles the pipeline from configuration. The signature
// scanner always runs; the network scanners join only when configured.
func buildScanners(cfg *config.Config) []scanning.Scanner {
	scanners := []scanning.Scanner{scanning.NewSignatureScanner(nil)}
	if cfg.ReputationProxyURL != "" {
		scanners = append(scanners, scanning.NewReputationScanner(cfg.ReputationProxyURL, nil))
	}
	if cfg.ThirdPartyScanAPIKey != "" {
		scanners = append(scanners, scanning.NewThirdPartyScanner(cfg.ThirdPartyScanAPIKey, cfg.ThirdPartyScanBaseURL, nil))
	}
	return scanners
}

// UploadOptions pre-fills transfer options from the configuration. Callers
// set the room, uploader and recipients before use.
func (app *App) UploadOptions() transfer.UploadOptions {
	return transfer.UploadOptions{
		StripExif:      app.Config.StripExif,
		ReencodeImages: app.Config.ReencodeImages,
		ImageMaxSizeMB: app.Config.ImageMaxSizeMB,
		ChunkSize:      app.Config.ChunkSize,
		Concurrency:    app.Config.TransferConcurrency,
	}
}

// NewSessionToken issues a signed session token for the user.
func (app *App) NewSessionToken(userID string) (string, error) {
	return identity.GenerateToken(userID, []byte(app.Config.SecretKey), app.Config.SessionTokenValidityDuration)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run applies migrations and blocks until the context is cancelled or a
// termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.Logger.Info(ctx, "Starting app...")

	if err := app.manager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	<-ctx.Done()
	app.Logger.Info(context.Background(), "Shutting down...")
	return nil
}

func (app *App) Close() error {
	return app.db.Close()
}
