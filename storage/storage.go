// Package storage wires a cellar.Store from configuration: a metadata
// database and a blob backend rooted at a directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sagarc03/cellar"
	"github.com/sagarc03/cellar/database"
	"github.com/sagarc03/cellar/filesystem"
	"github.com/sagarc03/cellar/s3blob"
)

const (
	BackendFilesystem = "filesystem"
	BackendS3         = "s3"

	// DefaultTable is the metadata table used when none is configured.
	DefaultTable = "cellar_metadata"
	// DatabaseFile is the SQLite file created under Root when no database is configured.
	DatabaseFile = "cellar.db"
	// BlobDir is the directory under Root holding filesystem blobs.
	BlobDir = "blobs"
)

// Config describes where a store keeps its data.
type Config struct {
	// Secret keys blob placement. Required.
	Secret string
	// Root is the directory holding the default database and filesystem blobs.
	Root string
	// Backend selects the blob backend: "filesystem" (default) or "s3".
	Backend string
	S3      s3blob.Config
	// Database overrides the metadata database. An empty Type selects SQLite
	// at Root/cellar.db.
	Database database.Config

	DefaultLimit int
	MaxLimit     int
	Registry     *cellar.Registry
}

func (c Config) databaseConfig() database.Config {
	db := c.Database
	if db.Type == "" {
		db.Type = "sqlite"
	}
	if db.Type == "sqlite" && db.DSN == "" {
		db.DSN = filepath.Join(c.Root, DatabaseFile)
	}
	if db.Tables.MetaData == "" {
		db.Tables.MetaData = DefaultTable
	}
	return db
}

// Open creates Root if needed, connects the metadata database, opens the blob
// backend and returns a ready Store. The cleanup function releases the
// database and the blob root and must be called when the store is no longer
// used.
func Open(ctx context.Context, cfg Config) (*cellar.Store, func(), error) {
	if cfg.Secret == "" {
		return nil, nil, errors.New("open storage: secret is required")
	}
	if cfg.Root == "" {
		return nil, nil, errors.New("open storage: root is required")
	}

	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, nil, fmt.Errorf("open storage: create root: %w", err)
	}

	blobs, closeBlobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	repo, closeRepo, err := database.Connect(ctx, cfg.databaseConfig())
	if err != nil {
		closeBlobs()
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	cleanup := func() {
		closeRepo()
		closeBlobs()
	}

	store, err := cellar.NewStore(repo, blobs, cellar.StoreConfig{
		Secret:       cfg.Secret,
		DefaultLimit: cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
		Registry:     cfg.Registry,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	return store, cleanup, nil
}

func openBlobs(ctx context.Context, cfg Config) (cellar.BlobStore, func(), error) {
	switch cfg.Backend {
	case "", BackendFilesystem:
		dir := filepath.Join(cfg.Root, BlobDir)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create blob dir: %w", err)
		}
		root, err := os.OpenRoot(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open blob dir: %w", err)
		}
		return filesystem.NewBlobStore(root), func() { _ = root.Close() }, nil
	case BackendS3:
		store, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported blob backend: %s", cfg.Backend)
	}
}
