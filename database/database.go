package database

import (
	"context"
	"fmt"

	"github.com/sagarc03/cellar"
	"github.com/sagarc03/cellar/database/postgres"
	"github.com/sagarc03/cellar/database/sqlite"
)

// Config holds the configuration for connecting to a metadata backend.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=sqlite postgres"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn" yaml:"dsn" validate:"required_if=Type postgres"`
	// Tables names the tables used by the metadata repo
	Tables cellar.Tables `mapstructure:"tables" yaml:"tables"`
}

// Connect establishes a connection to the configured database backend,
// runs migrations, validates the schema, and returns a MetaDataRepo.
// The returned cleanup function should be called to close the connection.
func Connect(ctx context.Context, cfg Config) (cellar.MetaDataRepo, func(), error) {
	if err := cfg.Tables.Validate(); err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	switch cfg.Type {
	case "sqlite":
		return connectSQLite(ctx, cfg.DSN, cfg.Tables)
	case "postgres":
		return connectPostgres(ctx, cfg.DSN, cfg.Tables)
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func connectSQLite(ctx context.Context, dsn string, tables cellar.Tables) (cellar.MetaDataRepo, func(), error) {
	db, err := sqlite.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}

	if err = sqlite.Migrate(ctx, db, tables); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	if err = sqlite.ValidateSchema(ctx, db, tables); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("validate sqlite schema: %w", err)
	}

	repo, err := sqlite.NewRepo(db, tables)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create sqlite repo: %w", err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return repo, cleanup, nil
}

func connectPostgres(ctx context.Context, dsn string, tables cellar.Tables) (cellar.MetaDataRepo, func(), error) {
	pool, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}

	if err = postgres.Migrate(ctx, pool, tables); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	if err = postgres.ValidateSchema(ctx, pool, tables); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("validate postgres schema: %w", err)
	}

	repo, err := postgres.NewRepo(pool, tables)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("create postgres repo: %w", err)
	}

	return repo, pool.Close, nil
}
