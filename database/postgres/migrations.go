package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/cellar"
)

// TableMigration pairs the up and down steps for one table.
type TableMigration struct {
	TableName string
	Up        func(ctx context.Context, pool *pgxpool.Pool) error
	Down      func(ctx context.Context, pool *pgxpool.Pool) error
}

func getTableMigrations(tables cellar.Tables) []TableMigration {
	return []TableMigration{
		{
			TableName: tables.MetaData,
			Up:        createMetaTable(tables.MetaData),
			Down:      dropTable(tables.MetaData),
		},
	}
}

// Migrate creates the tables and indexes used by Repo.
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables cellar.Tables) error {
	if err := tables.Validate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	for _, migration := range getTableMigrations(tables) {
		if err := migration.Up(ctx, pool); err != nil {
			return fmt.Errorf("migrate up %s: %w", migration.TableName, err)
		}
	}

	return nil
}

// DropTables removes every table created by Migrate, in reverse order.
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables cellar.Tables) error {
	migrations := getTableMigrations(tables)

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if err := migration.Down(ctx, pool); err != nil {
			return fmt.Errorf("migrate down %s: %w", migration.TableName, err)
		}
	}

	return nil
}

func createMetaTable(tableName string) func(context.Context, *pgxpool.Pool) error {
	return func(ctx context.Context, pool *pgxpool.Pool) error {
		quotedTable := pgx.Identifier{tableName}.Sanitize()
		indexDeletedAt := pgx.Identifier{fmt.Sprintf("idx_%s_deleted_at", tableName)}.Sanitize()
		indexPendingCleanup := pgx.Identifier{fmt.Sprintf("idx_%s_pending_cleanup", tableName)}.Sanitize()
		indexActiveList := pgx.Identifier{fmt.Sprintf("idx_%s_active_list", tableName)}.Sanitize()

		sql := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				seq BIGSERIAL PRIMARY KEY,
				namespace TEXT NOT NULL,
				id TEXT NOT NULL,
				blob_key TEXT NOT NULL UNIQUE,
				meta JSONB NOT NULL,
				has_content BOOLEAN NOT NULL,
				size_bytes BIGINT NOT NULL,
				etag TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMPTZ,
				cleaned_up_at TIMESTAMPTZ,
				UNIQUE (namespace, id)
			);

			CREATE INDEX IF NOT EXISTS %s
			ON %s (deleted_at)
			WHERE (deleted_at IS NOT NULL);

			CREATE INDEX IF NOT EXISTS %s
			ON %s (seq)
			WHERE (deleted_at IS NOT NULL AND cleaned_up_at IS NULL);

			CREATE INDEX IF NOT EXISTS %s
			ON %s (namespace, seq)
			WHERE (deleted_at IS NULL);
		`,
			quotedTable,
			indexDeletedAt, quotedTable,
			indexPendingCleanup, quotedTable,
			indexActiveList, quotedTable,
		)

		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create meta table: %w", err)
		}
		return nil
	}
}

func dropTable(tableName string) func(context.Context, *pgxpool.Pool) error {
	return func(ctx context.Context, pool *pgxpool.Pool) error {
		sql := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", pgx.Identifier{tableName}.Sanitize())
		_, err := pool.Exec(ctx, sql)
		return err
	}
}
