// Package sqlite implements the repo interface using SQLite
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sagarc03/cellar"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const entryColumns = `namespace, id, blob_key, meta, has_content, size_bytes, etag, created_at, updated_at`

type repo struct {
	db        *sql.DB
	tableName string
}

// NewRepo returns a cellar.MetaDataRepo storing entries in the metadata table
// of tables. The table must have been created with Migrate.
func NewRepo(db *sql.DB, tables cellar.Tables) (cellar.MetaDataRepo, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}
	return &repo{db: db, tableName: quoteIdentifier(tables.MetaData)}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (cellar.Entry, error) {
	var e cellar.Entry
	var meta, createdAt, updatedAt string
	var hasContent int

	if err := s.Scan(&e.Namespace, &e.ID, &e.Key, &meta, &hasContent, &e.Size, &e.ETag, &createdAt, &updatedAt); err != nil {
		return cellar.Entry{}, err
	}

	if err := json.Unmarshal([]byte(meta), &e.Meta); err != nil {
		return cellar.Entry{}, fmt.Errorf("decode meta: %w", err)
	}
	e.HasContent = hasContent != 0

	var err error
	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return cellar.Entry{}, fmt.Errorf("parse created_at: %w", err)
	}

	e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return cellar.Entry{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return e, nil
}

func (r *repo) Get(ctx context.Context, namespace, id string) (cellar.Entry, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s
		WHERE namespace = ? AND id = ? AND deleted_at IS NULL`, entryColumns, r.tableName)

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, namespace, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cellar.Entry{}, cellar.ErrNotFound
		}
		return cellar.Entry{}, fmt.Errorf("get: %w", err)
	}

	return e, nil
}

func (r *repo) Exists(ctx context.Context, namespace, id string) (bool, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT EXISTS (SELECT 1 FROM %s WHERE namespace = ? AND id = ?)`, r.tableName)

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, namespace, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return exists, nil
}

func (r *repo) Insert(ctx context.Context, e cellar.Entry) (cellar.Entry, error) {
	meta, err := encodeMeta(e.Meta)
	if err != nil {
		return cellar.Entry{}, fmt.Errorf("insert: %w", err)
	}

	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.tableName, entryColumns)

	_, err = r.db.ExecContext(ctx, query,
		e.Namespace, e.ID, e.Key, meta, boolToInt(e.HasContent), e.Size, e.ETag, stamp, stamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return cellar.Entry{}, fmt.Errorf("insert: %w", cellar.ErrConflict)
		}
		return cellar.Entry{}, fmt.Errorf("insert: %w", err)
	}

	e.CreatedAt = now
	e.UpdatedAt = now
	return e, nil
}

func (r *repo) Update(ctx context.Context, namespace, id string, u cellar.EntryUpdate) (cellar.Entry, error) {
	meta, err := encodeMeta(u.Meta)
	if err != nil {
		return cellar.Entry{}, fmt.Errorf("update: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var query string
	var args []any
	if u.SetContent {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`UPDATE %s
			SET meta = ?, updated_at = ?, blob_key = ?, has_content = ?, size_bytes = ?, etag = ?
			WHERE namespace = ? AND id = ? AND deleted_at IS NULL
			RETURNING %s`, r.tableName, entryColumns)
		args = []any{meta, now, u.Key, boolToInt(u.HasContent), u.Size, u.ETag, namespace, id}
	} else {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`UPDATE %s
			SET meta = ?, updated_at = ?
			WHERE namespace = ? AND id = ? AND deleted_at IS NULL
			RETURNING %s`, r.tableName, entryColumns)
		args = []any{meta, now, namespace, id}
	}

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cellar.Entry{}, cellar.ErrNotFound
		}
		return cellar.Entry{}, fmt.Errorf("update: %w", err)
	}

	return e, nil
}

func (r *repo) Delete(ctx context.Context, namespace, id string) (cellar.Entry, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s
		SET deleted_at = ?
		WHERE namespace = ? AND id = ? AND deleted_at IS NULL
		RETURNING %s`, r.tableName, entryColumns)

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, now, namespace, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cellar.Entry{}, fmt.Errorf("delete: %w", cellar.ErrNotFound)
		}
		return cellar.Entry{}, fmt.Errorf("delete: %w", err)
	}

	return e, nil
}

func (r *repo) List(ctx context.Context, namespace string, q cellar.ListQuery) ([]cellar.Entry, int, error) {
	countQuery := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT COUNT(*) FROM %s WHERE namespace = ? AND deleted_at IS NULL`, r.tableName)

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, namespace).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("list: count: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s
		WHERE namespace = ? AND deleted_at IS NULL
		ORDER BY seq
		LIMIT ? OFFSET ?`, entryColumns, r.tableName)

	entries, err := r.query(ctx, query, namespace, q.Limit, q.Skip)
	if err != nil {
		return nil, 0, fmt.Errorf("list: %w", err)
	}

	return entries, total, nil
}

func (r *repo) ListPendingCleanup(ctx context.Context, limit int) ([]cellar.Entry, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s
		WHERE deleted_at IS NOT NULL AND cleaned_up_at IS NULL
		ORDER BY seq
		LIMIT ?`, entryColumns, r.tableName)

	entries, err := r.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending cleanup: %w", err)
	}

	return entries, nil
}

func (r *repo) query(ctx context.Context, query string, args ...any) ([]cellar.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := make([]cellar.Entry, 0)
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan: %w", scanErr)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return entries, nil
}

func (r *repo) MarkCleanedUp(ctx context.Context, namespace, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s
		SET cleaned_up_at = ?
		WHERE namespace = ? AND id = ? AND deleted_at IS NOT NULL AND cleaned_up_at IS NULL`, r.tableName)

	result, err := r.db.ExecContext(ctx, query, now, namespace, id)
	if err != nil {
		return fmt.Errorf("mark cleaned up: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark cleaned up: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("mark cleaned up: %w", cellar.ErrNotFound)
	}

	return nil
}

func encodeMeta(m cellar.Metadata) (string, error) {
	if m == nil {
		m = cellar.Metadata{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode meta: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
