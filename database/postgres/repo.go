// Package postgres implements the metadata repo on PostgreSQL
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/cellar"
)

const uniqueViolation = "23505"

const entryColumns = `namespace, id, blob_key, meta, has_content, size_bytes, etag, created_at, updated_at`

// Repo stores entries in a PostgreSQL table.
type Repo struct {
	pool      *pgxpool.Pool
	tableName string
}

var _ cellar.MetaDataRepo = (*Repo)(nil)

func NewRepo(pool *pgxpool.Pool, tables cellar.Tables) (*Repo, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}

	return &Repo{pool: pool, tableName: pgx.Identifier{tables.MetaData}.Sanitize()}, nil
}

// Ping verifies database connectivity
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanEntry(row pgx.Row) (cellar.Entry, error) {
	var e cellar.Entry
	var meta []byte

	if err := row.Scan(&e.Namespace, &e.ID, &e.Key, &meta, &e.HasContent, &e.Size, &e.ETag, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return cellar.Entry{}, err
	}

	if err := json.Unmarshal(meta, &e.Meta); err != nil {
		return cellar.Entry{}, fmt.Errorf("decode meta: %w", err)
	}

	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func (r *Repo) Get(ctx context.Context, namespace, id string) (cellar.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE namespace = $1 AND id = $2 AND deleted_at IS NULL
	`, entryColumns, r.tableName)

	e, err := scanEntry(r.pool.QueryRow(ctx, query, namespace, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cellar.Entry{}, cellar.ErrNotFound
		}
		return cellar.Entry{}, fmt.Errorf("get: %w", err)
	}

	return e, nil
}

func (r *Repo) Exists(ctx context.Context, namespace, id string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE namespace = $1 AND id = $2)
	`, r.tableName)

	var exists bool
	if err := r.pool.QueryRow(ctx, query, namespace, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return exists, nil
}

func (r *Repo) Insert(ctx context.Context, e cellar.Entry) (cellar.Entry, error) {
	meta, err := encodeMeta(e.Meta)
	if err != nil {
		return cellar.Entry{}, fmt.Errorf("insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (namespace, id, blob_key, meta, has_content, size_bytes, etag)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s
	`, r.tableName, entryColumns)

	inserted, err := scanEntry(r.pool.QueryRow(ctx, query,
		e.Namespace, e.ID, e.Key, meta, e.HasContent, e.Size, e.ETag,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return cellar.Entry{}, fmt.Errorf("insert: %w", cellar.ErrConflict)
		}
		return cellar.Entry{}, fmt.Errorf("insert: %w", err)
	}

	return inserted, nil
}

func (r *Repo) Update(ctx context.Context, namespace, id string, u cellar.EntryUpdate) (cellar.Entry, error) {
	meta, err := encodeMeta(u.Meta)
	if err != nil {
		return cellar.Entry{}, fmt.Errorf("update: %w", err)
	}

	var query string
	var args []any
	if u.SetContent {
		query = fmt.Sprintf(`
			UPDATE %s
			SET meta = $1, blob_key = $2, has_content = $3, size_bytes = $4, etag = $5, updated_at = NOW()
			WHERE namespace = $6 AND id = $7 AND deleted_at IS NULL
			RETURNING %s
		`, r.tableName, entryColumns)
		args = []any{meta, u.Key, u.HasContent, u.Size, u.ETag, namespace, id}
	} else {
		query = fmt.Sprintf(`
			UPDATE %s
			SET meta = $1, updated_at = NOW()
			WHERE namespace = $2 AND id = $3 AND deleted_at IS NULL
			RETURNING %s
		`, r.tableName, entryColumns)
		args = []any{meta, namespace, id}
	}

	e, err := scanEntry(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cellar.Entry{}, cellar.ErrNotFound
		}
		return cellar.Entry{}, fmt.Errorf("update: %w", err)
	}

	return e, nil
}

func (r *Repo) Delete(ctx context.Context, namespace, id string) (cellar.Entry, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET deleted_at = NOW()
		WHERE namespace = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING %s
	`, r.tableName, entryColumns)

	e, err := scanEntry(r.pool.QueryRow(ctx, query, namespace, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cellar.Entry{}, fmt.Errorf("delete: %w", cellar.ErrNotFound)
		}
		return cellar.Entry{}, fmt.Errorf("delete: %w", err)
	}

	return e, nil
}

func (r *Repo) List(ctx context.Context, namespace string, q cellar.ListQuery) ([]cellar.Entry, int, error) {
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER () AS total
		FROM %s
		WHERE namespace = $1 AND deleted_at IS NULL
		ORDER BY seq
		LIMIT $2 OFFSET $3
	`, entryColumns, r.tableName)

	rows, err := r.pool.Query(ctx, query, namespace, q.Limit, q.Skip)
	if err != nil {
		return nil, 0, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	entries := make([]cellar.Entry, 0)
	total := -1
	for rows.Next() {
		var e cellar.Entry
		var meta []byte
		if err := rows.Scan(&e.Namespace, &e.ID, &e.Key, &meta, &e.HasContent, &e.Size, &e.ETag, &e.CreatedAt, &e.UpdatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("list: scan: %w", err)
		}
		if err := json.Unmarshal(meta, &e.Meta); err != nil {
			return nil, 0, fmt.Errorf("list: decode meta: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		e.UpdatedAt = e.UpdatedAt.UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list: rows: %w", err)
	}

	// A window count is only available when the page is not empty.
	if total < 0 {
		total, err = r.count(ctx, namespace)
		if err != nil {
			return nil, 0, fmt.Errorf("list: %w", err)
		}
	}

	return entries, total, nil
}

func (r *Repo) count(ctx context.Context, namespace string) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s WHERE namespace = $1 AND deleted_at IS NULL
	`, r.tableName)

	var total int
	if err := r.pool.QueryRow(ctx, query, namespace).Scan(&total); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return total, nil
}

func (r *Repo) ListPendingCleanup(ctx context.Context, limit int) ([]cellar.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE deleted_at IS NOT NULL AND cleaned_up_at IS NULL
		ORDER BY seq
		LIMIT $1
	`, entryColumns, r.tableName)

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending cleanup: %w", err)
	}
	defer rows.Close()

	entries := make([]cellar.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending cleanup: scan: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending cleanup: rows: %w", err)
	}

	return entries, nil
}

func (r *Repo) MarkCleanedUp(ctx context.Context, namespace, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET cleaned_up_at = NOW()
		WHERE namespace = $1 AND id = $2 AND deleted_at IS NOT NULL AND cleaned_up_at IS NULL
	`, r.tableName)

	result, err := r.pool.Exec(ctx, query, namespace, id)
	if err != nil {
		return fmt.Errorf("mark cleaned up: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("mark cleaned up: %w", cellar.ErrNotFound)
	}

	return nil
}

func encodeMeta(m cellar.Metadata) ([]byte, error) {
	if m == nil {
		m = cellar.Metadata{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	return b, nil
}
