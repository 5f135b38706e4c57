package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sagarc03/cellar"
	"github.com/sagarc03/cellar/database/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRepo_InvalidTables(t *testing.T) {
	db := openTestDB(t)

	_, err := sqlite.NewRepo(db, cellar.Tables{MetaData: "Bad-Name"})
	assert.Error(t, err)
}

func TestRepo_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	before := time.Now().UTC().Add(-time.Second)
	inserted, err := repo.Insert(ctx, newEntry("files", "a1"))
	require.NoError(t, err)
	assert.False(t, inserted.CreatedAt.Before(before))
	assert.Equal(t, inserted.CreatedAt, inserted.UpdatedAt)

	got, err := repo.Get(ctx, "files", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, "files", got.Namespace)
	assert.Equal(t, "files/a1", got.Key)
	assert.Equal(t, "a1.txt", got.Meta["name"])
	assert.True(t, got.HasContent)
	assert.Equal(t, int64(42), got.Size)
	assert.Equal(t, "etag-a1", got.ETag)
	assert.True(t, got.CreatedAt.Equal(inserted.CreatedAt))
}

func TestRepo_Get_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.Get(context.Background(), "files", "missing")
	assert.ErrorIs(t, err, cellar.ErrNotFound)
}

func TestRepo_Get_IsNamespaced(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	_, err := repo.Insert(ctx, newEntry("files", "a1"))
	require.NoError(t, err)

	_, err = repo.Get(ctx, "photos", "a1")
	assert.ErrorIs(t, err, cellar.ErrNotFound)
}

func TestRepo_Insert_Conflict(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	_, err := repo.Insert(ctx, newEntry("files", "a1"))
	require.NoError(t, err)

	_, err = repo.Insert(ctx, newEntry("files", "a1"))
	assert.ErrorIs(t, err, cellar.ErrConflict)

	other := newEntry("photos", "a1")
	_, err = repo.Insert(ctx, other)
	assert.NoError(t, err, "same id in another namespace is allowed")
}

func TestRepo_Insert_NilMeta(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	e := newEntry("files", "a1")
	e.Meta = nil
	_, err := repo.Insert(ctx, e)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "files", "a1")
	require.NoError(t, err)
	assert.Empty(t, got.Meta)
}

func TestRepo_Exists(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	exists, err := repo.Exists(ctx, "files", "a1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Insert(ctx, newEntry("files", "a1"))
	require.NoError(t, err)

	exists, err = repo.Exists(ctx, "files", "a1")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.Delete(ctx, "files", "a1")
	require.NoError(t, err)

	exists, err = repo.Exists(ctx, "files", "a1")
	require.NoError(t, err)
	assert.True(t, exists, "removed ids stay reserved")
}

func TestRepo_Update(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	inserted, err := repo.Insert(ctx, newEntry("files", "a1"))
	require.NoError(t, err)

	t.Run("meta only keeps content fields", func(t *testing.T) {
		updated, err := repo.Update(ctx, "files", "a1", cellar.EntryUpdate{
			Meta: cellar.Metadata{"name": "renamed.txt", "dir": "/", "type": "text/plain"},
		})
		require.NoError(t, err)
		assert.Equal(t, "renamed.txt", updated.Meta["name"])
		assert.True(t, updated.HasContent)
		assert.Equal(t, int64(42), updated.Size)
		assert.Equal(t, "etag-a1", updated.ETag)
		assert.True(t, updated.CreatedAt.Equal(inserted.CreatedAt))
		assert.False(t, updated.UpdatedAt.Before(inserted.UpdatedAt))
	})

	t.Run("replaced content moves the blob key", func(t *testing.T) {
		updated, err := repo.Update(ctx, "files", "a1", cellar.EntryUpdate{
			Meta:       cellar.Metadata{"name": "renamed.txt", "dir": "/", "type": "text/plain"},
			SetContent: true,
			Key:        "files/a1/2",
			HasContent: true,
			Size:       7,
			ETag:       "etag-a1-2",
		})
		require.NoError(t, err)
		assert.Equal(t, "files/a1/2", updated.Key)
		assert.Equal(t, int64(7), updated.Size)

		got, err := repo.Get(ctx, "files", "a1")
		require.NoError(t, err)
		assert.Equal(t, "files/a1/2", got.Key)
		assert.Equal(t, "etag-a1-2", got.ETag)
	})

	t.Run("content fields", func(t *testing.T) {
		updated, err := repo.Update(ctx, "files", "a1", cellar.EntryUpdate{
			Meta:       cellar.Metadata{"name": "folder", "dir": "/", "type": "directory"},
			SetContent: true,
			Key:        "files/a1/2",
			HasContent: false,
		})
		require.NoError(t, err)
		assert.False(t, updated.HasContent)
		assert.Zero(t, updated.Size)
		assert.Empty(t, updated.ETag)

		got, err := repo.Get(ctx, "files", "a1")
		require.NoError(t, err)
		assert.Equal(t, "directory", got.Meta["type"])
		assert.False(t, got.HasContent)
	})

	t.Run("missing entry", func(t *testing.T) {
		_, err := repo.Update(ctx, "files", "missing", cellar.EntryUpdate{Meta: cellar.Metadata{}})
		assert.ErrorIs(t, err, cellar.ErrNotFound)
	})
}

func TestRepo_Delete(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	_, err := repo.Insert(ctx, newEntry("files", "a1"))
	require.NoError(t, err)

	snap, err := repo.Delete(ctx, "files", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", snap.ID)
	assert.Equal(t, "files/a1", snap.Key)

	_, err = repo.Get(ctx, "files", "a1")
	assert.ErrorIs(t, err, cellar.ErrNotFound)

	_, err = repo.Delete(ctx, "files", "a1")
	assert.ErrorIs(t, err, cellar.ErrNotFound)

	_, err = repo.Update(ctx, "files", "a1", cellar.EntryUpdate{Meta: cellar.Metadata{}})
	assert.ErrorIs(t, err, cellar.ErrNotFound)
}

func TestRepo_List(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	for i := range 5 {
		_, err := repo.Insert(ctx, newEntry("files", fmt.Sprintf("id%d", i)))
		require.NoError(t, err)
	}
	_, err := repo.Insert(ctx, newEntry("photos", "p0"))
	require.NoError(t, err)
	_, err = repo.Delete(ctx, "files", "id1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		query   cellar.ListQuery
		wantIDs []string
	}{
		{name: "first page", query: cellar.ListQuery{Limit: 2}, wantIDs: []string{"id0", "id2"}},
		{name: "second page", query: cellar.ListQuery{Limit: 2, Skip: 2}, wantIDs: []string{"id3", "id4"}},
		{name: "past the end", query: cellar.ListQuery{Limit: 2, Skip: 10}, wantIDs: []string{}},
		{name: "everything", query: cellar.ListQuery{Limit: 100}, wantIDs: []string{"id0", "id2", "id3", "id4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, total, err := repo.List(ctx, "files", tt.query)
			require.NoError(t, err)
			assert.Equal(t, 4, total)

			ids := make([]string, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestRepo_PendingCleanup(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := repo.Insert(ctx, newEntry("files", id))
		require.NoError(t, err)
	}

	pending, err := repo.ListPendingCleanup(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = repo.Delete(ctx, "files", "a")
	require.NoError(t, err)
	_, err = repo.Delete(ctx, "files", "c")
	require.NoError(t, err)

	pending, err = repo.ListPendingCleanup(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "c", pending[1].ID)

	limited, err := repo.ListPendingCleanup(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, repo.MarkCleanedUp(ctx, "files", "a"))

	pending, err = repo.ListPendingCleanup(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].ID)

	t.Run("mark twice", func(t *testing.T) {
		assert.ErrorIs(t, repo.MarkCleanedUp(ctx, "files", "a"), cellar.ErrNotFound)
	})

	t.Run("mark live entry", func(t *testing.T) {
		assert.ErrorIs(t, repo.MarkCleanedUp(ctx, "files", "b"), cellar.ErrNotFound)
	})
}

func TestMigrate_ValidateSchema(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	tables := cellar.Tables{MetaData: "metadata_" + getRandomString(t)}

	assert.Error(t, sqlite.ValidateSchema(ctx, db, tables), "table does not exist yet")

	require.NoError(t, sqlite.Migrate(ctx, db, tables))
	require.NoError(t, sqlite.Migrate(ctx, db, tables), "migrate is idempotent")
	assert.NoError(t, sqlite.ValidateSchema(ctx, db, tables))

	require.NoError(t, sqlite.DropTables(ctx, db, tables))
	assert.Error(t, sqlite.ValidateSchema(ctx, db, tables))
}

func TestValidateSchema_MismatchedTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	tableName := "metadata_" + getRandomString(t)

	_, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE "%s" (id TEXT NOT NULL, meta INTEGER)`, tableName))
	require.NoError(t, err)

	err = sqlite.ValidateSchema(ctx, db, cellar.Tables{MetaData: tableName})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
	assert.Contains(t, err.Error(), "meta: expected text, got integer")
}
