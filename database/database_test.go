package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sagarc03/cellar"
	"github.com/sagarc03/cellar/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(tableName string) database.Config {
	return database.Config{
		Type:   "sqlite",
		DSN:    ":memory:",
		Tables: cellar.Tables{MetaData: tableName},
	}
}

func TestConnect_SQLite(t *testing.T) {
	ctx := context.Background()

	repo, cleanup, err := database.Connect(ctx, newTestConfig("cellar_metadata"))
	require.NoError(t, err)
	t.Cleanup(cleanup)

	_, err = repo.Insert(ctx, cellar.Entry{ID: "a", Namespace: "files", Key: "aa/bb/a", Meta: cellar.Metadata{"name": "a"}})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "files", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Meta["name"])
}

func TestConnect_SQLiteFileReopens(t *testing.T) {
	ctx := context.Background()
	cfg := database.Config{
		Type:   "sqlite",
		DSN:    filepath.Join(t.TempDir(), "cellar.db"),
		Tables: cellar.Tables{MetaData: "cellar_metadata"},
	}

	repo, cleanup, err := database.Connect(ctx, cfg)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, cellar.Entry{ID: "a", Namespace: "files", Key: "aa/bb/a"})
	require.NoError(t, err)
	cleanup()

	repo, cleanup, err = database.Connect(ctx, cfg)
	require.NoError(t, err, "migrations run again against an existing table")
	t.Cleanup(cleanup)

	exists, err := repo.Exists(ctx, "files", "a")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestConnect_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  database.Config
	}{
		{
			name: "unsupported type",
			cfg:  database.Config{Type: "mysql", DSN: "x", Tables: cellar.Tables{MetaData: "cellar_metadata"}},
		},
		{
			name: "invalid table name",
			cfg:  newTestConfig("Bad Table"),
		},
		{
			name: "empty table name",
			cfg:  newTestConfig(""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cleanup, err := database.Connect(context.Background(), tt.cfg)
			assert.Error(t, err)
			assert.Nil(t, repo)
			assert.Nil(t, cleanup)
		})
	}
}
