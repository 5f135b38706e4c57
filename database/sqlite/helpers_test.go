package sqlite_test

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/sagarc03/cellar"
	"github.com/sagarc03/cellar/database/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	assert.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err, "failed to open")
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// setupTestRepo creates a repo with a unique table name for test isolation
func setupTestRepo(t *testing.T) cellar.MetaDataRepo {
	t.Helper()

	ctx := context.Background()
	db := openTestDB(t)

	tables := cellar.Tables{MetaData: fmt.Sprintf("metadata_%s", getRandomString(t))}
	require.NoError(t, sqlite.Migrate(ctx, db, tables), "failed to migrate")

	repo, err := sqlite.NewRepo(db, tables)
	require.NoError(t, err)

	return repo
}

func newEntry(namespace, id string) cellar.Entry {
	return cellar.Entry{
		ID:         id,
		Namespace:  namespace,
		Key:        namespace + "/" + id,
		Meta:       cellar.Metadata{"name": id + ".txt", "dir": "/", "type": "text/plain"},
		HasContent: true,
		Size:       42,
		ETag:       "etag-" + id,
	}
}
