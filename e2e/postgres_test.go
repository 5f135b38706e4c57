package e2e_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	testDSNOnce sync.Once
	testCleanup func()
	testDSN     string
	testDSNErr  error
)

// getSharedPostgresDatabase returns the DSN of a PostgreSQL container shared
// by every E2E test. Skipped in -short mode.
func getSharedPostgresDatabase(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres e2e test in short mode")
	}

	testDSNOnce.Do(func() {
		ctx := context.Background()

		pgContainer, err := pgcontainer.Run(ctx,
			"postgres:18-alpine",
			pgcontainer.WithDatabase("testdb"),
			pgcontainer.WithUsername("testuser"),
			pgcontainer.WithPassword("testpass"),
			pgcontainer.BasicWaitStrategies(),
		)
		if err != nil {
			testDSNErr = err
			return
		}

		testCleanup = func() {
			_ = testcontainers.TerminateContainer(pgContainer)
		}

		testDSN, testDSNErr = pgContainer.ConnectionString(ctx, "sslmode=disable")
	})

	if testDSNErr != nil {
		t.Fatalf("postgres container: %v", testDSNErr)
	}
	return testDSN
}

// randomTable returns a table name unique to one test.
func randomTable(t *testing.T) string {
	t.Helper()
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("random table: %v", err)
	}
	return "e2e_" + hex.EncodeToString(b)
}
