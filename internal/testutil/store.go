// Package testutil provides shared fakes and fixtures for tests.
package testutil

import (
	"testing"

	"wxr-go/internal/database"
	"wxr-go/internal/database/migrations"
)

// NewTestStore creates a new in-memory SQLite content store with schema
// applied. The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.Up(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(sqlDB)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
