package testhelpers

import (
	"context"
	"database/sql"
	"testing"

	"github.com/johnwards/hsevents/internal/database"
	"github.com/johnwards/hsevents/internal/state"
)

// NewTestDB returns an in-memory SQLite database configured the same way as
// production. The database is automatically closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.MemoryDSN)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// NewMigratedDB is NewTestDB with the schema applied.
func NewMigratedDB(t *testing.T) *sql.DB {
	t.Helper()

	db := NewTestDB(t)
	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewTestState returns an in-memory state store closed at test end.
func NewTestState(t *testing.T) *state.BadgerStore {
	t.Helper()

	st, err := state.Open("")
	if err != nil {
		t.Fatalf("open test state: %v", err)
	}

	t.Cleanup(func() {
		_ = st.Close()
	})

	return st
}
