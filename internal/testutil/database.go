package testutil

import (
	"testing"

	"starbase-go/internal/database"
	"starbase-go/internal/database/migrations"
)

// NewTestDatabase opens an in-memory SQLite database migrated to the latest
// version. It is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	conn, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := migrations.MigrateUp(conn); err != nil {
		conn.Close()
		t.Fatalf("migrating test database: %v", err)
	}

	db := database.NewSQLiteDatabaseFromDB(conn)
	t.Cleanup(func() { db.Close() })
	return db
}
