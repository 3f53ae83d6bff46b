package testutil

import (
	"testing"

	"xsync-go/internal/database"
)

// NewTestRegistry creates an in-memory SQLite registry with the schema
// applied. It is closed when the test completes.
func NewTestRegistry(t *testing.T) *database.SQLiteRegistry {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	reg := database.NewSQLiteRegistryFromDB(sqlDB, FixedClock(), NewStubIDGenerator())
	t.Cleanup(func() {
		reg.Close()
	})
	return reg
}
