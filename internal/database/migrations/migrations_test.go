package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	for _, table := range []string{"users", "chunks", "files", "file_chunks", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if !errors.Is(err, ErrNoVersion) {
		t.Errorf("CheckDBMigrationStatus() = %v, want ErrNoVersion", err)
	}
}

func TestReadStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	st, err := ReadStatus(db)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if !st.UpToDate() {
		t.Errorf("status %+v is not up to date", st)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() = %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() failed: %v", err)
	}
}

func TestSchema_ReferenceRequiresChunk(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO files (id, owner, path, last_modified_time, chunk_count, total_size, file_hash, chunk_hashes, updated_at)
		VALUES ('f1', 'a@b.c', 'x.txt', 0, 1, 1, 'h', '["c1"]', datetime('now'))`)
	if err != nil {
		t.Fatalf("inserting file: %v", err)
	}
	_, err = db.Exec("INSERT INTO file_chunks (file_id, ordinal, chunk_hash) VALUES ('f1', 0, 'missing')")
	if err == nil {
		t.Error("expected foreign key violation for unknown chunk")
	}
}

func TestSchema_OwnerPathUnique(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := `INSERT INTO files (id, owner, path, last_modified_time, chunk_count, total_size, file_hash, chunk_hashes, updated_at)
		VALUES (?, 'a@b.c', 'x.txt', 0, 0, 0, 'h', '[]', datetime('now'))`
	if _, err := db.Exec(insert, "f1"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := db.Exec(insert, "f2"); err == nil {
		t.Error("expected unique violation for duplicate owner and path")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
