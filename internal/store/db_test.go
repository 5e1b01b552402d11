package store

import (
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemory(t *testing.T) {
	db := testDB(t)
	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestOpenFile(t *testing.T) {
	path := t.TempDir() + "/nested/tiermem.db"
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", v, len(migrations))
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)
	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 3 {
		t.Errorf("SchemaVersion = %d, want 3", v)
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)
	tables := []string{"schema_versions", "traces", "associations", "evictions"}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestTracesConstraints(t *testing.T) {
	db := testDB(t)

	insert := `
		INSERT INTO traces (id, content, vector, dimensions, tier, strength, decay_rate,
		                    created_at, last_accessed, tier_entered_at)
		VALUES (?, '"x"', x'00', 0, ?, ?, 1, 1000, 1000, 1000)
	`
	if _, err := db.Exec(insert, "a", "working", 50.0); err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}
	if _, err := db.Exec(insert, "b", "sensory", 50.0); err == nil {
		t.Error("expected error for invalid tier, got nil")
	}
	if _, err := db.Exec(insert, "c", "working", 101.0); err == nil {
		t.Error("expected error for strength above 100, got nil")
	}
}

func TestAssociationsConstraints(t *testing.T) {
	db := testDB(t)

	// Unknown endpoints violate the foreign key
	_, err := db.Exec("INSERT INTO associations (trace_id, other_id, weight) VALUES ('a', 'b', 0.9)")
	if err == nil {
		t.Error("expected foreign key error, got nil")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 3 {
		t.Errorf("SchemaVersion after re-migrate = %d, want 3", v)
	}
}

func TestWALMode(t *testing.T) {
	db := testDB(t)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	// In-memory databases may use "memory" mode instead of WAL
	if mode != "wal" && mode != "memory" {
		t.Errorf("journal_mode = %q, want wal or memory", mode)
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	db := testDB(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}
