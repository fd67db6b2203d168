package db

import (
	"testing"
)

func TestNewSQLiteDBInitializesSchema(t *testing.T) {
	dir := t.TempDir()

	database, err := NewSQLiteDB(dir)
	if err != nil {
		t.Fatalf("NewSQLiteDB: %v", err)
	}
	defer database.Close()

	var version string
	err = database.Conn().QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != "1" {
		t.Fatalf("expected schema version 1, got %s", version)
	}

	if _, err := database.Conn().Exec(`INSERT INTO nodes (path, value, updated_at) VALUES ('probe', '{}', 0)`); err != nil {
		t.Fatalf("nodes table missing: %v", err)
	}
}

func TestNewSQLiteDBReopensExisting(t *testing.T) {
	dir := t.TempDir()

	first, err := NewSQLiteDB(dir)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := first.Conn().Exec(`INSERT INTO nodes (path, value, updated_at) VALUES ('keep', '{"a":1}', 0)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := NewSQLiteDB(dir)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	var value string
	if err := second.Conn().QueryRow(`SELECT value FROM nodes WHERE path = 'keep'`).Scan(&value); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if value != `{"a":1}` {
		t.Fatalf("unexpected value %s", value)
	}
}
