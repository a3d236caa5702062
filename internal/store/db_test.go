package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestSchemaVersion(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 6 {
		t.Errorf("SchemaVersion = %d, want 6", v)
	}
}

func TestTablesExist(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	tables := []string{
		"schema_versions", "memories", "entities", "entity_aliases",
		"entity_relationships", "memory_entity_refs", "mem_vectors",
	}
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

func TestMemoriesConstraints(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	// Valid insert
	_, err = db.Exec(`
		INSERT INTO memories (owner, content, categories, created_at, updated_at)
		VALUES ('u1', 'likes hiking', '["preference"]', 1000, 1000)
	`)
	if err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}

	// Empty category set
	_, err = db.Exec(`
		INSERT INTO memories (owner, content, categories, created_at, updated_at)
		VALUES ('u1', 'no categories', '[]', 1000, 1000)
	`)
	if err == nil {
		t.Error("expected error for empty categories, got nil")
	}
}

func TestEntitiesConstraints(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		INSERT INTO entities (owner, entity_type, name, normalized_name, created_at, updated_at)
		VALUES ('u1', 'person', 'Sarah', 'sarah', 1000, 1000)
	`)
	if err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}

	// Invalid entity type
	_, err = db.Exec(`
		INSERT INTO entities (owner, entity_type, name, normalized_name, created_at, updated_at)
		VALUES ('u1', 'robot', 'R2D2', 'r2d2', 1000, 1000)
	`)
	if err == nil {
		t.Error("expected error for invalid entity_type, got nil")
	}

	// Duplicate (owner, type, normalized_name)
	_, err = db.Exec(`
		INSERT INTO entities (owner, entity_type, name, normalized_name, created_at, updated_at)
		VALUES ('u1', 'person', 'sarah', 'sarah', 1000, 1000)
	`)
	if err == nil {
		t.Error("expected uniqueness error, got nil")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 6 {
		t.Errorf("SchemaVersion after re-migrate = %d, want 6", v)
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	var fk int
	err = db.QueryRow("PRAGMA foreign_keys").Scan(&fk)
	if err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestCascadeAcrossPooledConnections(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "mnemo.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	m := mustCreate(t, db, "u1", "My sister Sarah lives in Portland", "fact")
	sarah, _, err := db.GetOrCreateEntity("u1", "person", "Sarah", "sarah")
	if err != nil {
		t.Fatalf("GetOrCreateEntity: %v", err)
	}
	if err := db.AddEntityRef(m.ID, sarah.ID, ""); err != nil {
		t.Fatalf("AddEntityRef: %v", err)
	}

	// Pin one pooled connection with an open result set so the delete
	// is forced onto a different connection, which must also have
	// foreign keys on.
	rows, err := db.Query("SELECT id FROM memories")
	if err != nil {
		t.Fatalf("pin connection: %v", err)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d on second connection, want 1", fk)
	}

	if _, _, err := db.DeleteMemories("u1", []int64{m.ID}); err != nil {
		t.Fatalf("DeleteMemories: %v", err)
	}
	rows.Close()

	var refs int
	if err := db.QueryRow("SELECT COUNT(*) FROM memory_entity_refs").Scan(&refs); err != nil {
		t.Fatalf("count refs: %v", err)
	}
	if refs != 0 {
		t.Errorf("orphaned memory_entity_refs = %d after delete, want 0", refs)
	}
}

func TestOpenMemorySharedAcrossGoroutines(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	// Concurrent writers must all land in the same database; a pool of
	// independent :memory: connections would scatter or fail them.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := &Memory{
				Owner:      "u1",
				Content:    fmt.Sprintf("concurrent write number %d landed", i),
				Categories: []string{"fact"},
			}
			if err := db.CreateMemory(m); err != nil {
				t.Errorf("CreateMemory %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	n, err := db.CountMemories("u1")
	if err != nil {
		t.Fatalf("CountMemories: %v", err)
	}
	if n != 8 {
		t.Errorf("memories = %d, want 8", n)
	}
}
