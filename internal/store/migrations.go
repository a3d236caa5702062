package store

import (
	"fmt"

	"github.com/charmbracelet/log"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: per-owner memory records",
		SQL: `
CREATE TABLE memories (
    id           INTEGER PRIMARY KEY,
    owner        TEXT NOT NULL,
    content      TEXT NOT NULL,
    categories   TEXT NOT NULL CHECK (categories != '[]'),
    tags         TEXT NOT NULL DEFAULT '[]',
    is_permanent INTEGER NOT NULL DEFAULT 0,
    outcome      TEXT,
    archived     INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE INDEX idx_memories_owner      ON memories(owner);
CREATE INDEX idx_memories_created_at ON memories(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "entities: knowledge graph nodes",
		SQL: `
CREATE TABLE entities (
    id              INTEGER PRIMARY KEY,
    owner           TEXT NOT NULL,
    entity_type     TEXT NOT NULL CHECK (entity_type IN ('person', 'pet', 'place', 'organization', 'event')),
    name            TEXT NOT NULL,
    normalized_name TEXT NOT NULL,
    mention_count   INTEGER NOT NULL DEFAULT 1,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,

    UNIQUE (owner, entity_type, normalized_name)
);

CREATE INDEX idx_entities_owner ON entities(owner);
CREATE INDEX idx_entities_name  ON entities(owner, normalized_name);
`,
	},
	{
		Version:     3,
		Description: "entity_aliases: alternate references to canonical entities",
		SQL: `
CREATE TABLE entity_aliases (
    id         INTEGER PRIMARY KEY,
    owner      TEXT NOT NULL,
    entity_id  INTEGER NOT NULL,
    alias      TEXT NOT NULL,
    alias_type TEXT NOT NULL DEFAULT 'relationship',
    created_at INTEGER NOT NULL,

    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE,
    UNIQUE (owner, alias, alias_type)
);

CREATE INDEX idx_aliases_owner ON entity_aliases(owner, alias);
`,
	},
	{
		Version:     4,
		Description: "entity_relationships: typed directed edges between entities",
		SQL: `
CREATE TABLE entity_relationships (
    id               INTEGER PRIMARY KEY,
    owner            TEXT NOT NULL,
    source_id        INTEGER NOT NULL,
    target_id        INTEGER NOT NULL,
    relationship     TEXT NOT NULL CHECK (relationship IN (
        'knows', 'sibling_of', 'parent_of', 'partner_of', 'friend_of', 'coworker_of',
        'owns', 'lives_in', 'works_at', 'member_of', 'located_in', 'related_to')),
    description      TEXT,
    confidence       REAL NOT NULL DEFAULT 1.0,
    source_memory_id INTEGER,
    created_at       INTEGER NOT NULL,

    FOREIGN KEY (source_id) REFERENCES entities(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES entities(id) ON DELETE CASCADE,
    FOREIGN KEY (source_memory_id) REFERENCES memories(id) ON DELETE SET NULL,
    UNIQUE (owner, source_id, target_id, relationship)
);

CREATE INDEX idx_rels_source ON entity_relationships(source_id);
CREATE INDEX idx_rels_target ON entity_relationships(target_id);
`,
	},
	{
		Version:     5,
		Description: "memory_entity_refs: provenance edges from memories to entities",
		SQL: `
CREATE TABLE memory_entity_refs (
    id              INTEGER PRIMARY KEY,
    memory_id       INTEGER NOT NULL,
    entity_id       INTEGER NOT NULL,
    context_snippet TEXT,
    created_at      INTEGER NOT NULL,

    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE,
    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE,
    UNIQUE (memory_id, entity_id)
);

CREATE INDEX idx_refs_memory ON memory_entity_refs(memory_id);
CREATE INDEX idx_refs_entity ON memory_entity_refs(entity_id);
`,
	},
	{
		Version:     6,
		Description: "mem_vectors: embedding vectors for semantic search",
		SQL: `
CREATE TABLE mem_vectors (
    memory_id  INTEGER PRIMARY KEY,
    owner      TEXT NOT NULL,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX idx_vectors_owner ON mem_vectors(owner);
`,
	},
}

// ftsSchema is applied outside the migration table: FTS5 is an optional
// SQLite feature, so a failure here downgrades lexical search instead of
// failing the open.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
    content,
    tokenize = 'porter unicode61'
);
`

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	if _, err := db.Exec(ftsSchema); err != nil {
		log.Warn("FTS5 not available, lexical search falls back to LIKE", "error", err)
		db.ftsAvailable = false
	} else {
		db.ftsAvailable = true
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
