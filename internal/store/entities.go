package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// validEntityTypes mirrors the CHECK constraint on the entities table.
var validEntityTypes = map[string]bool{
	"person":       true,
	"pet":          true,
	"place":        true,
	"organization": true,
	"event":        true,
}

// validRelationships is the fixed edge vocabulary. Extraction maps free
// text onto these; anything else is rejected at the store boundary.
var validRelationships = map[string]bool{
	"knows":       true,
	"sibling_of":  true,
	"parent_of":   true,
	"partner_of":  true,
	"friend_of":   true,
	"coworker_of": true,
	"owns":        true,
	"lives_in":    true,
	"works_at":    true,
	"member_of":   true,
	"located_in":  true,
	"related_to":  true,
}

// ValidRelationship reports whether the relationship type is in the
// fixed vocabulary.
func ValidRelationship(relationship string) bool {
	return validRelationships[relationship]
}

// ValidRelationships returns the sorted edge vocabulary.
func ValidRelationships() []string {
	rels := make([]string, 0, len(validRelationships))
	for r := range validRelationships {
		rels = append(rels, r)
	}
	sort.Strings(rels)
	return rels
}

// Entity is a canonical node in an owner's knowledge graph.
type Entity struct {
	ID             int64  `json:"id"`
	Owner          string `json:"owner"`
	EntityType     string `json:"entity_type"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name"`
	MentionCount   int    `json:"mention_count"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// EntityAlias maps an alternate reference (like "my sister") to a
// canonical entity.
type EntityAlias struct {
	ID        int64  `json:"id"`
	Owner     string `json:"owner"`
	EntityID  int64  `json:"entity_id"`
	Alias     string `json:"alias"`
	AliasType string `json:"alias_type"`
	CreatedAt int64  `json:"created_at"`
}

// EntityRelationship is a typed directed edge between two entities.
type EntityRelationship struct {
	ID             int64   `json:"id"`
	Owner          string  `json:"owner"`
	SourceID       int64   `json:"source_id"`
	TargetID       int64   `json:"target_id"`
	Relationship   string  `json:"relationship"`
	Description    string  `json:"description,omitempty"`
	Confidence     float64 `json:"confidence"`
	SourceMemoryID int64   `json:"source_memory_id,omitempty"`
	CreatedAt      int64   `json:"created_at"`
}

// MemoryEntityRef links a memory to an entity it mentions.
type MemoryEntityRef struct {
	ID             int64
	MemoryID       int64
	EntityID       int64
	ContextSnippet string
	CreatedAt      int64
}

// GetOrCreateEntity looks up an entity by (owner, type, normalized name),
// bumping its mention count on a hit, or creates it. Returns the entity
// and whether it was newly created.
func (db *DB) GetOrCreateEntity(owner, entityType, name, normalizedName string) (*Entity, bool, error) {
	if !validEntityTypes[entityType] {
		return nil, false, fmt.Errorf("invalid entity type %q", entityType)
	}

	existing, err := db.findEntity(owner, entityType, normalizedName)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		now := time.Now().UnixMilli()
		if _, err := db.Exec(`
			UPDATE entities SET mention_count = mention_count + 1, updated_at = ?
			WHERE id = ?
		`, now, existing.ID); err != nil {
			return nil, false, fmt.Errorf("bump mention count: %w", err)
		}
		existing.MentionCount++
		existing.UpdatedAt = now
		return existing, false, nil
	}

	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		INSERT INTO entities (owner, entity_type, name, normalized_name, mention_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, owner, entityType, name, normalizedName, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("create entity: %w", err)
	}
	id, _ := result.LastInsertId()
	return &Entity{
		ID: id, Owner: owner, EntityType: entityType,
		Name: name, NormalizedName: normalizedName,
		MentionCount: 1, CreatedAt: now, UpdatedAt: now,
	}, true, nil
}

func (db *DB) findEntity(owner, entityType, normalizedName string) (*Entity, error) {
	row := db.QueryRow(`
		SELECT id, owner, entity_type, name, normalized_name, mention_count, created_at, updated_at
		FROM entities WHERE owner = ? AND entity_type = ? AND normalized_name = ?
	`, owner, entityType, normalizedName)
	return scanEntity(row)
}

// GetEntity returns an entity by id scoped to owner, or nil if not found.
func (db *DB) GetEntity(owner string, id int64) (*Entity, error) {
	row := db.QueryRow(`
		SELECT id, owner, entity_type, name, normalized_name, mention_count, created_at, updated_at
		FROM entities WHERE id = ? AND owner = ?
	`, id, owner)
	return scanEntity(row)
}

// FindEntityByName returns the owner's most-mentioned entity with the
// given normalized name regardless of type, or nil if none exists.
func (db *DB) FindEntityByName(owner, normalizedName string) (*Entity, error) {
	row := db.QueryRow(`
		SELECT id, owner, entity_type, name, normalized_name, mention_count, created_at, updated_at
		FROM entities WHERE owner = ? AND normalized_name = ?
		ORDER BY mention_count DESC LIMIT 1
	`, owner, normalizedName)
	return scanEntity(row)
}

// FindEntityByAlias resolves an alias to its canonical entity, or nil
// when the alias is unknown.
func (db *DB) FindEntityByAlias(owner, alias string) (*Entity, error) {
	row := db.QueryRow(`
		SELECT e.id, e.owner, e.entity_type, e.name, e.normalized_name, e.mention_count, e.created_at, e.updated_at
		FROM entity_aliases a
		JOIN entities e ON e.id = a.entity_id
		WHERE a.owner = ? AND a.alias = ?
		ORDER BY a.created_at ASC LIMIT 1
	`, owner, strings.ToLower(strings.TrimSpace(alias)))
	return scanEntity(row)
}

// AddAlias records an alternate reference for an entity. Re-adding an
// existing alias is a no-op.
func (db *DB) AddAlias(owner string, entityID int64, alias, aliasType string) error {
	alias = strings.ToLower(strings.TrimSpace(alias))
	if alias == "" {
		return fmt.Errorf("empty alias")
	}
	_, err := db.Exec(`
		INSERT INTO entity_aliases (owner, entity_id, alias, alias_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner, alias, alias_type) DO NOTHING
	`, owner, entityID, alias, aliasType, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("add alias: %w", err)
	}
	return nil
}

// ListAliases returns all of an owner's aliases, oldest first so the
// earliest recorded mapping wins ties during resolution.
func (db *DB) ListAliases(owner string) ([]EntityAlias, error) {
	rows, err := db.Query(`
		SELECT id, owner, entity_id, alias, alias_type, created_at
		FROM entity_aliases WHERE owner = ?
		ORDER BY created_at ASC, id ASC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []EntityAlias
	for rows.Next() {
		var a EntityAlias
		if err := rows.Scan(&a.ID, &a.Owner, &a.EntityID, &a.Alias, &a.AliasType, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// AliasesForEntity returns all recorded aliases for an entity.
func (db *DB) AliasesForEntity(entityID int64) ([]EntityAlias, error) {
	rows, err := db.Query(`
		SELECT id, owner, entity_id, alias, alias_type, created_at
		FROM entity_aliases WHERE entity_id = ?
		ORDER BY created_at ASC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("aliases for entity: %w", err)
	}
	defer rows.Close()

	var aliases []EntityAlias
	for rows.Next() {
		var a EntityAlias
		if err := rows.Scan(&a.ID, &a.Owner, &a.EntityID, &a.Alias, &a.AliasType, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// AddRelationship records a typed edge between two entities. The type
// must come from the fixed vocabulary. Duplicate edges are no-ops.
// sourceMemoryID of 0 records the edge without provenance.
func (db *DB) AddRelationship(owner string, sourceID, targetID int64, relationship, description string, confidence float64, sourceMemoryID int64) error {
	if !validRelationships[relationship] {
		return fmt.Errorf("invalid relationship %q", relationship)
	}
	var memID any
	if sourceMemoryID > 0 {
		memID = sourceMemoryID
	}
	_, err := db.Exec(`
		INSERT INTO entity_relationships (owner, source_id, target_id, relationship, description, confidence, source_memory_id, created_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)
		ON CONFLICT(owner, source_id, target_id, relationship) DO NOTHING
	`, owner, sourceID, targetID, relationship, description, confidence, memID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("add relationship: %w", err)
	}
	return nil
}

// ListRelationships returns all of an owner's edges.
func (db *DB) ListRelationships(owner string) ([]EntityRelationship, error) {
	rows, err := db.Query(`
		SELECT id, owner, source_id, target_id, relationship, description, confidence, source_memory_id, created_at
		FROM entity_relationships WHERE owner = ?
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var rels []EntityRelationship
	for rows.Next() {
		var r EntityRelationship
		var desc sql.NullString
		var memID sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Owner, &r.SourceID, &r.TargetID, &r.Relationship,
			&desc, &r.Confidence, &memID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		r.Description = desc.String
		r.SourceMemoryID = memID.Int64
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// AddEntityRef links a memory to an entity it mentions. Duplicate links
// are no-ops.
func (db *DB) AddEntityRef(memoryID, entityID int64, snippet string) error {
	_, err := db.Exec(`
		INSERT INTO memory_entity_refs (memory_id, entity_id, context_snippet, created_at)
		VALUES (?, ?, NULLIF(?, ''), ?)
		ON CONFLICT(memory_id, entity_id) DO NOTHING
	`, memoryID, entityID, snippet, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("add entity ref: %w", err)
	}
	return nil
}

// MemoryIDsForEntity returns ids of memories that mention the entity,
// newest first.
func (db *DB) MemoryIDsForEntity(entityID int64) ([]int64, error) {
	rows, err := db.Query(`
		SELECT r.memory_id
		FROM memory_entity_refs r
		JOIN memories m ON m.id = r.memory_id
		WHERE r.entity_id = ?
		ORDER BY m.created_at DESC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("memories for entity: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListEntities returns all of an owner's entities, most mentioned first.
func (db *DB) ListEntities(owner string) ([]Entity, error) {
	return db.queryEntities(`
		SELECT id, owner, entity_type, name, normalized_name, mention_count, created_at, updated_at
		FROM entities WHERE owner = ?
		ORDER BY mention_count DESC, name ASC
	`, owner)
}

// PopularEntities returns the owner's most-mentioned entities.
func (db *DB) PopularEntities(owner string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	return db.queryEntities(`
		SELECT id, owner, entity_type, name, normalized_name, mention_count, created_at, updated_at
		FROM entities WHERE owner = ?
		ORDER BY mention_count DESC, name ASC
		LIMIT ?
	`, owner, limit)
}

func (db *DB) queryEntities(query string, args ...any) ([]Entity, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Owner, &e.EntityType, &e.Name, &e.NormalizedName,
			&e.MentionCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	err := row.Scan(&e.ID, &e.Owner, &e.EntityType, &e.Name, &e.NormalizedName,
		&e.MentionCount, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	return &e, nil
}
