package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// validCategories is the closed category vocabulary. Membership is checked
// at the store boundary so no caller can invent a category.
var validCategories = map[string]bool{
	"fact":         true,
	"preference":   true,
	"concern":      true,
	"milestone":    true,
	"relationship": true,
	"emotion":      true,
	"goal":         true,
	"context":      true,
	"event":        true,
	"topic":        true,
}

// ValidCategories returns the sorted closed category vocabulary.
func ValidCategories() []string {
	cats := make([]string, 0, len(validCategories))
	for c := range validCategories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// ValidateCategories checks a category set against the closed vocabulary.
// The set must be non-empty.
func ValidateCategories(categories []string) error {
	if len(categories) == 0 {
		return fmt.Errorf("at least one category required")
	}
	var invalid []string
	for _, c := range categories {
		if !validCategories[c] {
			invalid = append(invalid, c)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid categories: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Memory is a stored fact belonging to exactly one owner.
type Memory struct {
	ID          int64    `json:"id"`
	Owner       string   `json:"owner"`
	Content     string   `json:"content"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags,omitempty"`
	IsPermanent bool     `json:"is_permanent,omitempty"`
	Outcome     string   `json:"outcome,omitempty"`
	Archived    bool     `json:"archived,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
}

// HasTag reports whether the memory carries the given tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasCategory reports whether the memory carries the given category.
func (m *Memory) HasCategory(category string) bool {
	for _, c := range m.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func encodeJSONList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func decodeJSONList(s string) []string {
	if s == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil
	}
	return items
}

// CreateMemory inserts a new memory record. Categories are validated
// against the closed vocabulary.
func (db *DB) CreateMemory(m *Memory) error {
	if m.Owner == "" {
		return fmt.Errorf("owner required")
	}
	if err := ValidateCategories(m.Categories); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	permanent := 0
	if m.IsPermanent {
		permanent = 1
	}

	result, err := db.Exec(`
		INSERT INTO memories (owner, content, categories, tags, is_permanent, outcome, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), 0, ?, ?)
	`, m.Owner, m.Content, encodeJSONList(m.Categories), encodeJSONList(m.Tags),
		permanent, m.Outcome, now, now)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}

	id, _ := result.LastInsertId()
	m.ID = id
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// GetMemory returns a memory by id scoped to owner, or nil if not found.
// A cross-owner id is indistinguishable from a missing one.
func (db *DB) GetMemory(owner string, id int64) (*Memory, error) {
	row := db.QueryRow(`
		SELECT id, owner, content, categories, tags, is_permanent, outcome, archived, created_at, updated_at
		FROM memories WHERE id = ? AND owner = ?
	`, id, owner)

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// GetMemoriesByIDs returns the owner's memories for the given id list.
// Unknown or cross-owner ids are silently absent from the result.
func (db *DB) GetMemoriesByIDs(owner string, ids []int64) ([]Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, owner)

	query := fmt.Sprintf(`
		SELECT id, owner, content, categories, tags, is_permanent, outcome, archived, created_at, updated_at
		FROM memories WHERE id IN (%s) AND owner = ?
	`, strings.Join(placeholders, ","))

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get memories by ids: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListMemories returns all of an owner's memories, newest first.
func (db *DB) ListMemories(owner string) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT id, owner, content, categories, tags, is_permanent, outcome, archived, created_at, updated_at
		FROM memories WHERE owner = ?
		ORDER BY created_at DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// AllContent returns the content of every stored memory across owners.
// Feeds vocabulary building for the fallback embedder; result ranking
// stays owner-scoped at the index level.
func (db *DB) AllContent() ([]string, error) {
	rows, err := db.Query("SELECT content FROM memories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("all content: %w", err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

// CountMemories returns the number of memories stored for an owner.
func (db *DB) CountMemories(owner string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM memories WHERE owner = ?", owner).Scan(&count)
	return count, err
}

// SetOutcome records the resolution of a memory's thread and optionally
// archives it. Returns false when the id is unknown for this owner.
func (db *DB) SetOutcome(owner string, id int64, outcome string, archive bool) (bool, error) {
	now := time.Now().UnixMilli()
	archived := 0
	if archive {
		archived = 1
	}
	result, err := db.Exec(`
		UPDATE memories SET outcome = ?, archived = ?, updated_at = ?
		WHERE id = ? AND owner = ?
	`, outcome, archived, now, id, owner)
	if err != nil {
		return false, fmt.Errorf("set outcome: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// SetPermanent forces the permanence flag on a stored memory.
func (db *DB) SetPermanent(owner string, id int64) error {
	_, err := db.Exec(`
		UPDATE memories SET is_permanent = 1, updated_at = ?
		WHERE id = ? AND owner = ?
	`, time.Now().UnixMilli(), id, owner)
	if err != nil {
		return fmt.Errorf("set permanent: %w", err)
	}
	return nil
}

// DeleteMemories removes the owner's memories with the given ids in a
// single transaction. Foreign-key cascades remove dependent refs and
// relationship provenance. Returns deleted and not-found id lists.
func (db *DB) DeleteMemories(owner string, ids []int64) (deleted, missing []int64, err error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin delete: %w", err)
	}

	for _, id := range ids {
		result, err := tx.Exec("DELETE FROM memories WHERE id = ? AND owner = ?", id, owner)
		if err != nil {
			tx.Rollback()
			return nil, nil, fmt.Errorf("delete memory %d: %w", id, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			deleted = append(deleted, id)
		} else {
			missing = append(missing, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit delete: %w", err)
	}
	return deleted, missing, nil
}

// EarliestMatch returns the created_at of the oldest memory for owner whose
// content matches the query lexically, or 0 when nothing matches.
func (db *DB) EarliestMatch(owner, query string) (int64, error) {
	ids, err := db.SearchLexical(owner, query, 50)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	for i, r := range ids {
		placeholders[i] = "?"
		args = append(args, r.MemoryID)
	}
	args = append(args, owner)

	var earliest sql.NullInt64
	err = db.QueryRow(fmt.Sprintf(`
		SELECT MIN(created_at) FROM memories WHERE id IN (%s) AND owner = ?
	`, strings.Join(placeholders, ",")), args...).Scan(&earliest)
	if err != nil {
		return 0, fmt.Errorf("earliest match: %w", err)
	}
	return earliest.Int64, nil
}

type memoryScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row memoryScanner) (*Memory, error) {
	var m Memory
	var permanent, archived int
	var categories, tags string
	var outcome sql.NullString
	if err := row.Scan(&m.ID, &m.Owner, &m.Content, &categories, &tags,
		&permanent, &outcome, &archived, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Categories = decodeJSONList(categories)
	m.Tags = decodeJSONList(tags)
	m.IsPermanent = permanent != 0
	m.Archived = archived != 0
	m.Outcome = outcome.String
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}
