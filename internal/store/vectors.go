package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// VectorRecord holds an embedding for a memory.
type VectorRecord struct {
	MemoryID   int64
	Owner      string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for a memory.
func (db *DB) SaveVector(memoryID int64, owner string, embedding []float64, model string) error {
	now := time.Now().UnixMilli()
	blob := encodeEmbedding(embedding)

	_, err := db.Exec(`
		INSERT INTO mem_vectors (memory_id, owner, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET embedding = ?, model = ?, dimensions = ?, created_at = ?
	`, memoryID, owner, blob, model, len(embedding), now,
		blob, model, len(embedding), now)
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// GetVector returns the embedding for a memory, or nil if not found.
func (db *DB) GetVector(memoryID int64) (*VectorRecord, error) {
	var v VectorRecord
	var blob []byte

	err := db.QueryRow(`
		SELECT memory_id, owner, embedding, model, dimensions, created_at
		FROM mem_vectors WHERE memory_id = ?
	`, memoryID).Scan(&v.MemoryID, &v.Owner, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// VectorsForOwner returns all stored vector records for one owner.
func (db *DB) VectorsForOwner(owner string) ([]VectorRecord, error) {
	rows, err := db.Query(`
		SELECT memory_id, owner, embedding, model, dimensions, created_at
		FROM mem_vectors WHERE owner = ?
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("vectors for owner: %w", err)
	}
	defer rows.Close()

	var records []VectorRecord
	for rows.Next() {
		var v VectorRecord
		var blob []byte
		if err := rows.Scan(&v.MemoryID, &v.Owner, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		records = append(records, v)
	}
	return records, rows.Err()
}

// MemoriesWithoutVectors returns the owner's memories that have no stored
// embedding yet. Used by reindexing to backfill the semantic index.
func (db *DB) MemoriesWithoutVectors(owner string) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT m.id, m.owner, m.content, m.categories, m.tags, m.is_permanent, m.outcome, m.archived, m.created_at, m.updated_at
		FROM memories m
		LEFT JOIN mem_vectors v ON v.memory_id = m.id
		WHERE m.owner = ? AND v.memory_id IS NULL
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("memories without vectors: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// DeleteVector removes the embedding for a memory.
func (db *DB) DeleteVector(memoryID int64) error {
	_, err := db.Exec("DELETE FROM mem_vectors WHERE memory_id = ?", memoryID)
	if err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}
