package store

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// LexicalResult is one ranked hit from the lexical index.
type LexicalResult struct {
	MemoryID int64
	Score    float64
}

// IndexMemory inserts or replaces the lexical index document for a memory.
// No-op when FTS5 is unavailable (the LIKE fallback reads the memories
// table directly).
func (db *DB) IndexMemory(id int64, content string) error {
	if !db.ftsAvailable {
		return nil
	}
	if _, err := db.Exec("DELETE FROM memories_fts WHERE rowid = ?", id); err != nil {
		return fmt.Errorf("reindex delete %d: %w", id, err)
	}
	if _, err := db.Exec("INSERT INTO memories_fts (rowid, content) VALUES (?, ?)", id, content); err != nil {
		return fmt.Errorf("index memory %d: %w", id, err)
	}
	return nil
}

// RemoveFromIndex deletes the lexical index document for a memory.
// Absence is not an error.
func (db *DB) RemoveFromIndex(id int64) error {
	if !db.ftsAvailable {
		return nil
	}
	if _, err := db.Exec("DELETE FROM memories_fts WHERE rowid = ?", id); err != nil {
		return fmt.Errorf("remove from index %d: %w", id, err)
	}
	return nil
}

// RebuildIndex drops and reinserts every lexical index document for an
// owner from the memories table. Recovery path for index drift.
func (db *DB) RebuildIndex(owner string) (int, error) {
	if !db.ftsAvailable {
		return 0, nil
	}

	memories, err := db.ListMemories(owner)
	if err != nil {
		return 0, err
	}

	if _, err := db.Exec(`
		DELETE FROM memories_fts WHERE rowid IN (SELECT id FROM memories WHERE owner = ?)
	`, owner); err != nil {
		return 0, fmt.Errorf("rebuild index clear: %w", err)
	}

	for _, m := range memories {
		if _, err := db.Exec("INSERT INTO memories_fts (rowid, content) VALUES (?, ?)", m.ID, m.Content); err != nil {
			return 0, fmt.Errorf("rebuild index insert %d: %w", m.ID, err)
		}
	}
	return len(memories), nil
}

// SearchLexical runs a BM25-ranked keyword search scoped to an owner.
// Tries the sanitized phrase first, then widens with an OR query over
// extracted keywords when the phrase returns too little. Falls back to
// LIKE matching when FTS5 is unavailable.
func (db *DB) SearchLexical(owner, query string, limit int) ([]LexicalResult, error) {
	if limit <= 0 {
		limit = 10
	}

	if !db.ftsAvailable {
		return db.searchLikeFallback(owner, query, limit)
	}

	safe := sanitizeFTSQuery(query)
	if safe == "" {
		return nil, nil
	}

	results, err := db.ftsQuery(owner, safe, limit)
	if err != nil {
		return nil, err
	}
	if len(results) >= limit/2 {
		return results, nil
	}

	keywords := extractKeywords(query)
	if expanded := expandQuery(keywords); expanded != "" && expanded != safe {
		more, err := db.ftsQuery(owner, expanded, limit)
		if err == nil {
			results = mergeLexicalResults(results, more, limit)
		}
	}

	return results, nil
}

// ftsQuery runs a single owner-scoped FTS5 query ranked by bm25.
func (db *DB) ftsQuery(owner, match string, limit int) ([]LexicalResult, error) {
	rows, err := db.Query(`
		SELECT m.id, rank
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.rowid
		WHERE memories_fts MATCH ? AND m.owner = ?
		ORDER BY rank
		LIMIT ?
	`, match, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var results []LexicalResult
	for rows.Next() {
		var r LexicalResult
		var rank float64
		if err := rows.Scan(&r.MemoryID, &rank); err != nil {
			return nil, fmt.Errorf("scan fts result: %w", err)
		}
		// bm25 rank is negative; fold it into (0,1].
		r.Score = 1.0 / (1.0 + math.Abs(rank))
		results = append(results, r)
	}
	return results, rows.Err()
}

// searchLikeFallback matches any extracted keyword with LIKE and scores by
// match count. Only used when the SQLite build lacks FTS5.
func (db *DB) searchLikeFallback(owner, query string, limit int) ([]LexicalResult, error) {
	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		keywords = []string{strings.ToLower(strings.TrimSpace(query))}
	}

	memories, err := db.ListMemories(owner)
	if err != nil {
		return nil, err
	}

	var results []LexicalResult
	for _, m := range memories {
		content := strings.ToLower(m.Content)
		matched := 0
		for _, kw := range keywords {
			if kw != "" && strings.Contains(content, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, LexicalResult{
			MemoryID: m.ID,
			Score:    float64(matched) / float64(len(keywords)),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// sanitizeFTSQuery quotes each token so user text cannot inject FTS5
// operators. Returns empty string when no tokens survive.
func sanitizeFTSQuery(query string) string {
	var parts []string
	for _, f := range strings.Fields(query) {
		f = strings.Trim(f, ".,;:!?\"'()[]{}*")
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		parts = append(parts, `"`+f+`"`)
	}
	return strings.Join(parts, " ")
}

// extractKeywords pulls meaningful lowercase keywords from a
// conversational query, dropping stop words and short tokens.
func extractKeywords(query string) []string {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}*")
		if len(w) < 3 || searchStopWords[w] {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

// expandQuery converts keywords into an FTS5 OR query.
func expandQuery(keywords []string) string {
	var parts []string
	for _, kw := range keywords {
		if s := sanitizeFTSQuery(kw); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " OR ")
}

func mergeLexicalResults(a, b []LexicalResult, limit int) []LexicalResult {
	seen := make(map[int64]bool, len(a))
	merged := make([]LexicalResult, 0, len(a)+len(b))
	for _, r := range a {
		if !seen[r.MemoryID] {
			seen[r.MemoryID] = true
			merged = append(merged, r)
		}
	}
	for _, r := range b {
		if !seen[r.MemoryID] {
			seen[r.MemoryID] = true
			merged = append(merged, r)
		}
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// searchStopWords are common words filtered out during keyword extraction.
var searchStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "his": true, "was": true, "one": true, "our": true,
	"out": true, "has": true, "its": true, "let": true, "may": true,
	"who": true, "what": true, "when": true, "where": true, "about": true,
	"with": true, "does": true, "know": true, "tell": true, "that": true,
	"this": true, "have": true, "from": true, "they": true, "been": true,
}
