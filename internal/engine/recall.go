package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/mnemo/internal/store"
)

const (
	// rrfK is the Reciprocal Rank Fusion constant.
	rrfK = 60

	// candidateMultiplier widens the per-index candidate pool before
	// fusion so decay reordering has material to work with.
	candidateMultiplier = 3

	enrichmentLimit  = 3
	enrichmentBudget = 150 * time.Millisecond
)

// RecallFilters narrows recall results by category or tag.
type RecallFilters struct {
	Categories []string
	Tags       []string
}

func (f RecallFilters) empty() bool {
	return len(f.Categories) == 0 && len(f.Tags) == 0
}

func (f RecallFilters) matches(m *store.Memory) bool {
	for _, c := range f.Categories {
		if !m.HasCategory(c) {
			return false
		}
	}
	for _, t := range f.Tags {
		if !m.HasTag(t) {
			return false
		}
	}
	return true
}

// RecallResult is one ranked memory with its scoring breakdown.
type RecallResult struct {
	Memory        store.Memory `json:"memory"`
	Relevance     float64      `json:"relevance"`
	LexicalScore  float64      `json:"lexical_score"`
	SemanticMatch float64      `json:"semantic_match"`
	RecencyWeight float64      `json:"recency_weight"`
	TimeAgo       string       `json:"time_ago"`

	// FirstMentioned is set by duration enrichment for unresolved
	// concern/goal threads: when the topic first appeared.
	FirstMentioned string `json:"first_mentioned,omitempty"`
}

// Recall retrieves the owner's most relevant memories for a query:
// lexical and semantic candidates fused by Reciprocal Rank Fusion, then
// weighted by recency decay.
func (e *Engine) Recall(ctx context.Context, owner, query string, limit int, filters RecallFilters) ([]RecallResult, error) {
	if limit <= 0 {
		limit = 5
	}

	key := cacheKey(owner, query, limit, filters)
	if cached, ok := e.cache.get(key); ok {
		return cached, nil
	}

	poolSize := limit * candidateMultiplier

	lexical, err := e.db.SearchLexical(owner, query, poolSize)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	semantic, err := e.searchSemantic(ctx, owner, query, poolSize)
	if err != nil {
		// Semantic search is best-effort; lexical results still serve.
		log.Warn("semantic search unavailable", "error", err)
		semantic = nil
	}

	type candidate struct {
		fusion   float64
		lexical  float64
		semantic float64
	}
	candidates := make(map[int64]*candidate)
	get := func(id int64) *candidate {
		c, ok := candidates[id]
		if !ok {
			c = &candidate{}
			candidates[id] = c
		}
		return c
	}

	for rank, r := range lexical {
		c := get(r.MemoryID)
		c.fusion += 1.0 / float64(rrfK+rank+1)
		c.lexical = r.Score
	}
	for rank, s := range semantic {
		c := get(s.memoryID)
		c.fusion += 1.0 / float64(rrfK+rank+1)
		c.semantic = s.similarity
	}

	if len(candidates) == 0 {
		e.cache.put(key, nil)
		return nil, nil
	}

	ids := make([]int64, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	memories, err := e.db.GetMemoriesByIDs(owner, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	now := time.Now()
	results := make([]RecallResult, 0, len(memories))
	for _, m := range memories {
		if !filters.empty() && !filters.matches(&m) {
			continue
		}
		c := candidates[m.ID]
		weight := DecayWeight(m.Categories, m.IsPermanent, m.Tags, AgeDays(m.CreatedAt, now))
		results = append(results, RecallResult{
			Memory:        m,
			Relevance:     c.fusion * weight,
			LexicalScore:  c.lexical,
			SemanticMatch: c.semantic,
			RecencyWeight: weight,
			TimeAgo:       TimeAgo(m.CreatedAt, now),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].Memory.CreatedAt > results[j].Memory.CreatedAt
	})
	if len(results) > limit {
		results = results[:limit]
	}

	e.enrichDurations(results, now)

	e.cache.put(key, results)
	return results, nil
}

type semanticHit struct {
	memoryID   int64
	similarity float64
}

// searchSemantic embeds the query and ranks the owner's stored vectors
// by cosine similarity.
func (e *Engine) searchSemantic(ctx context.Context, owner, query string, limit int) ([]semanticHit, error) {
	if e.embedder == nil {
		return nil, nil
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors, err := e.db.VectorsForOwner(owner)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	var hits []semanticHit
	for _, v := range vectors {
		sim := CosineSimilarity(queryVec, v.Embedding)
		if sim <= 0 {
			continue
		}
		hits = append(hits, semanticHit{memoryID: v.MemoryID, similarity: sim})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].similarity > hits[j].similarity
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// enrichDurations annotates up to three top unresolved concern/goal
// threads with when the topic first appeared. Fans out concurrently
// under a shared deadline; late lookups are dropped, never awaited.
func (e *Engine) enrichDurations(results []RecallResult, now time.Time) {
	type enrichment struct {
		index int
		label string
	}

	pending := 0
	ch := make(chan enrichment, enrichmentLimit)
	for i := range results {
		if pending >= enrichmentLimit {
			break
		}
		m := &results[i].Memory
		if m.Outcome != "" || (!m.HasCategory("concern") && !m.HasCategory("goal")) {
			continue
		}
		pending++
		go func(idx int, owner, content string) {
			first, err := e.db.EarliestMatch(owner, content)
			if err != nil || first == 0 {
				ch <- enrichment{index: -1}
				return
			}
			ch <- enrichment{index: idx, label: "first mentioned " + TimeAgo(first, now)}
		}(i, m.Owner, m.Content)
	}

	deadline := time.After(enrichmentBudget)
	for pending > 0 {
		select {
		case en := <-ch:
			pending--
			if en.index >= 0 {
				results[en.index].FirstMentioned = en.label
			}
		case <-deadline:
			return
		}
	}
}
