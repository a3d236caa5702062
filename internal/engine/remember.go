package engine

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/lazypower/mnemo/internal/graph"
	"github.com/lazypower/mnemo/internal/store"
)

// Remember statuses.
const (
	StatusStored    = "stored"
	StatusSkipped   = "skipped"
	StatusSuggested = "suggested"
)

// RememberInput is a candidate memory for the write pipeline.
type RememberInput struct {
	Owner      string   `json:"owner"`
	Content    string   `json:"content"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags,omitempty"`
	Permanent  bool     `json:"permanent,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

// RememberResult reports what the write pipeline did with a candidate.
type RememberResult struct {
	Status  string        `json:"status"`
	ID      int64         `json:"id,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Content string        `json:"content,omitempty"`
	Memory  *store.Memory `json:"memory,omitempty"`
}

// Remember runs the write pipeline: validation and confidence routing
// for auto-detected content, semantic dedup, then commit to the
// structured store and both indexes. Entity extraction runs async and
// never fails the write.
func (e *Engine) Remember(ctx context.Context, in RememberInput) (*RememberResult, error) {
	if in.Owner == "" {
		return nil, fmt.Errorf("owner required")
	}
	if err := store.ValidateCategories(in.Categories); err != nil {
		return nil, err
	}

	auto := hasTag(in.Tags, "auto")
	if auto {
		v := validateAutoMemory(in.Content, in.Confidence)
		if !v.Valid {
			return &RememberResult{Status: StatusSkipped, Reason: v.Reason}, nil
		}
		if v.Action == "suggest" {
			return &RememberResult{Status: StatusSuggested, Content: in.Content}, nil
		}

		dup, err := e.findDuplicate(ctx, in.Owner, in.Content)
		if err != nil {
			// Dedup is best-effort; a broken lookup must not block the write.
			log.Warn("duplicate check failed", "error", err)
		} else if dup != nil {
			return &RememberResult{Status: StatusSkipped, Reason: "duplicate", ID: dup.ID}, nil
		}
	}

	m := &store.Memory{
		Owner:       in.Owner,
		Content:     in.Content,
		Categories:  in.Categories,
		Tags:        in.Tags,
		IsPermanent: in.Permanent,
	}
	if err := e.db.CreateMemory(m); err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}

	// Index updates are outside the structured transaction. The record
	// is authoritative either way; Reindex recovers from drift.
	if err := e.db.IndexMemory(m.ID, m.Content); err != nil {
		log.Warn("lexical index update failed", "memory", m.ID, "error", err)
	}
	if e.embedder != nil {
		if vec, err := e.embedder.Embed(ctx, m.Content); err != nil {
			log.Warn("embedding failed", "memory", m.ID, "error", err)
		} else if err := e.db.SaveVector(m.ID, m.Owner, vec, e.embedder.Model()); err != nil {
			log.Warn("vector save failed", "memory", m.ID, "error", err)
		}
	}

	e.invalidate(in.Owner)

	e.background.Add(1)
	go func(id int64, owner, content string) {
		defer e.background.Done()
		if err := graph.ExtractAndStore(e.db, owner, id, content); err != nil {
			log.Warn("entity extraction failed", "memory", id, "error", err)
			return
		}
		e.graphs.MarkStale(owner)
	}(m.ID, m.Owner, m.Content)

	return &RememberResult{Status: StatusStored, ID: m.ID, Memory: m}, nil
}

// findDuplicate returns an existing memory whose semantic match against
// the candidate content crosses the dedup threshold, or nil.
func (e *Engine) findDuplicate(ctx context.Context, owner, content string) (*store.Memory, error) {
	results, err := e.Recall(ctx, owner, content, 3, RecallFilters{})
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.SemanticMatch >= duplicateSimilarityThreshold {
			m := r.Memory
			return &m, nil
		}
	}
	return nil, nil
}
