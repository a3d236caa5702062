package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/mnemo/internal/graph"
	"github.com/lazypower/mnemo/internal/store"
)

// Engine orchestrates the structured store, both derived indexes, the
// decay model, and the knowledge graph behind the four core operations.
type Engine struct {
	db       *store.DB
	embedder Embedder
	cache    *recallCache
	graphs   *graph.Manager

	// background tracks in-flight entity extraction so one-shot callers
	// can drain it before closing the store.
	background sync.WaitGroup
}

// New wires an Engine over an open store. The embedder may be nil, in
// which case recall runs lexical-only and writes skip the semantic index.
func New(db *store.DB, embedder Embedder) *Engine {
	return &Engine{
		db:       db,
		embedder: embedder,
		cache:    newRecallCache(5 * time.Second),
		graphs:   graph.NewManager(db),
	}
}

// DB exposes the underlying store for read-only callers (CLI listings).
func (e *Engine) DB() *store.DB { return e.db }

// Graphs exposes the knowledge graph manager.
func (e *Engine) Graphs() *graph.Manager { return e.graphs }

// Wait blocks until in-flight background extraction completes. Short
// lived processes call it before closing the store; the server only
// drains on shutdown.
func (e *Engine) Wait() { e.background.Wait() }

// invalidate clears derived read state after any mutation. Called
// synchronously before every pipeline returns.
func (e *Engine) invalidate(owner string) {
	e.cache.invalidate()
	e.graphs.MarkStale(owner)
}

// SetOutcome records the resolution of a stored thread, optionally
// archiving it.
func (e *Engine) SetOutcome(owner string, id int64, outcome string, archive bool) (bool, error) {
	found, err := e.db.SetOutcome(owner, id, outcome, archive)
	if err != nil {
		return false, err
	}
	if found {
		e.cache.invalidate()
	}
	return found, nil
}

// relateEndpointTypes picks the entity types minted for unknown
// references based on what the relationship connects. Known references
// resolve to their existing entity regardless.
func relateEndpointTypes(relationship string) (sourceType, targetType string) {
	switch relationship {
	case "lives_in":
		return "person", "place"
	case "located_in":
		return "place", "place"
	case "works_at", "member_of":
		return "person", "organization"
	case "owns":
		return "person", "pet"
	default:
		return "person", "person"
	}
}

// Relate asserts a typed edge between two resolved entities. Both
// references go through the standard resolution order, so aliases work.
func (e *Engine) Relate(owner, sourceRef, targetRef, relationship, description string) error {
	if !store.ValidRelationship(relationship) {
		return fmt.Errorf("invalid relationship %q", relationship)
	}

	sourceType, targetType := relateEndpointTypes(relationship)
	source, err := graph.ResolveOrCreate(e.db, owner, sourceRef, sourceType)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	target, err := graph.ResolveOrCreate(e.db, owner, targetRef, targetType)
	if err != nil {
		return fmt.Errorf("resolve target: %w", err)
	}
	if err := e.db.AddRelationship(owner, source.ID, target.ID, relationship, description, 1.0, 0); err != nil {
		return err
	}
	e.invalidate(owner)
	return nil
}

// RelateQuery answers a multi-hop relational question over the owner's
// knowledge graph, returning the terminal entity, the traversal path,
// and the memories that mention it.
func (e *Engine) RelateQuery(owner string, queryParts []string) (*graph.RelateResult, error) {
	g, err := e.graphs.Get(owner)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	result := g.RelateQuery(queryParts)
	if !result.Found {
		return result, nil
	}

	ids, err := e.db.MemoryIDsForEntity(result.Entity.ID)
	if err != nil {
		return nil, fmt.Errorf("memories for entity: %w", err)
	}
	memories, err := e.db.GetMemoriesByIDs(owner, ids)
	if err != nil {
		return nil, err
	}
	result.Memories = memories
	return result, nil
}

// Communities runs the on-demand consolidation pass, grouping connected
// entities into clusters.
func (e *Engine) Communities(owner string) ([]graph.Community, error) {
	g, err := e.graphs.Get(owner)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	return g.Communities(), nil
}

// Reindex rebuilds the lexical index and backfills missing embeddings
// from the structured store. Indexes are derived projections; this is
// the recovery path after a crash between commit and index update.
func (e *Engine) Reindex(ctx context.Context, owner string) (indexed, embedded int, err error) {
	indexed, err = e.db.RebuildIndex(owner)
	if err != nil {
		return 0, 0, fmt.Errorf("rebuild lexical index: %w", err)
	}

	if e.embedder != nil {
		missing, err := e.db.MemoriesWithoutVectors(owner)
		if err != nil {
			return indexed, 0, err
		}
		for _, m := range missing {
			vec, err := e.embedder.Embed(ctx, m.Content)
			if err != nil {
				log.Warn("reindex embed failed", "memory", m.ID, "error", err)
				continue
			}
			if err := e.db.SaveVector(m.ID, owner, vec, e.embedder.Model()); err != nil {
				log.Warn("reindex vector save failed", "memory", m.ID, "error", err)
				continue
			}
			embedded++
		}
	}

	e.invalidate(owner)
	return indexed, embedded, nil
}
