package graph

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lazypower/mnemo/internal/store"
)

// graphState tracks the lifecycle of one owner's in-memory graph.
type graphState int

const (
	stateUnloaded graphState = iota
	stateLoaded
	stateStale
)

// Manager owns one lazily built in-memory graph per owner. Writes mark
// a graph stale; the next access rebuilds it fully. Rebuilds are never
// partial, so traversal only ever sees a consistent snapshot.
type Manager struct {
	db     *store.DB
	mu     sync.Mutex
	graphs map[string]*Graph
	states map[string]graphState
}

// NewManager creates a graph manager over the structured store.
func NewManager(db *store.DB) *Manager {
	return &Manager{
		db:     db,
		graphs: make(map[string]*Graph),
		states: make(map[string]graphState),
	}
}

// MarkStale flags the owner's graph for rebuild on next access.
func (m *Manager) MarkStale(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[owner] == stateLoaded {
		m.states[owner] = stateStale
	}
}

// Get returns the owner's graph, rebuilding it from the store when
// unloaded or stale.
func (m *Manager) Get(owner string) (*Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.states[owner] == stateLoaded {
		return m.graphs[owner], nil
	}

	g, err := build(m.db, owner)
	if err != nil {
		return nil, err
	}
	m.graphs[owner] = g
	m.states[owner] = stateLoaded
	log.Debug("knowledge graph rebuilt", "owner", owner,
		"entities", len(g.entities), "edges", len(g.edges))
	return g, nil
}

// Graph is an immutable in-memory projection of one owner's entities,
// aliases, and relationship edges. Replaced wholesale on rebuild.
type Graph struct {
	owner    string
	entities map[int64]store.Entity
	aliases  map[string]int64 // lowercased alias -> entity id, earliest mapping wins
	names    map[string]int64 // normalized name -> entity id, most mentioned wins
	edges    []store.EntityRelationship
	adjacent map[int64][]int64 // neighbors over entity edges, both directions
}

func build(db *store.DB, owner string) (*Graph, error) {
	g := &Graph{
		owner:    owner,
		entities: make(map[int64]store.Entity),
		aliases:  make(map[string]int64),
		names:    make(map[string]int64),
		adjacent: make(map[int64][]int64),
	}

	entities, err := db.ListEntities(owner)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	for _, e := range entities {
		g.entities[e.ID] = e
		// ListEntities orders by mention count descending, so the first
		// holder of a normalized name is the most mentioned.
		if _, taken := g.names[e.NormalizedName]; !taken {
			g.names[e.NormalizedName] = e.ID
		}
	}

	aliases, err := db.ListAliases(owner)
	if err != nil {
		return nil, fmt.Errorf("load aliases: %w", err)
	}
	for _, a := range aliases {
		if _, taken := g.aliases[a.Alias]; !taken {
			g.aliases[a.Alias] = a.EntityID
		}
	}

	edges, err := db.ListRelationships(owner)
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}
	g.edges = edges
	for _, r := range edges {
		g.adjacent[r.SourceID] = append(g.adjacent[r.SourceID], r.TargetID)
		g.adjacent[r.TargetID] = append(g.adjacent[r.TargetID], r.SourceID)
	}

	return g, nil
}

// Entity returns a graph node by id.
func (g *Graph) Entity(id int64) (store.Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// EntityCount returns the number of nodes in the graph.
func (g *Graph) EntityCount() int { return len(g.entities) }

// EdgeCount returns the number of relationship edges in the graph.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Neighbors returns entities directly connected to the given entity by
// a relationship edge in either direction.
func (g *Graph) Neighbors(id int64) []int64 {
	return g.adjacent[id]
}
