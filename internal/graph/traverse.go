package graph

import (
	"fmt"
	"strings"

	"github.com/lazypower/mnemo/internal/store"
)

// petWords map common species terms onto the pet entity type during
// neighbor matching, so "dog" finds the pet Max.
var petWords = map[string]bool{
	"dog": true, "cat": true, "pet": true, "bird": true, "fish": true,
	"hamster": true, "rabbit": true, "parrot": true, "turtle": true,
	"horse": true,
}

// RelateResult is the outcome of a multi-hop relational query.
type RelateResult struct {
	Found    bool           `json:"found"`
	Entity   *store.Entity  `json:"entity,omitempty"`
	Path     []string       `json:"path,omitempty"`
	Memories []store.Memory `json:"memories,omitempty"`

	// Error names the failing term when the query cannot resolve or
	// traverse; no partial result is fabricated.
	Error string `json:"error,omitempty"`
}

// RelateQuery traverses the graph along an ordered list of references:
// the first resolves via aliases then names, each subsequent term must
// match a direct neighbor by type or name, or the query fails with the
// term that broke the chain.
func (g *Graph) RelateQuery(queryParts []string) *RelateResult {
	if len(queryParts) == 0 {
		return &RelateResult{Error: "no query parts provided"}
	}

	currentID, ok := g.resolveReference(queryParts[0])
	if !ok {
		return &RelateResult{Error: fmt.Sprintf("unknown reference: %q", queryParts[0])}
	}
	path := []string{g.entities[currentID].Name}

	for _, part := range queryParts[1:] {
		nextID, ok := g.findConnectedMatch(currentID, part)
		if !ok {
			return &RelateResult{
				Error: fmt.Sprintf("no %q connected to %q", part, path[len(path)-1]),
				Path:  path,
			}
		}
		currentID = nextID
		path = append(path, g.entities[currentID].Name)
	}

	terminal := g.entities[currentID]
	return &RelateResult{Found: true, Entity: &terminal, Path: path}
}

// resolveReference maps a reference string to an entity id: alias
// table first, then direct normalized-name match.
func (g *Graph) resolveReference(reference string) (int64, bool) {
	ref := strings.ToLower(strings.TrimSpace(reference))
	if id, ok := g.aliases[ref]; ok {
		if _, exists := g.entities[id]; exists {
			return id, true
		}
	}
	if id, ok := g.names[ref]; ok {
		return id, true
	}
	return 0, false
}

// findConnectedMatch searches the entity's direct neighbors for one
// matching the term: pet words match the pet type, otherwise type
// match, then exact or substring name match.
func (g *Graph) findConnectedMatch(entityID int64, term string) (int64, bool) {
	t := strings.ToLower(strings.TrimSpace(term))

	for _, id := range g.adjacent[entityID] {
		e, ok := g.entities[id]
		if !ok {
			continue
		}
		name := strings.ToLower(e.Name)

		if petWords[t] && e.EntityType == "pet" {
			return id, true
		}
		if t == e.EntityType {
			return id, true
		}
		if t == name || strings.Contains(name, t) {
			return id, true
		}
	}
	return 0, false
}
