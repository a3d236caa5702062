package graph

import (
	"sort"

	"github.com/lazypower/mnemo/internal/store"
)

// Community is a cluster of connected entities, used for higher-level
// consolidation. Detection runs on demand and is never a correctness
// dependency for recall or relational queries.
type Community struct {
	Entities []store.Entity `json:"entities"`
	Size     int            `json:"size"`
}

// Communities groups the graph's entities into connected components
// over relationship edges, largest first. Isolated entities form
// single-member communities.
func (g *Graph) Communities() []Community {
	parent := make(map[int64]int64, len(g.entities))
	for id := range g.entities {
		parent[id] = id
	}

	var find func(int64) int64
	find = func(x int64) int64 {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int64) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, r := range g.edges {
		if _, ok := g.entities[r.SourceID]; !ok {
			continue
		}
		if _, ok := g.entities[r.TargetID]; !ok {
			continue
		}
		union(r.SourceID, r.TargetID)
	}

	groups := make(map[int64][]store.Entity)
	for id, e := range g.entities {
		root := find(id)
		groups[root] = append(groups[root], e)
	}

	communities := make([]Community, 0, len(groups))
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			if members[i].MentionCount != members[j].MentionCount {
				return members[i].MentionCount > members[j].MentionCount
			}
			return members[i].Name < members[j].Name
		})
		communities = append(communities, Community{Entities: members, Size: len(members)})
	}
	sort.Slice(communities, func(i, j int) bool {
		if communities[i].Size != communities[j].Size {
			return communities[i].Size > communities[j].Size
		}
		return communities[i].Entities[0].Name < communities[j].Entities[0].Name
	})
	return communities
}
