// Package relationship maintains the in-memory directed graph of typed
// edges between episodes: insertion validation (endpoint existence,
// self-loop rejection, uniqueness, acyclicity for the types that require
// it), traversal (BFS subgraph construction, dependency queries), and
// cascade delete when an episode is removed. The durable table is the
// system of record; this graph is rebuilt from it at startup via Load and
// kept in sync thereafter so every query here is an in-memory lookup.
package relationship

import (
	"context"
	"sync"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// Persister is the durable-write surface the graph calls through after an
// in-memory validation passes, so a rejected edge never touches storage.
type Persister interface {
	InsertRelationship(ctx context.Context, r *memcore.EpisodeRelationship) error
	DeleteRelationship(ctx context.Context, id string) error
}

// EpisodeChecker confirms an episode ID is known, the endpoint-existence
// check Add requires before accepting an edge.
type EpisodeChecker interface {
	GetEpisode(ctx context.Context, id string) (*memcore.Episode, error)
}

type edgeKey struct {
	from, to string
	typ      memcore.RelationshipType
}

// Graph is the in-memory directed multigraph over episode IDs. Safe for
// concurrent use.
type Graph struct {
	mu       sync.RWMutex
	byID     map[string]*memcore.EpisodeRelationship
	byTriple map[edgeKey]string
	outgoing map[string][]*memcore.EpisodeRelationship
	incoming map[string][]*memcore.EpisodeRelationship
}

// NewGraph builds an empty graph.
func NewGraph() *Graph {
	return &Graph{
		byID:     map[string]*memcore.EpisodeRelationship{},
		byTriple: map[edgeKey]string{},
		outgoing: map[string][]*memcore.EpisodeRelationship{},
		incoming: map[string][]*memcore.EpisodeRelationship{},
	}
}

// Load rebuilds the graph from a durable snapshot (e.g. ListAllRelationships
// at startup). Edges are trusted as already-validated; Load does not
// re-check acyclicity or endpoint existence.
func (g *Graph) Load(edges []*memcore.EpisodeRelationship) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range edges {
		g.insertLocked(e)
	}
}

func (g *Graph) insertLocked(r *memcore.EpisodeRelationship) {
	g.byID[r.ID] = r
	g.byTriple[edgeKey{r.FromEpisodeID, r.ToEpisodeID, r.Type}] = r.ID
	g.outgoing[r.FromEpisodeID] = append(g.outgoing[r.FromEpisodeID], r)
	g.incoming[r.ToEpisodeID] = append(g.incoming[r.ToEpisodeID], r)
}

func (g *Graph) removeLocked(id string) {
	r, ok := g.byID[id]
	if !ok {
		return
	}
	delete(g.byID, id)
	delete(g.byTriple, edgeKey{r.FromEpisodeID, r.ToEpisodeID, r.Type})
	g.outgoing[r.FromEpisodeID] = removeEdge(g.outgoing[r.FromEpisodeID], id)
	g.incoming[r.ToEpisodeID] = removeEdge(g.incoming[r.ToEpisodeID], id)
}

func removeEdge(edges []*memcore.EpisodeRelationship, id string) []*memcore.EpisodeRelationship {
	for i, e := range edges {
		if e.ID == id {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

// Exists reports whether an edge of the given type already connects from
// to to.
func (g *Graph) Exists(from, to string, typ memcore.RelationshipType) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.byTriple[edgeKey{from, to, typ}]
	return ok
}

// GetForEpisode returns edges touching episodeID in the requested
// direction, optionally filtered by type (empty type matches any).
func (g *Graph) GetForEpisode(episodeID string, dir memcore.Direction, typ memcore.RelationshipType) []*memcore.EpisodeRelationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*memcore.EpisodeRelationship
	if dir == memcore.DirectionOutgoing || dir == memcore.DirectionBoth || dir == "" {
		out = append(out, filterByType(g.outgoing[episodeID], typ)...)
	}
	if dir == memcore.DirectionIncoming || dir == memcore.DirectionBoth || dir == "" {
		out = append(out, filterByType(g.incoming[episodeID], typ)...)
	}
	return out
}

func filterByType(edges []*memcore.EpisodeRelationship, typ memcore.RelationshipType) []*memcore.EpisodeRelationship {
	if typ == "" {
		return append([]*memcore.EpisodeRelationship(nil), edges...)
	}
	var out []*memcore.EpisodeRelationship
	for _, e := range edges {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// FindRelated answers a RelationshipFilter query. An empty EpisodeID scans
// the whole edge set filtered by type; a set EpisodeID delegates to
// GetForEpisode.
func (g *Graph) FindRelated(filter memcore.RelationshipFilter) []*memcore.EpisodeRelationship {
	if filter.EpisodeID != "" {
		return g.GetForEpisode(filter.EpisodeID, filter.Direction, filter.Type)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*memcore.EpisodeRelationship
	for _, e := range g.byID {
		if filter.Type == "" || e.Type == filter.Type {
			out = append(out, e)
		}
	}
	return out
}

// GetDependencies returns the episode IDs that episodeID directly depends
// on (outgoing depends_on edges).
func (g *Graph) GetDependencies(episodeID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, e := range g.outgoing[episodeID] {
		if e.Type == memcore.RelationshipDependsOn {
			out = append(out, e.ToEpisodeID)
		}
	}
	return out
}

// GetDependents returns the episode IDs that directly depend on episodeID
// (incoming depends_on edges).
func (g *Graph) GetDependents(episodeID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, e := range g.incoming[episodeID] {
		if e.Type == memcore.RelationshipDependsOn {
			out = append(out, e.FromEpisodeID)
		}
	}
	return out
}
