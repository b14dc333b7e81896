package relationship

import (
	"context"

	"github.com/google/uuid"

	"github.com/d-o-hub/memcore/internal/memcore"
)

const opAdd = "relationship.Add"

// Add validates a new edge — both endpoints exist, no self-loop, no
// duplicate (from, to, type), and no cycle introduced in an acyclic
// type's same-type subgraph — then persists it and updates the in-memory
// graph. Validation failures never reach the persister.
func (g *Graph) Add(ctx context.Context, checker EpisodeChecker, persister Persister, r *memcore.EpisodeRelationship) error {
	if r.FromEpisodeID == r.ToEpisodeID {
		return memcore.NewValidation(opAdd, "to_episode_id", nil)
	}
	if _, err := checker.GetEpisode(ctx, r.FromEpisodeID); err != nil {
		return memcore.NewValidation(opAdd, "from_episode_id", err)
	}
	if _, err := checker.GetEpisode(ctx, r.ToEpisodeID); err != nil {
		return memcore.NewValidation(opAdd, "to_episode_id", err)
	}

	g.mu.Lock()
	if _, dup := g.byTriple[edgeKey{r.FromEpisodeID, r.ToEpisodeID, r.Type}]; dup {
		g.mu.Unlock()
		return memcore.NewValidation(opAdd, "type", nil)
	}
	if memcore.AcyclicTypes[r.Type] && g.reachableLocked(r.ToEpisodeID, r.FromEpisodeID, r.Type) {
		g.mu.Unlock()
		return memcore.NewValidation(opAdd, "cycle", nil)
	}
	g.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := persister.InsertRelationship(ctx, r); err != nil {
		return err
	}

	g.mu.Lock()
	g.insertLocked(r)
	g.mu.Unlock()
	return nil
}

// reachableLocked reports whether to is reachable from start by following
// outgoing edges of the given type only (the same-type subgraph an
// acyclic type must keep a DAG). Callers must hold g.mu.
func (g *Graph) reachableLocked(start, target string, typ memcore.RelationshipType) bool {
	if start == target {
		return true
	}
	visited := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.outgoing[cur] {
			if e.Type != typ {
				continue
			}
			if e.ToEpisodeID == target {
				return true
			}
			if !visited[e.ToEpisodeID] {
				visited[e.ToEpisodeID] = true
				stack = append(stack, e.ToEpisodeID)
			}
		}
	}
	return false
}

// Remove deletes an edge by ID, persisting first so the graph never
// drifts ahead of durable state.
func (g *Graph) Remove(ctx context.Context, persister Persister, id string) error {
	if err := persister.DeleteRelationship(ctx, id); err != nil {
		return err
	}
	g.mu.Lock()
	g.removeLocked(id)
	g.mu.Unlock()
	return nil
}

// CascadeDelete removes every edge touching episodeID, in either
// direction, called when the episode itself is deleted or evicted.
// Per-edge failures are collected but don't stop the sweep; the graph
// only drops edges that were durably deleted.
func (g *Graph) CascadeDelete(ctx context.Context, persister Persister, episodeID string) []error {
	g.mu.RLock()
	touched := append([]*memcore.EpisodeRelationship(nil), g.outgoing[episodeID]...)
	touched = append(touched, g.incoming[episodeID]...)
	g.mu.RUnlock()

	var errs []error
	for _, e := range touched {
		if err := g.Remove(ctx, persister, e.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
