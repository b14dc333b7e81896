package orchestrator

import (
	"context"

	"github.com/d-o-hub/memcore/internal/audit"
	"github.com/d-o-hub/memcore/internal/memcore"
	"github.com/d-o-hub/memcore/internal/relationship"
)

// AddRelationship validates and persists a typed edge between two
// episodes, then updates the in-memory graph. storage.Store satisfies
// both relationship.Persister and relationship.EpisodeChecker directly,
// so no adapter type is needed here.
func (o *Orchestrator) AddRelationship(ctx context.Context, r *memcore.EpisodeRelationship) error {
	if err := o.graph.Add(ctx, o.store, o.store, r); err != nil {
		return err
	}
	o.audit.Record(audit.KindRelationshipAdded, map[string]interface{}{
		"relationship_id": r.ID,
		"from":             r.FromEpisodeID,
		"to":               r.ToEpisodeID,
		"type":             string(r.Type),
	})
	return nil
}

// RemoveRelationship deletes a relationship edge by ID.
func (o *Orchestrator) RemoveRelationship(ctx context.Context, id string) error {
	if err := o.graph.Remove(ctx, o.store, id); err != nil {
		return err
	}
	o.audit.Record(audit.KindRelationshipRemoved, map[string]interface{}{
		"relationship_id": id,
	})
	return nil
}

// GetRelated returns the edges touching episodeID in the requested
// direction and type.
func (o *Orchestrator) GetRelated(episodeID string, dir memcore.Direction, typ memcore.RelationshipType) []*memcore.EpisodeRelationship {
	return o.graph.GetForEpisode(episodeID, dir, typ)
}

// BuildGraph returns the depth-bounded subgraph rooted at episodeID.
func (o *Orchestrator) BuildGraph(episodeID string, maxDepth int) *relationship.Subgraph {
	return o.graph.BuildGraph(episodeID, maxDepth)
}

// CascadeDeleteRelationships removes every relationship touching
// episodeID, used when an episode itself is deleted or evicted.
func (o *Orchestrator) CascadeDeleteRelationships(ctx context.Context, episodeID string) []error {
	return o.graph.CascadeDelete(ctx, o.store, episodeID)
}
