package orchestrator

import (
	"context"

	"github.com/d-o-hub/memcore/internal/memcore"
	"github.com/d-o-hub/memcore/internal/retrieval"
)

// Query runs spatiotemporal retrieval over the in-memory index and
// returns the matching episode IDs and their scores. Callers that need
// full episode bodies look them up with GetEpisode, which is cache-first
// and therefore cheap for a result set that was just ranked.
func (o *Orchestrator) Query(q retrieval.Query) []retrieval.Result {
	return o.retrieve.Query(q)
}

// QueryEpisodes runs Query and resolves each result to its full episode,
// skipping any ID whose episode can no longer be fetched (e.g. evicted
// between the index hit and this lookup) rather than failing the whole
// query.
func (o *Orchestrator) QueryEpisodes(ctx context.Context, q retrieval.Query) ([]*memcore.Episode, error) {
	results := o.Query(q)
	episodes := make([]*memcore.Episode, 0, len(results))
	for _, r := range results {
		e, err := o.store.GetEpisode(ctx, r.EpisodeID)
		if err != nil {
			continue
		}
		episodes = append(episodes, e)
	}
	return episodes, nil
}
