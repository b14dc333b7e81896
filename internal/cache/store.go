package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/memcore"
)

// Store is the embedded cache: one LRU segment per entity type, each with
// its own enable flag, size bound, and base TTL.
type Store struct {
	episodes     *segment[*memcore.Episode]
	patterns     *segment[*memcore.Pattern]
	heuristics   *segment[*memcore.Heuristic]
	queryResults *segment[[]byte]
	embeddings   *segment[[]float32]
}

// New builds a Store from cache configuration. If reg is non-nil, every
// segment's hit/miss/eviction counters are registered with it.
func New(cfg config.CacheConfig, reg prometheus.Registerer) (*Store, error) {
	episodes, err := newSegment[*memcore.Episode]("episodes", cfg.Episodes, reg)
	if err != nil {
		return nil, err
	}
	patterns, err := newSegment[*memcore.Pattern]("patterns", cfg.Patterns, reg)
	if err != nil {
		return nil, err
	}
	heuristics, err := newSegment[*memcore.Heuristic]("heuristics", cfg.Heuristics, reg)
	if err != nil {
		return nil, err
	}
	queryResults, err := newSegment[[]byte]("query_results", cfg.QueryResults, reg)
	if err != nil {
		return nil, err
	}
	embeddings, err := newSegment[[]float32]("embeddings", cfg.Embeddings, reg)
	if err != nil {
		return nil, err
	}
	return &Store{
		episodes:     episodes,
		patterns:     patterns,
		heuristics:   heuristics,
		queryResults: queryResults,
		embeddings:   embeddings,
	}, nil
}

func (s *Store) GetEpisode(id string) (*memcore.Episode, bool) { return s.episodes.Get(id) }
func (s *Store) SetEpisode(e *memcore.Episode)                 { s.episodes.Set(e.ID, e) }
func (s *Store) InvalidateEpisode(id string)                   { s.episodes.Invalidate(id) }

func (s *Store) GetPattern(id string) (*memcore.Pattern, bool) { return s.patterns.Get(id) }
func (s *Store) SetPattern(p *memcore.Pattern)                 { s.patterns.Set(p.ID, p) }
func (s *Store) InvalidatePattern(id string)                   { s.patterns.Invalidate(id) }

func (s *Store) GetHeuristic(id string) (*memcore.Heuristic, bool) { return s.heuristics.Get(id) }
func (s *Store) SetHeuristic(h *memcore.Heuristic)                 { s.heuristics.Set(h.ID, h) }

func (s *Store) GetEmbedding(key string) ([]float32, bool) { return s.embeddings.Get(key) }
func (s *Store) SetEmbedding(key string, vec []float32)    { s.embeddings.Set(key, vec) }

// GetQueryResult and SetQueryResult cache arbitrary serialized query
// results (the caller owns the encoding) keyed by a QueryDescriptor.
func (s *Store) GetQueryResult(d QueryDescriptor) ([]byte, bool) {
	return s.queryResults.Get(d.Key())
}

func (s *Store) SetQueryResult(d QueryDescriptor, payload []byte) {
	s.queryResults.Set(d.Key(), payload)
}

// InvalidateQueryResult removes the cached result for exactly one
// descriptor. The underlying LRU doesn't support prefix scans, so there is
// no per-domain or per-tag invalidation; writes that could change a result
// set call PurgeQueryResults instead, which clears the whole segment.
func (s *Store) InvalidateQueryResult(d QueryDescriptor) {
	s.queryResults.Invalidate(d.Key())
}

func (s *Store) PurgeQueryResults() { s.queryResults.Purge() }

// Snapshots returns a stats snapshot per entity segment.
func (s *Store) Snapshots() []Snapshot {
	return []Snapshot{
		s.episodes.Snapshot(),
		s.patterns.Snapshot(),
		s.heuristics.Snapshot(),
		s.queryResults.Snapshot(),
		s.embeddings.Snapshot(),
	}
}
