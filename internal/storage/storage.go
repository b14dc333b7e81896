// Package storage composes the embedded cache, connection pool, and
// durable store into the single read/write interface the orchestrator
// and every higher-level package (capacity, pattern, retrieval,
// relationship) consumes.
package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/d-o-hub/memcore/internal/cache"
	"github.com/d-o-hub/memcore/internal/durable"
	"github.com/d-o-hub/memcore/internal/memcore"
	"github.com/d-o-hub/memcore/internal/pool"
)

// Store is the hybrid cache-first/write-through storage wrapper.
type Store struct {
	cache *cache.Store
	db    *durable.DB
	pool  *pool.Pool
}

// New composes a Store from its three layers. pool may be nil, in which
// case durable operations run directly against db without a pool-level
// acquire/release (useful for tests and for the embedded-SQLite default
// deployment where a pool adds little beyond bookkeeping).
func New(c *cache.Store, db *durable.DB, p *pool.Pool) *Store {
	return &Store{cache: c, db: db, pool: p}
}

// withConn runs fn after acquiring a pool slot, if a pool is configured;
// otherwise it runs fn directly. Either way, a retryable failure to
// acquire surfaces as the same *memcore.Error a pool-less caller would
// get from the durable store itself.
func (s *Store) withConn(ctx context.Context, fn func() error) error {
	if s.pool == nil {
		return fn()
	}
	h, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn()
}

// GetEpisode is the cache-first read path: cache hit returns immediately;
// a miss queries the durable store, populates the cache with an adaptive
// TTL, and returns.
func (s *Store) GetEpisode(ctx context.Context, id string) (*memcore.Episode, error) {
	if e, ok := s.cache.GetEpisode(id); ok {
		return e, nil
	}

	var e *memcore.Episode
	err := s.withConn(ctx, func() error {
		var err error
		e, err = s.db.GetEpisode(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	_ = s.db.TouchAccess(id, time.Now())
	s.cache.SetEpisode(e)
	return e, nil
}

// PutEpisode is the write-through path: durable write first, cache
// populated only on success.
func (s *Store) PutEpisode(ctx context.Context, e *memcore.Episode) error {
	if err := s.withConn(ctx, func() error { return s.db.InsertEpisode(e) }); err != nil {
		return err
	}
	s.cache.SetEpisode(e)
	s.cache.PurgeQueryResults()
	return nil
}

// PutEpisodesBatch writes a batch atomically (all-or-nothing) and only
// updates the cache in a single post-commit pass on success.
func (s *Store) PutEpisodesBatch(ctx context.Context, episodes []*memcore.Episode) error {
	if err := s.withConn(ctx, func() error { return s.db.InsertBatch(episodes) }); err != nil {
		return err
	}
	for _, e := range episodes {
		s.cache.SetEpisode(e)
	}
	s.cache.PurgeQueryResults()
	return nil
}

// CompleteEpisode writes completion fields durably, then refreshes (or
// invalidates, on failure) the cached copy.
func (s *Store) CompleteEpisode(ctx context.Context, e *memcore.Episode) error {
	if err := s.withConn(ctx, func() error { return s.db.CompleteEpisode(e) }); err != nil {
		return err
	}
	full, err := s.db.GetEpisode(e.ID)
	if err != nil {
		s.cache.InvalidateEpisode(e.ID)
		s.cache.PurgeQueryResults()
		return nil
	}
	s.cache.SetEpisode(full)
	s.cache.PurgeQueryResults()
	return nil
}

// AppendStep appends a step durably and invalidates the cached episode
// (rather than patching it in place, to avoid caching a stale step list
// the caller's copy and the durable truth could otherwise disagree on).
// Query results are purged too: a cached ListEpisodes payload embeds full
// episode snapshots, so it would otherwise keep serving this episode's
// pre-append step list.
func (s *Store) AppendStep(ctx context.Context, episodeID string, step memcore.ExecutionStep) error {
	if err := s.withConn(ctx, func() error { return s.db.AppendStep(episodeID, step) }); err != nil {
		return err
	}
	s.cache.InvalidateEpisode(episodeID)
	s.cache.PurgeQueryResults()
	return nil
}

// queryDescriptorForFilter encodes an EpisodeFilter into the query-result
// cache's key space. Every field that changes the SQL ListEpisodes builds
// must appear here, or two different filters would collide on one cache
// entry.
func queryDescriptorForFilter(filter memcore.EpisodeFilter) cache.QueryDescriptor {
	return cache.NewQueryDescriptor(cache.QueryEpisodesByFilter, map[string]string{
		"domain":           filter.Domain,
		"task_type":        string(filter.TaskType),
		"language":         filter.Language,
		"tag":              filter.Tag,
		"since":            filter.Since.Format(time.RFC3339Nano),
		"until":            filter.Until.Format(time.RFC3339Nano),
		"include_archived": strconv.FormatBool(filter.IncludeArchived),
		"limit":            strconv.Itoa(filter.Limit),
		"offset":           strconv.Itoa(filter.Offset),
	})
}

// ListEpisodes runs filter against the query-result cache first, falling
// back to the durable store and populating the cache on a miss. Any write
// that could change a filter's result set (PutEpisode, CompleteEpisode's
// caller path, ArchiveEpisodeWithSummary, relationship writes) purges the
// whole query-results segment rather than tracking which descriptors it
// invalidates individually.
func (s *Store) ListEpisodes(ctx context.Context, filter memcore.EpisodeFilter) ([]*memcore.Episode, error) {
	desc := queryDescriptorForFilter(filter)
	if cached, ok := s.cache.GetQueryResult(desc); ok {
		var episodes []*memcore.Episode
		if err := json.Unmarshal(cached, &episodes); err == nil {
			return episodes, nil
		}
		s.cache.InvalidateQueryResult(desc)
	}

	var episodes []*memcore.Episode
	err := s.withConn(ctx, func() error {
		var err error
		episodes, err = s.db.ListEpisodes(filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(episodes); err == nil {
		s.cache.SetQueryResult(desc, payload)
	}
	return episodes, nil
}

// ArchiveEpisodeWithSummary is the capacity manager's atomic evict step;
// the cache entry is dropped rather than kept stale.
func (s *Store) ArchiveEpisodeWithSummary(ctx context.Context, episodeID string, at time.Time, summary *memcore.EpisodeSummary) error {
	if err := s.withConn(ctx, func() error {
		return s.db.ArchiveEpisodeWithSummary(episodeID, at, summary)
	}); err != nil {
		return err
	}
	s.cache.InvalidateEpisode(episodeID)
	s.cache.PurgeQueryResults()
	return nil
}

// CountActiveEpisodes reports the capacity manager's working set size.
func (s *Store) CountActiveEpisodes(ctx context.Context) (int, error) {
	var count int
	err := s.withConn(ctx, func() error {
		var err error
		count, err = s.db.CountActive()
		return err
	})
	return count, err
}

// GetPattern and UpsertPattern follow the same cache-first /
// write-through shape as episodes, scoped to the patterns segment.
func (s *Store) GetPattern(ctx context.Context, id string) (*memcore.Pattern, error) {
	if p, ok := s.cache.GetPattern(id); ok {
		return p, nil
	}
	var p *memcore.Pattern
	err := s.withConn(ctx, func() error {
		var err error
		p, err = s.db.GetPattern(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.SetPattern(p)
	return p, nil
}

func (s *Store) UpsertPattern(ctx context.Context, p *memcore.Pattern) error {
	if err := s.withConn(ctx, func() error { return s.db.UpsertPattern(p) }); err != nil {
		return err
	}
	s.cache.SetPattern(p)
	return nil
}

func (s *Store) ListPatterns(ctx context.Context, kind memcore.PatternKind) ([]*memcore.Pattern, error) {
	var patterns []*memcore.Pattern
	err := s.withConn(ctx, func() error {
		var err error
		patterns, err = s.db.ListPatterns(kind)
		return err
	})
	return patterns, err
}

func (s *Store) UpsertHeuristic(ctx context.Context, h *memcore.Heuristic) error {
	if err := s.withConn(ctx, func() error { return s.db.UpsertHeuristic(h) }); err != nil {
		return err
	}
	s.cache.SetHeuristic(h)
	return nil
}

func (s *Store) ListHeuristics(ctx context.Context) ([]*memcore.Heuristic, error) {
	var out []*memcore.Heuristic
	err := s.withConn(ctx, func() error {
		var err error
		out, err = s.db.ListHeuristics()
		return err
	})
	return out, err
}

func (s *Store) InsertRelationship(ctx context.Context, r *memcore.EpisodeRelationship) error {
	if err := s.withConn(ctx, func() error { return s.db.InsertRelationship(r) }); err != nil {
		return err
	}
	s.cache.PurgeQueryResults()
	return nil
}

func (s *Store) DeleteRelationship(ctx context.Context, id string) error {
	if err := s.withConn(ctx, func() error { return s.db.DeleteRelationship(id) }); err != nil {
		return err
	}
	s.cache.PurgeQueryResults()
	return nil
}

func (s *Store) ListAllRelationships(ctx context.Context) ([]*memcore.EpisodeRelationship, error) {
	var out []*memcore.EpisodeRelationship
	err := s.withConn(ctx, func() error {
		var err error
		out, err = s.db.ListAllRelationships()
		return err
	})
	return out, err
}

func (s *Store) UpsertEmbedding(ctx context.Context, entityKind, entityID string, vec []float32) error {
	if err := s.withConn(ctx, func() error { return s.db.UpsertEmbedding(entityKind, entityID, vec) }); err != nil {
		return err
	}
	s.cache.SetEmbedding(entityKind+":"+entityID, vec)
	return nil
}

func (s *Store) GetEmbedding(ctx context.Context, entityKind, entityID string) ([]float32, error) {
	key := entityKind + ":" + entityID
	if v, ok := s.cache.GetEmbedding(key); ok {
		return v, nil
	}
	var v []float32
	err := s.withConn(ctx, func() error {
		var err error
		v, err = s.db.GetEmbedding(entityKind, entityID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.SetEmbedding(key, v)
	return v, nil
}

func (s *Store) ListEmbeddings(ctx context.Context, entityKind string) (map[string][]float32, error) {
	var out map[string][]float32
	err := s.withConn(ctx, func() error {
		var err error
		out, err = s.db.ListEmbeddings(entityKind)
		return err
	})
	return out, err
}

// CacheSnapshots exposes the cache's per-entity stats for observability.
func (s *Store) CacheSnapshots() []cache.Snapshot { return s.cache.Snapshots() }
