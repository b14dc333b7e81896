// Package cache implements the embedded, hot-path cache sitting in front
// of the durable store: per-entity-type LRU segments with adaptive TTL,
// a query-result cache keyed by a structured query descriptor, and
// prometheus-exported hit/miss/eviction stats.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/d-o-hub/memcore/internal/config"
)

// entry wraps a cached value with the bookkeeping the adaptive-TTL
// formula and the capacity manager's recency scoring both need.
type entry[T any] struct {
	value       T
	expiresAt   time.Time
	createdAt   time.Time
	accessCount int64
	lastAccess  time.Time
}

func (e *entry[T]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// adaptiveTTL implements "base_ttl × (1 + f(access_score))" bounded to
// ≤ 2.5× base, where access_score blends a saturating access-count ratio,
// count/(count+10), with a recency ratio over the last minute.
func adaptiveTTL(base time.Duration, accessCount int64, lastAccess, now time.Time) time.Duration {
	if base <= 0 {
		return 0
	}
	countScore := float64(accessCount) / (float64(accessCount) + 10.0) // saturates toward 1 as accesses grow
	recency := 1.0
	if age := now.Sub(lastAccess); age > time.Minute {
		recency = 0.0
	} else if age > 0 {
		recency = 1.0 - float64(age)/float64(time.Minute)
	}
	accessScore := (countScore + recency) / 2.0
	multiplier := 1.0 + accessScore*1.5 // f(access_score) in [0, 1.5]
	if multiplier > 2.5 {
		multiplier = 2.5
	}
	return time.Duration(float64(base) * multiplier)
}

// Stats tracks hit/miss/eviction counters for one entity segment, both
// in-process (for tests and quick introspection) and via prometheus.
type Stats struct {
	entity    string
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	hitsMetric      prometheus.Counter
	missesMetric    prometheus.Counter
	evictionsMetric prometheus.Counter
}

func newStats(entity string, reg prometheus.Registerer) *Stats {
	s := &Stats{
		entity: entity,
		hitsMetric: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "memcore_cache_hits_total",
			Help:        "Cache hits by entity segment.",
			ConstLabels: prometheus.Labels{"entity": entity},
		}),
		missesMetric: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "memcore_cache_misses_total",
			Help:        "Cache misses by entity segment.",
			ConstLabels: prometheus.Labels{"entity": entity},
		}),
		evictionsMetric: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "memcore_cache_evictions_total",
			Help:        "Cache evictions by entity segment.",
			ConstLabels: prometheus.Labels{"entity": entity},
		}),
	}
	if reg != nil {
		reg.MustRegister(s.hitsMetric, s.missesMetric, s.evictionsMetric)
	}
	return s
}

func (s *Stats) recordHit()      { s.hits.Add(1); s.hitsMetric.Inc() }
func (s *Stats) recordMiss()     { s.misses.Add(1); s.missesMetric.Inc() }
func (s *Stats) recordEviction() { s.evictions.Add(1); s.evictionsMetric.Inc() }

// Snapshot is a point-in-time read of a segment's counters.
type Snapshot struct {
	Entity    string
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

func (s *Stats) snapshot(size int) Snapshot {
	return Snapshot{
		Entity:    s.entity,
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
		Size:      size,
	}
}

// segment is one entity type's LRU cache, generic over the stored value.
type segment[T any] struct {
	mu      sync.Mutex
	lru     *lru.Cache[string, *entry[T]]
	cfg     config.CacheEntityConfig
	stats   *Stats
	entName string
}

func newSegment[T any](entName string, cfg config.CacheEntityConfig, reg prometheus.Registerer) (*segment[T], error) {
	size := cfg.MaxSize
	if size <= 0 {
		size = 1
	}
	s := &segment[T]{cfg: cfg, stats: newStats(entName, reg), entName: entName}
	c, err := lru.NewWithEvict[string, *entry[T]](size, func(_ string, _ *entry[T]) {
		s.stats.recordEviction()
	})
	if err != nil {
		return nil, err
	}
	s.lru = c
	return s, nil
}

// Get returns the cached value for key if present and unexpired, updating
// its access bookkeeping for the adaptive-TTL formula.
func (s *segment[T]) Get(key string) (T, bool) {
	var zero T
	if !s.cfg.Enabled {
		return zero, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(key)
	if !ok {
		s.stats.recordMiss()
		return zero, false
	}
	now := time.Now()
	if e.expired(now) {
		s.lru.Remove(key)
		s.stats.recordMiss()
		return zero, false
	}
	e.accessCount++
	e.lastAccess = now
	s.stats.recordHit()
	return e.value, true
}

// Set stores value under key with an adaptive TTL derived from the
// configured base TTL and the key's prior access history, if any.
func (s *segment[T]) Set(key string, value T) {
	if !s.cfg.Enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var accessCount int64
	lastAccess := now
	if prev, ok := s.lru.Peek(key); ok {
		accessCount = prev.accessCount
		lastAccess = prev.lastAccess
	}
	ttl := adaptiveTTL(s.cfg.BaseTTL, accessCount, lastAccess, now)
	s.lru.Add(key, &entry[T]{
		value:       value,
		createdAt:   now,
		expiresAt:   now.Add(ttl),
		accessCount: accessCount,
		lastAccess:  lastAccess,
	})
}

// Invalidate removes key from the segment if present.
func (s *segment[T]) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(key)
}

// Purge clears the segment entirely.
func (s *segment[T]) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Purge()
}

func (s *segment[T]) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.snapshot(s.lru.Len())
}
