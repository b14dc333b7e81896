// Package retrieval implements the spatiotemporal hierarchical index
// (domain → task_type → temporal_bucket → episode) and Maximal Marginal
// Relevance-based ranking described by the spec's retrieval component.
package retrieval

import (
	"sort"
	"sync"
	"time"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// Entry is the lightweight, index-resident projection of an episode —
// just enough to score and rank without round-tripping to the durable
// store on every query. The caller fetches full episodes for the final
// result set.
type Entry struct {
	EpisodeID string
	Domain    string
	TaskType  memcore.TaskType
	Language  string
	Tags      []string
	Embedding []float32
	StartTime time.Time
}

type subtreeKey struct {
	domain   string
	taskType memcore.TaskType
}

type location struct {
	subtree subtreeKey
	bucket  TemporalBucket
}

type hitStats struct {
	hits  int64
	total int64
}

// Index is the in-memory hierarchical index. It is safe for concurrent
// use.
type Index struct {
	mu   sync.RWMutex
	tree map[subtreeKey]map[TemporalBucket][]*Entry
	loc  map[string]location
	hits map[subtreeKey]*hitStats
}

// NewIndex builds an empty index.
func NewIndex() *Index {
	return &Index{
		tree: map[subtreeKey]map[TemporalBucket][]*Entry{},
		loc:  map[string]location{},
		hits: map[subtreeKey]*hitStats{},
	}
}

// Insert adds or replaces an entry in the index, computing its bucket
// relative to now. Insert is meant to run in the same logical operation
// as the durable write, post-commit.
func (idx *Index) Insert(e *Entry, now time.Time) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(e.EpisodeID)

	key := subtreeKey{domain: e.Domain, taskType: e.TaskType}
	bucket := bucketFor(now, e.StartTime)

	if idx.tree[key] == nil {
		idx.tree[key] = map[TemporalBucket][]*Entry{}
	}
	idx.tree[key][bucket] = append(idx.tree[key][bucket], e)
	idx.loc[e.EpisodeID] = location{subtree: key, bucket: bucket}
	if idx.hits[key] == nil {
		idx.hits[key] = &hitStats{}
	}
}

// Remove deletes an entry's index presence (used on episode eviction).
func (idx *Index) Remove(episodeID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(episodeID)
}

func (idx *Index) removeLocked(episodeID string) {
	loc, ok := idx.loc[episodeID]
	if !ok {
		return
	}
	bucket := idx.tree[loc.subtree][loc.bucket]
	for i, e := range bucket {
		if e.EpisodeID == episodeID {
			idx.tree[loc.subtree][loc.bucket] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	delete(idx.loc, episodeID)
}

// Entries returns every entry under the given subtree across all
// temporal buckets. An empty domain or taskType matches any value for
// that level.
func (idx *Index) Entries(domain string, taskType memcore.TaskType) []*Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []*Entry
	for key, buckets := range idx.tree {
		if domain != "" && key.domain != domain {
			continue
		}
		if taskType != "" && key.taskType != taskType {
			continue
		}
		for _, bucket := range allBuckets {
			out = append(out, buckets[bucket]...)
		}
	}
	return out
}

// RankedSubtrees returns up to max (domain, task_type) subtrees ordered
// by historical hit rate, used when a query doesn't pin a domain or
// task type explicitly.
func (idx *Index) RankedSubtrees(max int) []subtreeKey {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([]subtreeKey, 0, len(idx.hits))
	for k := range idx.hits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return hitRate(idx.hits[keys[i]]) > hitRate(idx.hits[keys[j]])
	})
	if max > 0 && max < len(keys) {
		keys = keys[:max]
	}
	return keys
}

func hitRate(s *hitStats) float64 {
	if s == nil || s.total == 0 {
		return 0
	}
	return float64(s.hits) / float64(s.total)
}

// RecordQuery updates hit-rate bookkeeping for the subtrees a query
// touched; hit marks whether the query returned at least one result from
// that subtree.
func (idx *Index) RecordQuery(domain string, taskType memcore.TaskType, hit bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	key := subtreeKey{domain: domain, taskType: taskType}
	if idx.hits[key] == nil {
		idx.hits[key] = &hitStats{}
	}
	idx.hits[key].total++
	if hit {
		idx.hits[key].hits++
	}
}
