// Package capacity enforces a configurable bound on the number of active
// episodes in the durable store, summarizing and evicting the
// lowest-value episodes once the bound is exceeded.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/memcore"
)

// episodeStore is the narrow slice of storage.Store the capacity manager
// needs; defined locally so this package doesn't depend on storage's
// full surface (or its cache/pool internals).
type episodeStore interface {
	ListEpisodes(ctx context.Context, filter memcore.EpisodeFilter) ([]*memcore.Episode, error)
	CountActiveEpisodes(ctx context.Context) (int, error)
	ArchiveEpisodeWithSummary(ctx context.Context, episodeID string, at time.Time, summary *memcore.EpisodeSummary) error
}

// Manager enforces cfg.MaxEpisodes against the active working set.
type Manager struct {
	store      episodeStore
	cfg        config.CapacityConfig
	summarizer *Summarizer
}

// New builds a Manager backed by store.
func New(store episodeStore, cfg config.CapacityConfig) *Manager {
	return &Manager{
		store:      store,
		cfg:        cfg,
		summarizer: NewSummarizer(cfg.MaxKeySteps),
	}
}

// CheckAndEvict compares the active count against cfg.MaxEpisodes and, if
// over, summarizes and archives up to cfg.EvictionBatchSize victims
// selected by the configured policy. Each victim is summarized and
// archived independently — one failure doesn't block the rest of the
// batch, but is collected and returned. The IDs of the episodes actually
// archived are returned alongside the count so a caller holding a
// parallel in-memory projection (the retrieval index) can evict the same
// entries rather than serving stale hits for archived episodes.
func (m *Manager) CheckAndEvict(ctx context.Context) (int, []string, error) {
	count, err := m.store.CountActiveEpisodes(ctx)
	if err != nil {
		return 0, nil, err
	}
	overflow := count - m.cfg.MaxEpisodes
	if overflow <= 0 {
		return 0, nil, nil
	}

	batch := overflow
	if batch > m.cfg.EvictionBatchSize {
		batch = m.cfg.EvictionBatchSize
	}

	episodes, err := m.store.ListEpisodes(ctx, memcore.EpisodeFilter{Limit: count})
	if err != nil {
		return 0, nil, err
	}

	victims := m.selectVictims(episodes, batch)

	var evictedIDs []string
	var errs []error
	now := time.Now()
	for _, e := range victims {
		summary := m.summarizer.Summarize(e)
		if err := m.store.ArchiveEpisodeWithSummary(ctx, e.ID, now, summary); err != nil {
			errs = append(errs, fmt.Errorf("episode %s: %w", e.ID, err))
			continue
		}
		evictedIDs = append(evictedIDs, e.ID)
	}
	if len(errs) > 0 {
		return len(evictedIDs), evictedIDs, errors.Join(errs...)
	}
	return len(evictedIDs), evictedIDs, nil
}

// selectVictims orders episodes most-evictable-first and returns the
// first n.
func (m *Manager) selectVictims(episodes []*memcore.Episode, n int) []*memcore.Episode {
	if n > len(episodes) {
		n = len(episodes)
	}
	if n <= 0 {
		return nil
	}

	ranked := make([]*memcore.Episode, len(episodes))
	copy(ranked, episodes)

	switch m.cfg.Policy {
	case config.EvictionLRU:
		sort.Slice(ranked, func(i, j int) bool {
			return ranked[i].LastAccessed.Before(ranked[j].LastAccessed)
		})
	default: // EvictionRelevanceWeighted
		scores := m.relevanceScores(ranked)
		sort.Slice(ranked, func(i, j int) bool {
			si, sj := scores[ranked[i].ID], scores[ranked[j].ID]
			if si != sj {
				return si > sj
			}
			return ranked[i].StartTime.Before(ranked[j].StartTime)
		})
	}

	return ranked[:n]
}

// relevanceScores computes the RelevanceWeighted victim score for each
// episode: α×(1−normalized_recency) + β×(1−reward) + γ×(1−access_count_norm),
// with recency and access count min-max normalized across the candidate
// set. Higher score = more evictable.
func (m *Manager) relevanceScores(episodes []*memcore.Episode) map[string]float64 {
	scores := make(map[string]float64, len(episodes))
	if len(episodes) == 0 {
		return scores
	}

	now := time.Now()
	minAge, maxAge := -1.0, -1.0
	minAccess, maxAccess := int64(-1), int64(-1)
	for _, e := range episodes {
		age := now.Sub(e.LastAccessed).Seconds()
		if minAge < 0 || age < minAge {
			minAge = age
		}
		if age > maxAge {
			maxAge = age
		}
		if minAccess < 0 || e.AccessCount < minAccess {
			minAccess = e.AccessCount
		}
		if e.AccessCount > maxAccess {
			maxAccess = e.AccessCount
		}
	}

	normalize := func(v, lo, hi float64) float64 {
		if hi <= lo {
			return 0
		}
		return (v - lo) / (hi - lo)
	}

	for _, e := range episodes {
		age := now.Sub(e.LastAccessed).Seconds()
		normalizedRecency := 1 - normalize(age, minAge, maxAge) // fresher (smaller age) -> higher recency
		reward := 0.0
		if e.Reward != nil {
			reward = e.Reward.Total
		}
		accessNorm := normalize(float64(e.AccessCount), float64(minAccess), float64(maxAccess))

		score := m.cfg.RecencyWeight*(1-normalizedRecency) +
			m.cfg.RewardWeight*(1-reward) +
			m.cfg.AccessWeight*(1-accessNorm)
		scores[e.ID] = score
	}
	return scores
}
