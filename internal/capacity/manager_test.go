package capacity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/durable"
	"github.com/d-o-hub/memcore/internal/memcore"
)

func setupTestDB(t *testing.T) (*durable.DB, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	db, err := durable.Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("durable.Open failed: %v", err)
	}
	return db, func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}
}

// dbStore adapts *durable.DB to the episodeStore interface the same way
// storage.Store would, without pulling in the cache/pool layers the
// capacity manager doesn't need.
type dbStore struct{ db *durable.DB }

func (s dbStore) ListEpisodes(_ context.Context, filter memcore.EpisodeFilter) ([]*memcore.Episode, error) {
	return s.db.ListEpisodes(filter)
}
func (s dbStore) CountActiveEpisodes(_ context.Context) (int, error) { return s.db.CountActive() }
func (s dbStore) ArchiveEpisodeWithSummary(_ context.Context, id string, at time.Time, summary *memcore.EpisodeSummary) error {
	return s.db.ArchiveEpisodeWithSummary(id, at, summary)
}

func sampleEpisode(id string, lastAccessed time.Time, accessCount int64, reward float64) *memcore.Episode {
	return &memcore.Episode{
		ID:              id,
		TaskType:        memcore.TaskTypeDebug,
		TaskDescription: "investigate the race condition in the worker pool",
		Domain:          "coding",
		Language:        "go",
		Context:         memcore.EpisodeContext{Domain: "coding", Language: "go"},
		StartTime:       lastAccessed,
		LastAccessed:    lastAccessed,
		AccessCount:     accessCount,
		Reward:          &memcore.RewardScore{Total: reward},
		Steps: []memcore.ExecutionStep{
			{Index: 0, Tool: "shell", Action: "run tests", Success: true, LatencyMs: 100},
			{Index: 1, Tool: "shell", Action: "inspect logs", Success: true, LatencyMs: 50},
		},
	}
}

func testCapacityConfig(maxEpisodes int, policy config.EvictionPolicy) config.CapacityConfig {
	cfg := config.DefaultConfig().Capacity
	cfg.MaxEpisodes = maxEpisodes
	cfg.Policy = policy
	cfg.EvictionBatchSize = 50
	return cfg
}

func TestCheckAndEvictNoOpUnderLimit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.InsertEpisode(sampleEpisode("ep-1", time.Now(), 1, 0.5)); err != nil {
		t.Fatalf("InsertEpisode failed: %v", err)
	}

	m := New(dbStore{db}, testCapacityConfig(10, config.EvictionLRU))
	evicted, _, err := m.CheckAndEvict(context.Background())
	if err != nil {
		t.Fatalf("CheckAndEvict failed: %v", err)
	}
	if evicted != 0 {
		t.Errorf("expected no evictions under the limit, got %d", evicted)
	}
}

func TestCheckAndEvictLRUEvictsOldestAccessed(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	old := sampleEpisode("ep-old", now.Add(-24*time.Hour), 1, 0.5)
	recent := sampleEpisode("ep-recent", now, 1, 0.5)
	if err := db.InsertEpisode(old); err != nil {
		t.Fatalf("insert old failed: %v", err)
	}
	if err := db.InsertEpisode(recent); err != nil {
		t.Fatalf("insert recent failed: %v", err)
	}

	m := New(dbStore{db}, testCapacityConfig(1, config.EvictionLRU))
	evicted, _, err := m.CheckAndEvict(context.Background())
	if err != nil {
		t.Fatalf("CheckAndEvict failed: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected exactly 1 eviction, got %d", evicted)
	}

	evicted, ids, err := m.CheckAndEvict(context.Background())
	_ = evicted
	if err != nil {
		t.Fatalf("CheckAndEvict failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no further evictions once under the limit, got %v", ids)
	}

	if _, err := db.GetEpisode("ep-old"); err == nil {
		t.Error("expected ep-old to have been evicted")
	}
	if _, err := db.GetEpisode("ep-recent"); err != nil {
		t.Errorf("expected ep-recent to survive, got %v", err)
	}

	summary, err := db.GetSummary("ep-old")
	if err != nil {
		t.Fatalf("expected a summary for the evicted episode: %v", err)
	}
	if summary.EpisodeID != "ep-old" {
		t.Errorf("expected summary for ep-old, got %s", summary.EpisodeID)
	}
}

func TestCheckAndEvictRelevanceWeightedPrefersLowRewardAndStaleness(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	weak := sampleEpisode("ep-weak", now.Add(-24*time.Hour), 1, 0.1)
	strong := sampleEpisode("ep-strong", now, 20, 0.9)
	if err := db.InsertEpisode(weak); err != nil {
		t.Fatalf("insert weak failed: %v", err)
	}
	if err := db.InsertEpisode(strong); err != nil {
		t.Fatalf("insert strong failed: %v", err)
	}

	m := New(dbStore{db}, testCapacityConfig(1, config.EvictionRelevanceWeighted))
	evicted, _, err := m.CheckAndEvict(context.Background())
	if err != nil {
		t.Fatalf("CheckAndEvict failed: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected exactly 1 eviction, got %d", evicted)
	}

	if _, err := db.GetEpisode("ep-weak"); err == nil {
		t.Error("expected the low-reward, stale episode to be evicted")
	}
	if _, err := db.GetEpisode("ep-strong"); err != nil {
		t.Errorf("expected the high-reward, fresh episode to survive, got %v", err)
	}
}

func TestCheckAndEvictRespectsBatchSize(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	for i := 0; i < 5; i++ {
		e := sampleEpisode(fmt.Sprintf("ep-%d", i), now.Add(-time.Duration(i)*time.Hour), int64(i), 0.5)
		if err := db.InsertEpisode(e); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	cfg := testCapacityConfig(1, config.EvictionLRU)
	cfg.EvictionBatchSize = 2
	m := New(dbStore{db}, cfg)

	evicted, _, err := m.CheckAndEvict(context.Background())
	if err != nil {
		t.Fatalf("CheckAndEvict failed: %v", err)
	}
	if evicted != 2 {
		t.Fatalf("expected eviction to stop at the batch size of 2, got %d", evicted)
	}

	count, err := db.CountActive()
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 episodes remaining after a partial batch eviction, got %d", count)
	}
}
