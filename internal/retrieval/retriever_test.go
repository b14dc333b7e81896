package retrieval

import (
	"testing"
	"time"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/memcore"
)

func testRetrievalConfig() config.RetrievalConfig {
	return config.DefaultConfig().Retrieval
}

func buildTestIndex(now time.Time) *Index {
	idx := NewIndex()
	idx.Insert(&Entry{
		EpisodeID: "ep-race",
		Domain:    "coding",
		TaskType:  memcore.TaskTypeDebug,
		Language:  "go",
		Tags:      []string{"race-condition", "worker-pool"},
		StartTime: now,
	}, now)
	idx.Insert(&Entry{
		EpisodeID: "ep-deadlock",
		Domain:    "coding",
		TaskType:  memcore.TaskTypeDebug,
		Language:  "go",
		Tags:      []string{"deadlock", "worker-pool"},
		StartTime: now.Add(-10 * 24 * time.Hour),
	}, now)
	idx.Insert(&Entry{
		EpisodeID: "ep-unrelated",
		Domain:    "writing",
		TaskType:  memcore.TaskTypeOther,
		Language:  "en",
		Tags:      []string{"essay"},
		StartTime: now,
	}, now)
	return idx
}

func TestQueryRestrictsToMatchingSubtreeWhenDomainGiven(t *testing.T) {
	now := time.Now()
	idx := buildTestIndex(now)
	r := NewRetriever(idx, testRetrievalConfig())

	results := r.Query(Query{
		Context: memcore.EpisodeContext{Tags: []string{"race-condition", "worker-pool"}},
		Domain:  "coding",
		K:       5,
	})

	for _, res := range results {
		if res.EpisodeID == "ep-unrelated" {
			t.Errorf("expected ep-unrelated to be excluded by domain restriction")
		}
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result from the coding subtree")
	}
}

func TestQueryRanksMoreRelevantTagMatchFirstWhenDiversityDisabled(t *testing.T) {
	now := time.Now()
	idx := buildTestIndex(now)
	r := NewRetriever(idx, testRetrievalConfig())

	results := r.Query(Query{
		Context:          memcore.EpisodeContext{Tags: []string{"race-condition", "worker-pool"}},
		Domain:           "coding",
		K:                2,
		DisableDiversity: true,
	})

	if len(results) == 0 || results[0].EpisodeID != "ep-race" {
		t.Fatalf("expected ep-race to rank first by tag overlap, got %+v", results)
	}
}

func TestQueryRecordsHitRateForExploredSubtrees(t *testing.T) {
	now := time.Now()
	idx := buildTestIndex(now)
	r := NewRetriever(idx, testRetrievalConfig())

	r.Query(Query{Domain: "coding", TaskType: memcore.TaskTypeDebug, K: 5})

	ranked := idx.RankedSubtrees(10)
	found := false
	for _, st := range ranked {
		if st.domain == "coding" && st.taskType == memcore.TaskTypeDebug {
			found = true
		}
	}
	if !found {
		t.Error("expected the queried subtree to appear in hit-rate bookkeeping")
	}
}

func TestQueryWithoutRestrictionExploresRankedSubtrees(t *testing.T) {
	now := time.Now()
	idx := buildTestIndex(now)
	cfg := testRetrievalConfig()
	cfg.MaxClustersToSearch = 1
	r := NewRetriever(idx, cfg)

	idx.RecordQuery("coding", memcore.TaskTypeDebug, true)

	results := r.Query(Query{K: 5})
	if len(results) == 0 {
		t.Fatal("expected results from the single ranked subtree explored")
	}
}

func TestMmrSelectPrefersDiverseCandidatesOverPureRelevance(t *testing.T) {
	a := &Entry{EpisodeID: "a", Tags: []string{"x", "y"}}
	b := &Entry{EpisodeID: "b", Tags: []string{"x", "y"}} // near-duplicate of a
	c := &Entry{EpisodeID: "c", Tags: []string{"z"}}      // distinct

	candidates := []scoredEntry{
		{entry: a, score: 1.0},
		{entry: b, score: 0.95},
		{entry: c, score: 0.5},
	}

	selected := mmrSelect(candidates, 2, 0.5)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selected entries, got %d", len(selected))
	}
	if selected[0].entry.EpisodeID != "a" {
		t.Errorf("expected highest-relevance entry first, got %s", selected[0].entry.EpisodeID)
	}
	if selected[1].entry.EpisodeID != "c" {
		t.Errorf("expected the diverse entry c to be preferred over near-duplicate b, got %s", selected[1].entry.EpisodeID)
	}
}

func TestMmrSelectBoundedByKAndCandidateCount(t *testing.T) {
	a := &Entry{EpisodeID: "a", Tags: []string{"x"}}
	selected := mmrSelect([]scoredEntry{{entry: a, score: 1.0}}, 5, 0.5)
	if len(selected) != 1 {
		t.Fatalf("expected selection bounded by available candidates, got %d", len(selected))
	}
}
