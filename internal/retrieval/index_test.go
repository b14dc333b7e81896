package retrieval

import (
	"testing"
	"time"

	"github.com/d-o-hub/memcore/internal/memcore"
)

func sampleEntry(id, domain string, taskType memcore.TaskType, startTime time.Time) *Entry {
	return &Entry{
		EpisodeID: id,
		Domain:    domain,
		TaskType:  taskType,
		Language:  "go",
		Tags:      []string{"worker-pool", "race-condition"},
		StartTime: startTime,
	}
}

func TestIndexInsertAndEntriesFiltersBySubtree(t *testing.T) {
	idx := NewIndex()
	now := time.Now()
	idx.Insert(sampleEntry("ep-1", "coding", memcore.TaskTypeDebug, now), now)
	idx.Insert(sampleEntry("ep-2", "coding", memcore.TaskTypeRefactor, now), now)
	idx.Insert(sampleEntry("ep-3", "writing", memcore.TaskTypeDebug, now), now)

	got := idx.Entries("coding", "")
	if len(got) != 2 {
		t.Fatalf("expected 2 entries under domain coding, got %d", len(got))
	}

	got = idx.Entries("coding", memcore.TaskTypeDebug)
	if len(got) != 1 || got[0].EpisodeID != "ep-1" {
		t.Fatalf("expected exactly ep-1 for coding/debug, got %+v", got)
	}
}

func TestIndexInsertReplacesExistingEntry(t *testing.T) {
	idx := NewIndex()
	now := time.Now()
	idx.Insert(sampleEntry("ep-1", "coding", memcore.TaskTypeDebug, now), now)
	idx.Insert(sampleEntry("ep-1", "writing", memcore.TaskTypeDebug, now), now)

	if got := idx.Entries("coding", ""); len(got) != 0 {
		t.Errorf("expected old subtree to no longer hold ep-1, got %+v", got)
	}
	if got := idx.Entries("writing", ""); len(got) != 1 {
		t.Errorf("expected new subtree to hold ep-1, got %+v", got)
	}
}

func TestIndexRemoveDeletesEntry(t *testing.T) {
	idx := NewIndex()
	now := time.Now()
	idx.Insert(sampleEntry("ep-1", "coding", memcore.TaskTypeDebug, now), now)
	idx.Remove("ep-1")

	if got := idx.Entries("coding", ""); len(got) != 0 {
		t.Errorf("expected no entries after removal, got %+v", got)
	}
}

func TestRankedSubtreesOrdersByHitRate(t *testing.T) {
	idx := NewIndex()
	now := time.Now()
	idx.Insert(sampleEntry("ep-1", "coding", memcore.TaskTypeDebug, now), now)
	idx.Insert(sampleEntry("ep-2", "writing", memcore.TaskTypeDebug, now), now)

	idx.RecordQuery("coding", memcore.TaskTypeDebug, true)
	idx.RecordQuery("coding", memcore.TaskTypeDebug, true)
	idx.RecordQuery("writing", memcore.TaskTypeDebug, false)
	idx.RecordQuery("writing", memcore.TaskTypeDebug, false)

	ranked := idx.RankedSubtrees(2)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked subtrees, got %d", len(ranked))
	}
	if ranked[0].domain != "coding" {
		t.Errorf("expected coding subtree to rank first (higher hit rate), got %s", ranked[0].domain)
	}
}

func TestRankedSubtreesBoundedByMax(t *testing.T) {
	idx := NewIndex()
	now := time.Now()
	idx.Insert(sampleEntry("ep-1", "a", memcore.TaskTypeDebug, now), now)
	idx.Insert(sampleEntry("ep-2", "b", memcore.TaskTypeDebug, now), now)
	idx.Insert(sampleEntry("ep-3", "c", memcore.TaskTypeDebug, now), now)
	idx.RecordQuery("a", memcore.TaskTypeDebug, true)
	idx.RecordQuery("b", memcore.TaskTypeDebug, true)
	idx.RecordQuery("c", memcore.TaskTypeDebug, true)

	ranked := idx.RankedSubtrees(1)
	if len(ranked) != 1 {
		t.Fatalf("expected max of 1 ranked subtree, got %d", len(ranked))
	}
}
