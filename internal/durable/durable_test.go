package durable

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/d-o-hub/memcore/internal/memcore"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	return db, func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}
}

func sampleEpisode(id string) *memcore.Episode {
	return &memcore.Episode{
		ID:              id,
		TaskType:        memcore.TaskTypeDebug,
		TaskDescription: "fix the null pointer",
		Domain:          "coding",
		Language:        "go",
		Tags:            []string{"bug", "nil-deref"},
		Context:         memcore.EpisodeContext{Domain: "coding", Language: "go"},
		StartTime:       time.Now(),
	}
}

func TestInsertAndGetEpisode(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ep := sampleEpisode("ep-1")
	if err := db.InsertEpisode(ep); err != nil {
		t.Fatalf("InsertEpisode failed: %v", err)
	}

	got, err := db.GetEpisode("ep-1")
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if got.TaskDescription != ep.TaskDescription {
		t.Errorf("expected task description %q, got %q", ep.TaskDescription, got.TaskDescription)
	}
	if len(got.Tags) != 2 {
		t.Errorf("expected 2 tags, got %d", len(got.Tags))
	}
}

func TestGetEpisodeNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.GetEpisode("does-not-exist")
	if !memcore.IsKind(err, memcore.KindNotFound) {
		t.Errorf("expected a NotFound error, got %v", err)
	}
}

func TestInsertEpisodeRejectsOversizedEpisode(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ep := sampleEpisode("ep-big")
	ep.TaskDescription = string(make([]byte, memcore.MaxEpisodeBytes))

	err := db.InsertEpisode(ep)
	if !memcore.IsKind(err, memcore.KindResourceLimit) {
		t.Errorf("expected a resource_limit_exceeded error, got %v", err)
	}

	if _, getErr := db.GetEpisode("ep-big"); !memcore.IsKind(getErr, memcore.KindNotFound) {
		t.Errorf("expected the oversized episode to not have been written, got %v", getErr)
	}
}

func TestInsertBatchAtomicity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	batch := []*memcore.Episode{
		sampleEpisode("batch-1"),
		sampleEpisode("batch-2"),
		sampleEpisode("batch-3"),
	}
	batch[1].TaskDescription = string(make([]byte, memcore.MaxEpisodeBytes))

	err := db.InsertBatch(batch)
	if err == nil {
		t.Fatal("expected InsertBatch to fail when one episode is invalid")
	}

	for _, id := range []string{"batch-1", "batch-2", "batch-3"} {
		if _, getErr := db.GetEpisode(id); !memcore.IsKind(getErr, memcore.KindNotFound) {
			t.Errorf("expected %s to not be durably written after a failed batch, got %v", id, getErr)
		}
	}
}

func TestInsertBatchAllValidCommitsAll(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	batch := []*memcore.Episode{
		sampleEpisode("ok-1"),
		sampleEpisode("ok-2"),
	}
	if err := db.InsertBatch(batch); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	for _, id := range []string{"ok-1", "ok-2"} {
		if _, err := db.GetEpisode(id); err != nil {
			t.Errorf("expected %s to be present, got error %v", id, err)
		}
	}
}

func TestCompleteEpisodeRejectsDoubleCompletion(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ep := sampleEpisode("ep-1")
	if err := db.InsertEpisode(ep); err != nil {
		t.Fatalf("InsertEpisode failed: %v", err)
	}

	now := time.Now()
	ep.EndTime = &now
	ep.Outcome = memcore.NewSuccessOutcome("fixed", nil)

	if err := db.CompleteEpisode(ep); err != nil {
		t.Fatalf("CompleteEpisode failed: %v", err)
	}

	err := db.CompleteEpisode(ep)
	if !memcore.IsKind(err, memcore.KindAlreadyCompleted) {
		t.Errorf("expected already_completed on a second CompleteEpisode call, got %v", err)
	}
}

func TestAppendStepEnforcesStepLimit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ep := sampleEpisode("ep-1")
	if err := db.InsertEpisode(ep); err != nil {
		t.Fatalf("InsertEpisode failed: %v", err)
	}

	for i := 0; i < memcore.MaxSteps; i++ {
		if err := db.AppendStep("ep-1", memcore.ExecutionStep{Tool: "shell", Success: true}); err != nil {
			t.Fatalf("AppendStep %d failed: %v", i, err)
		}
	}

	err := db.AppendStep("ep-1", memcore.ExecutionStep{Tool: "shell", Success: true})
	if !memcore.IsKind(err, memcore.KindResourceLimit) {
		t.Errorf("expected resource_limit_exceeded at the step cap, got %v", err)
	}
}

func TestListEpisodesFiltersByTag(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	bug := sampleEpisode("ep-bug")
	bug.Tags = []string{"bug", "nil-deref"}
	feature := sampleEpisode("ep-feature")
	feature.Tags = []string{"feature"}

	if err := db.InsertEpisode(bug); err != nil {
		t.Fatalf("InsertEpisode failed: %v", err)
	}
	if err := db.InsertEpisode(feature); err != nil {
		t.Fatalf("InsertEpisode failed: %v", err)
	}

	results, err := db.ListEpisodes(memcore.EpisodeFilter{Tag: "nil-deref"})
	if err != nil {
		t.Fatalf("ListEpisodes failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "ep-bug" {
		t.Errorf("expected exactly ep-bug, got %v", results)
	}

	results, err = db.ListEpisodes(memcore.EpisodeFilter{Tag: "feature"})
	if err != nil {
		t.Fatalf("ListEpisodes failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "ep-feature" {
		t.Errorf("expected exactly ep-feature, got %v", results)
	}
}

func TestListEpisodesFiltersByDomainAndArchived(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	coding := sampleEpisode("coding-1")
	coding.Domain = "coding"
	writing := sampleEpisode("writing-1")
	writing.Domain = "writing"

	if err := db.InsertEpisode(coding); err != nil {
		t.Fatalf("InsertEpisode failed: %v", err)
	}
	if err := db.InsertEpisode(writing); err != nil {
		t.Fatalf("InsertEpisode failed: %v", err)
	}

	results, err := db.ListEpisodes(memcore.EpisodeFilter{Domain: "coding"})
	if err != nil {
		t.Fatalf("ListEpisodes failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "coding-1" {
		t.Errorf("expected exactly coding-1, got %v", results)
	}

	if err := db.ArchiveEpisode("coding-1", time.Now()); err != nil {
		t.Fatalf("ArchiveEpisode failed: %v", err)
	}
	results, err = db.ListEpisodes(memcore.EpisodeFilter{Domain: "coding"})
	if err != nil {
		t.Fatalf("ListEpisodes failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected archived episodes excluded by default, got %d", len(results))
	}

	results, err = db.ListEpisodes(memcore.EpisodeFilter{Domain: "coding", IncludeArchived: true})
	if err != nil {
		t.Fatalf("ListEpisodes failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected archived episode included when requested, got %d", len(results))
	}
}

func TestCountActiveExcludesArchived(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for _, id := range []string{"a", "b", "c"} {
		if err := db.InsertEpisode(sampleEpisode(id)); err != nil {
			t.Fatalf("InsertEpisode failed: %v", err)
		}
	}
	if err := db.ArchiveEpisode("a", time.Now()); err != nil {
		t.Fatalf("ArchiveEpisode failed: %v", err)
	}

	count, err := db.CountActive()
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 active episodes, got %d", count)
	}
}

func TestPatternUpsertRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	p := &memcore.Pattern{
		Kind:          memcore.PatternToolSequence,
		ToolSequence:  &memcore.ToolSequencePayload{Tools: []memcore.ToolAction{{Tool: "shell", Action: "run"}}},
		Confidence:    0.8,
		Frequency:     3,
		Effectiveness: 0.9,
	}
	if err := db.UpsertPattern(p); err != nil {
		t.Fatalf("UpsertPattern failed: %v", err)
	}

	got, err := db.GetPattern(p.ID)
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if got.ToolSequence == nil || len(got.ToolSequence.Tools) != 1 {
		t.Errorf("expected the tool sequence payload to round-trip, got %+v", got.ToolSequence)
	}

	p.Frequency = 5
	if err := db.UpsertPattern(p); err != nil {
		t.Fatalf("UpsertPattern (update) failed: %v", err)
	}
	got, err = db.GetPattern(p.ID)
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if got.Frequency != 5 {
		t.Errorf("expected frequency updated to 5, got %d", got.Frequency)
	}
}

func TestRelationshipInsertAndListByDirection(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for _, id := range []string{"ep-a", "ep-b"} {
		if err := db.InsertEpisode(sampleEpisode(id)); err != nil {
			t.Fatalf("InsertEpisode failed: %v", err)
		}
	}

	rel := &memcore.EpisodeRelationship{
		FromEpisodeID: "ep-a",
		ToEpisodeID:   "ep-b",
		Type:          memcore.RelationshipDependsOn,
	}
	if err := db.InsertRelationship(rel); err != nil {
		t.Fatalf("InsertRelationship failed: %v", err)
	}

	outgoing, err := db.ListRelationshipsFor("ep-a", memcore.DirectionOutgoing, "")
	if err != nil {
		t.Fatalf("ListRelationshipsFor failed: %v", err)
	}
	if len(outgoing) != 1 {
		t.Errorf("expected 1 outgoing relationship from ep-a, got %d", len(outgoing))
	}

	incoming, err := db.ListRelationshipsFor("ep-a", memcore.DirectionIncoming, "")
	if err != nil {
		t.Fatalf("ListRelationshipsFor failed: %v", err)
	}
	if len(incoming) != 0 {
		t.Errorf("expected 0 incoming relationships to ep-a, got %d", len(incoming))
	}
}

func TestEmbeddingUpsertAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	vec := []float32{0.1, 0.2, 0.3}
	if err := db.UpsertEmbedding("episode", "ep-1", vec); err != nil {
		t.Fatalf("UpsertEmbedding failed: %v", err)
	}

	got, err := db.GetEmbedding("episode", "ep-1")
	if err != nil {
		t.Fatalf("GetEmbedding failed: %v", err)
	}
	if len(got) != 3 || got[0] != float32(0.1) {
		t.Errorf("expected the embedding to round-trip, got %v", got)
	}
}

func TestArchiveEpisodeWithSummaryIsAtomic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ep := sampleEpisode("ep-1")
	if err := db.InsertEpisode(ep); err != nil {
		t.Fatalf("InsertEpisode failed: %v", err)
	}

	summary := &memcore.EpisodeSummary{
		EpisodeID:         "ep-1",
		SummaryText:       "fixed a nil pointer",
		OriginalSizeBytes: 1000,
		CompressionRatio:  5,
		SummarizedAt:      time.Now(),
	}
	if err := db.ArchiveEpisodeWithSummary("ep-1", time.Now(), summary); err != nil {
		t.Fatalf("ArchiveEpisodeWithSummary failed: %v", err)
	}

	if _, err := db.GetEpisode("ep-1"); !memcore.IsKind(err, memcore.KindNotFound) {
		t.Errorf("expected the evicted episode row to be gone, got %v", err)
	}

	gotSummary, err := db.GetSummary("ep-1")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if gotSummary.SummaryText != summary.SummaryText {
		t.Errorf("expected summary text %q, got %q", summary.SummaryText, gotSummary.SummaryText)
	}
}
