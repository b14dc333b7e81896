package relationship

import (
	"context"
	"errors"
	"testing"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// fakeStore is a minimal in-memory stand-in for storage.Store satisfying
// both EpisodeChecker and Persister, so graph tests don't need a durable
// database.
type fakeStore struct {
	episodes      map[string]bool
	inserted      []*memcore.EpisodeRelationship
	deleted       []string
	failInsert    bool
	failOnDelete  string
}

func newFakeStore(episodeIDs ...string) *fakeStore {
	s := &fakeStore{episodes: map[string]bool{}}
	for _, id := range episodeIDs {
		s.episodes[id] = true
	}
	return s
}

func (s *fakeStore) GetEpisode(_ context.Context, id string) (*memcore.Episode, error) {
	if !s.episodes[id] {
		return nil, memcore.NewNotFound("fakeStore.GetEpisode", nil)
	}
	return &memcore.Episode{ID: id}, nil
}

func (s *fakeStore) InsertRelationship(_ context.Context, r *memcore.EpisodeRelationship) error {
	if s.failInsert {
		return errors.New("insert failed")
	}
	s.inserted = append(s.inserted, r)
	return nil
}

func (s *fakeStore) DeleteRelationship(_ context.Context, id string) error {
	if id == s.failOnDelete {
		return errors.New("delete failed")
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func TestAddRejectsSelfLoop(t *testing.T) {
	g := NewGraph()
	store := newFakeStore("ep-1")
	err := g.Add(context.Background(), store, store, &memcore.EpisodeRelationship{
		FromEpisodeID: "ep-1", ToEpisodeID: "ep-1", Type: memcore.RelationshipRelatedTo,
	})
	if err == nil {
		t.Fatal("expected self-loop to be rejected")
	}
}

func TestAddRejectsUnknownEndpoint(t *testing.T) {
	g := NewGraph()
	store := newFakeStore("ep-1")
	err := g.Add(context.Background(), store, store, &memcore.EpisodeRelationship{
		FromEpisodeID: "ep-1", ToEpisodeID: "ep-missing", Type: memcore.RelationshipRelatedTo,
	})
	if err == nil {
		t.Fatal("expected unknown endpoint to be rejected")
	}
}

func TestAddRejectsDuplicateTriple(t *testing.T) {
	g := NewGraph()
	store := newFakeStore("ep-1", "ep-2")
	ctx := context.Background()
	if err := g.Add(ctx, store, store, &memcore.EpisodeRelationship{
		FromEpisodeID: "ep-1", ToEpisodeID: "ep-2", Type: memcore.RelationshipFollows,
	}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := g.Add(ctx, store, store, &memcore.EpisodeRelationship{
		FromEpisodeID: "ep-1", ToEpisodeID: "ep-2", Type: memcore.RelationshipFollows,
	})
	if err == nil {
		t.Fatal("expected duplicate (from, to, type) to be rejected")
	}
}

func TestAddRejectsCycleInAcyclicType(t *testing.T) {
	g := NewGraph()
	store := newFakeStore("ep-1", "ep-2", "ep-3")
	ctx := context.Background()

	edges := []struct{ from, to string }{
		{"ep-1", "ep-2"},
		{"ep-2", "ep-3"},
	}
	for _, e := range edges {
		if err := g.Add(ctx, store, store, &memcore.EpisodeRelationship{
			FromEpisodeID: e.from, ToEpisodeID: e.to, Type: memcore.RelationshipDependsOn,
		}); err != nil {
			t.Fatalf("setup insert %s->%s failed: %v", e.from, e.to, err)
		}
	}

	err := g.Add(ctx, store, store, &memcore.EpisodeRelationship{
		FromEpisodeID: "ep-3", ToEpisodeID: "ep-1", Type: memcore.RelationshipDependsOn,
	})
	if err == nil {
		t.Fatal("expected the closing edge to be rejected as a cycle")
	}
}

func TestAddAllowsCycleForNonAcyclicType(t *testing.T) {
	g := NewGraph()
	store := newFakeStore("ep-1", "ep-2")
	ctx := context.Background()

	if err := g.Add(ctx, store, store, &memcore.EpisodeRelationship{
		FromEpisodeID: "ep-1", ToEpisodeID: "ep-2", Type: memcore.RelationshipRelatedTo,
	}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := g.Add(ctx, store, store, &memcore.EpisodeRelationship{
		FromEpisodeID: "ep-2", ToEpisodeID: "ep-1", Type: memcore.RelationshipRelatedTo,
	}); err != nil {
		t.Fatalf("expected related_to cycle to be allowed, got %v", err)
	}
}

func TestAddPersistsBeforeUpdatingGraph(t *testing.T) {
	g := NewGraph()
	store := newFakeStore("ep-1", "ep-2")
	store.failInsert = true

	err := g.Add(context.Background(), store, store, &memcore.EpisodeRelationship{
		FromEpisodeID: "ep-1", ToEpisodeID: "ep-2", Type: memcore.RelationshipRelatedTo,
	})
	if err == nil {
		t.Fatal("expected persist failure to propagate")
	}
	if g.Exists("ep-1", "ep-2", memcore.RelationshipRelatedTo) {
		t.Error("expected the graph to not record an edge that failed to persist")
	}
}

func TestGetForEpisodeFiltersByDirectionAndType(t *testing.T) {
	g := NewGraph()
	store := newFakeStore("ep-1", "ep-2", "ep-3")
	ctx := context.Background()
	mustAdd(t, g, store, ctx, "ep-1", "ep-2", memcore.RelationshipDependsOn)
	mustAdd(t, g, store, ctx, "ep-3", "ep-1", memcore.RelationshipBlocks)

	out := g.GetForEpisode("ep-1", memcore.DirectionOutgoing, "")
	if len(out) != 1 || out[0].ToEpisodeID != "ep-2" {
		t.Fatalf("expected 1 outgoing edge to ep-2, got %+v", out)
	}

	out = g.GetForEpisode("ep-1", memcore.DirectionIncoming, "")
	if len(out) != 1 || out[0].FromEpisodeID != "ep-3" {
		t.Fatalf("expected 1 incoming edge from ep-3, got %+v", out)
	}

	out = g.GetForEpisode("ep-1", memcore.DirectionBoth, memcore.RelationshipBlocks)
	if len(out) != 1 {
		t.Fatalf("expected type filter to leave only the blocks edge, got %+v", out)
	}
}

func TestGetDependenciesAndDependents(t *testing.T) {
	g := NewGraph()
	store := newFakeStore("ep-1", "ep-2")
	ctx := context.Background()
	mustAdd(t, g, store, ctx, "ep-1", "ep-2", memcore.RelationshipDependsOn)

	deps := g.GetDependencies("ep-1")
	if len(deps) != 1 || deps[0] != "ep-2" {
		t.Fatalf("expected ep-1 to depend on ep-2, got %+v", deps)
	}
	dependents := g.GetDependents("ep-2")
	if len(dependents) != 1 || dependents[0] != "ep-1" {
		t.Fatalf("expected ep-2 to have ep-1 as a dependent, got %+v", dependents)
	}
}

func TestCascadeDeleteRemovesAllTouchingEdges(t *testing.T) {
	g := NewGraph()
	store := newFakeStore("ep-1", "ep-2", "ep-3")
	ctx := context.Background()
	mustAdd(t, g, store, ctx, "ep-1", "ep-2", memcore.RelationshipDependsOn)
	mustAdd(t, g, store, ctx, "ep-3", "ep-1", memcore.RelationshipBlocks)

	errs := g.CascadeDelete(ctx, store, "ep-1")
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(g.GetForEpisode("ep-1", memcore.DirectionBoth, "")) != 0 {
		t.Error("expected no edges remaining touching ep-1")
	}
	if len(g.GetForEpisode("ep-2", memcore.DirectionBoth, "")) != 0 {
		t.Error("expected ep-2's edge to ep-1 to be gone too")
	}
}

func mustAdd(t *testing.T, g *Graph, store *fakeStore, ctx context.Context, from, to string, typ memcore.RelationshipType) {
	t.Helper()
	if err := g.Add(ctx, store, store, &memcore.EpisodeRelationship{
		FromEpisodeID: from, ToEpisodeID: to, Type: typ,
	}); err != nil {
		t.Fatalf("Add(%s -> %s) failed: %v", from, to, err)
	}
}
