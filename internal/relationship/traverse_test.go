package relationship

import (
	"context"
	"strings"
	"testing"

	"github.com/d-o-hub/memcore/internal/memcore"
)

func buildChainGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	store := newFakeStore("ep-1", "ep-2", "ep-3", "ep-4")
	ctx := context.Background()
	mustAdd(t, g, store, ctx, "ep-1", "ep-2", memcore.RelationshipDependsOn)
	mustAdd(t, g, store, ctx, "ep-2", "ep-3", memcore.RelationshipDependsOn)
	mustAdd(t, g, store, ctx, "ep-3", "ep-4", memcore.RelationshipDependsOn)
	return g
}

func TestBuildGraphBoundsTraversalByMaxDepth(t *testing.T) {
	g := buildChainGraph(t)

	sub := g.BuildGraph("ep-1", 1)
	if len(sub.Nodes) != 2 {
		t.Fatalf("expected 2 nodes within depth 1, got %+v", sub.Nodes)
	}

	sub = g.BuildGraph("ep-1", 3)
	if len(sub.Nodes) != 4 {
		t.Fatalf("expected all 4 nodes within depth 3, got %+v", sub.Nodes)
	}
}

func TestBuildGraphZeroDepthReturnsOnlyRoot(t *testing.T) {
	g := buildChainGraph(t)
	sub := g.BuildGraph("ep-1", 0)
	if len(sub.Nodes) != 1 || sub.Nodes[0] != "ep-1" {
		t.Fatalf("expected only the root node, got %+v", sub.Nodes)
	}
	if len(sub.Edges) != 0 {
		t.Errorf("expected no edges at depth 0, got %+v", sub.Edges)
	}
}

func TestExportDOTIncludesNodesAndLabeledEdges(t *testing.T) {
	g := buildChainGraph(t)
	sub := g.BuildGraph("ep-1", 3)
	dot := ExportDOT(sub)

	if !strings.HasPrefix(dot, "digraph relationships {") {
		t.Errorf("expected a digraph header, got %q", dot[:min(40, len(dot))])
	}
	if !strings.Contains(dot, `"ep-1" -> "ep-2"`) {
		t.Errorf("expected an edge from ep-1 to ep-2 in DOT output, got %s", dot)
	}
	if !strings.Contains(dot, "depends_on") {
		t.Errorf("expected the edge label to include the relationship type, got %s", dot)
	}
}

func TestExportJSONRoundTripsNodesAndEdges(t *testing.T) {
	g := buildChainGraph(t)
	sub := g.BuildGraph("ep-1", 3)

	data, err := ExportJSON(sub)
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}
	if !strings.Contains(string(data), "ep-1") {
		t.Errorf("expected root node in JSON output, got %s", data)
	}
}
