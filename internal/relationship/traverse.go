package relationship

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// Subgraph is a bounded BFS traversal result: the episode IDs reached and
// the edges connecting them, suitable for export or direct inspection.
type Subgraph struct {
	Root  string                          `json:"root"`
	Nodes []string                        `json:"nodes"`
	Edges []*memcore.EpisodeRelationship `json:"edges"`
}

// BuildGraph runs a breadth-first traversal from root out to maxDepth hops
// in both directions, returning the reached nodes and the edges between
// them. maxDepth <= 0 returns just the root with no edges.
func (g *Graph) BuildGraph(root string, maxDepth int) *Subgraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sub := &Subgraph{Root: root}
	visited := map[string]int{root: 0}
	order := []string{root}
	edgeSeen := map[string]bool{}

	queue := []string{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		depth := visited[cur]
		if depth >= maxDepth {
			continue
		}

		neighbors := append(append([]*memcore.EpisodeRelationship(nil), g.outgoing[cur]...), g.incoming[cur]...)
		for _, e := range neighbors {
			if !edgeSeen[e.ID] {
				edgeSeen[e.ID] = true
				sub.Edges = append(sub.Edges, e)
			}
			next := e.ToEpisodeID
			if next == cur {
				next = e.FromEpisodeID
			}
			if _, seen := visited[next]; !seen {
				visited[next] = depth + 1
				order = append(order, next)
				queue = append(queue, next)
			}
		}
	}

	sub.Nodes = order
	sort.Slice(sub.Edges, func(i, j int) bool { return sub.Edges[i].ID < sub.Edges[j].ID })
	return sub
}

// ExportJSON renders a Subgraph as indented JSON.
func ExportJSON(sub *Subgraph) ([]byte, error) {
	return json.MarshalIndent(sub, "", "  ")
}

// ExportDOT renders a Subgraph as a Graphviz DOT digraph, edges labeled by
// relationship type.
func ExportDOT(sub *Subgraph) string {
	var buf bytes.Buffer
	buf.WriteString("digraph relationships {\n")
	for _, n := range sub.Nodes {
		fmt.Fprintf(&buf, "  %q;\n", n)
	}
	for _, e := range sub.Edges {
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.FromEpisodeID, e.ToEpisodeID, e.Type)
	}
	buf.WriteString("}\n")
	return buf.String()
}
