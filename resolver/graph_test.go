package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mgorny/pkgcore/internal/attr"
)

func TestGraphAddNodeAppendsAndReturnsID(t *testing.T) {
	g := &Graph{}
	key := NodeKey{Category: "dev-lang", Package: "python", Slot: "3"}

	id := g.AddNode(Node{Key: key})

	if id != 0 {
		t.Fatalf("expected first node to get ID 0, got %d", id)
	}
	if len(g.Nodes) != 1 {
		t.Fatalf("expected exactly one node, got %d", len(g.Nodes))
	}
	if diff := cmp.Diff(key, g.Nodes[id].Key); diff != "" {
		t.Fatalf("stored node key differs from requested key (-want +got):\n%s", diff)
	}
}

func TestGraphAddEdgeRecordsEndpoints(t *testing.T) {
	g := &Graph{}
	from := g.AddNode(Node{Key: NodeKey{Category: "app-misc", Package: "tool", Slot: "0"}})
	to := g.AddNode(Node{Key: NodeKey{Category: "dev-lang", Package: "python", Slot: "3"}})

	if err := g.AddEdge(from, to, "dev-lang/python", RuntimeDep); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	if len(g.Edges) != 1 {
		t.Fatalf("expected exactly one edge, got %d", len(g.Edges))
	}
	want := Edge{From: from, To: to, Requirement: "dev-lang/python", Kind: RuntimeDep}
	if diff := cmp.Diff(want, g.Edges[0], cmp.AllowUnexported(DepKind{}, attr.Set{})); diff != "" {
		t.Fatalf("stored edge differs (-want +got):\n%s", diff)
	}
}

func TestGraphAddEdgeRejectsNodeOutsideGraph(t *testing.T) {
	g := &Graph{}
	from := g.AddNode(Node{Key: NodeKey{Category: "app-misc", Package: "tool", Slot: "0"}})

	if err := g.AddEdge(from, NodeID(5), "dev-lang/python", RuntimeDep); err == nil {
		t.Fatal("expected an error referencing a node outside the graph")
	}
}
