/*
Package resolver builds a dependency graph over a set of target atoms
against one or more repositories and an installed-package view, and
emits an ordered merge plan.

Graph/Node/Edge/NodeID follow resolve.Graph's shape: nodes are indexed
by position in a slice, edges reference nodes by that index rather than
by pointer; resolution failures are returned as errors by Resolve, not
stored in the Graph. Unlike resolve.Graph (whose Node is keyed by a
language-ecosystem VersionKey), a resolver.Node is keyed by (category,
package, slot) since that, not the exact version, is pkgcore's identity
for "is this already satisfied" purposes — multiple sub-slots/versions
within the same slot are conflicts, not distinct nodes.
*/
package resolver

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/mgorny/pkgcore/internal/attr"
	"github.com/mgorny/pkgcore/repo"
)

// NodeID indexes Graph.Nodes.
type NodeID int

// NodeKey identifies a node's conflict domain: two candidate packages
// sharing a NodeKey cannot both be installed simultaneously.
type NodeKey struct {
	Category, Package, Slot string
}

// Node is one selected package in the graph.
type Node struct {
	Key NodeKey
	Pkg *repo.Pkg

	// Installed is the installed-package record this node replaces, or
	// nil if nothing with this NodeKey is currently installed.
	Installed *repo.Pkg

	Use map[string]bool
}

// Edge attribute keys, stored in a resolver.DepKind's attr.Set.
const (
	attrBuildTime uint8 = iota // no value; presence means build-time (DEPEND/BDEPEND)
)

// DepKind.Mask bits.
const (
	maskRuntime attr.Mask = 1 << iota // RDEPEND
	maskPost                          // PDEPEND
	maskBuild                         // DEPEND
	maskHostBuild                     // BDEPEND
)

// DepKind classifies one dependency edge by which depset it came from,
// built on internal/attr.Set the same way resolve/dep.Type packs a
// small set of dependency-kind bits.
type DepKind struct {
	attr.Set
}

func newDepKind(mask attr.Mask) DepKind {
	return DepKind{attr.Set{Mask: mask}}
}

// RuntimeDep, PostDep, BuildDep, HostBuildDep are the four depset kinds
// a resolved edge can originate from.
var (
	RuntimeDep   = newDepKind(maskRuntime)
	PostDep      = newDepKind(maskPost)
	BuildDep     = newDepKind(maskBuild)
	HostBuildDep = newDepKind(maskHostBuild)
)

// IsRuntimeOnly reports whether this edge kind is satisfied without
// requiring its target already built — the condition §4.8's cycle
// breaking requires for an edge to participate in a breakable cycle.
func (k DepKind) IsRuntimeOnly() bool {
	return k.Mask&(maskBuild|maskHostBuild) == 0
}

func (k DepKind) String() string {
	switch k.Mask {
	case maskRuntime:
		return "rdepend"
	case maskPost:
		return "pdepend"
	case maskBuild:
		return "depend"
	case maskHostBuild:
		return "bdepend"
	}
	return "dep"
}

// Edge is a resolved dependency: From requires To to satisfy
// Requirement (the literal atom text), of kind Kind.
type Edge struct {
	From        NodeID
	To          NodeID
	Requirement string
	Kind        DepKind
}

// Graph is the result of a resolve invocation.
type Graph struct {
	// ID correlates this graph's log lines across a run; set once by
	// Resolve, zero-value on a Graph built directly by tests.
	ID uuid.UUID

	Nodes []Node
	Edges []Edge

	// Targets holds, in target-atom order, the NodeID each initial
	// target atom resolved to.
	Targets []NodeID
}

// AddNode appends a node and returns its ID.
func (g *Graph) AddNode(n Node) NodeID {
	g.Nodes = append(g.Nodes, n)
	return NodeID(len(g.Nodes) - 1)
}

// AddEdge records an edge between two existing nodes.
func (g *Graph) AddEdge(from, to NodeID, requirement string, kind DepKind) error {
	if !g.contains(from) || !g.contains(to) {
		return fmt.Errorf("resolver: edge references node outside graph: %d -> %d", from, to)
	}
	g.Edges = append(g.Edges, Edge{From: from, To: to, Requirement: requirement, Kind: kind})
	return nil
}

func (g *Graph) contains(n NodeID) bool {
	return n >= 0 && int(n) < len(g.Nodes)
}

// adjacency returns, for each node, the IDs it has an outgoing edge to,
// in edge-insertion order.
func (g *Graph) adjacency() [][]NodeID {
	adj := make([][]NodeID, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}
