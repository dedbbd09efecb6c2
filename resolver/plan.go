package resolver

import (
	"fmt"
	"sort"
)

// OpKind distinguishes the three plan operations §4.8 emits.
type OpKind int

const (
	OpAdd OpKind = iota
	OpReplace
	OpRemove
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpReplace:
		return "replace"
	case OpRemove:
		return "remove"
	}
	return "op"
}

// Op is one step of an emitted merge plan.
type Op struct {
	Kind OpKind
	Node Node
}

func (o Op) String() string {
	if o.Kind == OpReplace {
		return fmt.Sprintf("replace %s -> %s", o.Node.Installed.String(), o.Node.Pkg.String())
	}
	return fmt.Sprintf("%s %s", o.Kind, o.Node.Pkg.String())
}

// Plan linearizes g into an ordered operation list: nodes are grouped
// by strongly connected component (so a cycle is emitted as one
// contiguous block), components are topologically sorted on the
// condensation graph, and within a component nodes are emitted in
// NodeID order for determinism. A node whose selected package equals
// the installed package is elided unless forceReplacement is set.
func (r *Resolver) Plan(g *Graph) ([]Op, error) {
	comp := tarjan(g)
	numComp := 0
	for _, c := range comp {
		if c+1 > numComp {
			numComp = c + 1
		}
	}

	// compAdj points from a dependency's component to its dependent's
	// component, so that Kahn's algorithm (which processes zero
	// in-degree nodes first) emits dependency-free components first —
	// the order a merge plan needs.
	compAdj := make(map[int]map[int]bool, numComp)
	for i := 0; i < numComp; i++ {
		compAdj[i] = map[int]bool{}
	}
	for _, e := range g.Edges {
		cf, ct := comp[e.From], comp[e.To]
		if cf != ct {
			compAdj[ct][cf] = true
		}
	}

	order, err := topoSortComponents(numComp, compAdj)
	if err != nil {
		return nil, err
	}

	byComp := make([][]NodeID, numComp)
	for v, c := range comp {
		byComp[c] = append(byComp[c], NodeID(v))
	}
	for _, nodes := range byComp {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	}

	var ops []Op
	for _, c := range order {
		for _, v := range byComp[c] {
			n := g.Nodes[v]
			if n.Installed != nil {
				if n.Installed.Version.Compare(n.Pkg.Version) == 0 && !r.Flags.ForceReplacement {
					continue
				}
				ops = append(ops, Op{Kind: OpReplace, Node: n})
			} else {
				ops = append(ops, Op{Kind: OpAdd, Node: n})
			}
		}
	}
	return ops, nil
}

// topoSortComponents orders component indices so that every
// component appears after all components it depends on (Kahn's
// algorithm over the condensation graph, which is acyclic by
// construction).
func topoSortComponents(n int, adj map[int]map[int]bool) ([]int, error) {
	indeg := make([]int, n)
	for _, outs := range adj {
		for to := range outs {
			indeg[to]++
		}
	}
	var queue []int
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	sort.Ints(queue)

	var order []int
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		order = append(order, c)
		var newlyReady []int
		for to := range adj[c] {
			indeg[to]--
			if indeg[to] == 0 {
				newlyReady = append(newlyReady, to)
			}
		}
		sort.Ints(newlyReady)
		queue = append(queue, newlyReady...)
		sort.Ints(queue)
	}
	if len(order) != n {
		return nil, fmt.Errorf("resolver: condensation graph is not acyclic (got %d of %d components)", len(order), n)
	}
	return order, nil
}
