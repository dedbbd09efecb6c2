package resolver

// tarjan computes the strongly connected components of g, returning
// each node's component index (components are numbered in reverse
// topological order, the standard Tarjan output order: a component
// gets a higher index than every component its outgoing edges reach).
func tarjan(g *Graph) []int {
	n := len(g.Nodes)
	adj := g.adjacency()

	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	comp := make([]int, n)
	for i := range index {
		index[i] = -1
		comp[i] = -1
	}

	var stack []NodeID
	nextIndex := 0
	nextComp := 0

	var strongconnect func(v NodeID)
	strongconnect = func(v NodeID) {
		index[v] = nextIndex
		lowlink[v] = nextIndex
		nextIndex++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if index[w] == -1 {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp[w] = nextComp
				if w == v {
					break
				}
			}
			nextComp++
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == -1 {
			strongconnect(NodeID(v))
		}
	}
	return comp
}

// breakCycles finds every nontrivial strongly connected component
// (more than one node, or a single node with a self-edge) and checks
// that every edge strictly inside it is runtime-only per §4.8. It does
// not reorder edges: a breakable cycle's internal edges are, by
// definition, deferrable, so the existing edge list is left as-is and
// plan emission's component-level topological sort (see plan.go)
// handles linearizing the SCC as one unit.
func (r *Resolver) breakCycles(g *Graph) error {
	comp := tarjan(g)
	members := map[int][]NodeID{}
	for v, c := range comp {
		members[c] = append(members[c], NodeID(v))
	}

	for c, nodes := range members {
		hasSelfEdge := false
		if len(nodes) == 1 {
			for _, e := range g.Edges {
				if e.From == nodes[0] && e.To == nodes[0] {
					hasSelfEdge = true
				}
			}
			if !hasSelfEdge {
				continue
			}
		}
		for _, e := range g.Edges {
			if comp[e.From] != c || comp[e.To] != c {
				continue
			}
			if !e.Kind.IsRuntimeOnly() {
				if r.Flags.DropCycles {
					continue
				}
				keys := make([]NodeKey, len(nodes))
				for i, v := range nodes {
					keys[i] = g.Nodes[v].Key
				}
				return &CycleError{Nodes: keys}
			}
		}
	}
	return nil
}
