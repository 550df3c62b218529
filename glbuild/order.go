package glbuild

import (
	"fmt"
	"sort"
	"strings"

	"github.com/soypat/glgraph"
)

// Dependents returns, for every node of g, the nodes that consume one of its
// outputs through a port or parameter connection. Connections from virtual
// sources or referencing missing nodes are ignored. Lists are in connection order.
func Dependents(g *glgraph.NodeGraph) map[string][]string {
	idx := g.NodeIndex()
	deps := make(map[string][]string, len(g.Nodes))
	for _, c := range g.Connections {
		_, srcOK := idx[c.SourceNodeID]
		_, dstOK := idx[c.TargetNodeID]
		if !srcOK || !dstOK {
			continue
		}
		deps[c.SourceNodeID] = append(deps[c.SourceNodeID], c.TargetNodeID)
	}
	return deps
}

// ExecutionOrder orders the nodes of g so that every node comes after all
// nodes it depends on through port connections (data) or parameter
// connections (the target's code references the source's output variable).
// Independent nodes keep their declaration order.
//
// Cycles are not an error: the nodes on or behind a cycle are appended in
// declaration order and a warning is returned. The resulting program may
// render incorrectly but still builds.
func ExecutionOrder(g *glgraph.NodeGraph) (order []string, warnings []string) {
	idx := g.NodeIndex()
	n := len(g.Nodes)
	indeg := make([]int, n)
	out := make([][]int, n)
	for _, c := range g.Connections {
		src, srcOK := idx[c.SourceNodeID]
		dst, dstOK := idx[c.TargetNodeID]
		if !srcOK || !dstOK {
			continue // Virtual sources arrive through uniforms, no ordering obligation.
		}
		out[src] = append(out[src], dst)
		indeg[dst]++
	}
	// ready is kept sorted by declaration index so ties resolve deterministically.
	var ready []int
	for i := 0; i < n; i++ {
		if indeg[i] == 0 && idx[g.Nodes[i].ID] == i {
			ready = append(ready, i)
		}
	}
	done := make([]bool, n)
	order = make([]string, 0, n)
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		done[cur] = true
		order = append(order, g.Nodes[cur].ID)
		for _, next := range out[cur] {
			indeg[next]--
			if indeg[next] == 0 {
				at := sort.SearchInts(ready, next)
				ready = append(ready, 0)
				copy(ready[at+1:], ready[at:])
				ready[at] = next
			}
		}
	}
	var cyclic []string
	for i := 0; i < n; i++ {
		if !done[i] && idx[g.Nodes[i].ID] == i {
			cyclic = append(cyclic, g.Nodes[i].ID)
		}
	}
	if len(cyclic) > 0 {
		warnings = append(warnings, fmt.Sprintf("cycle detected among nodes [%s]: falling back to declaration order for them", strings.Join(cyclic, " ")))
		order = append(order, cyclic...)
	}
	return order, warnings
}
