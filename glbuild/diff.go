package glbuild

import (
	"github.com/soypat/glgraph"
)

// GraphDiff describes the edit between two graph snapshots.
type GraphDiff struct {
	Added   []string
	Removed []string
	// Changed nodes differ in type, parameter values, input modes or automation.
	Changed            []string
	ConnectionsChanged bool
	// Affected holds the changed and added nodes plus every node that
	// transitively consumes one of their outputs, in declaration order of next.
	Affected []string
}

// TryIncremental reports whether an incremental compile is worth attempting
// for a graph of n nodes: connections must be unchanged and fewer than half
// of the nodes affected.
func (d GraphDiff) TryIncremental(n int) bool {
	return !d.ConnectionsChanged && 2*len(d.Affected) < n
}

// Diff compares two graph snapshots.
func Diff(prev, next *glgraph.NodeGraph) GraphDiff {
	var d GraphDiff
	prevIdx := prev.NodeIndex()
	nextIdx := next.NodeIndex()
	seed := make(map[string]bool)
	for i := range next.Nodes {
		n := &next.Nodes[i]
		pi, ok := prevIdx[n.ID]
		if !ok {
			d.Added = append(d.Added, n.ID)
			seed[n.ID] = true
		} else if nodeChanged(&prev.Nodes[pi], n, prev.Automation, next.Automation) {
			d.Changed = append(d.Changed, n.ID)
			seed[n.ID] = true
		}
	}
	for i := range prev.Nodes {
		if _, ok := nextIdx[prev.Nodes[i].ID]; !ok {
			d.Removed = append(d.Removed, prev.Nodes[i].ID)
		}
	}
	d.ConnectionsChanged = len(prev.Connections) != len(next.Connections)
	for i := 0; !d.ConnectionsChanged && i < len(next.Connections); i++ {
		d.ConnectionsChanged = prev.Connections[i] != next.Connections[i]
	}
	if prev.FinalOutputNodeID != next.FinalOutputNodeID {
		d.ConnectionsChanged = true
	}

	deps := Dependents(next)
	stack := make([]string, 0, len(seed))
	for id := range seed {
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range deps[id] {
			if !seed[dep] {
				seed[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	for i := range next.Nodes {
		if seed[next.Nodes[i].ID] {
			d.Affected = append(d.Affected, next.Nodes[i].ID)
		}
	}
	return d
}

func nodeChanged(a, b *glgraph.NodeInstance, autoA, autoB *glgraph.Automation) bool {
	if a.Type != b.Type || len(a.Parameters) != len(b.Parameters) || len(a.ParameterInputModes) != len(b.ParameterInputModes) {
		return true
	}
	for k, v := range a.Parameters {
		if w, ok := b.Parameters[k]; !ok || !v.Equal(w) {
			return true
		}
	}
	for k, m := range a.ParameterInputModes {
		if b.ParameterInputModes[k] != m {
			return true
		}
	}
	var lanesA, lanesB []*glgraph.AutomationLane
	if autoA != nil {
		for i := range autoA.Lanes {
			if autoA.Lanes[i].NodeID == a.ID {
				lanesA = append(lanesA, &autoA.Lanes[i])
			}
		}
	}
	if autoB != nil {
		for i := range autoB.Lanes {
			if autoB.Lanes[i].NodeID == b.ID {
				lanesB = append(lanesB, &autoB.Lanes[i])
			}
		}
	}
	if len(lanesA) != len(lanesB) {
		return true
	}
	for i := range lanesA {
		if !lanesA[i].Equal(lanesB[i]) {
			return true
		}
	}
	return false
}
