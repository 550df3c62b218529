package glbuild

import (
	"math"
	"sort"

	"github.com/soypat/glgraph"
)

// StructuralHash hashes everything in g that determines the generated code.
// Values of parameters fed through uniforms are excluded, so two graphs that
// differ only in such values share a program and the change can be applied
// by setting uniforms. Runtime-only values are included since they are baked.
func (c *Compiler) StructuralHash(g *glgraph.NodeGraph) uint64 {
	var h hasher
	h.str(g.FinalOutputNodeID)
	for i := range g.Nodes {
		node := &g.Nodes[i]
		h.str(node.ID)
		h.str(node.Type)
		var spec *glgraph.NodeSpec
		if c.Catalog != nil {
			spec, _ = c.Catalog.Spec(node.Type)
		}
		if spec == nil {
			for _, name := range sortedKeys(node.Parameters) {
				h.str(name)
				h.str(node.Parameters[name].GoString())
			}
		} else {
			for _, p := range spec.Params {
				h.str(p.Name)
				if UniformEligible(p, spec.Type, c.RuntimeOnly, false) {
					continue
				}
				if v, ok := node.Param(p.Name); ok {
					h.str(v.GoString())
				}
			}
		}
		for _, name := range sortedKeys(node.ParameterInputModes) {
			h.str(name)
			h.str(string(node.ParameterInputModes[name]))
		}
	}
	for _, conn := range g.Connections {
		hashConnection(&h, conn)
	}
	if g.Automation != nil {
		for _, lane := range g.Automation.Lanes {
			h.str(lane.ID)
			h.str(lane.NodeID)
			h.str(lane.ParamName)
			for _, kf := range lane.Keyframes {
				h.u64(uint64(math.Float32bits(kf.Time))<<32 | uint64(math.Float32bits(kf.Value)))
				h.str(string(kf.Ease))
			}
		}
	}
	return h.h
}

// layoutHash covers what every chunk may depend on besides its own node:
// names, connections, audio bindings, the final output and which parameters
// are automated.
func (b *build) layoutHash() uint64 {
	h := hasher{h: b.names.Hash()}
	h.str(b.final)
	for _, conn := range b.g.Connections {
		hashConnection(&h, conn)
	}
	if b.audio != nil {
		h.str(b.audio.PrimaryFileNodeID)
		for _, s := range b.audio.Signals {
			h.str(s.ID)
			h.str(s.Uniform)
		}
	}
	if b.g.Automation != nil {
		h.u64(1)
		for _, lane := range b.g.Automation.Lanes {
			h.str(lane.ID)
			h.str(lane.NodeID)
			h.str(lane.ParamName)
		}
	}
	return h.h
}

func hashConnection(h *hasher, c glgraph.Connection) {
	h.str(c.ID)
	h.str(c.SourceNodeID)
	h.str(c.SourcePort)
	h.str(c.TargetNodeID)
	h.str(c.TargetPort)
	h.str(c.TargetParameter)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
