package glbuild

import (
	"slices"

	"github.com/soypat/glgraph"
)

// CompileIncremental compiles g reusing the per-node code of prev for every
// node not listed in affected. It returns nil whenever reuse cannot be proven
// equivalent to a full compile: prev missing or failed, a different naming
// table, connections, audio bindings, final output or execution order, or a
// node without a previous chunk. Callers fall back to [Compiler.Compile].
//
// affected must contain every node whose own code may have changed and every
// node consuming one of their outputs, as computed by [Diff].
func (c *Compiler) CompileIncremental(prev *glgraph.CompilationResult, g *glgraph.NodeGraph, audio *glgraph.AudioSetup, affected []string) *glgraph.CompilationResult {
	if !prev.OK() || len(prev.Chunks) == 0 {
		return nil
	}
	res, b := c.begin(g, audio)
	if b == nil || res.Metadata.LayoutHash != prev.Metadata.LayoutHash ||
		!slices.Equal(b.order, prev.Metadata.ExecutionOrder) {
		return nil
	}
	regen := make(map[string]bool, len(affected))
	for _, id := range affected {
		regen[id] = true
	}
	reused := 0
	for _, id := range b.order {
		if regen[id] {
			res.Chunks[id] = b.nodeChunk(id)
			continue
		}
		ch, ok := prev.Chunks[id]
		if !ok {
			return nil
		}
		res.Chunks[id] = ch
		reused++
	}
	b.finish(res)
	res.Metadata.Incremental = true
	glgraph.Logger().Debug("incremental compile", "regenerated", len(b.order)-reused, "reused", reused)
	return res
}
