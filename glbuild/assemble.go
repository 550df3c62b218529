package glbuild

import (
	"fmt"
	"strings"

	"github.com/soypat/glgraph"
)

// Compiler compiles node graphs into GLSL fragment programs. A Compiler is
// safe for concurrent use as long as its fields are not modified.
type Compiler struct {
	Catalog glgraph.Catalog
	// RuntimeOnly names parameters handled outside the shader. May be nil.
	RuntimeOnly RuntimeOnlyPolicy
	// Automation builds the automation collaborator of a graph. When nil,
	// automation lanes of compiled graphs are ignored with a warning.
	Automation func(*glgraph.Automation) Automator
}

type portKey struct {
	node, name string
}

// build is the state of a single compile.
type build struct {
	c       *Compiler
	g       *glgraph.NodeGraph
	audio   *glgraph.AudioSetup
	names   *Namer
	auto    Automator
	primary string
	final   string
	order   []string
	nodes   map[string]*glgraph.NodeInstance
	specs   map[string]*glgraph.NodeSpec // Nil for unknown types.
	// First connection per target port or parameter. Later duplicates are warned about.
	portConns  map[portKey]glgraph.Connection
	paramConns map[portKey]glgraph.Connection
	connWarns  map[string][]string
	fragments  map[string]Fragment
}

type chunkWriter struct {
	decls    []byte
	warnings []string
	errors   []string
	nested   map[string]bool // Nested functions already emitted in this chunk.
}

func (cw *chunkWriter) warnf(format string, args ...any) {
	cw.warnings = append(cw.warnings, fmt.Sprintf(format, args...))
}

func (cw *chunkWriter) errorf(format string, args ...any) {
	cw.errors = append(cw.errors, fmt.Sprintf(format, args...))
}

// Compile compiles g into a fragment program. audio may be nil.
// The returned result is never nil; compile failures are reported in
// Metadata.Errors and such a result must not be applied.
func (c *Compiler) Compile(g *glgraph.NodeGraph, audio *glgraph.AudioSetup) *glgraph.CompilationResult {
	res, b := c.begin(g, audio)
	if b == nil {
		return res
	}
	for _, id := range b.order {
		res.Chunks[id] = b.nodeChunk(id)
	}
	b.finish(res)
	return res
}

// begin validates the inputs and computes everything shared by full and
// incremental compiles. A nil build means res holds the errors.
func (c *Compiler) begin(g *glgraph.NodeGraph, audio *glgraph.AudioSetup) (*glgraph.CompilationResult, *build) {
	res := &glgraph.CompilationResult{Chunks: make(map[string]glgraph.Chunk)}
	md := &res.Metadata
	if c.Catalog == nil {
		md.Errors = append(md.Errors, "compiler has no node catalog")
		return res, nil
	}
	if err := g.Validate(); err != nil {
		md.Errors = append(md.Errors, strings.Split(err.Error(), "\n")...)
		return res, nil
	}
	b := &build{
		c:          c,
		g:          g,
		audio:      audio,
		names:      NewNamer(g, c.Catalog, audio),
		nodes:      make(map[string]*glgraph.NodeInstance, len(g.Nodes)),
		specs:      make(map[string]*glgraph.NodeSpec, len(g.Nodes)),
		portConns:  make(map[portKey]glgraph.Connection),
		paramConns: make(map[portKey]glgraph.Connection),
		connWarns:  make(map[string][]string),
		fragments:  make(map[string]Fragment),
	}
	if audio != nil {
		b.primary = audio.PrimaryFileNodeID
	}
	for i := range g.Nodes {
		node := &g.Nodes[i]
		b.nodes[node.ID] = node
		spec, ok := c.Catalog.Spec(node.Type)
		if ok {
			b.specs[node.ID] = spec
		}
	}
	for _, conn := range g.Connections {
		table, key := b.portConns, portKey{conn.TargetNodeID, conn.TargetPort}
		if conn.IsParameter() {
			table, key = b.paramConns, portKey{conn.TargetNodeID, conn.TargetParameter}
		}
		if prev, dup := table[key]; dup {
			b.connWarns[conn.TargetNodeID] = append(b.connWarns[conn.TargetNodeID],
				fmt.Sprintf("connection %q ignored: %q already feeds %s.%s", conn.ID, prev.ID, key.node, key.name))
			continue
		}
		if spec := b.specs[conn.TargetNodeID]; spec != nil {
			if conn.IsParameter() {
				if _, ok := spec.Param(key.name); !ok {
					b.connWarns[conn.TargetNodeID] = append(b.connWarns[conn.TargetNodeID],
						fmt.Sprintf("connection %q targets unknown parameter %s.%s", conn.ID, key.node, key.name))
					continue
				}
			} else if _, ok := spec.Input(key.name); !ok {
				b.connWarns[conn.TargetNodeID] = append(b.connWarns[conn.TargetNodeID],
					fmt.Sprintf("connection %q targets unknown input %s.%s", conn.ID, key.node, key.name))
				continue
			}
		}
		table[key] = conn
	}

	var orderWarnings []string
	b.order, orderWarnings = ExecutionOrder(g)
	md.ExecutionOrder = b.order
	md.Warnings = append(md.Warnings, orderWarnings...)

	if g.Automation != nil && len(g.Automation.Lanes) > 0 {
		if c.Automation == nil {
			md.Warnings = append(md.Warnings, "graph has automation lanes but compiler has no automation support: lanes ignored")
		} else {
			b.auto = c.Automation(g.Automation)
		}
		for _, lane := range g.Automation.Lanes {
			spec := b.specs[lane.NodeID]
			if spec == nil {
				md.Warnings = append(md.Warnings, fmt.Sprintf("automation lane %q: node %q not found", lane.ID, lane.NodeID))
			} else if p, ok := spec.Param(lane.ParamName); !ok {
				md.Warnings = append(md.Warnings, fmt.Sprintf("automation lane %q: node %q has no parameter %q", lane.ID, lane.NodeID, lane.ParamName))
			} else if _, numeric := p.Type.GLSLType(); !numeric {
				md.Warnings = append(md.Warnings, fmt.Sprintf("automation lane %q: %s parameter %q cannot be automated", lane.ID, p.Type, lane.ParamName))
			}
		}
	}

	b.final = g.FinalOutputNodeID
	if b.final == "" {
		for _, node := range g.Nodes {
			if spec := b.specs[node.ID]; spec != nil && spec.Output {
				b.final = node.ID
				break
			}
		}
	}
	md.FinalOutputNodeID = b.final

	md.Nodes = make([]glgraph.NodeInfo, len(g.Nodes))
	for i := range g.Nodes {
		node := &g.Nodes[i]
		md.Nodes[i].ID = node.ID
		if spec := b.specs[node.ID]; spec != nil {
			for _, p := range spec.Params {
				if _, ok := b.paramConns[portKey{node.ID, p.Name}]; ok {
					md.Nodes[i].HasInputConnections = true
					break
				}
			}
		}
	}
	md.StructuralHash = c.StructuralHash(g)
	md.LayoutHash = b.layoutHash()
	return res, b
}

func (b *build) fragment(spec *glgraph.NodeSpec) Fragment {
	f, ok := b.fragments[spec.Type]
	if !ok {
		f = ParseFragment(spec.Code)
		b.fragments[spec.Type] = f
	}
	return f
}

// nodeChunk emits the code of one node.
func (b *build) nodeChunk(id string) glgraph.Chunk {
	var cw chunkWriter
	cw.warnings = append(cw.warnings, b.connWarns[id]...)
	node, spec := b.nodes[id], b.specs[id]
	switch {
	case spec == nil:
		cw.errorf("node %q: unknown node type %q", id, node.Type)
		return cw.chunk(nil)
	case id == b.primary:
		return cw.chunk(nil) // Outputs are supplied as uniforms.
	case spec.Kind != glgraph.KindNode:
		if !b.hasNestedConsumer(id) {
			cw.warnf("%s node %q feeds no host and is not evaluated", spec.Kind, id)
		}
		return cw.chunk(nil)
	}
	pe := b.paramExprs(node, spec, &cw)
	code, err := b.fragment(spec).Append(nil, b.filler(node, spec, pe, &cw, []string{id}))
	if err != nil {
		cw.errorf("node %q (%s): %s", id, spec.Type, err)
	}
	body := make([]byte, 0, len(code)+64)
	body = append(body, "\t// "...)
	body = append(body, id...)
	body = append(body, " ("...)
	body = append(body, spec.Type...)
	body = append(body, ")\n\t{\n"...)
	body = indent(body, "\t\t", string(code))
	body = append(body, "\t}\n"...)
	return cw.chunk(body)
}

func (cw *chunkWriter) chunk(body []byte) glgraph.Chunk {
	return glgraph.Chunk{
		Decls:    string(cw.decls),
		Body:     string(body),
		Warnings: cw.warnings,
		Errors:   cw.errors,
	}
}

func (b *build) hasNestedConsumer(id string) bool {
	for key, conn := range b.portConns {
		if conn.SourceNodeID != id {
			continue
		}
		if spec := b.specs[key.node]; spec != nil {
			if port, ok := spec.Input(key.name); ok && (port.Type == glgraph.PortSDF || port.Type == glgraph.PortExpr) {
				return true
			}
		}
	}
	return false
}

// filler resolves the slots of the template of node. stack holds the nodes
// whose code is being generated, outermost first, to detect recursive nesting.
func (b *build) filler(node *glgraph.NodeInstance, spec *glgraph.NodeSpec, pe ParamExprs, cw *chunkWriter, stack []string) SlotFiller {
	return func(kind SlotKind, name string) (string, string, error) {
		switch kind {
		case SlotParam:
			expr, ok := pe.Exprs[name]
			if !ok {
				return "", "0.0", fmt.Errorf("node type %q declares no such parameter", spec.Type)
			}
			return expr, "", nil
		case SlotOutput:
			port, ok := spec.OutputPort(name)
			if !ok {
				return "", "_unused_" + SanitizeIdentifier(name), fmt.Errorf("node type %q declares no such output", spec.Type)
			}
			return b.names.Variable(node.ID, port.Name), "", nil
		case SlotInput:
			port, ok := spec.Input(name)
			if !ok {
				return "", "0.0", fmt.Errorf("node type %q declares no such input", spec.Type)
			}
			return b.inputExpr(node, spec, port, pe, cw, stack)
		}
		return "", "", fmt.Errorf("unknown slot kind %d", kind)
	}
}

func (b *build) inputExpr(node *glgraph.NodeInstance, spec *glgraph.NodeSpec, port glgraph.PortSpec, pe ParamExprs, cw *chunkWriter, stack []string) (string, string, error) {
	switch port.Type {
	case glgraph.PortSDF:
		name, err := b.nestedSDF(node, spec, port, pe, cw, stack)
		return name, "", err
	case glgraph.PortExpr:
		return b.nestedExpr(node, port, pe, cw, stack)
	}
	if conn, ok := b.portConns[portKey{node.ID, port.Name}]; ok {
		if expr, typ, ok := b.sourceExpr(conn, cw); ok {
			return convertExpr(expr, typ, port.Type), "", nil
		}
	}
	return b.portDefault(port, pe)
}

// portDefault fills the default expression of an unconnected input. Defaults
// may only reference parameters of the node.
func (b *build) portDefault(port glgraph.PortSpec, pe ParamExprs) (string, string, error) {
	zero := zeroExpr(port.Type)
	if port.Default == "" {
		return zero, "", nil
	}
	expr, err := ParseFragment(port.Default).Append(nil, func(kind SlotKind, name string) (string, string, error) {
		if kind != SlotParam {
			return "", zero, fmt.Errorf("input default may only reference parameters")
		}
		expr, ok := pe.Exprs[name]
		if !ok {
			return "", zero, fmt.Errorf("no such parameter")
		}
		return expr, "", nil
	})
	if err != nil {
		return "", zero, fmt.Errorf("default of input %q: %w", port.Name, err)
	}
	return string(expr), "", nil
}

func (b *build) nestedSource(host *glgraph.NodeInstance, port glgraph.PortSpec, want glgraph.NodeKind, cw *chunkWriter, stack []string) (*glgraph.NodeInstance, *glgraph.NodeSpec, error) {
	conn, ok := b.portConns[portKey{host.ID, port.Name}]
	if !ok {
		return nil, nil, nil
	}
	src, spec := b.nodes[conn.SourceNodeID], b.specs[conn.SourceNodeID]
	if spec == nil {
		cw.warnf("connection %q: source %q of %s port %s.%s unavailable", conn.ID, conn.SourceNodeID, port.Type, host.ID, port.Name)
		return nil, nil, nil
	}
	if spec.Kind != want {
		cw.warnf("connection %q: %s port %s.%s needs a %s node, got %q (%s)", conn.ID, port.Type, host.ID, port.Name, want, src.ID, spec.Type)
		return nil, nil, nil
	}
	for _, id := range stack {
		if id == src.ID {
			return nil, nil, fmt.Errorf("recursive nesting through node %q", src.ID)
		}
	}
	return src, spec, nil
}

// nestedSDF emits the distance function feeding an sdf port of host and
// returns its name. The function body is the code of the connected SDF node
// with its own nested inputs emitted recursively before it.
func (b *build) nestedSDF(host *glgraph.NodeInstance, hostSpec *glgraph.NodeSpec, port glgraph.PortSpec, pe ParamExprs, cw *chunkWriter, stack []string) (string, error) {
	fam := SanitizeIdentifier(hostSpec.FamilyName())
	name := fam + "_" + SanitizeIdentifier(port.Name) + "_" + b.names.ID(host.ID)
	if cw.nested[name] {
		return name, nil
	}
	src, srcSpec, err := b.nestedSource(host, port, glgraph.KindSDF, cw, stack)
	if err != nil {
		return name, err
	}
	var fn []byte
	fn = append(fn, "float "...)
	fn = append(fn, name...)
	fn = append(fn, "(vec3 p) {\n"...)
	switch {
	case src == nil:
		def, _, err := b.portDefault(glgraph.PortSpec{Name: port.Name, Type: "float", Default: port.Default}, pe)
		if err != nil {
			return name, err
		}
		if port.Default == "" {
			def = "1e10" // Empty scene: the ray never hits.
		}
		fn = append(fn, "\treturn "...)
		fn = append(fn, def...)
		fn = append(fn, ";\n"...)
	case len(srcSpec.Outputs) == 0:
		return name, fmt.Errorf("sdf node type %q declares no output", srcSpec.Type)
	default:
		for _, out := range srcSpec.Outputs {
			fn = append(fn, '\t')
			fn = append(fn, out.Type...)
			fn = append(fn, ' ')
			fn = append(fn, b.names.Variable(src.ID, out.Name)...)
			fn = append(fn, ";\n"...)
		}
		srcPE := b.paramExprs(src, srcSpec, cw)
		code, err := b.fragment(srcSpec).Append(nil, b.filler(src, srcSpec, srcPE, cw, append(stack, src.ID)))
		if err != nil {
			cw.errorf("node %q (%s) nested in %q: %s", src.ID, srcSpec.Type, host.ID, err)
		}
		fn = indent(fn, "\t", string(code))
		fn = append(fn, "\treturn "...)
		fn = append(fn, b.names.Variable(src.ID, srcSpec.Outputs[0].Name)...)
		fn = append(fn, ";\n"...)
	}
	fn = append(fn, "}\n\n"...)
	if cw.nested == nil {
		cw.nested = make(map[string]bool)
	}
	cw.nested[name] = true
	cw.decls = append(cw.decls, fn...)
	return name, nil
}

// nestedExpr inlines the expression of the node connected to an expr port.
func (b *build) nestedExpr(host *glgraph.NodeInstance, port glgraph.PortSpec, pe ParamExprs, cw *chunkWriter, stack []string) (string, string, error) {
	src, srcSpec, err := b.nestedSource(host, port, glgraph.KindExpr, cw, stack)
	if err != nil {
		return "", "0.0", err
	}
	if src == nil {
		def, fallback, err := b.portDefault(glgraph.PortSpec{Name: port.Name, Type: "float", Default: port.Default}, pe)
		return def, fallback, err
	}
	srcPE := b.paramExprs(src, srcSpec, cw)
	code, err := b.fragment(srcSpec).Append(nil, b.filler(src, srcSpec, srcPE, cw, append(stack, src.ID)))
	if err != nil {
		return "", "0.0", fmt.Errorf("node %q (%s): %w", src.ID, srcSpec.Type, err)
	}
	return "(" + strings.TrimSpace(string(code)) + ")", "", nil
}

// finish assembles the program from the chunks in res, in execution order.
func (b *build) finish(res *glgraph.CompilationResult) {
	md := &res.Metadata
	var fs functionSet
	fs.reset()
	var decls, bodies, globals []byte
	for _, id := range b.order {
		ch := res.Chunks[id]
		md.Warnings = append(md.Warnings, ch.Warnings...)
		md.Errors = append(md.Errors, ch.Errors...)
		decls = append(decls, ch.Decls...)
		bodies = append(bodies, ch.Body...)
		spec := b.specs[id]
		if spec == nil || id == b.primary {
			continue
		}
		for _, def := range spec.Functions {
			if err := fs.add(def); err != nil {
				md.Errors = append(md.Errors, fmt.Sprintf("node %q (%s): %s", id, spec.Type, err))
			}
		}
		if spec.Kind != glgraph.KindNode {
			continue
		}
		for _, out := range spec.Outputs {
			globals = append(globals, out.Type...)
			globals = append(globals, ' ')
			globals = append(globals, b.names.Variable(id, out.Name)...)
			globals = append(globals, ";\n"...)
		}
	}
	if len(globals) > 0 {
		globals = append(globals, '\n')
	}

	var program []byte
	program = append(program, fs.buf...)
	if b.auto != nil {
		program = b.auto.AppendEvaluators(program)
	}
	program = append(program, globals...)
	program = append(program, decls...)
	program = append(program, "void main() {\n"...)
	program = append(program, bodies...)
	program = append(program, "\tfragColor = "...)
	program = append(program, b.finalExpr(md)...)
	program = append(program, ";\n}\n"...)

	used := identifiers(program)
	res.Uniforms = res.Uniforms[:0]
	res.Uniforms = append(res.Uniforms,
		glgraph.UniformMetadata{Name: UniformTime, Type: "float", Default: glgraph.Float(0)},
		glgraph.UniformMetadata{Name: UniformResolution, Type: "vec2", Default: glgraph.Array(0, 0)},
		glgraph.UniformMetadata{Name: UniformTimelineTime, Type: "float", Default: glgraph.Float(0)},
	)
	for _, u := range b.uniformCandidates() {
		if _, ok := used[u.Name]; ok {
			res.Uniforms = append(res.Uniforms, u)
		}
	}

	var code []byte
	code = append(code, VersionStr...)
	code = append(code, "\nout vec4 fragColor;\n\n"...)
	for _, u := range res.Uniforms {
		code = append(code, "uniform "...)
		code = append(code, u.Type...)
		code = append(code, ' ')
		code = append(code, u.Name...)
		code = append(code, ";\n"...)
	}
	code = append(code, '\n')
	code = append(code, program...)
	res.ShaderCode = string(code)
	if HasPlaceholder(res.ShaderCode) {
		md.Errors = append(md.Errors, "generated code contains an unresolved placeholder")
	}
}

func (b *build) finalExpr(md *glgraph.Metadata) string {
	const fallback = "vec4(0.0)"
	if b.final == "" {
		md.Errors = append(md.Errors, "graph has no final output node")
		return fallback
	}
	node, spec := b.nodes[b.final], b.specs[b.final]
	switch {
	case node == nil:
		md.Errors = append(md.Errors, fmt.Sprintf("final output node %q not found", b.final))
		return fallback
	case spec == nil:
		return fallback // Unknown type already reported by its chunk.
	case len(spec.Outputs) == 0:
		md.Errors = append(md.Errors, fmt.Sprintf("final output node %q (%s) has no outputs", b.final, spec.Type))
		return fallback
	case b.final == b.primary:
		out := spec.Outputs[0]
		return convertExpr(b.names.OutputUniform(b.final, out.Name), out.Type, "vec4")
	case spec.Kind != glgraph.KindNode:
		md.Errors = append(md.Errors, fmt.Sprintf("final output node %q is a nested %s node", b.final, spec.Kind))
		return fallback
	}
	out := spec.Outputs[0]
	return convertExpr(b.names.Variable(b.final, out.Name), out.Type, "vec4")
}

// uniformCandidates lists every uniform the program may declare besides the
// globals, in graph order. Unreferenced ones are pruned by the caller.
func (b *build) uniformCandidates() []glgraph.UniformMetadata {
	var us []glgraph.UniformMetadata
	seen := make(map[string]bool)
	add := func(u glgraph.UniformMetadata) {
		if !seen[u.Name] {
			seen[u.Name] = true
			us = append(us, u)
		}
	}
	if b.audio != nil {
		for _, s := range b.audio.Signals {
			add(glgraph.UniformMetadata{Name: b.names.SignalUniform(s.ID), NodeID: s.ID, Type: "float", Default: glgraph.Float(s.Value)})
		}
	}
	for _, conn := range b.g.Connections {
		if glgraph.IsVirtualNodeID(conn.SourceNodeID) {
			add(glgraph.UniformMetadata{Name: b.names.SignalUniform(conn.SourceNodeID), NodeID: conn.SourceNodeID, Type: "float", Default: glgraph.Float(0)})
		}
	}
	for i := range b.g.Nodes {
		node := &b.g.Nodes[i]
		spec := b.specs[node.ID]
		if spec == nil {
			continue
		}
		if node.ID == b.primary {
			for _, out := range spec.Outputs {
				add(glgraph.UniformMetadata{Name: b.names.OutputUniform(node.ID, out.Name), NodeID: node.ID, Port: out.Name, Type: out.Type, Default: glgraph.Float(0)})
			}
			continue
		}
		for _, p := range spec.Params {
			if !UniformEligible(p, spec.Type, b.c.RuntimeOnly, b.overridden(node, p)) {
				continue
			}
			typ, _ := p.Type.GLSLType()
			def := b.paramValue(node, p, nil)
			if def.IsZero() {
				def = glgraph.Float(0)
				if p.Type == glgraph.ParamVec4 {
					def = glgraph.Vec4(0, 0, 0, 0)
				}
			}
			add(glgraph.UniformMetadata{Name: b.names.Uniform(node.ID, p.Name), NodeID: node.ID, ParamName: p.Name, Type: typ, Default: def})
		}
	}
	return us
}
