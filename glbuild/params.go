package glbuild

import (
	"strconv"

	"github.com/chewxy/math32"
	"github.com/soypat/glgraph"
)

// Automator is the automation collaborator of a compile. It names the GLSL
// evaluator function of the lane bound to a node parameter and emits each
// evaluator once per program.
type Automator interface {
	// EvaluatorName returns the name of the function evaluating the lane
	// bound to the node parameter. The function takes timeline time.
	EvaluatorName(nodeID, param string) (string, bool)
	// AppendEvaluators appends the definition of every lane evaluator.
	AppendEvaluators(dst []byte) []byte
}

// CombineExpr combines a parameter's configured value expression with a
// connected input value expression under mode. For ParamInt the input is
// expected as a float expression so scaling an integer by a fractional
// signal behaves as expected.
func CombineExpr(configValueExpr, inputValueExpr string, mode glgraph.InputMode, paramType glgraph.ParamType) string {
	var op string
	switch mode {
	case glgraph.ModeAdd:
		op = " + "
	case glgraph.ModeSubtract:
		op = " - "
	case glgraph.ModeMultiply:
		op = " * "
	default:
		return inputValueExpr
	}
	if paramType == glgraph.ParamInt {
		return "int(float(" + configValueExpr + ")" + op + inputValueExpr + ")"
	}
	return "(" + configValueExpr + op + inputValueExpr + ")"
}

// EffectiveMode returns the input mode of a connected parameter: the node's
// explicit mode, else the catalog default, else override.
func EffectiveMode(node *glgraph.NodeInstance, p glgraph.ParamSpec) glgraph.InputMode {
	if m, ok := node.ParameterInputModes[p.Name]; ok && m.Valid() {
		return m
	}
	if p.DefaultInputMode.Valid() {
		return p.DefaultInputMode
	}
	return glgraph.ModeOverride
}

// ParamExprs holds the synthesized expression of every parameter of a node.
type ParamExprs struct {
	Exprs map[string]string
	// HasInputConnections is set when any parameter of the node has a live connection.
	HasInputConnections bool
}

// paramExprs synthesizes the expression of every declared parameter of node.
func (b *build) paramExprs(node *glgraph.NodeInstance, spec *glgraph.NodeSpec, cw *chunkWriter) ParamExprs {
	pe := ParamExprs{Exprs: make(map[string]string, len(spec.Params))}
	for _, p := range spec.Params {
		expr, connected := b.paramExpr(node, spec, p, cw)
		pe.Exprs[p.Name] = expr
		pe.HasInputConnections = pe.HasInputConnections || connected
	}
	return pe
}

// paramExpr returns the GLSL expression of parameter p of node. Precedence:
// automation lane, then unconnected uniform (or baked value), then override
// connection, then add/subtract/multiply combination.
func (b *build) paramExpr(node *glgraph.NodeInstance, spec *glgraph.NodeSpec, p glgraph.ParamSpec, cw *chunkWriter) (expr string, connected bool) {
	conn, connected := b.paramConns[portKey{node.ID, p.Name}]
	glslType, numeric := p.Type.GLSLType()
	if connected && !numeric {
		cw.warnf("node %q: connection %q to %s parameter %q ignored", node.ID, conn.ID, p.Type, p.Name)
		connected = false
	}
	if b.auto != nil {
		if fn, ok := b.auto.EvaluatorName(node.ID, p.Name); ok {
			return convertExpr(fn+"("+UniformTimelineTime+")", "float", glslType), connected
		}
	}
	if !connected {
		return b.baseExpr(node, spec, p, cw), false
	}
	input, inType, ok := b.sourceExpr(conn, cw)
	if !ok {
		return b.baseExpr(node, spec, p, cw), false
	}
	mode := EffectiveMode(node, p)
	if mode == glgraph.ModeOverride {
		return convertExpr(input, inType, glslType), true
	}
	if p.Type == glgraph.ParamInt {
		input = convertExpr(input, inType, "float")
	} else {
		input = convertExpr(input, inType, glslType)
	}
	return CombineExpr(b.baseExpr(node, spec, p, cw), input, mode, p.Type), true
}

// baseExpr is the expression of the parameter's configured value: its
// uniform, or the value baked into code when the parameter is not uniform eligible.
func (b *build) baseExpr(node *glgraph.NodeInstance, spec *glgraph.NodeSpec, p glgraph.ParamSpec, cw *chunkWriter) string {
	runtimeOnly := b.c.RuntimeOnly != nil && b.c.RuntimeOnly(spec.Type, p.Name)
	if _, numeric := p.Type.GLSLType(); numeric && !runtimeOnly {
		return b.names.Uniform(node.ID, p.Name)
	}
	v := b.paramValue(node, p, cw)
	switch p.Type {
	case glgraph.ParamArray:
		name := b.names.Const(node.ID, p.Name)
		vals := v.Floats()
		if len(vals) == 0 {
			cw.warnf("node %q: empty array parameter %q baked as single zero", node.ID, p.Name)
			vals = []float32{0}
		}
		cw.decls = AppendFloatSliceDecl(cw.decls, name, vals)
		return name
	case glgraph.ParamString:
		s := v.Str()
		if s == "" {
			cw.warnf("node %q: empty string parameter %q", node.ID, p.Name)
		}
		return s
	}
	return literal(v, p.Type)
}

// paramValue returns the node's value for p or the declared default, clamped to the declared range.
func (b *build) paramValue(node *glgraph.NodeInstance, p glgraph.ParamSpec, cw *chunkWriter) glgraph.Value {
	v, ok := node.Param(p.Name)
	if !ok {
		if p.Required && cw != nil {
			cw.warnf("node %q: required parameter %q not set, using default", node.ID, p.Name)
		}
		v = p.Default
	}
	return ClampValue(p, v)
}

// ClampValue clamps a numeric value to the declared range of p. Vec4 values
// are clamped per component.
func ClampValue(p glgraph.ParamSpec, v glgraph.Value) glgraph.Value {
	if p.Min == nil && p.Max == nil {
		return v
	}
	var lo, hi float32 = -math32.MaxFloat32, math32.MaxFloat32
	if p.Min != nil {
		lo = *p.Min
	}
	if p.Max != nil {
		hi = *p.Max
	}
	clamp := func(f float32) float32 { return math32.Min(math32.Max(f, lo), hi) }
	switch p.Type {
	case glgraph.ParamFloat, glgraph.ParamInt:
		return glgraph.Float(clamp(v.Float32()))
	case glgraph.ParamVec4:
		c := v.Vec4()
		return glgraph.Vec4(clamp(c[0]), clamp(c[1]), clamp(c[2]), clamp(c[3]))
	}
	return v
}

// literal formats a numeric value as a GLSL literal of the parameter type.
func literal(v glgraph.Value, t glgraph.ParamType) string {
	switch t {
	case glgraph.ParamInt:
		return strconv.Itoa(int(math32.Round(v.Float32())))
	case glgraph.ParamVec4:
		return string(AppendVec4(nil, v.Vec4()))
	}
	return string(AppendFloat(nil, '-', '.', v.Float32()))
}

// sourceExpr resolves the value a connection carries. Ordinary nodes resolve
// through the output variable table, virtual sources and the primary audio
// file through the uniform table.
func (b *build) sourceExpr(c glgraph.Connection, cw *chunkWriter) (expr, glslType string, ok bool) {
	if glgraph.IsVirtualNodeID(c.SourceNodeID) {
		if _, bound := b.audio.Signal(c.SourceNodeID); !bound {
			cw.warnf("connection %q: no audio binding for %q, uniform stays at zero", c.ID, c.SourceNodeID)
		}
		return b.names.SignalUniform(c.SourceNodeID), "float", true
	}
	spec := b.specs[c.SourceNodeID]
	if spec == nil {
		cw.warnf("connection %q: source node %q unavailable", c.ID, c.SourceNodeID)
		return "", "", false
	}
	port, found := spec.OutputPort(c.SourcePort)
	if !found && c.SourcePort == "" && len(spec.Outputs) > 0 {
		port, found = spec.Outputs[0], true
	}
	if !found {
		cw.warnf("connection %q: node %q (%s) has no output %q", c.ID, c.SourceNodeID, spec.Type, c.SourcePort)
		return "", "", false
	}
	if c.SourceNodeID == b.primary {
		return b.names.OutputUniform(c.SourceNodeID, port.Name), port.Type, true
	}
	if spec.Kind != glgraph.KindNode {
		cw.warnf("connection %q: %s node %q can only feed %s ports", c.ID, spec.Kind, c.SourceNodeID, spec.Kind)
		return "", "", false
	}
	return b.names.Variable(c.SourceNodeID, port.Name), port.Type, true
}

// overridden reports whether parameter p of node is fully replaced by an override connection.
func (b *build) overridden(node *glgraph.NodeInstance, p glgraph.ParamSpec) bool {
	conn, ok := b.paramConns[portKey{node.ID, p.Name}]
	if !ok || EffectiveMode(node, p) != glgraph.ModeOverride {
		return false
	}
	if _, numeric := p.Type.GLSLType(); !numeric {
		return false
	}
	if glgraph.IsVirtualNodeID(conn.SourceNodeID) {
		return true
	}
	spec := b.specs[conn.SourceNodeID]
	if spec == nil {
		return false
	}
	if conn.SourceNodeID == b.primary {
		return true
	}
	_, found := spec.OutputPort(conn.SourcePort)
	found = found || (conn.SourcePort == "" && len(spec.Outputs) > 0)
	return found && spec.Kind == glgraph.KindNode
}
