package glbuild_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/soypat/glgraph"
	"github.com/soypat/glgraph/catalog"
	"github.com/soypat/glgraph/glbuild"
)

func node(id, typ string, params map[string]glgraph.Value) glgraph.NodeInstance {
	return glgraph.NodeInstance{ID: id, Type: typ, Parameters: params}
}

func portConn(id, src, srcPort, dst, dstPort string) glgraph.Connection {
	return glgraph.Connection{ID: id, SourceNodeID: src, SourcePort: srcPort, TargetNodeID: dst, TargetPort: dstPort}
}

func paramConn(id, src, srcPort, dst, param string) glgraph.Connection {
	return glgraph.Connection{ID: id, SourceNodeID: src, SourcePort: srcPort, TargetNodeID: dst, TargetParameter: param}
}

func mustCompile(t *testing.T, g *glgraph.NodeGraph, audio *glgraph.AudioSetup) *glgraph.CompilationResult {
	t.Helper()
	res := catalog.Compiler().Compile(g, audio)
	if !res.OK() {
		t.Fatalf("compile errors: %q\n%s", res.Metadata.Errors, res.ShaderCode)
	}
	if glbuild.HasPlaceholder(res.ShaderCode) {
		t.Fatalf("placeholder in output:\n%s", res.ShaderCode)
	}
	return res
}

func hasUniform(res *glgraph.CompilationResult, name string) bool {
	for _, u := range res.Uniforms {
		if u.Name == name {
			return true
		}
	}
	return false
}

func TestSanitizeIdentifier(t *testing.T) {
	for _, test := range []struct{ in, want string }{
		{"audio-signal:bass", "audioSignalBass"},
		{"node1", "node1"},
		{"1st", "n1st"},
		{"a__b", "aB"},
		{"ümlaut", "mlaut"},
		{"---", "x"},
		{"quad-warp-2", "quadWarp2"},
	} {
		if got := glbuild.SanitizeIdentifier(test.in); got != test.want {
			t.Errorf("SanitizeIdentifier(%q)=%q want %q", test.in, got, test.want)
		}
	}
}

func TestNamerCollisions(t *testing.T) {
	g := &glgraph.NodeGraph{Nodes: []glgraph.NodeInstance{
		node("a-b", catalog.TypeConstant, nil),
		node("a_b", catalog.TypeConstant, nil),
		node("aB", catalog.TypeConstant, nil),
	}}
	n := glbuild.NewNamer(g, catalog.Default(), nil)
	got := []string{n.ID("a-b"), n.ID("a_b"), n.ID("aB")}
	want := []string{"aB", "aB_2", "aB_3"}
	if !slices.Equal(got, want) {
		t.Fatalf("ids %q want %q", got, want)
	}
	seen := make(map[string]bool)
	for _, id := range []string{"a-b", "a_b", "aB"} {
		for _, name := range []string{n.Uniform(id, "value"), n.Variable(id, "value")} {
			if seen[name] {
				t.Errorf("name %q generated twice", name)
			}
			seen[name] = true
		}
	}
	// Same graph, same names.
	n2 := glbuild.NewNamer(g, catalog.Default(), nil)
	if n.Hash() != n2.Hash() || n2.Uniform("a_b", "value") != n.Uniform("a_b", "value") {
		t.Error("namer not deterministic")
	}
}

func TestExecutionOrder(t *testing.T) {
	g := &glgraph.NodeGraph{
		Nodes: []glgraph.NodeInstance{
			node("out", catalog.TypeFinalOutput, nil),
			node("b", catalog.TypeMultiply, nil),
			node("a", catalog.TypeConstant, nil),
			node("lone", catalog.TypeConstant, nil),
		},
		Connections: []glgraph.Connection{
			portConn("c1", "b", "out", "out", "color"),
			paramConn("c2", "a", "value", "b", "a"),
			portConn("c3", "audio-signal:x", "value", "a", "in"),
		},
	}
	order, warnings := glbuild.ExecutionOrder(g)
	if want := []string{"a", "b", "out", "lone"}; !slices.Equal(order, want) {
		t.Errorf("order %q want %q", order, want)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %q", warnings)
	}

	g.Connections = append(g.Connections, paramConn("c4", "out", "color", "a", "value"))
	order, warnings = glbuild.ExecutionOrder(g)
	if want := []string{"lone", "out", "b", "a"}; !slices.Equal(order, want) {
		t.Errorf("cyclic order %q want %q", order, want)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "cycle") {
		t.Errorf("want cycle warning, got %q", warnings)
	}
}

func TestCycleStillCompiles(t *testing.T) {
	g := &glgraph.NodeGraph{
		Nodes: []glgraph.NodeInstance{
			node("m1", catalog.TypeMultiply, nil),
			node("m2", catalog.TypeMultiply, nil),
			node("out", catalog.TypeFinalOutput, nil),
		},
		Connections: []glgraph.Connection{
			portConn("c1", "m1", "out", "m2", "a"),
			portConn("c2", "m2", "out", "m1", "a"),
			portConn("c3", "m2", "out", "out", "color"),
		},
	}
	res := mustCompile(t, g, nil)
	if len(res.Metadata.Warnings) == 0 {
		t.Error("expected cycle warning")
	}
}

// Two node graph compiles to a complete program.
func TestScenarioConstantToOutput(t *testing.T) {
	g := &glgraph.NodeGraph{
		Nodes: []glgraph.NodeInstance{
			node("c", catalog.TypeConstant, map[string]glgraph.Value{"value": glgraph.Float(0.5)}),
			node("out", catalog.TypeFinalOutput, nil),
		},
		Connections: []glgraph.Connection{portConn("e1", "c", "value", "out", "color")},
	}
	res := mustCompile(t, g, nil)
	code := res.ShaderCode
	if !strings.HasPrefix(code, glbuild.VersionStr) {
		t.Error("missing version directive")
	}
	for _, want := range []string{
		"void main()",
		"uniform float uTime;",
		"uniform vec2 uResolution;",
		"uniform float uTimelineTime;",
		"uniform float uCValue;",
		"\t// c (constant)\n\t{\n\t\tnode_c_value = uCValue;\n\t}\n",
		"node_out_color = vec4(node_c_value);",
		"fragColor = node_out_color;",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("code missing %q:\n%s", want, code)
		}
	}
	u, ok := res.Uniform("c", "value")
	if !ok || u.Name != "uCValue" || u.Type != "float" || u.Default.Float32() != 0.5 {
		t.Errorf("unexpected uniform %+v", u)
	}
	if res.Metadata.FinalOutputNodeID != "out" {
		t.Errorf("final output %q", res.Metadata.FinalOutputNodeID)
	}
	if !slices.Equal(res.Metadata.ExecutionOrder, []string{"c", "out"}) {
		t.Errorf("order %q", res.Metadata.ExecutionOrder)
	}
}

// A parameter connection orders its source first and substitutes its output variable.
func TestScenarioParameterConnection(t *testing.T) {
	g := &glgraph.NodeGraph{
		Nodes: []glgraph.NodeInstance{
			node("qw", catalog.TypeQuadWarp, nil),
			node("out", catalog.TypeFinalOutput, nil),
			node("time", catalog.TypeTime, nil),
			node("mul", catalog.TypeMultiply, map[string]glgraph.Value{"b": glgraph.Float(0.1)}),
		},
		Connections: []glgraph.Connection{
			portConn("e1", "time", "time", "mul", "a"),
			paramConn("e2", "mul", "out", "qw", "quadCorner0X"),
			portConn("e3", "qw", "color", "out", "color"),
		},
	}
	res := mustCompile(t, g, nil)
	order := res.Metadata.ExecutionOrder
	if slices.Index(order, "mul") > slices.Index(order, "qw") || slices.Index(order, "time") > slices.Index(order, "mul") {
		t.Errorf("bad order %q", order)
	}
	code := res.ShaderCode
	if !strings.Contains(code, "vec2(node_mul_out, uQwQuadCorner0Y)") {
		t.Errorf("corner expression does not use multiply output:\n%s", code)
	}
	if !strings.Contains(code, "node_mul_out = node_time_time * uMulB;") {
		t.Errorf("multiply body unexpected:\n%s", code)
	}
	if hasUniform(res, "uQwQuadCorner0X") || strings.Contains(code, "uQwQuadCorner0X") {
		t.Error("overridden corner still has a uniform")
	}
	if !hasUniform(res, "uQwQuadCorner0Y") {
		t.Error("unconnected corner lost its uniform")
	}
	if info, _ := res.Node("qw"); !info.HasInputConnections {
		t.Error("qw should report input connections")
	}
	if info, _ := res.Node("mul"); info.HasInputConnections {
		t.Error("mul has no parameter connections")
	}
}

// A virtual source feeds a port, whose node feeds a parameter.
func TestScenarioVirtualSource(t *testing.T) {
	audio := &glgraph.AudioSetup{Signals: []glgraph.SignalBinding{
		{ID: "audio-signal:bass-inv", Uniform: "uAudioSignalBassInv", Value: 0.3},
	}}
	g := &glgraph.NodeGraph{
		Nodes: []glgraph.NodeInstance{
			node("om", catalog.TypeOneMinus, nil),
			node("hex", catalog.TypeHexagon, nil),
			node("out", catalog.TypeFinalOutput, nil),
		},
		Connections: []glgraph.Connection{
			portConn("e1", "audio-signal:bass-inv", "value", "om", "in"),
			paramConn("e2", "om", "out", "hex", "hexGap"),
			portConn("e3", "hex", "color", "out", "color"),
		},
	}
	res := mustCompile(t, g, audio)
	code := res.ShaderCode
	for _, want := range []string{
		"uniform float uAudioSignalBassInv;",
		"node_om_out = 1.0 - uAudioSignalBassInv;",
		"clamp(node_om_out, 0.0, 1.0)",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("code missing %q:\n%s", want, code)
		}
	}
	if hasUniform(res, "uHexHexGap") {
		t.Error("overridden hexGap still has a uniform")
	}
	var found bool
	for _, u := range res.Uniforms {
		if u.Name == "uAudioSignalBassInv" {
			found = true
			if u.NodeID != "audio-signal:bass-inv" || u.Default.Float32() != 0.3 {
				t.Errorf("unexpected signal uniform %+v", u)
			}
		}
	}
	if !found {
		t.Error("signal uniform not listed")
	}
}

func TestInputModes(t *testing.T) {
	for _, test := range []struct {
		mode     glgraph.InputMode
		expr     string
		uniformB bool
	}{
		{mode: "", expr: "node_src_value", uniformB: false},
		{mode: glgraph.ModeOverride, expr: "node_src_value", uniformB: false},
		{mode: glgraph.ModeAdd, expr: "(uMulB + node_src_value)", uniformB: true},
		{mode: glgraph.ModeSubtract, expr: "(uMulB - node_src_value)", uniformB: true},
		{mode: glgraph.ModeMultiply, expr: "(uMulB * node_src_value)", uniformB: true},
	} {
		mul := node("mul", catalog.TypeMultiply, nil)
		if test.mode != "" {
			mul.ParameterInputModes = map[string]glgraph.InputMode{"b": test.mode}
		}
		g := &glgraph.NodeGraph{
			Nodes: []glgraph.NodeInstance{
				node("src", catalog.TypeConstant, nil),
				mul,
				node("out", catalog.TypeFinalOutput, nil),
			},
			Connections: []glgraph.Connection{
				paramConn("e1", "src", "value", "mul", "b"),
				portConn("e2", "mul", "out", "out", "color"),
			},
		}
		res := mustCompile(t, g, nil)
		if want := "node_mul_out = uMulA * " + test.expr + ";"; !strings.Contains(res.ShaderCode, want) {
			t.Errorf("mode %q: code missing %q:\n%s", test.mode, want, res.ShaderCode)
		}
		if got := hasUniform(res, "uMulB"); got != test.uniformB {
			t.Errorf("mode %q: uniform uMulB present=%v want %v", test.mode, got, test.uniformB)
		}
		if !hasUniform(res, "uMulA") {
			t.Errorf("mode %q: uMulA missing", test.mode)
		}
	}
}

func TestCombineExpr(t *testing.T) {
	for _, test := range []struct {
		mode glgraph.InputMode
		typ  glgraph.ParamType
		want string
	}{
		{glgraph.ModeOverride, glgraph.ParamFloat, "in"},
		{glgraph.ModeAdd, glgraph.ParamFloat, "(base + in)"},
		{glgraph.ModeSubtract, glgraph.ParamVec4, "(base - in)"},
		{glgraph.ModeMultiply, glgraph.ParamInt, "int(float(base) * in)"},
	} {
		if got := glbuild.CombineExpr("base", "in", test.mode, test.typ); got != test.want {
			t.Errorf("CombineExpr(%s,%s)=%q want %q", test.mode, test.typ, got, test.want)
		}
	}
}

func raymarchGraph() *glgraph.NodeGraph {
	return &glgraph.NodeGraph{
		Nodes: []glgraph.NodeInstance{
			node("s", catalog.TypeSine, nil),
			node("col", catalog.TypeColor, nil),
			node("sph", catalog.TypeSphereSDF, map[string]glgraph.Value{"radius": glgraph.Float(0.8)}),
			node("box", catalog.TypeBoxSDF, nil),
			node("u", catalog.TypeUnionSDF, map[string]glgraph.Value{"smoothness": glgraph.Float(0.2)}),
			node("wob", catalog.TypeSineDisplace, nil),
			node("rm", catalog.TypeRaymarch, nil),
			node("c", catalog.TypeConstant, nil),
			node("mix", catalog.TypeMixColor, nil),
			node("out", catalog.TypeFinalOutput, nil),
		},
		Connections: []glgraph.Connection{
			paramConn("e1", "s", "out", "col", "color"),
			portConn("e2", "sph", "dist", "u", "a"),
			portConn("e3", "box", "dist", "u", "b"),
			portConn("e4", "u", "dist", "rm", "sdf"),
			portConn("e5", "wob", "", "rm", "displace"),
			portConn("e6", "rm", "color", "mix", "a"),
			portConn("e7", "col", "color", "mix", "b"),
			portConn("e8", "c", "value", "mix", "t"),
			portConn("e9", "mix", "color", "out", "color"),
		},
	}
}

func TestNestedSDF(t *testing.T) {
	res := mustCompile(t, raymarchGraph(), nil)
	code := res.ShaderCode
	for _, want := range []string{
		"float raymarch_sdf_rm(vec3 p) {",
		"float union_a_u(vec3 p) {",
		"float union_b_u(vec3 p) {",
		"node_sph_dist = length(p) - uSphRadius;",
		"glgSmoothMin(union_a_u(p), union_b_u(p), uUSmoothness)",
		"float d = raymarch_sdf_rm(p) + (sin(p.x * uWobFrequency + uTime) * sin(p.y * uWobFrequency) * uWobAmount);",
		"i < 64;",
		"node_col_color = vec4(node_s_out);",
	} {
		if c := strings.Count(code, want); c != 1 {
			t.Errorf("want %q once, got %d", want, c)
		}
	}
	for _, nested := range []string{"// sph (", "// box (", "// u (", "// wob ("} {
		if strings.Contains(code, nested) {
			t.Errorf("nested node emitted in main: %q", nested)
		}
	}
	for _, helper := range []string{"float glgBox(", "float glgSmoothMin("} {
		if c := strings.Count(code, helper); c != 1 {
			t.Errorf("helper %q emitted %d times", helper, c)
		}
	}
	if !strings.Contains(code, "uniform float uSphRadius;") || hasUniform(res, "uRmMaxSteps") {
		t.Error("bad uniform set for nested/runtime-only parameters")
	}
	// Nested functions must be defined before they are called.
	if strings.Index(code, "float union_a_u(") > strings.Index(code, "float raymarch_sdf_rm(") {
		t.Error("nested function defined after its caller")
	}
}

func TestRecursiveNestingIsError(t *testing.T) {
	g := &glgraph.NodeGraph{
		Nodes: []glgraph.NodeInstance{
			node("u1", catalog.TypeUnionSDF, nil),
			node("u2", catalog.TypeUnionSDF, nil),
			node("rm", catalog.TypeRaymarch, nil),
			node("out", catalog.TypeFinalOutput, nil),
		},
		Connections: []glgraph.Connection{
			portConn("e1", "u2", "dist", "u1", "a"),
			portConn("e2", "u1", "dist", "u2", "a"),
			portConn("e3", "u1", "dist", "rm", "sdf"),
			portConn("e4", "rm", "color", "out", "color"),
		},
	}
	res := catalog.Compiler().Compile(g, nil)
	if res.OK() {
		t.Fatal("expected error for recursive nesting")
	}
	if !strings.Contains(strings.Join(res.Metadata.Errors, "\n"), "recursive nesting") {
		t.Errorf("unexpected errors %q", res.Metadata.Errors)
	}
	if glbuild.HasPlaceholder(res.ShaderCode) {
		t.Error("placeholder leaked on error")
	}
}

func TestAllTypesPlaceholderFree(t *testing.T) {
	g := &glgraph.NodeGraph{}
	for i, spec := range catalog.Specs() {
		id := "n" + string(rune('a'+i))
		g.Nodes = append(g.Nodes, node(id, spec.Type, nil))
	}
	g.Nodes = append(g.Nodes, node("out", catalog.TypeFinalOutput, nil))
	g.FinalOutputNodeID = "out"
	res := mustCompile(t, g, nil)
	for _, u := range res.Uniforms {
		if c := strings.Count(res.ShaderCode, "uniform "+u.Type+" "+u.Name+";"); c != 1 {
			t.Errorf("uniform %s declared %d times", u.Name, c)
		}
	}
}

func TestDeterministic(t *testing.T) {
	g := raymarchGraph()
	a := mustCompile(t, g, nil)
	b := mustCompile(t, g.Clone(), nil)
	if a.ShaderCode != b.ShaderCode {
		t.Error("compiling the same graph twice produced different code")
	}
	if a.Metadata.StructuralHash != b.Metadata.StructuralHash || a.Metadata.LayoutHash != b.Metadata.LayoutHash {
		t.Error("hashes differ")
	}
}

func TestStructuralHash(t *testing.T) {
	c := catalog.Compiler()
	g := raymarchGraph()
	h0 := c.StructuralHash(g)
	g2 := g.Clone()
	g2.SetParam("sph", "radius", glgraph.Float(2))
	g2.SetParam("col", "color", glgraph.Vec4(1, 0, 0, 1))
	if c.StructuralHash(g2) != h0 {
		t.Error("uniform value change altered structural hash")
	}
	g2.SetParam("rm", "maxSteps", glgraph.Float(32))
	if c.StructuralHash(g2) == h0 {
		t.Error("runtime-only value change did not alter structural hash")
	}
	g3 := g.Clone()
	g3.Nodes[0].ParameterInputModes = map[string]glgraph.InputMode{"phase": glgraph.ModeAdd}
	if c.StructuralHash(g3) == h0 {
		t.Error("input mode change did not alter structural hash")
	}
}

func TestDiff(t *testing.T) {
	prev := raymarchGraph()
	next := prev.Clone()
	next.SetParam("rm", "maxSteps", glgraph.Float(32))
	d := glbuild.Diff(prev, next)
	if !slices.Equal(d.Changed, []string{"rm"}) || len(d.Added) != 0 || len(d.Removed) != 0 || d.ConnectionsChanged {
		t.Fatalf("unexpected diff %+v", d)
	}
	if want := []string{"rm", "mix", "out"}; !slices.Equal(d.Affected, want) {
		t.Errorf("affected %q want %q", d.Affected, want)
	}
	if !d.TryIncremental(len(next.Nodes)) {
		t.Error("small edit should try incremental")
	}

	next.Connections = next.Connections[1:]
	next.Nodes = append(next.Nodes, node("extra", catalog.TypeConstant, nil))
	d = glbuild.Diff(prev, next)
	if !d.ConnectionsChanged || d.TryIncremental(len(next.Nodes)) {
		t.Errorf("connection edit must not try incremental: %+v", d)
	}
	if !slices.Equal(d.Added, []string{"extra"}) {
		t.Errorf("added %q", d.Added)
	}
}

func TestDiffLeafEdit(t *testing.T) {
	prev := raymarchGraph()
	prev.Nodes = append(prev.Nodes, node("leaf", catalog.TypeConstant, map[string]glgraph.Value{"value": glgraph.Float(1)}))
	next := prev.Clone()
	next.SetParam("leaf", "value", glgraph.Float(2))
	d := glbuild.Diff(prev, next)
	if !slices.Equal(d.Changed, []string{"leaf"}) || d.ConnectionsChanged {
		t.Fatalf("unexpected diff %+v", d)
	}
	if !slices.Equal(d.Affected, []string{"leaf"}) {
		t.Errorf("leaf edit affected %q, want only the leaf", d.Affected)
	}
	if !d.TryIncremental(len(next.Nodes)) {
		t.Error("leaf edit should try incremental")
	}
}

func TestIncrementalMatchesFull(t *testing.T) {
	c := catalog.Compiler()
	prevGraph := raymarchGraph()
	prev := mustCompile(t, prevGraph, nil)

	next := prevGraph.Clone()
	next.SetParam("rm", "maxSteps", glgraph.Float(32))
	next.SetParam("wob", "amount", glgraph.Float(0.3))
	d := glbuild.Diff(prevGraph, next)
	inc := c.CompileIncremental(prev, next, nil, d.Affected)
	if inc == nil {
		t.Fatal("incremental compile refused a safe edit")
	}
	full := mustCompile(t, next, nil)
	if inc.ShaderCode != full.ShaderCode {
		t.Errorf("incremental differs from full compile:\n%s\n---\n%s", inc.ShaderCode, full.ShaderCode)
	}
	if !inc.Metadata.Incremental || full.Metadata.Incremental {
		t.Error("incremental flag wrong")
	}
	if !strings.Contains(inc.ShaderCode, "i < 32;") {
		t.Error("affected node not regenerated")
	}

	// Edits it cannot prove safe return nil.
	moved := next.Clone()
	moved.Connections[0].SourcePort = "other"
	if c.CompileIncremental(prev, moved, nil, nil) != nil {
		t.Error("connection change accepted")
	}
	audio := &glgraph.AudioSetup{Signals: []glgraph.SignalBinding{{ID: "audio-signal:x", Uniform: "uAudioSignalX"}}}
	if c.CompileIncremental(prev, next, audio, d.Affected) != nil {
		t.Error("audio setup change accepted")
	}
	if c.CompileIncremental(nil, next, nil, d.Affected) != nil {
		t.Error("nil previous accepted")
	}
	bad := *prev
	bad.Metadata.Errors = []string{"boom"}
	if c.CompileIncremental(&bad, next, nil, d.Affected) != nil {
		t.Error("failed previous accepted")
	}
	noChunks := *prev
	noChunks.Chunks = nil
	if c.CompileIncremental(&noChunks, next, nil, d.Affected) != nil {
		t.Error("previous without chunks accepted")
	}
}

func TestAutomationLane(t *testing.T) {
	g := &glgraph.NodeGraph{
		Nodes: []glgraph.NodeInstance{
			node("c", catalog.TypeConstant, nil),
			node("out", catalog.TypeFinalOutput, nil),
		},
		Connections: []glgraph.Connection{portConn("e1", "c", "value", "out", "color")},
		Automation: &glgraph.Automation{Lanes: []glgraph.AutomationLane{{
			ID: "lane-1", NodeID: "c", ParamName: "value",
			Keyframes: []glgraph.Keyframe{{Time: 0, Value: 0}, {Time: 1, Value: 1}},
		}}},
	}
	res := mustCompile(t, g, nil)
	for _, want := range []string{
		"float evalAutomation_lane1(float t) {",
		"node_c_value = evalAutomation_lane1(uTimelineTime);",
	} {
		if !strings.Contains(res.ShaderCode, want) {
			t.Errorf("missing %q:\n%s", want, res.ShaderCode)
		}
	}
	if hasUniform(res, "uCValue") {
		t.Error("automated parameter kept its uniform")
	}

	plain := &glbuild.Compiler{Catalog: catalog.Default()}
	res = plain.Compile(g, nil)
	if !res.OK() || len(res.Metadata.Warnings) == 0 {
		t.Errorf("compiler without automation should warn, got %q %q", res.Metadata.Errors, res.Metadata.Warnings)
	}
}

func TestPrimaryAudioFile(t *testing.T) {
	g := &glgraph.NodeGraph{
		Nodes: []glgraph.NodeInstance{
			node("song", catalog.TypeAudioFile, nil),
			node("om", catalog.TypeOneMinus, nil),
			node("out", catalog.TypeFinalOutput, nil),
		},
		Connections: []glgraph.Connection{
			portConn("e1", "song", "bass", "om", "in"),
			portConn("e2", "om", "out", "out", "color"),
		},
	}
	res := mustCompile(t, g, &glgraph.AudioSetup{PrimaryFileNodeID: "song"})
	if strings.Contains(res.ShaderCode, "// song (") {
		t.Error("primary file node emitted code")
	}
	if !strings.Contains(res.ShaderCode, "node_om_out = 1.0 - uSongBass;") || !hasUniform(res, "uSongBass") {
		t.Errorf("primary file output not read from uniform:\n%s", res.ShaderCode)
	}
	if hasUniform(res, "uSongLevel") {
		t.Error("unused primary output not pruned")
	}
	if u, ok := res.OutputUniform("song", "bass"); !ok || u.Name != "uSongBass" || u.ParamName != "" {
		t.Errorf("output uniform metadata: %+v %v", u, ok)
	}
	if _, ok := res.Uniform("song", "bass"); ok {
		t.Error("output port matched as parameter uniform")
	}
}

func TestCompileErrors(t *testing.T) {
	for name, g := range map[string]*glgraph.NodeGraph{
		"unknown type": {Nodes: []glgraph.NodeInstance{node("x", "nope", nil), node("out", catalog.TypeFinalOutput, nil)}},
		"no output":    {Nodes: []glgraph.NodeInstance{node("c", catalog.TypeConstant, nil)}},
		"duplicate id": {Nodes: []glgraph.NodeInstance{node("c", catalog.TypeConstant, nil), node("c", catalog.TypeConstant, nil)}},
		"dangling": {
			Nodes:       []glgraph.NodeInstance{node("out", catalog.TypeFinalOutput, nil)},
			Connections: []glgraph.Connection{portConn("e1", "ghost", "value", "out", "color")},
		},
	} {
		res := catalog.Compiler().Compile(g, nil)
		if res.OK() {
			t.Errorf("%s: expected errors", name)
		}
		if glbuild.HasPlaceholder(res.ShaderCode) {
			t.Errorf("%s: placeholder leaked", name)
		}
	}
}

func TestArrayParam(t *testing.T) {
	spec := glgraph.NodeSpec{
		Type:    "lut",
		Params:  []glgraph.ParamSpec{{Name: "table", Type: glgraph.ParamArray}, {Name: "label", Type: glgraph.ParamString, Default: glgraph.String("1.0")}},
		Outputs: []glgraph.PortSpec{{Name: "color", Type: "vec4"}},
		Code:    "$output.color = vec4($param.table[0] * $param.label);",
		Output:  true,
	}
	cat, err := glgraph.NewMapCatalog(spec)
	if err != nil {
		t.Fatal(err)
	}
	c := &glbuild.Compiler{Catalog: cat}
	g := &glgraph.NodeGraph{Nodes: []glgraph.NodeInstance{
		node("a", "lut", map[string]glgraph.Value{"table": glgraph.Array(1, 2.5)}),
		node("b", "lut", nil),
	}}
	res := c.Compile(g, nil)
	if !res.OK() {
		t.Fatal(res.Metadata.Errors)
	}
	for _, want := range []string{
		"const float[2] kATable=float[2](1.0,2.5);",
		"const float[1] kBTable=float[1](0.0);",
		"node_a_color = vec4(kATable[0] * 1.0);",
	} {
		if !strings.Contains(res.ShaderCode, want) {
			t.Errorf("missing %q:\n%s", want, res.ShaderCode)
		}
	}
	if len(res.Metadata.Warnings) == 0 {
		t.Error("empty array should warn")
	}
	if len(res.Uniforms) != 3 {
		t.Errorf("only globals expected, got %+v", res.Uniforms)
	}
}

func TestClampValue(t *testing.T) {
	lo, hi := float32(0), float32(1)
	for _, tc := range []struct {
		p    glgraph.ParamSpec
		v    glgraph.Value
		want glgraph.Value
	}{
		{p: glgraph.ParamSpec{Type: glgraph.ParamFloat, Min: &lo, Max: &hi}, v: glgraph.Float(1.5), want: glgraph.Float(1)},
		{p: glgraph.ParamSpec{Type: glgraph.ParamFloat, Min: &lo}, v: glgraph.Float(-2), want: glgraph.Float(0)},
		{p: glgraph.ParamSpec{Type: glgraph.ParamFloat, Max: &hi}, v: glgraph.Float(-2), want: glgraph.Float(-2)},
		{p: glgraph.ParamSpec{Type: glgraph.ParamVec4, Min: &lo, Max: &hi}, v: glgraph.Vec4(-1, 0.5, 2, 1), want: glgraph.Vec4(0, 0.5, 1, 1)},
		{p: glgraph.ParamSpec{Type: glgraph.ParamFloat}, v: glgraph.Float(9), want: glgraph.Float(9)},
	} {
		if got := glbuild.ClampValue(tc.p, tc.v); !got.Equal(tc.want) {
			t.Errorf("clamp %#v to %v: got %#v want %#v", tc.v, tc.p, got, tc.want)
		}
	}
}
