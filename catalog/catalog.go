// Package catalog provides the built-in node types and the runtime-only
// parameter table.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/soypat/glgraph"
	"github.com/soypat/glgraph/automation"
	"github.com/soypat/glgraph/glbuild"
	"github.com/soypat/glgraph/glbuild/glsllib"
)

// Built-in node types.
const (
	TypeConstant     = "constant"
	TypeTime         = "time"
	TypeUV           = "uv"
	TypeMultiply     = "multiply"
	TypeAdd          = "add"
	TypeOneMinus     = "one-minus"
	TypeSine         = "sine"
	TypeColor        = "color"
	TypeMixColor     = "mix-color"
	TypeQuadWarp     = "quad-warp"
	TypeHexagon      = "hexagon"
	TypeRaymarch     = "raymarch"
	TypeSphereSDF    = "sphere-sdf"
	TypeBoxSDF       = "box-sdf"
	TypeUnionSDF     = "sdf-union"
	TypeSineDisplace = "sine-displace"
	TypeAudioFile    = "audio-file"
	TypeFinalOutput  = "final-output"
)

// Parameters handled by the host application at runtime and never turned
// into uniforms, keyed "nodeType.param".
var runtimeOnly = []string{
	TypeAudioFile + ".gain",
	TypeRaymarch + ".maxSteps",
}

// RuntimeOnly is the default [glbuild.RuntimeOnlyPolicy].
var RuntimeOnly = glbuild.RuntimeOnlySet(runtimeOnly)

// RuntimeOnlyKeys returns the runtime-only table as sorted "nodeType.param" keys.
func RuntimeOnlyKeys() []string {
	keys := append([]string(nil), runtimeOnly...)
	sort.Strings(keys)
	return keys
}

var defaultCatalog = sync.OnceValue(func() glgraph.MapCatalog {
	cat, err := glgraph.NewMapCatalog(Specs()...)
	if err != nil {
		panic(err)
	}
	return cat
})

// Default returns the built-in catalog. It must not be modified.
func Default() glgraph.Catalog { return defaultCatalog() }

// Compiler returns a compiler over the built-in catalog with automation support.
func Compiler() *glbuild.Compiler {
	return &glbuild.Compiler{
		Catalog:     Default(),
		RuntimeOnly: RuntimeOnly,
		Automation:  automation.Automator,
	}
}

func f32(v float32) *float32 { return &v }

func floatParam(name string, def float32) glgraph.ParamSpec {
	return glgraph.ParamSpec{Name: name, Type: glgraph.ParamFloat, Default: glgraph.Float(def)}
}

func rangeParam(name string, def, min, max float32) glgraph.ParamSpec {
	p := floatParam(name, def)
	p.Min, p.Max = f32(min), f32(max)
	return p
}

func colorParam(name string, r, g, b, a float32) glgraph.ParamSpec {
	return glgraph.ParamSpec{Name: name, Type: glgraph.ParamVec4, Default: glgraph.Vec4(r, g, b, a)}
}

func floatIn(name, def string) glgraph.PortSpec {
	return glgraph.PortSpec{Name: name, Type: "float", Default: def}
}

func floatOut(name string) glgraph.PortSpec { return glgraph.PortSpec{Name: name, Type: "float"} }

const screenUV = "gl_FragCoord.xy / " + glbuild.UniformResolution

// Specs returns fresh copies of every built-in node declaration.
func Specs() []glgraph.NodeSpec {
	specs := []glgraph.NodeSpec{
		{
			Type:    TypeConstant,
			Params:  []glgraph.ParamSpec{floatParam("value", 1)},
			Outputs: []glgraph.PortSpec{floatOut("value")},
			Code:    "$output.value = $param.value;",
		},
		{
			Type:    TypeTime,
			Params:  []glgraph.ParamSpec{floatParam("speed", 1)},
			Outputs: []glgraph.PortSpec{floatOut("time")},
			Code:    "$output.time = " + glbuild.UniformTime + " * $param.speed;",
		},
		{
			Type:    TypeUV,
			Outputs: []glgraph.PortSpec{{Name: "uv", Type: "vec2"}},
			Code:    "$output.uv = " + screenUV + ";",
		},
		mathSpec(TypeMultiply, "*", 1),
		mathSpec(TypeAdd, "+", 0),
		{
			Type:    TypeOneMinus,
			Inputs:  []glgraph.PortSpec{floatIn("in", "$param.value")},
			Params:  []glgraph.ParamSpec{floatParam("value", 0)},
			Outputs: []glgraph.PortSpec{floatOut("out")},
			Code:    "$output.out = 1.0 - $input.in;",
		},
		{
			Type:   TypeSine,
			Inputs: []glgraph.PortSpec{floatIn("x", glbuild.UniformTime)},
			Params: []glgraph.ParamSpec{
				floatParam("frequency", 1),
				floatParam("amplitude", 1),
				floatParam("phase", 0),
			},
			Outputs: []glgraph.PortSpec{floatOut("out")},
			Code:    "$output.out = $param.amplitude * sin($input.x * $param.frequency + $param.phase);",
		},
		{
			Type:    TypeColor,
			Params:  []glgraph.ParamSpec{colorParam("color", 1, 1, 1, 1)},
			Outputs: []glgraph.PortSpec{{Name: "color", Type: "vec4"}},
			Code:    "$output.color = $param.color;",
		},
		{
			Type: TypeMixColor,
			Inputs: []glgraph.PortSpec{
				{Name: "a", Type: "vec4", Default: "vec4(0.0, 0.0, 0.0, 1.0)"},
				{Name: "b", Type: "vec4", Default: "vec4(1.0)"},
				floatIn("t", "$param.t"),
			},
			Params:  []glgraph.ParamSpec{rangeParam("t", 0.5, 0, 1)},
			Outputs: []glgraph.PortSpec{{Name: "color", Type: "vec4"}},
			Code:    "$output.color = mix($input.a, $input.b, clamp($input.t, 0.0, 1.0));",
		},
		quadWarpSpec(),
		{
			Type:   TypeHexagon,
			Inputs: []glgraph.PortSpec{{Name: "uv", Type: "vec2", Default: screenUV}},
			Params: []glgraph.ParamSpec{
				rangeParam("scale", 10, 0.1, 1000),
				rangeParam("hexGap", 0.1, 0, 1),
				colorParam("color", 1, 1, 1, 1),
			},
			Outputs: []glgraph.PortSpec{{Name: "color", Type: "vec4"}, floatOut("mask")},
			Code: `float m = glgHexGrid($input.uv * $param.scale, clamp($param.hexGap, 0.0, 1.0));
$output.mask = m;
$output.color = vec4($param.color.rgb * m, $param.color.a);`,
			Functions: []string{glsllib.HexGrid()},
		},
		raymarchSpec(),
		{
			Type:    TypeSphereSDF,
			Kind:    glgraph.KindSDF,
			Params:  []glgraph.ParamSpec{rangeParam("radius", 1, 0, 1e6)},
			Outputs: []glgraph.PortSpec{floatOut("dist")},
			Code:    "$output.dist = length(p) - $param.radius;",
		},
		{
			Type:      TypeBoxSDF,
			Kind:      glgraph.KindSDF,
			Params:    []glgraph.ParamSpec{{Name: "size", Type: glgraph.ParamVec4, Default: glgraph.Vec4(0.5, 0.5, 0.5, 0)}},
			Outputs:   []glgraph.PortSpec{floatOut("dist")},
			Code:      "$output.dist = glgBox(p, $param.size.xyz);",
			Functions: []string{glsllib.Box()},
		},
		{
			Type:   TypeUnionSDF,
			Kind:   glgraph.KindSDF,
			Family: "union",
			Inputs: []glgraph.PortSpec{
				{Name: "a", Type: glgraph.PortSDF},
				{Name: "b", Type: glgraph.PortSDF},
			},
			Params:    []glgraph.ParamSpec{rangeParam("smoothness", 0, 0, 10)},
			Outputs:   []glgraph.PortSpec{floatOut("dist")},
			Code:      "$output.dist = glgSmoothMin($input.a(p), $input.b(p), $param.smoothness);",
			Functions: []string{glsllib.SmoothMin()},
		},
		{
			Type:   TypeSineDisplace,
			Kind:   glgraph.KindExpr,
			Params: []glgraph.ParamSpec{floatParam("amount", 0.1), floatParam("frequency", 5)},
			Code:   "sin(p.x * $param.frequency + uTime) * sin(p.y * $param.frequency) * $param.amount",
		},
		{
			Type:   TypeAudioFile,
			Params: []glgraph.ParamSpec{rangeParam("gain", 1, 0, 4)},
			Outputs: []glgraph.PortSpec{
				floatOut("level"), floatOut("bass"), floatOut("mid"), floatOut("treble"),
			},
			// Silent unless the node is the primary file, whose outputs are uniforms.
			Code: "$output.level = 0.0;\n$output.bass = 0.0;\n$output.mid = 0.0;\n$output.treble = 0.0;",
		},
		{
			Type:    TypeFinalOutput,
			Inputs:  []glgraph.PortSpec{{Name: "color", Type: "vec4", Default: "vec4(0.0, 0.0, 0.0, 1.0)"}},
			Outputs: []glgraph.PortSpec{{Name: "color", Type: "vec4"}},
			Code:    "$output.color = $input.color;",
			Output:  true,
		},
	}
	return specs
}

func mathSpec(typ, op string, def float32) glgraph.NodeSpec {
	return glgraph.NodeSpec{
		Type:    typ,
		Inputs:  []glgraph.PortSpec{floatIn("a", "$param.a"), floatIn("b", "$param.b")},
		Params:  []glgraph.ParamSpec{floatParam("a", def), floatParam("b", def)},
		Outputs: []glgraph.PortSpec{floatOut("out")},
		Code:    "$output.out = $input.a " + op + " $input.b;",
	}
}

func quadWarpSpec() glgraph.NodeSpec {
	corners := [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	spec := glgraph.NodeSpec{
		Type: TypeQuadWarp,
		Inputs: []glgraph.PortSpec{
			{Name: "uv", Type: "vec2", Default: screenUV},
			{Name: "color", Type: "vec4", Default: "vec4(1.0)"},
		},
		Outputs: []glgraph.PortSpec{
			{Name: "uv", Type: "vec2"},
			{Name: "color", Type: "vec4"},
			floatOut("mask"),
		},
		Functions: []string{glsllib.QuadWarp()},
	}
	var args []string
	for i, c := range corners {
		for j, axis := range [2]string{"X", "Y"} {
			name := "quadCorner" + string(rune('0'+i)) + axis
			spec.Params = append(spec.Params, rangeParam(name, c[j], -4, 4))
		}
		args = append(args, "vec2($param.quadCorner"+string(rune('0'+i))+"X, $param.quadCorner"+string(rune('0'+i))+"Y)")
	}
	spec.Code = "vec2 q = glgQuadWarp($input.uv, " + strings.Join(args, ", ") + `);
float inside = step(0.0, q.x) * step(q.x, 1.0) * step(0.0, q.y) * step(q.y, 1.0);
$output.uv = q;
$output.mask = inside;
$output.color = $input.color * inside;`
	return spec
}

func raymarchSpec() glgraph.NodeSpec {
	return glgraph.NodeSpec{
		Type:   TypeRaymarch,
		Family: "raymarch",
		Inputs: []glgraph.PortSpec{
			{Name: "sdf", Type: glgraph.PortSDF, Default: "length(p) - 1.0"},
			{Name: "displace", Type: glgraph.PortExpr, Default: "0.0"},
		},
		Params: []glgraph.ParamSpec{
			{Name: "maxSteps", Type: glgraph.ParamInt, Default: glgraph.Float(64), Min: f32(1), Max: f32(512)},
			rangeParam("maxDist", 20, 0.1, 1000),
			floatParam("cameraZ", 3),
			colorParam("color", 0.9, 0.6, 0.3, 1),
		},
		Outputs: []glgraph.PortSpec{{Name: "color", Type: "vec4"}, floatOut("depth")},
		Code: `vec2 uv = (gl_FragCoord.xy - 0.5 * uResolution) / uResolution.y;
vec3 ro = vec3(0.0, 0.0, $param.cameraZ);
vec3 rd = normalize(vec3(uv, -1.5));
float t = 0.0;
float hit = 0.0;
for (int i = 0; i < $param.maxSteps; i++) {
	vec3 p = ro + rd * t;
	float d = $input.sdf(p) + $input.displace;
	if (d < 0.001) {
		hit = 1.0;
		break;
	}
	t += d;
	if (t > $param.maxDist) {
		break;
	}
}
vec3 p = ro + rd * t;
const vec2 e = vec2(0.001, 0.0);
vec3 n = normalize(vec3(
	$input.sdf(p + e.xyy) - $input.sdf(p - e.xyy),
	$input.sdf(p + e.yxy) - $input.sdf(p - e.yxy),
	$input.sdf(p + e.yyx) - $input.sdf(p - e.yyx)));
float diff = max(dot(n, normalize(vec3(0.6, 0.8, 0.5))), 0.0);
$output.color = vec4($param.color.rgb * (0.15 + 0.85 * diff) * hit, 1.0);
$output.depth = t;`,
	}
}
