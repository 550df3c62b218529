// Package glexec links compiled graphs into OpenGL programs that draw a
// fullscreen quad. It implements the program and linker contracts of the
// glsession package on top of glgl.
package glexec

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/glgraph"
	"github.com/soypat/glgraph/glbuild"
)

var errNoCGO = errors.New("glexec: OpenGL execution requires CGo and is not supported on TinyGo")

// VertexShader is the fullscreen quad vertex stage linked with every fragment program.
const VertexShader = `#version 330 core
in vec2 aPos;
void main() {
	gl_Position = vec4(aPos, 0.0, 1.0);
}
`

var quadVertices = []float32{
	-1, -1,
	1, -1,
	-1, 1,
	-1, 1,
	1, -1,
	1, 1,
}

// Config configures an [Executor].
type Config struct {
	// Viewport returns the framebuffer size in pixels. It is read every
	// frame to feed the resolution uniform.
	Viewport func() ms2.Vec
}

// uniformValue converts v to the arguments of a uniform of GLSL type typ.
// Integers are rounded.
func uniformValue(typ string, v glgraph.Value) (args [4]float32, n int, isInt bool, err error) {
	switch typ {
	case "float":
		return [4]float32{v.Float32()}, 1, false, nil
	case "int":
		return [4]float32{math32.Round(v.Float32())}, 1, true, nil
	case "vec2":
		return v.Vec4(), 2, false, nil
	case "vec4":
		return v.Vec4(), 4, false, nil
	}
	return args, 0, false, fmt.Errorf("unsupported uniform type %q", typ)
}

// uniformTypes maps every uniform of res to its GLSL type, globals included.
func uniformTypes(res *glgraph.CompilationResult) map[string]string {
	types := map[string]string{
		glbuild.UniformTime:         "float",
		glbuild.UniformTimelineTime: "float",
		glbuild.UniformResolution:   "vec2",
	}
	for _, u := range res.Uniforms {
		types[u.Name] = u.Type
	}
	return types
}
