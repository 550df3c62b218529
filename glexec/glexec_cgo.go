//go:build !tinygo && cgo

package glexec

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/glgraph"
	"github.com/soypat/glgraph/glbuild"
	"github.com/soypat/glgraph/glsession"
)

var _ glsession.Linker = (*Executor)(nil)

// Executor links programs on the OpenGL context current on the calling
// thread. It must only be used from that thread.
type Executor struct {
	cfg Config
	vao uint32
	vbo uint32
}

// New creates the quad geometry shared by all programs. An OpenGL context
// must be current.
func New(cfg Config) (*Executor, error) {
	if cfg.Viewport == nil {
		return nil, errors.New("glexec: nil Viewport")
	}
	e := &Executor{cfg: cfg}
	gl.GenVertexArrays(1, &e.vao)
	gl.BindVertexArray(e.vao)
	gl.GenBuffers(1, &e.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, e.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(quadVertices), gl.Ptr(quadVertices), gl.STATIC_DRAW)
	if err := glgl.Err(); err != nil {
		return nil, fmt.Errorf("glexec: creating quad: %w", err)
	}
	return e, nil
}

// Link compiles and links the fragment code of res.
func (e *Executor) Link(res *glgraph.CompilationResult) (glsession.Program, error) {
	if contextLost() {
		return nil, glgraph.ErrContextLost
	}
	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex:   VertexShader + "\x00",
		Fragment: res.ShaderCode + "\x00",
	})
	if err != nil {
		if contextLost() {
			return nil, glgraph.ErrContextLost
		}
		return nil, fmt.Errorf("linking program: %w", err)
	}
	prog.Bind()
	gl.BindVertexArray(e.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, e.vbo)
	pos, err := prog.AttribLocation("aPos\x00")
	if err != nil {
		prog.Delete()
		return nil, err
	}
	gl.EnableVertexAttribArray(pos)
	gl.VertexAttribPointer(pos, 2, gl.FLOAT, false, 0, gl.PtrOffset(0))
	p := &Program{
		e:     e,
		prog:  prog,
		types: uniformTypes(res),
		locs:  make(map[string]int32),
	}
	return p, glgl.Err()
}

// Delete releases the quad geometry.
func (e *Executor) Delete() {
	gl.DeleteBuffers(1, &e.vbo)
	gl.DeleteVertexArrays(1, &e.vao)
}

func contextLost() bool {
	return gl.GetGraphicsResetStatus() != gl.NO_ERROR
}

// Program is a linked fragment program.
type Program struct {
	e     *Executor
	prog  glgl.Program
	types map[string]string
	// locs caches uniform locations. -1 marks uniforms the driver optimized out.
	locs map[string]int32

	time, timelineTime float32
}

func (p *Program) location(name string) int32 {
	loc, ok := p.locs[name]
	if !ok {
		var err error
		loc, err = p.prog.UniformLocation(name + "\x00")
		if err != nil {
			loc = -1
		}
		p.locs[name] = loc
	}
	return loc
}

// SetUniform sets the uniform by name. Unknown names and uniforms removed
// by the driver are ignored.
func (p *Program) SetUniform(name string, v glgraph.Value) error {
	typ, ok := p.types[name]
	if !ok {
		return nil
	}
	loc := p.location(name)
	if loc < 0 {
		return nil
	}
	args, n, isInt, err := uniformValue(typ, v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	p.prog.Bind()
	switch {
	case isInt:
		gl.Uniform1i(loc, int32(args[0]))
	case n == 1:
		gl.Uniform1f(loc, args[0])
	case n == 2:
		gl.Uniform2f(loc, args[0], args[1])
	default:
		gl.Uniform4f(loc, args[0], args[1], args[2], args[3])
	}
	return nil
}

func (p *Program) Time() float32             { return p.time }
func (p *Program) SetTime(t float32)         { p.time = t }
func (p *Program) TimelineTime() float32     { return p.timelineTime }
func (p *Program) SetTimelineTime(t float32) { p.timelineTime = t }

// Render draws the fullscreen quad into the current framebuffer.
func (p *Program) Render() error {
	if contextLost() {
		return glgraph.ErrContextLost
	}
	size := p.e.cfg.Viewport()
	p.SetUniform(glbuild.UniformTime, glgraph.Float(p.time))
	p.SetUniform(glbuild.UniformTimelineTime, glgraph.Float(p.timelineTime))
	p.SetUniform(glbuild.UniformResolution, glgraph.Vec4(size.X, size.Y, 0, 0))
	gl.Viewport(0, 0, int32(size.X), int32(size.Y))
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	p.prog.Bind()
	gl.BindVertexArray(p.e.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, int32(len(quadVertices)/2))
	return glgl.Err()
}

func (p *Program) Delete() { p.prog.Delete() }
