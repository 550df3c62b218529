//go:build !tinygo && cgo

package glview

import (
	"context"
	"fmt"
	"runtime"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/glgraph"
	"github.com/soypat/glgraph/glexec"
	"github.com/soypat/glgraph/glsession"
	"github.com/soypat/glgraph/glworker"
)

func run(ctx context.Context, cfg Config, start func(s *Session) error) error {
	// GLFW and the OpenGL context are bound to the thread that created them.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	window, term, err := startGLFW(cfg.Width, cfg.Height, cfg.Title)
	if err != nil {
		return err
	}
	defer term()

	exec, err := glexec.New(glexec.Config{
		Viewport: func() ms2.Vec {
			w, h := window.GetFramebufferSize()
			return ms2.Vec{X: float32(w), Y: float32(h)}
		},
	})
	if err != nil {
		return err
	}
	defer exec.Delete()

	q := glsession.NewQueue(nil)
	m, err := glsession.New(glsession.Config{
		Linker:    exec,
		Scheduler: q,
		Worker:    glworker.Start(glworker.Config{}),
		Audio:     cfg.Audio,
		Debounce:  cfg.Debounce,
		OnError:   cfg.OnError,
	})
	if err != nil {
		return err
	}
	defer m.Close()
	if err := start(&Session{Manager: m, Queue: q}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})
	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		m.RequestRender()
	})
	started := glfw.GetTime()
	err = q.Run(ctx, cfg.FPS, func() {
		window.SwapBuffers()
		glfw.PollEvents()
		if window.ShouldClose() {
			cancel()
			return
		}
		t := float32(glfw.GetTime() - started)
		m.SetTime(t)
		m.SetTimelineTime(t)
		m.RequestRender()
	})
	if ctx.Err() != nil && window.ShouldClose() {
		return nil
	}
	return err
}

func startGLFW(width, height int, title string) (window *glfw.Window, term func(), err error) {
	if err := glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	window, err = glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("creating GLFW window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	glgraph.Logger().Info("preview window open", "gl", gl.GoStr(gl.GetString(gl.VERSION)))
	return window, glfw.Terminate, nil
}
