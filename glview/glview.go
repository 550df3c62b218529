// Package glview opens a preview window that keeps a compiled graph on
// screen while it is edited.
package glview

import (
	"context"
	"time"

	"github.com/soypat/glgraph/glsession"
)

// Config configures a preview window. The zero value opens an 800x600
// window drawing at 60 frames per second.
type Config struct {
	Width, Height int
	Title         string
	FPS           float64
	// Audio feeds signal uniforms. Optional.
	Audio glsession.AudioSource
	// Debounce is passed on to the session manager.
	Debounce time.Duration
	// OnError is called with errors of compiles not applied.
	OnError func(errs []string)
}

// Session is handed to the start function of [Run]. Manager and Queue must
// only be used from the window goroutine, i.e: from start or from callbacks
// run through Queue.
type Session struct {
	Manager *glsession.Manager
	Queue   *glsession.Queue
}

func (cfg *Config) defaults() {
	if cfg.Width <= 0 {
		cfg.Width = 800
	}
	if cfg.Height <= 0 {
		cfg.Height = 600
	}
	if cfg.Title == "" {
		cfg.Title = "glgraph preview"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 60
	}
}

// Run opens a window and runs it until it is closed or ctx is done. start
// is called once the session is ready, typically to request the first compile.
func Run(ctx context.Context, cfg Config, start func(s *Session) error) error {
	cfg.defaults()
	return run(ctx, cfg, start)
}
