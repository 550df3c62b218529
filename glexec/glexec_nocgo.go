//go:build tinygo || !cgo

package glexec

import (
	"github.com/soypat/glgraph"
	"github.com/soypat/glgraph/glsession"
)

// Executor is unavailable without CGo.
type Executor struct{}

func New(cfg Config) (*Executor, error) { return nil, errNoCGO }

func (e *Executor) Link(res *glgraph.CompilationResult) (glsession.Program, error) {
	return nil, errNoCGO
}

func (e *Executor) Delete() {}
