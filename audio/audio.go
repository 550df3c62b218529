// Package audio binds externally computed audio signals to shader uniforms.
//
// Signal values (band levels, envelope followers) are computed outside this
// module and written to a [Bank]. Graphs reference them through virtual
// source nodes with id "audio-signal:<signal>". The bank snapshots its
// bindings into a [glgraph.AudioSetup] for the compiler and pushes the
// current values to a running program every frame.
package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"github.com/soypat/glgraph"
	"github.com/soypat/glgraph/glbuild"
)

// Remap derives a signal from another by mapping [InMin,InMax] onto
// [OutMin,OutMax]. Inputs outside the range are clamped.
type Remap struct {
	ID     string
	Source string
	InMin  float32
	InMax  float32
	OutMin float32
	OutMax float32
}

// Apply maps v through r.
func (r Remap) Apply(v float32) float32 {
	span := r.InMax - r.InMin
	var u float32
	if span != 0 {
		u = (v - r.InMin) / span
	}
	u = math32.Max(0, math32.Min(1, u))
	return r.OutMin + u*(r.OutMax-r.OutMin)
}

// UniformSetter is the part of a running program the bank writes to.
type UniformSetter interface {
	SetUniform(name string, v glgraph.Value) error
}

// Bank holds the current value of every signal. It is safe for concurrent
// use so that an analysis goroutine can write while the render loop reads.
type Bank struct {
	mu      sync.Mutex
	order   []string // Signal ids in registration order, remaps included.
	values  map[string]float32
	remaps  map[string]Remap
	primary string
	outputs map[string]float32 // Primary file node outputs by port.
}

// NewBank returns an empty bank.
func NewBank() *Bank {
	return &Bank{
		values:  make(map[string]float32),
		remaps:  make(map[string]Remap),
		outputs: make(map[string]float32),
	}
}

// Set writes the value of a raw signal, registering it on first use.
func (b *Bank) Set(signalID string, v float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[signalID]; !ok {
		if _, isRemap := b.remaps[signalID]; !isRemap {
			b.order = append(b.order, signalID)
		}
	}
	b.values[signalID] = v
}

// AddRemap registers a derived signal.
func (b *Bank) AddRemap(r Remap) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case r.ID == "":
		return errors.New("empty remap id")
	case r.ID == r.Source:
		return fmt.Errorf("remap %q remaps itself", r.ID)
	}
	if _, ok := b.values[r.ID]; ok {
		return fmt.Errorf("remap %q: id taken by a raw signal", r.ID)
	} else if _, ok := b.remaps[r.ID]; ok {
		return fmt.Errorf("duplicate remap %q", r.ID)
	}
	b.remaps[r.ID] = r
	b.order = append(b.order, r.ID)
	return nil
}

// SetPrimaryFile names the graph node standing for the playable audio file.
// Its outputs are supplied through uniforms instead of generated code.
func (b *Bank) SetPrimaryFile(nodeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.primary = nodeID
}

// SetFileOutput writes the value of an output port of the primary file node.
func (b *Bank) SetFileOutput(port string, v float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs[port] = v
}

// Value returns the current value of a signal. Remaps are resolved
// through their source chain.
func (b *Bank) Value(signalID string) (float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value(signalID, 0)
}

func (b *Bank) value(id string, depth int) (float32, bool) {
	if v, ok := b.values[id]; ok {
		return v, true
	}
	r, ok := b.remaps[id]
	if !ok || depth > len(b.remaps) {
		return 0, false
	}
	v, _ := b.value(r.Source, depth+1)
	return r.Apply(v), true
}

// Setup snapshots the bank's bindings for a compile.
func (b *Bank) Setup() *glgraph.AudioSetup {
	b.mu.Lock()
	defer b.mu.Unlock()
	setup := &glgraph.AudioSetup{
		PrimaryFileNodeID: b.primary,
		Signals:           make([]glgraph.SignalBinding, 0, len(b.order)),
	}
	for _, id := range b.order {
		vid := glgraph.VirtualNodeID(id)
		v, _ := b.value(id, 0)
		setup.Signals = append(setup.Signals, glgraph.SignalBinding{
			ID:      vid,
			Uniform: glbuild.SignalUniformName(vid),
			Value:   v,
		})
	}
	return setup
}

// Apply pushes current values to every uniform of the compiled program that
// is fed by a signal or by the primary file node. Uniforms owned by graph
// nodes are left untouched.
func (b *Bank) Apply(p UniformSetter, uniforms []glgraph.UniformMetadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, u := range uniforms {
		var v float32
		switch {
		case glgraph.IsVirtualNodeID(u.NodeID):
			id, _ := glgraph.SignalID(u.NodeID)
			v, _ = b.value(id, 0)
		case u.NodeID != "" && u.NodeID == b.primary:
			v = b.outputs[u.Port]
		default:
			continue
		}
		if err := p.SetUniform(u.Name, glgraph.Float(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.Name, err))
		}
	}
	return errors.Join(errs...)
}
