// Package glsession keeps a running shader program synchronized with an
// edited node graph.
//
// A [Manager] decides when to recompile, whether incrementally and whether
// on a background worker, and hands parameter and timing state from the old
// program to the new one. Parameter tweaks that do not change the generated
// code are applied by setting uniforms and never compile.
//
// A Manager is not safe for concurrent use. All methods must be called from
// the goroutine that drives its [Scheduler], typically the render loop.
package glsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/soypat/glgraph"
	"github.com/soypat/glgraph/audio"
	"github.com/soypat/glgraph/automation"
	"github.com/soypat/glgraph/catalog"
	"github.com/soypat/glgraph/glbuild"
	"github.com/soypat/glgraph/glworker"
)

// ErrClosed is returned by Manager operations after Close.
var ErrClosed = errors.New("glsession: manager closed")

// DefaultDebounce is the delay between the last recompile request and the compile.
const DefaultDebounce = 150 * time.Millisecond

// State is the compile state of a [Manager].
type State uint8

const (
	StateIdle State = iota
	StatePendingRecompile
	StateCompiling
	StateApplied
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingRecompile:
		return "pending"
	case StateCompiling:
		return "compiling"
	case StateApplied:
		return "applied"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Program is a linked GPU program.
type Program interface {
	// SetUniform sets a uniform by name. Names the GPU does not know, such as
	// uniforms optimized out by the driver, are not an error.
	SetUniform(name string, v glgraph.Value) error
	Time() float32
	SetTime(t float32)
	TimelineTime() float32
	SetTimelineTime(t float32)
	// Render draws a frame. It returns [glgraph.ErrContextLost] if the GPU context was lost.
	Render() error
	Delete()
}

// Linker builds GPU programs from compiled results. It returns
// [glgraph.ErrContextLost] when the GPU context is gone.
type Linker interface {
	Link(res *glgraph.CompilationResult) (Program, error)
}

// Worker is a compile worker transport such as [glworker.Worker].
type Worker interface {
	Send(glworker.Message) error
	Recv(ctx context.Context) (glworker.Message, error)
	Close() error
}

// AudioSource is the audio collaborator, i.e. [audio.Bank].
type AudioSource interface {
	Setup() *glgraph.AudioSetup
	Apply(p audio.UniformSetter, uniforms []glgraph.UniformMetadata) error
}

// Config configures a Manager. Linker and Scheduler are required.
type Config struct {
	Linker    Linker
	Scheduler Scheduler
	// Catalog defaults to the built-in catalog, in which case RuntimeOnly
	// defaults to the built-in runtime-only table.
	Catalog glgraph.Catalog
	// RuntimeOnly lists parameters never turned into uniforms as "nodeType.param".
	RuntimeOnly []string
	// Worker, if set, runs compiles off the owner goroutine. The Manager
	// takes ownership and closes it.
	Worker Worker
	Audio  AudioSource
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// OnError is called with the errors of a compile or link that was not applied.
	OnError func(errs []string)
	// OnApplied is called after a new program replaced the old one.
	OnApplied func(res *glgraph.CompilationResult)
}

type paramKey struct {
	node, param string
}

// Manager coordinates compilation of a graph into a running program.
type Manager struct {
	cfg      Config
	compiler *glbuild.Compiler
	sched    Scheduler

	state     State
	requestID uint64 // Last issued request id. Only its reply is applied.
	// inflight is the graph of the request awaiting a reply.
	inflight      *glgraph.NodeGraph
	inflightStart time.Time

	program Program
	result  *glgraph.CompilationResult
	graph   *glgraph.NodeGraph // Graph of result.
	pending *glgraph.NodeGraph // Latest graph awaiting compile.
	live    map[paramKey]glgraph.Value

	cancelIdle  func()
	cancelFrame func()

	time, timelineTime float32
	lastErrors         []string
	contextLost        bool
	closed             bool

	stopPump context.CancelFunc
	pumpDone chan struct{}
}

// New returns a Manager. If cfg.Worker is set it is initialized with the
// catalog and a goroutine starts forwarding its replies to the scheduler.
func New(cfg Config) (*Manager, error) {
	if cfg.Linker == nil {
		return nil, errors.New("glsession: nil Linker")
	} else if cfg.Scheduler == nil {
		return nil, errors.New("glsession: nil Scheduler")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
		if cfg.RuntimeOnly == nil {
			cfg.RuntimeOnly = catalog.RuntimeOnlyKeys()
		}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	m := &Manager{
		cfg:   cfg,
		sched: cfg.Scheduler,
		compiler: &glbuild.Compiler{
			Catalog:     cfg.Catalog,
			RuntimeOnly: glbuild.RuntimeOnlySet(cfg.RuntimeOnly),
			Automation:  automation.Automator,
		},
		live: make(map[paramKey]glgraph.Value),
	}
	if cfg.Worker != nil {
		if err := cfg.Worker.Send(glworker.InitMessage(cfg.Catalog, cfg.RuntimeOnly)); err != nil {
			return nil, fmt.Errorf("glsession: initializing worker: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.stopPump = cancel
		m.pumpDone = make(chan struct{})
		go m.pumpReplies(ctx)
	}
	return m, nil
}

// pumpReplies forwards worker replies to the owner goroutine.
func (m *Manager) pumpReplies(ctx context.Context) {
	defer close(m.pumpDone)
	w := m.cfg.Worker
	for {
		msg, err := w.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, glworker.ErrClosed) {
				return
			}
			glgraph.Logger().Warn("dropping undecodable worker reply", "err", err)
			continue
		}
		m.sched.Post(func() { m.handleReply(msg) })
	}
}

func (m *Manager) State() State                       { return m.state }
func (m *Manager) Program() Program                   { return m.program }
func (m *Manager) Result() *glgraph.CompilationResult { return m.result }
func (m *Manager) Graph() *glgraph.NodeGraph          { return m.graph }
func (m *Manager) LastErrors() []string               { return m.lastErrors }
func (m *Manager) RequestID() uint64                  { return m.requestID }
func (m *Manager) Compiler() *glbuild.Compiler        { return m.compiler }
func (m *Manager) setState(s State)                   { m.state = s }
func (m *Manager) blocked() bool                      { return m.closed || m.contextLost }

// SetTime sets the shader time of the running program and of programs to come.
func (m *Manager) SetTime(t float32) {
	m.time = t
	if m.program != nil {
		m.program.SetTime(t)
	}
}

// SetTimelineTime sets the automation timeline time.
func (m *Manager) SetTimelineTime(t float32) {
	m.timelineTime = t
	if m.program != nil {
		m.program.SetTimelineTime(t)
	}
}

// UpdateParameter applies a parameter edit. g is the graph snapshot after
// the edit and is retained. When the value only feeds a uniform the running
// program is updated in place and a single render is scheduled. Any other
// edit is escalated to a debounced recompile.
func (m *Manager) UpdateParameter(g *glgraph.NodeGraph, nodeID, param string, v glgraph.Value) {
	if m.closed {
		return
	}
	m.live[paramKey{nodeID, param}] = v
	if m.contextLost {
		m.pending = g
		return
	}
	if m.fastPath(g, nodeID, param, v) {
		parameterUpdatesTotal.WithLabelValues("fast").Inc()
		m.graph = g
		m.RequestRender()
		return
	}
	parameterUpdatesTotal.WithLabelValues("recompile").Inc()
	m.RequestRecompile(g, false)
}

// fastPath pushes v to the running program if the edit cannot change the
// generated code. It reports whether the edit was handled.
func (m *Manager) fastPath(g *glgraph.NodeGraph, nodeID, param string, v glgraph.Value) bool {
	res := m.result
	if m.program == nil || !res.OK() || m.pending != nil || m.inflight != nil {
		return false
	}
	if v.Kind() != glgraph.KindFloat && !v.IsVec4() {
		return false
	}
	if m.compiler.StructuralHash(g) != res.Metadata.StructuralHash {
		return false
	}
	if g.Automation.Lane(nodeID, param) != nil {
		return true // The lane drives the value.
	}
	if info, ok := res.Node(nodeID); ok && info.HasInputConnections && m.overrideConnected(g, nodeID, param) {
		return true // The connection replaces the value.
	}
	u, ok := res.Uniform(nodeID, param)
	if !ok {
		return true // Not referenced by the program.
	}
	if err := m.program.SetUniform(u.Name, m.clamp(g, nodeID, param, v)); err != nil {
		glgraph.Logger().Warn("setting uniform", "uniform", u.Name, "err", err)
	}
	return true
}

// paramSpec returns the node of g and the catalog declaration of its parameter.
func (m *Manager) paramSpec(g *glgraph.NodeGraph, nodeID, param string) (*glgraph.NodeInstance, glgraph.ParamSpec, bool) {
	node := g.Node(nodeID)
	if node == nil {
		return nil, glgraph.ParamSpec{}, false
	}
	spec, ok := m.cfg.Catalog.Spec(node.Type)
	if !ok {
		return node, glgraph.ParamSpec{}, false
	}
	p, ok := spec.Param(param)
	return node, p, ok
}

// overrideConnected reports whether a connection fully replaces the parameter value.
func (m *Manager) overrideConnected(g *glgraph.NodeGraph, nodeID, param string) bool {
	node, p, ok := m.paramSpec(g, nodeID, param)
	if !ok {
		return false
	}
	for _, c := range g.Connections {
		if c.TargetNodeID == nodeID && c.TargetParameter == param {
			return glbuild.EffectiveMode(node, p) == glgraph.ModeOverride
		}
	}
	return false
}

// clamp limits v to the declared range of the parameter, as compiled values are.
func (m *Manager) clamp(g *glgraph.NodeGraph, nodeID, param string, v glgraph.Value) glgraph.Value {
	if _, p, ok := m.paramSpec(g, nodeID, param); ok {
		return glbuild.ClampValue(p, v)
	}
	return v
}

// RequestRecompile schedules a compile of g. Requests are debounced: only
// the last graph requested within the debounce window is compiled. With
// immediate set the compile runs on the next scheduler tick instead.
func (m *Manager) RequestRecompile(g *glgraph.NodeGraph, immediate bool) {
	if m.closed {
		return
	}
	m.pending = g
	if m.contextLost {
		return // Compiled on restore.
	}
	if m.cancelIdle != nil {
		m.cancelIdle()
		m.cancelIdle = nil
	}
	m.setState(StatePendingRecompile)
	if immediate {
		m.sched.Post(m.compilePending)
		return
	}
	m.cancelIdle = m.sched.RequestIdle(func() {
		m.cancelIdle = nil
		m.compilePending()
	}, m.cfg.Debounce)
}

// Cancel abandons pending and in-flight compiles. Replies to abandoned
// requests are dropped.
func (m *Manager) Cancel() {
	if m.cancelIdle != nil {
		m.cancelIdle()
		m.cancelIdle = nil
	}
	m.pending = nil
	m.inflight = nil
	m.requestID++
	m.settle()
}

// settle sets the resting state after a compile ends.
func (m *Manager) settle() {
	switch {
	case m.pending != nil:
		m.setState(StatePendingRecompile)
	case m.inflight != nil:
		m.setState(StateCompiling)
	case m.program != nil:
		m.setState(StateApplied)
	default:
		m.setState(StateIdle)
	}
}

func (m *Manager) audioSetup() *glgraph.AudioSetup {
	if m.cfg.Audio == nil {
		return nil
	}
	return m.cfg.Audio.Setup()
}

func (m *Manager) compilePending() {
	g := m.pending
	if g == nil || m.blocked() {
		return
	}
	m.pending = nil
	m.requestID++
	req := glworker.Message{
		Type:       glworker.TypeCompile,
		ID:         m.requestID,
		Graph:      g,
		AudioSetup: m.audioSetup(),
	}
	if m.result.OK() && m.graph != nil {
		d := glbuild.Diff(m.graph, g)
		req.PreviousResult = m.result
		req.AffectedNodeIDs = d.Affected
		req.TryIncremental = d.TryIncremental(len(g.Nodes))
	}
	m.inflight = g
	m.inflightStart = time.Now()
	m.setState(StateCompiling)
	if m.cfg.Worker != nil {
		err := m.cfg.Worker.Send(req)
		if err == nil {
			return
		}
		glgraph.Logger().Warn("worker unavailable, compiling on owner goroutine", "err", err)
	}
	res := glworker.Compile(context.Background(), m.compiler, &req)
	m.apply(req.ID, res)
}

func (m *Manager) handleReply(msg glworker.Message) {
	if m.blocked() {
		return
	}
	switch msg.Type {
	case glworker.TypeInited:
		glgraph.Logger().Debug("compile worker ready")
		return
	case glworker.TypeResult, glworker.TypeError:
	default:
		glgraph.Logger().Warn("unexpected worker reply", "type", msg.Type)
		return
	}
	if msg.ID == 0 && msg.Type == glworker.TypeError {
		m.report([]string{"worker: " + msg.Err})
		return
	}
	if msg.ID != m.requestID || m.inflight == nil {
		staleRepliesTotal.Inc()
		glgraph.Logger().Debug("dropping stale compile reply", "id", msg.ID, "current", m.requestID)
		return
	}
	if msg.Type == glworker.TypeError {
		m.inflight = nil
		compilesTotal.WithLabelValues("failed").Inc()
		m.report([]string{msg.Err})
		m.settle()
		return
	}
	m.apply(msg.ID, msg.Result)
}

// apply links res and swaps it in if it is the reply to the current request.
func (m *Manager) apply(id uint64, res *glgraph.CompilationResult) {
	g := m.inflight
	m.inflight = nil
	_, span := otel.Tracer("glgraph").Start(context.Background(), "glsession.apply",
		trace.WithAttributes(
			attribute.Int64("request_id", int64(id)),
			attribute.Bool("incremental", res != nil && res.Metadata.Incremental),
		),
	)
	defer span.End()
	compileDuration.Observe(time.Since(m.inflightStart).Seconds())
	defer m.settle()
	if res == nil {
		compilesTotal.WithLabelValues("failed").Inc()
		m.report([]string{"compile produced no result"})
		return
	}
	if !res.OK() {
		compilesTotal.WithLabelValues("failed").Inc()
		m.report(res.Metadata.Errors)
		return
	}
	prog, err := m.cfg.Linker.Link(res)
	if errors.Is(err, glgraph.ErrContextLost) {
		glgraph.Logger().Debug("link skipped, context lost", "id", id)
		if m.pending == nil {
			m.pending = g // Compiled on restore.
		}
		return
	} else if err != nil {
		compilesTotal.WithLabelValues("link_failed").Inc()
		m.report([]string{err.Error()})
		return
	}
	m.transferState(prog, g, res)
	if m.program != nil {
		m.program.Delete()
	}
	m.program, m.result, m.graph = prog, res, g
	m.lastErrors = nil
	compilesTotal.WithLabelValues("applied").Inc()
	glgraph.Logger().Info("program applied", "id", id, "incremental", res.Metadata.Incremental,
		"uniforms", len(res.Uniforms), "warnings", len(res.Metadata.Warnings))
	if m.cfg.OnApplied != nil {
		m.cfg.OnApplied(res)
	}
	m.RequestRender()
}

func (m *Manager) report(errs []string) {
	m.lastErrors = errs
	glgraph.Logger().Warn("compile not applied", "errors", errs)
	if m.cfg.OnError != nil {
		m.cfg.OnError(errs)
	}
}

// transferState writes onto next the live parameter values still meaningful
// for g, then every graph-declared value not already copied, then time.
func (m *Manager) transferState(next Program, g *glgraph.NodeGraph, res *glgraph.CompilationResult) {
	set := func(name string, v glgraph.Value) {
		if err := next.SetUniform(name, v); err != nil {
			glgraph.Logger().Warn("transferring uniform", "uniform", name, "err", err)
		}
	}
	copied := make(map[paramKey]bool)
	for key, v := range m.live {
		if g.Node(key.node) == nil || m.overrideConnected(g, key.node, key.param) {
			delete(m.live, key)
			continue
		}
		if u, ok := res.Uniform(key.node, key.param); ok {
			set(u.Name, m.clamp(g, key.node, key.param, v))
			copied[key] = true
		}
	}
	for _, u := range res.Uniforms {
		key := paramKey{u.NodeID, u.ParamName}
		if u.NodeID == "" || u.Port != "" || glgraph.IsVirtualNodeID(u.NodeID) || copied[key] {
			continue // Globals, signals and file outputs are pushed every frame.
		}
		v := u.Default
		if node := g.Node(u.NodeID); node != nil {
			if nv, ok := node.Param(u.ParamName); ok && (nv.Kind() == glgraph.KindFloat || nv.IsVec4()) {
				v = m.clamp(g, u.NodeID, u.ParamName, nv)
			}
		}
		set(u.Name, v)
	}
	if m.program != nil {
		m.time, m.timelineTime = m.program.Time(), m.program.TimelineTime()
	}
	next.SetTime(m.time)
	next.SetTimelineTime(m.timelineTime)
}

// RequestRender schedules one render on the next frame. Requests made
// before that frame coalesce.
func (m *Manager) RequestRender() {
	if m.program == nil || m.blocked() || m.cancelFrame != nil {
		return
	}
	m.cancelFrame = m.sched.RequestFrame(func() {
		m.cancelFrame = nil
		m.render()
	})
}

func (m *Manager) render() {
	if m.program == nil || m.blocked() {
		return
	}
	if m.cfg.Audio != nil {
		if err := m.cfg.Audio.Apply(m.program, m.result.Uniforms); err != nil {
			glgraph.Logger().Warn("pushing audio uniforms", "err", err)
		}
	}
	err := m.program.Render()
	framesTotal.Inc()
	if errors.Is(err, glgraph.ErrContextLost) {
		m.ContextLost()
	} else if err != nil {
		glgraph.Logger().Warn("render", "err", err)
	}
}

// ContextLost drops the program, whose GPU objects are gone, and abandons
// in-flight compiles. Entry points are blocked until [Manager.ContextRestored].
func (m *Manager) ContextLost() {
	if m.closed || m.contextLost {
		return
	}
	glgraph.Logger().Warn("gpu context lost")
	if m.program != nil {
		m.time, m.timelineTime = m.program.Time(), m.program.TimelineTime()
	}
	if m.pending == nil {
		m.pending = m.inflight
	}
	m.program = nil
	m.inflight = nil
	m.requestID++
	if m.cancelIdle != nil {
		m.cancelIdle()
		m.cancelIdle = nil
	}
	if m.cancelFrame != nil {
		m.cancelFrame()
		m.cancelFrame = nil
	}
	m.contextLost = true
	m.setState(StateIdle)
}

// ContextRestored recompiles the latest graph in full on the calling
// goroutine, bypassing the worker, and links it on the new context.
func (m *Manager) ContextRestored() {
	if m.closed || !m.contextLost {
		return
	}
	m.contextLost = false
	g := m.pending
	if g == nil {
		g = m.graph
	}
	m.pending = nil
	if g == nil {
		m.settle()
		return
	}
	glgraph.Logger().Info("gpu context restored, recompiling")
	m.requestID++
	m.inflight = g
	m.inflightStart = time.Now()
	m.setState(StateCompiling)
	m.result = nil // Chunks are still valid but force a full compile.
	res := glworker.Compile(context.Background(), m.compiler, &glworker.Message{
		ID:         m.requestID,
		Graph:      g,
		AudioSetup: m.audioSetup(),
	})
	m.apply(m.requestID, res)
}

// Close cancels pending work, stops the worker and deletes the program.
func (m *Manager) Close() error {
	if m.closed {
		return ErrClosed
	}
	m.Cancel()
	if m.cancelFrame != nil {
		m.cancelFrame()
		m.cancelFrame = nil
	}
	m.closed = true
	var err error
	if m.cfg.Worker != nil {
		m.stopPump()
		err = m.cfg.Worker.Close()
		<-m.pumpDone
	}
	if m.program != nil {
		m.program.Delete()
		m.program = nil
	}
	m.setState(StateIdle)
	return err
}
