// Package glworker runs graph compilation on a background goroutine.
//
// The worker shares no memory with its client: requests and replies cross
// the boundary JSON encoded, so a worker could as well live in another
// process. Requests are handled in order, one at a time.
package glworker

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/soypat/glgraph"
	"github.com/soypat/glgraph/automation"
	"github.com/soypat/glgraph/glbuild"
)

// ErrClosed is returned by operations on a closed worker.
var ErrClosed = errors.New("glworker: closed")

var (
	workerMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glgraph_worker_messages_total",
		Help: "Messages handled by compile workers by type",
	}, []string{"type"})

	workerCompileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "glgraph_worker_compile_duration_seconds",
		Help:    "Duration of compiles run on a worker",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
)

// Config configures a worker. The zero value is usable.
type Config struct {
	// QueueSize is the capacity of the request and reply queues. Defaults to 8.
	QueueSize int
}

// Worker is an in-process compile worker.
type Worker struct {
	in        chan []byte
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	// compiler is only accessed by the worker goroutine.
	compiler *glbuild.Compiler
}

// Start starts a worker goroutine. It must be configured with an init
// message before compile requests are served.
func Start(cfg Config) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	w := &Worker{
		in:   make(chan []byte, cfg.QueueSize),
		out:  make(chan []byte, cfg.QueueSize),
		done: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Send enqueues a request. It blocks while the request queue is full.
func (w *Worker) Send(m Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.in <- b:
		return nil
	case <-w.done:
		return ErrClosed
	}
}

// Recv blocks until a reply is available, ctx is done or the worker is closed.
func (w *Worker) Recv(ctx context.Context) (Message, error) {
	select {
	case b := <-w.out:
		return Decode(b)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-w.done:
		return Message{}, ErrClosed
	}
}

// Close stops the worker goroutine and waits for it to exit.
// A compile in progress is finished and its reply discarded.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()
	return nil
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case b := <-w.in:
			reply := w.handle(b)
			raw, err := Encode(reply)
			if err != nil {
				raw, _ = Encode(Message{Type: TypeError, ID: reply.ID, Err: err.Error()})
			}
			select {
			case w.out <- raw:
			case <-w.done:
				return
			}
		}
	}
}

func (w *Worker) handle(b []byte) Message {
	m, err := Decode(b)
	if err != nil {
		workerMessagesTotal.WithLabelValues("invalid").Inc()
		return Message{Type: TypeError, Err: err.Error()}
	}
	workerMessagesTotal.WithLabelValues(m.Type).Inc()
	switch m.Type {
	case TypeInit:
		cat, err := glgraph.NewMapCatalog(m.NodeSpecs...)
		if err != nil {
			return Message{Type: TypeError, Err: "init: " + err.Error()}
		}
		w.compiler = &glbuild.Compiler{
			Catalog:     cat,
			RuntimeOnly: glbuild.RuntimeOnlySet(m.RuntimeOnly),
			Automation:  automation.Automator,
		}
		glgraph.Logger().Debug("worker initialized", "nodeSpecs", len(m.NodeSpecs))
		return Message{Type: TypeInited}
	case TypeCompile:
		if w.compiler == nil {
			return Message{Type: TypeError, ID: m.ID, Err: "worker not initialized"}
		}
		if m.Graph == nil {
			return Message{Type: TypeError, ID: m.ID, Err: "compile request without graph"}
		}
		timer := prometheus.NewTimer(workerCompileDuration)
		res := Compile(context.Background(), w.compiler, &m)
		timer.ObserveDuration()
		return Message{Type: TypeResult, ID: m.ID, Result: res}
	}
	return Message{Type: TypeError, ID: m.ID, Err: "unknown message type " + m.Type}
}

// Compile serves a compile request with c: incrementally when requested and
// provably safe, else in full. It is used by workers and by clients
// compiling on their own goroutine.
func Compile(ctx context.Context, c *glbuild.Compiler, req *Message) *glgraph.CompilationResult {
	_, span := otel.Tracer("glgraph").Start(ctx, "glworker.Compile",
		trace.WithAttributes(
			attribute.Int64("request_id", int64(req.ID)),
			attribute.Int("nodes", len(req.Graph.Nodes)),
			attribute.Bool("try_incremental", req.TryIncremental),
		),
	)
	defer span.End()
	var res *glgraph.CompilationResult
	if req.TryIncremental && req.PreviousResult != nil {
		res = c.CompileIncremental(req.PreviousResult, req.Graph, req.AudioSetup, req.AffectedNodeIDs)
	}
	if res == nil {
		res = c.Compile(req.Graph, req.AudioSetup)
	}
	span.SetAttributes(attribute.Bool("incremental", res.Metadata.Incremental))
	if !res.OK() {
		span.SetStatus(codes.Error, res.Metadata.Errors[0])
	}
	return res
}
