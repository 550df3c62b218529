package glsession

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Scheduler runs callbacks on the goroutine that owns a [Manager].
type Scheduler interface {
	// Post runs fn on the next tick.
	Post(fn func())
	// RequestIdle runs fn once the owner is idle and at least delay has
	// elapsed. The returned function cancels the request.
	RequestIdle(fn func(), delay time.Duration) (cancel func())
	// RequestFrame runs fn before the next frame is drawn.
	RequestFrame(fn func()) (cancel func())
}

type task struct {
	fn       func()
	deadline time.Time
	canceled bool
}

// Queue is a cooperative [Scheduler]. Callbacks may be requested from any
// goroutine but only run when the owner calls [Queue.Pump] and
// [Queue.Frame], or while [Queue.Run] is running.
type Queue struct {
	now func() time.Time

	mu     sync.Mutex
	posted []func()
	idle   []*task
	frame  []*task
}

var _ Scheduler = (*Queue)(nil)

// NewQueue returns a queue reading time from now. A nil now uses [time.Now].
func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{now: now}
}

func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.posted = append(q.posted, fn)
	q.mu.Unlock()
}

func (q *Queue) RequestIdle(fn func(), delay time.Duration) func() {
	t := &task{fn: fn, deadline: q.now().Add(delay)}
	q.mu.Lock()
	q.idle = append(q.idle, t)
	q.mu.Unlock()
	return q.canceler(t)
}

func (q *Queue) RequestFrame(fn func()) func() {
	t := &task{fn: fn}
	q.mu.Lock()
	q.frame = append(q.frame, t)
	q.mu.Unlock()
	return q.canceler(t)
}

func (q *Queue) canceler(t *task) func() {
	return func() {
		q.mu.Lock()
		t.canceled = true
		q.mu.Unlock()
	}
}

// Len returns the number of callbacks waiting, canceled ones excluded.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.posted)
	for _, t := range q.idle {
		if !t.canceled {
			n++
		}
	}
	for _, t := range q.frame {
		if !t.canceled {
			n++
		}
	}
	return n
}

// Pump runs posted callbacks and idle callbacks whose delay elapsed, in
// request order. Callbacks requested while pumping run on the next call.
// It returns the number of callbacks run.
func (q *Queue) Pump() int {
	now := q.now()
	q.mu.Lock()
	posted := q.posted
	q.posted = nil
	var due []*task
	kept := q.idle[:0]
	for _, t := range q.idle {
		switch {
		case t.canceled:
		case !t.deadline.After(now):
			due = append(due, t)
		default:
			kept = append(kept, t)
		}
	}
	clear(q.idle[len(kept):])
	q.idle = kept
	q.mu.Unlock()

	for _, fn := range posted {
		fn()
	}
	n := len(posted)
	for _, t := range due {
		if q.take(t) {
			t.fn()
			n++
		}
	}
	return n
}

// Frame runs the callbacks requested for this frame.
func (q *Queue) Frame() int {
	q.mu.Lock()
	frame := q.frame
	q.frame = nil
	q.mu.Unlock()
	n := 0
	for _, t := range frame {
		if q.take(t) {
			t.fn()
			n++
		}
	}
	return n
}

// take reports whether t is still live, marking it as consumed. A callback
// canceled by an earlier callback of the same pump does not run.
func (q *Queue) take(t *task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.canceled {
		return false
	}
	t.canceled = true
	return true
}

// Run pumps the queue and draws frames at most fps times per second until
// ctx is done. draw, if not nil, is called after the frame callbacks.
func (q *Queue) Run(ctx context.Context, fps float64, draw func()) error {
	limiter := rate.NewLimiter(rate.Limit(fps), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		q.Pump()
		q.Frame()
		if draw != nil {
			draw()
		}
	}
}
