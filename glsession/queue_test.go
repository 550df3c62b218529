package glsession_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soypat/glgraph/glsession"
)

func TestQueuePostOrder(t *testing.T) {
	q := glsession.NewQueue(nil)
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		q.Post(func() { got = append(got, i) })
	}
	q.Post(func() {
		q.Post(func() { got = append(got, 99) })
	})
	if n := q.Pump(); n != 4 {
		t.Fatalf("ran %d callbacks", n)
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Fatalf("order %v", got)
	}
	q.Pump()
	if got[len(got)-1] != 99 {
		t.Fatal("callback posted while pumping did not run on next pump")
	}
}

func TestQueueIdle(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	q := glsession.NewQueue(clk.now)
	ran := 0
	q.RequestIdle(func() { ran++ }, 100*time.Millisecond)
	cancel := q.RequestIdle(func() { ran += 10 }, 100*time.Millisecond)
	clk.advance(99 * time.Millisecond)
	q.Pump()
	if ran != 0 {
		t.Fatal("idle callback ran early")
	}
	cancel()
	if q.Len() != 1 {
		t.Fatalf("Len=%d after cancel", q.Len())
	}
	clk.advance(time.Millisecond)
	q.Pump()
	q.Pump()
	if ran != 1 {
		t.Fatalf("ran=%d", ran)
	}
}

func TestQueueFrame(t *testing.T) {
	q := glsession.NewQueue(nil)
	ran := 0
	q.RequestFrame(func() { ran++ })
	cancel := q.RequestFrame(func() { ran += 10 })
	cancel()
	q.Pump()
	if ran != 0 {
		t.Fatal("frame callback ran on pump")
	}
	if n := q.Frame(); n != 1 || ran != 1 {
		t.Fatalf("Frame ran %d callbacks, ran=%d", n, ran)
	}
	if q.Frame() != 0 {
		t.Fatal("frame callback ran twice")
	}
}

func TestQueueRun(t *testing.T) {
	q := glsession.NewQueue(nil)
	ctx, cancel := context.WithCancel(context.Background())
	frames := 0
	q.Post(func() {})
	err := q.Run(ctx, 1000, func() {
		frames++
		if frames == 3 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	if frames != 3 {
		t.Fatalf("drew %d frames", frames)
	}
}
