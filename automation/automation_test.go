package automation

import (
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/glgraph"
)

func TestEval(t *testing.T) {
	kfs := []glgraph.Keyframe{
		{Time: 1, Value: 0},
		{Time: 2, Value: 10, Ease: glgraph.EaseStep},
		{Time: 3, Value: 20, Ease: glgraph.EaseSmooth},
		{Time: 5, Value: 40},
	}
	const tol = 1e-5
	for _, test := range []struct {
		t, want float32
	}{
		{t: -1, want: 0},
		{t: 1, want: 0},
		{t: 1.5, want: 5},
		{t: 2, want: 10},
		{t: 2.9, want: 10},
		{t: 3, want: 20},
		{t: 4, want: 30},
		{t: 5, want: 40},
		{t: 100, want: 40},
	} {
		got := Eval(kfs, test.t)
		if math32.Abs(got-test.want) > tol {
			t.Errorf("Eval(%v)=%v, want %v", test.t, got, test.want)
		}
	}
}

func TestSetEvaluators(t *testing.T) {
	a := &glgraph.Automation{Lanes: []glgraph.AutomationLane{
		{ID: "lane-1", NodeID: "c", ParamName: "value", Keyframes: []glgraph.Keyframe{{Time: 0, Value: 1}, {Time: 2, Value: 3}}},
		{ID: "lane 1", NodeID: "c", ParamName: "other", Keyframes: []glgraph.Keyframe{{Time: 0, Value: 1}}},
		{ID: "empty", NodeID: "d", ParamName: "value"},
	}}
	s := New(a)
	if s.Len() != 2 {
		t.Fatalf("want 2 lanes, got %d", s.Len())
	}
	n1, ok1 := s.EvaluatorName("c", "value")
	n2, ok2 := s.EvaluatorName("c", "other")
	if !ok1 || !ok2 {
		t.Fatal("lanes not bound")
	}
	if n1 != "evalAutomation_lane1" || n2 != "evalAutomation_lane1_2" {
		t.Errorf("unexpected evaluator names %q %q", n1, n2)
	}
	if _, ok := s.EvaluatorName("d", "value"); ok {
		t.Error("lane without keyframes should not be bound")
	}
	src := string(s.AppendEvaluators(nil))
	for _, name := range []string{n1, n2} {
		if c := strings.Count(src, "float "+name+"(float t)"); c != 1 {
			t.Errorf("want one definition of %s, got %d:\n%s", name, c, src)
		}
	}
	if !strings.Contains(src, "mix(1.0, 3.0, (t - 0.0) / 2.0)") {
		t.Errorf("linear segment missing:\n%s", src)
	}
	v, ok := s.Eval("c", "value", 1)
	if !ok || v != 2 {
		t.Errorf("Eval=%v,%v want 2", v, ok)
	}
	if d := s.Duration(); d != 2 {
		t.Errorf("Duration=%v want 2", d)
	}
}
