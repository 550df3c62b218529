// Package automation evaluates timeline automation lanes, both on the CPU and
// as generated GLSL functions of timeline time.
package automation

import (
	"strconv"

	"github.com/chewxy/math32"
	"github.com/soypat/glgraph"
	"github.com/soypat/glgraph/glbuild"
)

// Set is the automation collaborator of one compile. It implements [glbuild.Automator].
type Set struct {
	lanes []glgraph.AutomationLane
	names []string
	bound map[[2]string]int // (node, param) -> lane index.
}

var _ glbuild.Automator = (*Set)(nil)

// New returns the automation set of a. Lanes without keyframes are skipped.
// a is not retained.
func New(a *glgraph.Automation) *Set {
	s := &Set{bound: make(map[[2]string]int)}
	if a == nil {
		return s
	}
	taken := make(map[string]bool)
	for _, lane := range a.Lanes {
		key := [2]string{lane.NodeID, lane.ParamName}
		if _, dup := s.bound[key]; dup || len(lane.Keyframes) == 0 {
			continue
		}
		lane.Keyframes = append([]glgraph.Keyframe(nil), lane.Keyframes...)
		base := glbuild.LaneFuncName(lane.ID)
		name := base
		for k := 2; taken[name]; k++ {
			name = base + "_" + strconv.Itoa(k)
		}
		taken[name] = true
		s.bound[key] = len(s.lanes)
		s.lanes = append(s.lanes, lane)
		s.names = append(s.names, name)
	}
	return s
}

// Automator adapts New to [glbuild.Compiler]'s Automation field.
func Automator(a *glgraph.Automation) glbuild.Automator { return New(a) }

// Len returns the number of lanes in s.
func (s *Set) Len() int { return len(s.lanes) }

func (s *Set) EvaluatorName(nodeID, param string) (string, bool) {
	i, ok := s.bound[[2]string{nodeID, param}]
	if !ok {
		return "", false
	}
	return s.names[i], true
}

// Eval evaluates the lane bound to the node parameter at timeline time t.
func (s *Set) Eval(nodeID, param string, t float32) (float32, bool) {
	i, ok := s.bound[[2]string{nodeID, param}]
	if !ok {
		return 0, false
	}
	return Eval(s.lanes[i].Keyframes, t), true
}

// AppendEvaluators appends one GLSL function per lane:
//
//	float evalAutomation_<lane>(float t)
func (s *Set) AppendEvaluators(dst []byte) []byte {
	for i := range s.lanes {
		dst = appendEvaluator(dst, s.names[i], s.lanes[i].Keyframes)
	}
	return dst
}

func appendEvaluator(b []byte, name string, kfs []glgraph.Keyframe) []byte {
	b = append(b, "float "...)
	b = append(b, name...)
	b = append(b, "(float t) {\n"...)
	first, last := kfs[0], kfs[len(kfs)-1]
	b = append(b, "\tif (t <= "...)
	b = appendFloat(b, first.Time)
	b = append(b, ") return "...)
	b = appendFloat(b, first.Value)
	b = append(b, ";\n"...)
	for i := 0; i < len(kfs)-1; i++ {
		k0, k1 := kfs[i], kfs[i+1]
		if k1.Time <= k0.Time {
			continue
		}
		b = append(b, "\tif (t < "...)
		b = appendFloat(b, k1.Time)
		b = append(b, ") return "...)
		switch k0.Ease {
		case glgraph.EaseStep:
			b = appendFloat(b, k0.Value)
		default:
			u := "(t - " + string(appendFloat(nil, k0.Time)) + ") / " + string(appendFloat(nil, k1.Time-k0.Time))
			if k0.Ease == glgraph.EaseSmooth {
				u = "smoothstep(0.0, 1.0, " + u + ")"
			}
			b = append(b, "mix("...)
			b = appendFloat(b, k0.Value)
			b = append(b, ", "...)
			b = appendFloat(b, k1.Value)
			b = append(b, ", "...)
			b = append(b, u...)
			b = append(b, ')')
		}
		b = append(b, ";\n"...)
	}
	b = append(b, "\treturn "...)
	b = appendFloat(b, last.Value)
	b = append(b, ";\n}\n\n"...)
	return b
}

func appendFloat(b []byte, v float32) []byte {
	return glbuild.AppendFloat(b, '-', '.', v)
}

// Eval evaluates keyframes sorted by time at t. Before the first keyframe and
// after the last the curve holds the respective keyframe value.
func Eval(kfs []glgraph.Keyframe, t float32) float32 {
	if len(kfs) == 0 {
		return 0
	}
	if t <= kfs[0].Time {
		return kfs[0].Value
	}
	for i := 0; i < len(kfs)-1; i++ {
		k0, k1 := kfs[i], kfs[i+1]
		if t >= k1.Time || k1.Time <= k0.Time {
			continue
		}
		u := (t - k0.Time) / (k1.Time - k0.Time)
		switch k0.Ease {
		case glgraph.EaseStep:
			return k0.Value
		case glgraph.EaseSmooth:
			u = smoothstep(u)
		}
		return k0.Value + (k1.Value-k0.Value)*u
	}
	return kfs[len(kfs)-1].Value
}

func smoothstep(u float32) float32 {
	u = math32.Max(0, math32.Min(1, u))
	return u * u * (3 - 2*u)
}

// Duration returns the time of the last keyframe of the longest lane.
func (s *Set) Duration() float32 {
	var d float32
	for _, lane := range s.lanes {
		d = math32.Max(d, lane.Keyframes[len(lane.Keyframes)-1].Time)
	}
	return d
}
