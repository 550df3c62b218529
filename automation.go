package glgraph

import (
	"errors"
	"fmt"
)

// Ease selects the interpolation used between a keyframe and the next one.
type Ease string

const (
	EaseLinear Ease = "linear"
	EaseStep   Ease = "step"
	EaseSmooth Ease = "smooth"
)

// Automation holds the timeline lanes of a graph. A lane drives exactly
// one node parameter over timeline time.
type Automation struct {
	Lanes []AutomationLane `json:"lanes"`
}

// AutomationLane is a keyframed curve bound to a node parameter.
type AutomationLane struct {
	ID        string     `json:"id"`
	NodeID    string     `json:"nodeId"`
	ParamName string     `json:"paramName"`
	Keyframes []Keyframe `json:"keyframes"`
}

// Keyframe is a lane control point. Ease applies to the segment starting at this keyframe.
type Keyframe struct {
	Time  float32 `json:"time"`
	Value float32 `json:"value"`
	Ease  Ease    `json:"ease,omitempty"`
}

// Lane returns the lane bound to the node parameter, or nil.
func (a *Automation) Lane(nodeID, param string) *AutomationLane {
	if a == nil {
		return nil
	}
	for i := range a.Lanes {
		if a.Lanes[i].NodeID == nodeID && a.Lanes[i].ParamName == param {
			return &a.Lanes[i]
		}
	}
	return nil
}

func (a *Automation) Validate() error {
	var errs []error
	ids := make(map[string]struct{})
	bound := make(map[[2]string]string)
	for i := range a.Lanes {
		lane := &a.Lanes[i]
		if lane.ID == "" {
			errs = append(errs, fmt.Errorf("automation lane[%d]: empty id", i))
		} else if _, dup := ids[lane.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate automation lane id %q", lane.ID))
		}
		ids[lane.ID] = struct{}{}
		key := [2]string{lane.NodeID, lane.ParamName}
		if other, dup := bound[key]; dup {
			errs = append(errs, fmt.Errorf("automation lanes %q and %q both drive %s.%s", other, lane.ID, lane.NodeID, lane.ParamName))
		}
		bound[key] = lane.ID
		if len(lane.Keyframes) == 0 {
			errs = append(errs, fmt.Errorf("automation lane %q: no keyframes", lane.ID))
		}
		for k := 1; k < len(lane.Keyframes); k++ {
			if lane.Keyframes[k].Time < lane.Keyframes[k-1].Time {
				errs = append(errs, fmt.Errorf("automation lane %q: keyframes not sorted by time at %d", lane.ID, k))
				break
			}
		}
		for _, kf := range lane.Keyframes {
			switch kf.Ease {
			case "", EaseLinear, EaseStep, EaseSmooth:
			default:
				errs = append(errs, fmt.Errorf("automation lane %q: unknown ease %q", lane.ID, kf.Ease))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Equal reports whether lanes a and b describe the same curve for the same parameter.
func (a *AutomationLane) Equal(b *AutomationLane) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.NodeID != b.NodeID || a.ParamName != b.ParamName || len(a.Keyframes) != len(b.Keyframes) {
		return false
	}
	for i := range a.Keyframes {
		if a.Keyframes[i] != b.Keyframes[i] {
			return false
		}
	}
	return true
}

func (a *Automation) clone() *Automation {
	c := &Automation{Lanes: make([]AutomationLane, len(a.Lanes))}
	for i, lane := range a.Lanes {
		lane.Keyframes = append([]Keyframe(nil), lane.Keyframes...)
		c.Lanes[i] = lane
	}
	return c
}
