package glgraph

import (
	"fmt"
	"sort"
)

// ParamType is the declared type of a node parameter.
type ParamType string

const (
	ParamFloat  ParamType = "float"
	ParamInt    ParamType = "int"
	ParamString ParamType = "string"
	ParamVec4   ParamType = "vec4"
	ParamArray  ParamType = "array"
)

// GLSLType returns the GLSL type of a uniform-able parameter type and false for
// strings and arrays, which are never uniforms.
func (t ParamType) GLSLType() (string, bool) {
	switch t {
	case ParamFloat:
		return "float", true
	case ParamInt:
		return "int", true
	case ParamVec4:
		return "vec4", true
	}
	return "", false
}

// NodeKind tells the assembler how a node's code is emitted.
type NodeKind string

const (
	// KindNode nodes emit a statement block into main() assigning their outputs.
	KindNode NodeKind = ""
	// KindSDF nodes are only evaluated inside a generated distance function
	// with signature float(vec3 p). Their template assigns $output.dist.
	KindSDF NodeKind = "sdf"
	// KindExpr nodes provide an expression of the point p that is inlined
	// into the host that consumes them.
	KindExpr NodeKind = "expr"
)

// Port types with nested semantics. Any other port type is a GLSL type.
const (
	PortSDF  = "sdf"
	PortExpr = "expr"
)

// PortSpec declares a node input or output.
type PortSpec struct {
	Name string `json:"name"`
	// Type is a GLSL type (float, int, vec2, vec3, vec4) or one of PortSDF, PortExpr.
	Type string `json:"type"`
	// Default is the GLSL expression used when an input is unconnected.
	// It may reference parameters with $param.<name> placeholders.
	Default string `json:"default,omitempty"`
}

// ParamSpec declares a node parameter.
type ParamSpec struct {
	Name             string    `json:"name"`
	Type             ParamType `json:"type"`
	Default          Value     `json:"default"`
	Min              *float32  `json:"min,omitempty"`
	Max              *float32  `json:"max,omitempty"`
	Required         bool      `json:"required,omitempty"`
	DefaultInputMode InputMode `json:"defaultInputMode,omitempty"`
}

// NodeSpec is the catalog entry of a node type.
type NodeSpec struct {
	Type    string      `json:"type"`
	Kind    NodeKind    `json:"kind,omitempty"`
	Family  string      `json:"family,omitempty"`
	Inputs  []PortSpec  `json:"inputs,omitempty"`
	Outputs []PortSpec  `json:"outputs,omitempty"`
	Params  []ParamSpec `json:"params,omitempty"`
	// Code is the template of the node. For KindNode and KindSDF it is a block
	// of statements, for KindExpr a single expression. Placeholders are
	// $param.<name>, $input.<port> and $output.<port>.
	Code string `json:"code"`
	// Functions are GLSL helper function definitions the code calls.
	// Functions with the same name are emitted once per program.
	Functions []string `json:"functions,omitempty"`
	// Output flags a node type that can be the final output of a graph.
	Output bool `json:"output,omitempty"`
}

// Param returns the named parameter declaration.
func (s *NodeSpec) Param(name string) (ParamSpec, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Input returns the named input port declaration.
func (s *NodeSpec) Input(name string) (PortSpec, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}

// OutputPort returns the named output port declaration.
func (s *NodeSpec) OutputPort(name string) (PortSpec, bool) {
	for _, p := range s.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}

// FamilyName returns Family or the node type when no family is set.
func (s *NodeSpec) FamilyName() string {
	if s.Family != "" {
		return s.Family
	}
	return s.Type
}

// Catalog provides node type declarations. Implementations must be safe for
// concurrent reads since the compiler may run on a worker goroutine.
type Catalog interface {
	Spec(nodeType string) (*NodeSpec, bool)
	// Specs returns every declaration sorted by type for serialization.
	Specs() []NodeSpec
}

// MapCatalog is a [Catalog] backed by a map keyed by node type.
type MapCatalog map[string]*NodeSpec

var _ Catalog = MapCatalog(nil)

// NewMapCatalog builds a catalog from specs. Duplicate types are an error.
func NewMapCatalog(specs ...NodeSpec) (MapCatalog, error) {
	m := make(MapCatalog, len(specs))
	for i := range specs {
		s := specs[i]
		if s.Type == "" {
			return nil, fmt.Errorf("node spec[%d]: empty type", i)
		} else if _, dup := m[s.Type]; dup {
			return nil, fmt.Errorf("duplicate node spec %q", s.Type)
		}
		m[s.Type] = &s
	}
	return m, nil
}

func (m MapCatalog) Spec(nodeType string) (*NodeSpec, bool) {
	s, ok := m[nodeType]
	return s, ok
}

func (m MapCatalog) Specs() []NodeSpec {
	specs := make([]NodeSpec, 0, len(m))
	for _, s := range m {
		specs = append(specs, *s)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}
