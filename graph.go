// Package glgraph defines the data model of shader node graphs: graphs of
// node instances joined by connections, the catalog declaring node types and
// the results of compiling a graph into a GLSL fragment shader.
//
// Compilation lives in the glbuild package. The glsession package keeps a
// running program in sync with a graph being edited.
package glgraph

import (
	"errors"
	"fmt"
	"strings"
)

// VirtualSignalPrefix prefixes the ids of virtual source nodes. Virtual nodes
// do not appear in [NodeGraph.Nodes]; their values are computed outside the
// graph (audio bands, remapped bands) and reach the shader through uniforms.
const VirtualSignalPrefix = "audio-signal:"

// IsVirtualNodeID reports whether id names a virtual signal source.
func IsVirtualNodeID(id string) bool {
	return strings.HasPrefix(id, VirtualSignalPrefix)
}

// VirtualNodeID returns the virtual source node id for signalID.
func VirtualNodeID(signalID string) string { return VirtualSignalPrefix + signalID }

// SignalID returns the signal id of a virtual source node id and whether id was virtual.
func SignalID(virtualID string) (string, bool) {
	return strings.CutPrefix(virtualID, VirtualSignalPrefix)
}

// InputMode governs how a connected value combines with a parameter's configured value.
type InputMode string

const (
	ModeOverride InputMode = "override"
	ModeAdd      InputMode = "add"
	ModeSubtract InputMode = "subtract"
	ModeMultiply InputMode = "multiply"
)

// Valid reports whether m is one of the four known modes.
func (m InputMode) Valid() bool {
	switch m {
	case ModeOverride, ModeAdd, ModeSubtract, ModeMultiply:
		return true
	}
	return false
}

// NodeGraph is a snapshot of a user-authored shader graph. The compiler
// never mutates a graph handed to it.
type NodeGraph struct {
	Nodes       []NodeInstance `json:"nodes"`
	Connections []Connection   `json:"connections"`
	Automation  *Automation    `json:"automation,omitempty"`
	// FinalOutputNodeID selects the node whose output is written to the fragment.
	// When empty the first node whose catalog spec is flagged as output is used.
	FinalOutputNodeID string `json:"finalOutputNodeId,omitempty"`
}

// NodeInstance is a node placed in a graph.
type NodeInstance struct {
	ID                  string               `json:"id"`
	Type                string               `json:"type"`
	Parameters          map[string]Value     `json:"parameters,omitempty"`
	ParameterInputModes map[string]InputMode `json:"parameterInputModes,omitempty"`
}

// Param returns the node's value for the named parameter.
func (n *NodeInstance) Param(name string) (Value, bool) {
	v, ok := n.Parameters[name]
	return v, ok
}

// Connection is an edge from a node output to either an input port (TargetPort)
// or a parameter (TargetParameter). Exactly one of the two targets is set.
type Connection struct {
	ID              string `json:"id"`
	SourceNodeID    string `json:"sourceNodeId"`
	SourcePort      string `json:"sourcePort"`
	TargetNodeID    string `json:"targetNodeId"`
	TargetPort      string `json:"targetPort,omitempty"`
	TargetParameter string `json:"targetParameter,omitempty"`
}

// IsParameter reports whether c is a parameter (modulation) connection.
func (c Connection) IsParameter() bool { return c.TargetParameter != "" }

// Validate checks the connection's shape.
func (c Connection) Validate() error {
	switch {
	case c.SourceNodeID == "":
		return fmt.Errorf("connection %q: empty source node", c.ID)
	case c.TargetNodeID == "":
		return fmt.Errorf("connection %q: empty target node", c.ID)
	case c.TargetPort != "" && c.TargetParameter != "":
		return fmt.Errorf("connection %q: both target port %q and target parameter %q set", c.ID, c.TargetPort, c.TargetParameter)
	case c.TargetPort == "" && c.TargetParameter == "":
		return fmt.Errorf("connection %q: no target port nor target parameter", c.ID)
	case IsVirtualNodeID(c.TargetNodeID):
		return fmt.Errorf("connection %q: virtual node %q cannot be a target", c.ID, c.TargetNodeID)
	}
	return nil
}

// Node returns the node with the given id or nil.
func (g *NodeGraph) Node(id string) *NodeInstance {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// NodeIndex maps node ids to their index in g.Nodes. Duplicate ids keep the first index.
func (g *NodeGraph) NodeIndex() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i := range g.Nodes {
		if _, dup := idx[g.Nodes[i].ID]; !dup {
			idx[g.Nodes[i].ID] = i
		}
	}
	return idx
}

// Validate checks the structural invariants of the graph: unique node and
// connection ids, well formed connections and no dangling references.
// All violations found are joined in the returned error.
func (g *NodeGraph) Validate() error {
	if g == nil {
		return errors.New("nil graph")
	}
	var errs []error
	nodes := make(map[string]struct{}, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			errs = append(errs, fmt.Errorf("node[%d]: empty id", i))
			continue
		} else if IsVirtualNodeID(n.ID) {
			errs = append(errs, fmt.Errorf("node %q: id uses reserved virtual prefix", n.ID))
		}
		if _, dup := nodes[n.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate node id %q", n.ID))
		}
		nodes[n.ID] = struct{}{}
		if n.Type == "" {
			errs = append(errs, fmt.Errorf("node %q: empty type", n.ID))
		}
		for name, mode := range n.ParameterInputModes {
			if !mode.Valid() {
				errs = append(errs, fmt.Errorf("node %q: parameter %q has invalid input mode %q", n.ID, name, mode))
			}
		}
	}
	conns := make(map[string]struct{}, len(g.Connections))
	for i := range g.Connections {
		c := &g.Connections[i]
		if c.ID != "" {
			if _, dup := conns[c.ID]; dup {
				errs = append(errs, fmt.Errorf("duplicate connection id %q", c.ID))
			}
			conns[c.ID] = struct{}{}
		}
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := nodes[c.SourceNodeID]; !ok && !IsVirtualNodeID(c.SourceNodeID) {
			errs = append(errs, fmt.Errorf("connection %q: source node %q not found", c.ID, c.SourceNodeID))
		}
		if _, ok := nodes[c.TargetNodeID]; !ok {
			errs = append(errs, fmt.Errorf("connection %q: target node %q not found", c.ID, c.TargetNodeID))
		}
	}
	if g.Automation != nil {
		if err := g.Automation.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of g. Editors hand clones to the compilation
// layer so that later mutations never reach a snapshot being compiled.
func (g *NodeGraph) Clone() *NodeGraph {
	if g == nil {
		return nil
	}
	c := &NodeGraph{
		Nodes:             make([]NodeInstance, len(g.Nodes)),
		Connections:       append([]Connection(nil), g.Connections...),
		FinalOutputNodeID: g.FinalOutputNodeID,
	}
	for i, n := range g.Nodes {
		cn := NodeInstance{ID: n.ID, Type: n.Type}
		if n.Parameters != nil {
			cn.Parameters = make(map[string]Value, len(n.Parameters))
			for k, v := range n.Parameters {
				if v.kind == KindList {
					v.list = append([]float32(nil), v.list...)
				}
				cn.Parameters[k] = v
			}
		}
		if n.ParameterInputModes != nil {
			cn.ParameterInputModes = make(map[string]InputMode, len(n.ParameterInputModes))
			for k, v := range n.ParameterInputModes {
				cn.ParameterInputModes[k] = v
			}
		}
		c.Nodes[i] = cn
	}
	if g.Automation != nil {
		c.Automation = g.Automation.clone()
	}
	return c
}

// SetParam sets a parameter value on the node with the given id and reports whether the node exists.
func (g *NodeGraph) SetParam(nodeID, param string, v Value) bool {
	n := g.Node(nodeID)
	if n == nil {
		return false
	}
	if n.Parameters == nil {
		n.Parameters = make(map[string]Value)
	}
	n.Parameters[param] = v
	return true
}
