package glgraph

import "errors"

// ErrContextLost is returned by GPU executors when the rendering context was
// lost. It is not a compile failure: callers swallow it and wait for the
// context to be restored.
var ErrContextLost = errors.New("gpu context lost")

// CompilationResult is the output of compiling a [NodeGraph].
// All fields are plain data so results can cross a worker boundary.
type CompilationResult struct {
	ShaderCode string            `json:"shaderCode"`
	Uniforms   []UniformMetadata `json:"uniforms"`
	Metadata   Metadata          `json:"metadata"`
	// Chunks holds the code emitted per node, keyed by node id. It lets a later
	// compile reuse code of nodes that were not affected by an edit.
	Chunks map[string]Chunk `json:"chunks,omitempty"`
}

// OK reports whether the result compiled without errors.
func (r *CompilationResult) OK() bool { return r != nil && len(r.Metadata.Errors) == 0 }

// Uniform returns the metadata of the uniform owned by the node parameter.
func (r *CompilationResult) Uniform(nodeID, param string) (UniformMetadata, bool) {
	for _, u := range r.Uniforms {
		if u.NodeID == nodeID && u.Port == "" && u.ParamName == param {
			return u, true
		}
	}
	return UniformMetadata{}, false
}

// OutputUniform returns the metadata of the uniform carrying an output port
// of the primary audio file node.
func (r *CompilationResult) OutputUniform(nodeID, port string) (UniformMetadata, bool) {
	for _, u := range r.Uniforms {
		if u.NodeID == nodeID && u.Port != "" && u.Port == port {
			return u, true
		}
	}
	return UniformMetadata{}, false
}

// Node returns the per-node metadata for id.
func (r *CompilationResult) Node(id string) (NodeInfo, bool) {
	for _, n := range r.Metadata.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeInfo{}, false
}

// UniformMetadata describes a uniform declared by the compiled program.
// Global uniforms such as uTime have an empty NodeID.
type UniformMetadata struct {
	Name      string `json:"name"`
	NodeID    string `json:"nodeId,omitempty"`
	ParamName string `json:"paramName,omitempty"`
	// Port is set instead of ParamName for uniforms carrying an output port.
	Port string `json:"port,omitempty"`
	// Type is the GLSL type: float, int, vec2 or vec4.
	Type    string `json:"type"`
	Default Value  `json:"default"`
}

// Metadata holds diagnostics and bookkeeping of a compile.
type Metadata struct {
	Warnings          []string   `json:"warnings,omitempty"`
	Errors            []string   `json:"errors,omitempty"`
	ExecutionOrder    []string   `json:"executionOrder"`
	FinalOutputNodeID string     `json:"finalOutputNodeId,omitempty"`
	Nodes             []NodeInfo `json:"nodes,omitempty"`
	// StructuralHash is the hash of everything in the graph except values of
	// parameters that are fed to the program through uniforms.
	StructuralHash uint64 `json:"structuralHash,string"`
	// LayoutHash identifies the naming table, connections, audio setup,
	// final output and automation bindings. Per-node code can only be reused
	// between results of equal layout hash.
	LayoutHash uint64 `json:"layoutHash,string"`
	// Incremental is set when the result was built reusing chunks of a previous result.
	Incremental bool `json:"incremental,omitempty"`
}

// NodeInfo is per-node compile information.
type NodeInfo struct {
	ID string `json:"id"`
	// HasInputConnections is set when any parameter of the node has a live connection.
	HasInputConnections bool `json:"hasInputConnections,omitempty"`
}

// Chunk is the code emitted for one node.
type Chunk struct {
	// Decls is emitted at file scope: nested functions and baked constants.
	Decls string `json:"decls,omitempty"`
	// Body is emitted inside main().
	Body     string   `json:"body,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// AudioSetup is a snapshot of the audio collaborator's signal bindings handed
// to the compiler along with the graph.
type AudioSetup struct {
	Signals []SignalBinding `json:"signals,omitempty"`
	// PrimaryFileNodeID names the graph node that stands for the primary
	// playable audio file. Its outputs are supplied as uniforms.
	PrimaryFileNodeID string `json:"primaryFileNodeId,omitempty"`
}

// SignalBinding binds a virtual source to its uniform.
type SignalBinding struct {
	// ID is the virtual node id, i.e: "audio-signal:bass".
	ID      string  `json:"id"`
	Uniform string  `json:"uniform"`
	Value   float32 `json:"value"`
}

// Signal returns the binding of the virtual node id.
func (a *AudioSetup) Signal(virtualID string) (SignalBinding, bool) {
	if a == nil {
		return SignalBinding{}, false
	}
	for _, s := range a.Signals {
		if s.ID == virtualID {
			return s, true
		}
	}
	return SignalBinding{}, false
}

// Equal reports whether a and b bind the same signals to the same uniforms.
// Values are not compared since they are pushed every frame.
func (a *AudioSetup) Equal(b *AudioSetup) bool {
	var sa, sb []SignalBinding
	var fa, fb string
	if a != nil {
		sa, fa = a.Signals, a.PrimaryFileNodeID
	}
	if b != nil {
		sb, fb = b.Signals, b.PrimaryFileNodeID
	}
	if fa != fb || len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i].ID != sb[i].ID || sa[i].Uniform != sb[i].Uniform {
			return false
		}
	}
	return true
}
