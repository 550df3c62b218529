package glbuild

import (
	"strconv"

	"github.com/soypat/glgraph"
)

// RuntimeOnlyPolicy reports whether a node parameter is handled at runtime
// outside the shader and so must never become a uniform. Such parameters
// are baked into the code as literals.
type RuntimeOnlyPolicy func(nodeType, param string) bool

// SanitizeIdentifier maps an arbitrary id to a legal GLSL identifier fragment.
// Runs of non-alphanumeric characters are removed and the letter following
// them is capitalized, i.e: "audio-signal:bass" becomes "audioSignalBass".
// Identifiers starting with a digit are prefixed with 'n'. The result never
// contains an underscore.
func SanitizeIdentifier(id string) string {
	b := make([]byte, 0, len(id)+1)
	upper := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !isAlnum(c) {
			upper = true
			continue
		}
		if upper && len(b) > 0 && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		b = append(b, c)
	}
	if len(b) == 0 {
		return "x"
	}
	if isDigit(b[0]) {
		b = append(b, 0)
		copy(b[1:], b)
		b[0] = 'n'
	}
	return string(b)
}

// Capitalize upper-cases the first ASCII letter of s.
func Capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-('a'-'A')) + s[1:]
}

// SignalUniformName is the default uniform name of a virtual source node id.
func SignalUniformName(virtualID string) string {
	return "u" + Capitalize(SanitizeIdentifier(virtualID))
}

// LaneFuncName returns the name of the evaluator function generated for an automation lane.
func LaneFuncName(laneID string) string {
	return "evalAutomation_" + SanitizeIdentifier(laneID)
}

func isAlnum(c byte) bool {
	return isDigit(c) || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

type nameKey struct {
	id, name string
}

// Namer is the naming table of one compile. All names are registered
// up-front in graph declaration order, so lookups are pure and the same
// graph always yields the same names regardless of which nodes are
// generated or in which order.
type Namer struct {
	ids      map[string]string // raw node id -> unique sanitized id.
	idOwner  map[string]string // sanitized id -> raw node id.
	uniforms map[nameKey]string
	consts   map[nameKey]string
	taken    map[string]nameKey // every uniform and constant name -> owner.
	h        hasher
}

// NewNamer registers the names of every node, parameter and output of g and of
// every virtual source bound by audio or referenced by a connection.
func NewNamer(g *glgraph.NodeGraph, cat glgraph.Catalog, audio *glgraph.AudioSetup) *Namer {
	n := &Namer{
		ids:      make(map[string]string),
		idOwner:  make(map[string]string),
		uniforms: make(map[nameKey]string),
		consts:   make(map[nameKey]string),
		taken:    make(map[string]nameKey),
	}
	// Audio bindings are pushed by the collaborator under their own name, so they
	// claim their names first and nodes yield on collision.
	if audio != nil {
		for _, s := range audio.Signals {
			n.registerID(s.ID)
			n.claim(nameKey{id: s.ID}, s.Uniform, n.uniforms)
		}
	}
	for i := range g.Nodes {
		n.registerID(g.Nodes[i].ID)
	}
	for i := range g.Connections {
		if src := g.Connections[i].SourceNodeID; glgraph.IsVirtualNodeID(src) {
			n.registerID(src)
			n.claim(nameKey{id: src}, SignalUniformName(src), n.uniforms)
		}
	}
	primary := ""
	if audio != nil {
		primary = audio.PrimaryFileNodeID
	}
	for i := range g.Nodes {
		node := &g.Nodes[i]
		spec, ok := cat.Spec(node.Type)
		if !ok {
			continue
		}
		base := "u" + Capitalize(n.ID(node.ID))
		for _, p := range spec.Params {
			pname := Capitalize(SanitizeIdentifier(p.Name))
			if _, ok := p.Type.GLSLType(); ok {
				n.claim(nameKey{node.ID, p.Name}, base+pname, n.uniforms)
			} else {
				n.claim(nameKey{node.ID, p.Name}, "k"+Capitalize(n.ID(node.ID))+pname, n.consts)
			}
		}
		if node.ID == primary {
			for _, out := range spec.Outputs {
				n.claim(nameKey{node.ID, "." + out.Name}, base+Capitalize(SanitizeIdentifier(out.Name)), n.uniforms)
			}
		}
	}
	return n
}

func (n *Namer) registerID(raw string) {
	if _, ok := n.ids[raw]; ok {
		return
	}
	base := SanitizeIdentifier(raw)
	san := base
	for k := 2; ; k++ {
		if _, ok := n.idOwner[san]; !ok {
			break
		}
		san = base + "_" + strconv.Itoa(k)
	}
	n.ids[raw] = san
	n.idOwner[san] = raw
	n.h.str(raw)
	n.h.str(san)
}

// claim registers name for key in table, suffixing it if already taken by another key.
func (n *Namer) claim(key nameKey, name string, table map[nameKey]string) {
	if _, ok := table[key]; ok {
		return
	}
	base := name
	for k := 2; ; k++ {
		owner, taken := n.taken[name]
		if !taken || owner == key {
			break
		}
		name = base + "_" + strconv.Itoa(k)
	}
	n.taken[name] = key
	table[key] = name
	n.h.str(name)
}

// ID returns the sanitized unique identifier of a node id.
func (n *Namer) ID(raw string) string {
	if san, ok := n.ids[raw]; ok {
		return san
	}
	return SanitizeIdentifier(raw)
}

// Uniform returns the uniform name of a node parameter: u<NodeId><Param>.
func (n *Namer) Uniform(nodeID, param string) string {
	if name, ok := n.uniforms[nameKey{nodeID, param}]; ok {
		return name
	}
	return "u" + Capitalize(n.ID(nodeID)) + Capitalize(SanitizeIdentifier(param))
}

// SignalUniform returns the uniform name of a virtual source node id.
func (n *Namer) SignalUniform(virtualID string) string {
	if name, ok := n.uniforms[nameKey{id: virtualID}]; ok {
		return name
	}
	return SignalUniformName(virtualID)
}

// OutputUniform returns the uniform name of an output of an externally supplied node.
func (n *Namer) OutputUniform(nodeID, port string) string {
	if name, ok := n.uniforms[nameKey{nodeID, "." + port}]; ok {
		return name
	}
	return "u" + Capitalize(n.ID(nodeID)) + Capitalize(SanitizeIdentifier(port))
}

// Const returns the name of the baked constant of a non-uniform parameter.
func (n *Namer) Const(nodeID, param string) string {
	if name, ok := n.consts[nameKey{nodeID, param}]; ok {
		return name
	}
	return "k" + Capitalize(n.ID(nodeID)) + Capitalize(SanitizeIdentifier(param))
}

// Variable returns the name of a node output variable: node_<nodeId>_<port>.
func (n *Namer) Variable(nodeID, port string) string {
	return "node_" + n.ID(nodeID) + "_" + SanitizeIdentifier(port)
}

// Hash identifies the naming table. Two namers with equal hashes produce the same names.
func (n *Namer) Hash() uint64 { return n.h.h }

// UniformEligible reports whether a node parameter is fed through a uniform.
// Arrays and strings are baked into code, runtime-only parameters are inlined
// as literals and parameters fully replaced by an override connection need no uniform.
func UniformEligible(spec glgraph.ParamSpec, nodeType string, runtimeOnly RuntimeOnlyPolicy, overridden bool) bool {
	if _, ok := spec.Type.GLSLType(); !ok {
		return false
	} else if runtimeOnly != nil && runtimeOnly(nodeType, spec.Name) {
		return false
	}
	return !overridden
}

// RuntimeOnlySet returns the policy flagging the listed "nodeType.param" keys.
func RuntimeOnlySet(keys []string) RuntimeOnlyPolicy {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(nodeType, param string) bool {
		_, ok := set[nodeType+"."+param]
		return ok
	}
}
