package glworker

import (
	"encoding/json"
	"fmt"

	"github.com/soypat/glgraph"
)

// Message types exchanged with a worker.
const (
	TypeInit    = "init"
	TypeInited  = "inited"
	TypeCompile = "compile"
	TypeResult  = "result"
	TypeError   = "error"
)

// Message is the envelope of every request and reply. Which fields are set
// depends on Type.
type Message struct {
	Type string `json:"type"`
	// ID ties a compile request to its reply. Zero for init messages.
	ID uint64 `json:"id,omitempty"`

	// init
	NodeSpecs   []glgraph.NodeSpec `json:"nodeSpecs,omitempty"`
	RuntimeOnly []string           `json:"runtimeOnly,omitempty"`

	// compile
	Graph           *glgraph.NodeGraph         `json:"graph,omitempty"`
	AudioSetup      *glgraph.AudioSetup        `json:"audioSetup,omitempty"`
	PreviousResult  *glgraph.CompilationResult `json:"previousResult,omitempty"`
	AffectedNodeIDs []string                   `json:"affectedNodeIds,omitempty"`
	TryIncremental  bool                       `json:"tryIncremental,omitempty"`

	// result and error
	Result *glgraph.CompilationResult `json:"result,omitempty"`
	Err    string                     `json:"message,omitempty"`
}

// InitMessage returns the message configuring a worker with a catalog and
// the runtime-only table given as "nodeType.param" keys.
func InitMessage(cat glgraph.Catalog, runtimeOnly []string) Message {
	return Message{Type: TypeInit, NodeSpecs: cat.Specs(), RuntimeOnly: runtimeOnly}
}

// Encode marshals m for the wire.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Type, err)
	}
	return b, nil
}

// Decode unmarshals a wire message.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decoding worker message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("worker message without type")
	}
	return m, nil
}
