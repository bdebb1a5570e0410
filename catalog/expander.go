package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/wire"
)

// ExpanderParams is the params JSON for an Expander node.
type ExpanderParams struct {
	Factor int `json:"factor"`
}

// Expander is a streaming node that emits Factor copies of its input
// buffer per chunk, in order, exercising the scheduler's ordered
// multi-output delivery path.
type Expander struct {
	node.BaseNode
	factor int
}

// NewExpander is a node.Constructor for the "expander" node type.
func NewExpander(params []byte) (node.Node, error) {
	var p ExpanderParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("catalog: invalid expander params: %w", err)
		}
	}
	if p.Factor <= 0 {
		p.Factor = 1
	}
	return &Expander{factor: p.Factor}, nil
}

func (e *Expander) Process(ctx context.Context, chunk node.Chunk) (<-chan node.Output, error) {
	if chunk.Buffer == nil {
		return nil, fmt.Errorf("catalog: expander requires a single input buffer")
	}
	out := make(chan node.Output, e.factor)
	for i := 0; i < e.factor; i++ {
		out <- node.Output{Buffer: *chunk.Buffer}
	}
	close(out)
	return out, nil
}

func (e *Expander) Capabilities() node.Capabilities {
	return node.Capabilities{
		InputKinds: map[string][]wire.Kind{
			node.DefaultInputName: {wire.KindText, wire.KindJSON, wire.KindBinary, wire.KindAudio, wire.KindVideo, wire.KindTensor},
		},
		OutputKinds: map[string][]wire.Kind{
			node.DefaultOutputName: {wire.KindText, wire.KindJSON, wire.KindBinary, wire.KindAudio, wire.KindVideo, wire.KindTensor},
		},
		Streaming: true,
	}
}
