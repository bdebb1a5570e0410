package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mediarun/runtime/audio"
	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/wire"
)

type vadReport struct {
	State      string  `json:"state"`
	Confidence float64 `json:"confidence"`
}

// VAD is a unary node wrapping audio.SimpleVAD: it analyzes one Audio
// buffer per chunk and reports the resulting voice-activity state as JSON.
type VAD struct {
	node.BaseNode
	analyzer *audio.SimpleVAD
}

// NewVAD is a node.Constructor for the "vad" node type.
func NewVAD(params []byte) (node.Node, error) {
	p := audio.DefaultVADParams()
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("catalog: invalid vad params: %w", err)
		}
	}
	analyzer, err := audio.NewSimpleVAD(p)
	if err != nil {
		return nil, fmt.Errorf("catalog: vad params rejected: %w", err)
	}
	return &VAD{analyzer: analyzer}, nil
}

func (v *VAD) Process(ctx context.Context, chunk node.Chunk) (<-chan node.Output, error) {
	if chunk.Buffer == nil || chunk.Buffer.Audio == nil {
		return nil, fmt.Errorf("catalog: vad requires an audio input buffer")
	}

	confidence, err := v.analyzer.Analyze(ctx, chunk.Buffer.Audio.Samples)
	if err != nil {
		return nil, fmt.Errorf("catalog: vad analysis failed: %w", err)
	}

	payload, err := json.Marshal(vadReport{
		State:      v.analyzer.State().String(),
		Confidence: confidence,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan node.Output, 1)
	out <- node.Output{Buffer: wire.NewJSONBuffer(wire.JSON{Payload: payload})}
	close(out)
	return out, nil
}

func (v *VAD) Cleanup(ctx context.Context) error {
	v.analyzer.Reset()
	return nil
}

func (v *VAD) Capabilities() node.Capabilities {
	return node.Capabilities{
		InputKinds:  node.SingleKind(wire.KindAudio),
		OutputKinds: node.SingleKind(wire.KindJSON),
	}
}
