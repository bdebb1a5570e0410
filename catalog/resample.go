package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mediarun/runtime/audio"
	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/wire"
)

// ResampleParams is the params JSON for a Resample node.
type ResampleParams struct {
	ToRate int `json:"to_rate"`
}

// Resample is a unary node that linearly resamples a PCM16 Audio buffer to
// a configured target sample rate, adapting audio.ResamplePCM16.
type Resample struct {
	node.BaseNode
	toRate int
}

// NewResample is a node.Constructor for the "resample" node type.
func NewResample(params []byte) (node.Node, error) {
	var p ResampleParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("catalog: invalid resample params: %w", err)
		}
	}
	if p.ToRate <= 0 {
		p.ToRate = audio.SampleRate16kHz
	}
	return &Resample{toRate: p.ToRate}, nil
}

func (r *Resample) Process(ctx context.Context, chunk node.Chunk) (<-chan node.Output, error) {
	if chunk.Buffer == nil || chunk.Buffer.Audio == nil {
		return nil, fmt.Errorf("catalog: resample requires an audio input buffer")
	}
	in := chunk.Buffer.Audio
	if in.Format != wire.SampleFormatI16 {
		return nil, fmt.Errorf("catalog: resample only supports 16-bit PCM input, got format %d", in.Format)
	}

	resampled, err := audio.ResamplePCM16(in.Samples, int(in.SampleRate), r.toRate)
	if err != nil {
		return nil, fmt.Errorf("catalog: resample failed: %w", err)
	}

	numSamples := uint64(len(resampled) / 2 / int(in.Channels))
	out := make(chan node.Output, 1)
	out <- node.Output{Buffer: wire.NewAudioBuffer(wire.Audio{
		Samples:    resampled,
		SampleRate: uint32(r.toRate),
		Channels:   in.Channels,
		Format:     in.Format,
		NumSamples: numSamples,
	})}
	close(out)
	return out, nil
}

func (r *Resample) Capabilities() node.Capabilities {
	return node.Capabilities{
		InputKinds:  node.SingleKind(wire.KindAudio),
		OutputKinds: node.SingleKind(wire.KindAudio),
	}
}
