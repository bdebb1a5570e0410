package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/tts"
	"github.com/mediarun/runtime/wire"
)

// SynthesisParams is the params JSON for a Synthesis node.
type SynthesisParams struct {
	Voice string `json:"voice,omitempty"`
	Model string `json:"model,omitempty"`
}

// Synthesis is a unary node wrapping a tts.Service: it converts one Text
// buffer per chunk into a Binary buffer carrying encoded audio.
type Synthesis struct {
	node.BaseNode
	svc    tts.Service
	config tts.SynthesisConfig
}

// NewSynthesis is a node.Constructor for the "synthesis" node type.
func NewSynthesis(params []byte) (node.Node, error) {
	var p SynthesisParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("catalog: invalid synthesis params: %w", err)
		}
	}
	cfg := tts.DefaultSynthesisConfig()
	if p.Voice != "" {
		cfg.Voice = p.Voice
	}
	if p.Model != "" {
		cfg.Model = p.Model
	}

	return &Synthesis{
		svc:    tts.NewOpenAI(os.Getenv("OPENAI_API_KEY")),
		config: cfg,
	}, nil
}

func (s *Synthesis) Process(ctx context.Context, chunk node.Chunk) (<-chan node.Output, error) {
	if chunk.Buffer == nil || chunk.Buffer.Text == nil {
		return nil, fmt.Errorf("catalog: synthesis requires a text input buffer")
	}

	reader, err := s.svc.Synthesize(ctx, string(chunk.Buffer.Text.Payload), s.config)
	if err != nil {
		return nil, fmt.Errorf("catalog: synthesis failed: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("catalog: synthesis read failed: %w", err)
	}

	out := make(chan node.Output, 1)
	out <- node.Output{Buffer: wire.NewBinaryBuffer(wire.Binary{
		Payload:  data,
		MimeType: s.config.Format.MIMEType,
	})}
	close(out)
	return out, nil
}

func (s *Synthesis) Capabilities() node.Capabilities {
	return node.Capabilities{
		InputKinds:  node.SingleKind(wire.KindText),
		OutputKinds: node.SingleKind(wire.KindBinary),
		Requirements: []node.CapabilityRequirement{
			{Name: "network_egress", Value: 1},
		},
	}
}
