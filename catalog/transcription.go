package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/stt"
	"github.com/mediarun/runtime/wire"
)

// TranscriptionParams is the params JSON for a Transcription node.
type TranscriptionParams struct {
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// Transcription is a unary node wrapping an stt.Service: it converts one
// Audio buffer per chunk into a Text buffer.
type Transcription struct {
	node.BaseNode
	svc    stt.Service
	config stt.TranscriptionConfig
}

// NewTranscription is a node.Constructor for the "transcription" node type.
// It reads its API key from OPENAI_API_KEY, per §6.5's rule that secrets
// are provided by the surrounding environment, not the manifest.
func NewTranscription(params []byte) (node.Node, error) {
	var p TranscriptionParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("catalog: invalid transcription params: %w", err)
		}
	}
	cfg := stt.DefaultTranscriptionConfig()
	if p.Language != "" {
		cfg.Language = p.Language
	}
	if p.Model != "" {
		cfg.Model = p.Model
	}
	cfg.Prompt = p.Prompt

	return &Transcription{
		svc:    stt.NewOpenAI(os.Getenv("OPENAI_API_KEY")),
		config: cfg,
	}, nil
}

func (t *Transcription) Process(ctx context.Context, chunk node.Chunk) (<-chan node.Output, error) {
	if chunk.Buffer == nil || chunk.Buffer.Audio == nil {
		return nil, fmt.Errorf("catalog: transcription requires an audio input buffer")
	}

	text, err := t.svc.Transcribe(ctx, chunk.Buffer.Audio.Samples, t.config)
	if err != nil {
		return nil, fmt.Errorf("catalog: transcription failed: %w", err)
	}

	out := make(chan node.Output, 1)
	out <- node.Output{Buffer: wire.NewTextBuffer(wire.Text{Payload: []byte(text)})}
	close(out)
	return out, nil
}

func (t *Transcription) Capabilities() node.Capabilities {
	return node.Capabilities{
		InputKinds:  node.SingleKind(wire.KindAudio),
		OutputKinds: node.SingleKind(wire.KindText),
		Requirements: []node.CapabilityRequirement{
			{Name: "network_egress", Value: 1},
		},
	}
}
