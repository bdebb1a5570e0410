package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/wire"
)

const (
	syncAVAudioInput = "audio"
	syncAVVideoInput = "video"
)

// SyncAVParams is the params JSON for a SyncAV node.
type SyncAVParams struct {
	ToleranceMs int64 `json:"tolerance_ms"`
}

type syncReport struct {
	IsSynced bool  `json:"is_synced"`
	OffsetMs int64 `json:"offset_ms"`
}

// SyncAV is a multi-input node that checks whether an audio and a video
// buffer delivered in the same DataChunk are within a configured
// presentation-time tolerance, reporting the result as a JSON buffer.
type SyncAV struct {
	node.BaseNode
	toleranceMs int64
}

// NewSyncAV is a node.Constructor for the "sync_av" node type.
func NewSyncAV(params []byte) (node.Node, error) {
	var p SyncAVParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("catalog: invalid sync_av params: %w", err)
		}
	}
	return &SyncAV{toleranceMs: p.ToleranceMs}, nil
}

func (s *SyncAV) Process(ctx context.Context, chunk node.Chunk) (<-chan node.Output, error) {
	audioBuf, ok := chunk.NamedBuffers[syncAVAudioInput]
	if !ok || audioBuf.Audio == nil {
		return nil, fmt.Errorf("catalog: sync_av requires a named %q audio buffer", syncAVAudioInput)
	}
	videoBuf, ok := chunk.NamedBuffers[syncAVVideoInput]
	if !ok || videoBuf.Video == nil {
		return nil, fmt.Errorf("catalog: sync_av requires a named %q video buffer", syncAVVideoInput)
	}

	videoMs := int64(videoBuf.Video.TimestampUs / 1000)
	offset := videoMs - chunk.TimestampMs
	report := syncReport{
		IsSynced: abs64(offset) <= s.toleranceMs,
		OffsetMs: offset,
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}

	out := make(chan node.Output, 1)
	out <- node.Output{Buffer: wire.NewJSONBuffer(wire.JSON{Payload: payload})}
	close(out)
	return out, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (s *SyncAV) Capabilities() node.Capabilities {
	return node.Capabilities{
		InputKinds: map[string][]wire.Kind{
			syncAVAudioInput: {wire.KindAudio},
			syncAVVideoInput: {wire.KindVideo},
		},
		OutputKinds: node.SingleKind(wire.KindJSON),
	}
}
