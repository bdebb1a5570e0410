// Package manifest defines the client-supplied pipeline description: the
// JSON shape of a PipelineManifest and its nested NodeManifest/Connection
// types (§3). The compiler package turns these into a graph.ExecutableGraph.
package manifest

import "encoding/json"

// DefaultQueueCapacity is the inbound queue capacity used when a node's
// params do not override it (§4.2).
const DefaultQueueCapacity = 64

// CapabilityRequirement mirrors node.CapabilityRequirement in wire form
// so manifests can be decoded without importing the node package.
type CapabilityRequirement struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// NodeManifest describes one node instance within a pipeline (§3).
type NodeManifest struct {
	ID                     string                  `json:"id"`
	NodeType               string                  `json:"node_type"`
	Params                 json.RawMessage         `json:"params,omitempty"`
	IsStreaming            bool                    `json:"is_streaming"`
	InputKinds             []string                `json:"input_kinds,omitempty"`
	OutputKinds            []string                `json:"output_kinds,omitempty"`
	CapabilityRequirements []CapabilityRequirement `json:"capability_requirements,omitempty"`
}

// QueueCapacity extracts params.queue_capacity, falling back to
// DefaultQueueCapacity. A value below 1 is clamped to 1 (§4.2).
func (n NodeManifest) QueueCapacity() int {
	if len(n.Params) == 0 {
		return DefaultQueueCapacity
	}
	var withCap struct {
		QueueCapacity *int `json:"queue_capacity"`
	}
	if err := json.Unmarshal(n.Params, &withCap); err != nil || withCap.QueueCapacity == nil {
		return DefaultQueueCapacity
	}
	if *withCap.QueueCapacity < 1 {
		return 1
	}
	return *withCap.QueueCapacity
}

// ClientEndpoint is the reserved to_node value meaning "forward to the
// client as a ChunkResult" rather than to another node (§4.2 sink inference).
const ClientEndpoint = "@client"

// Connection wires one node's output to another node's input, or to the
// client sink (§3). Names are only required for multi-output/multi-input
// nodes; single-port nodes may omit them.
type Connection struct {
	FromNode       string `json:"from_node"`
	FromOutputName string `json:"from_output_name,omitempty"`
	ToNode         string `json:"to_node"`
	ToInputName    string `json:"to_input_name,omitempty"`
}

// PipelineManifest is the full client-supplied pipeline description (§3).
// It is immutable once a session is compiled from it.
type PipelineManifest struct {
	ProtocolVersion string                 `json:"protocol_version"`
	Metadata        map[string]string      `json:"metadata,omitempty"`
	Nodes           []NodeManifest         `json:"nodes"`
	Connections     []Connection           `json:"connections"`
	ResourceLimits  map[string]interface{} `json:"resource_limits,omitempty"`
}

// Decode parses a JSON-encoded PipelineManifest.
func Decode(data []byte) (PipelineManifest, error) {
	var m PipelineManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return PipelineManifest{}, err
	}
	return m, nil
}

// Encode serializes a PipelineManifest to JSON.
func Encode(m PipelineManifest) ([]byte, error) {
	return json.Marshal(m)
}
