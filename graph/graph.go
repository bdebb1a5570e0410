// Package graph holds the compiled, validated internal representation of a
// PipelineManifest: the ExecutableGraph described in §3. It is produced by
// the compiler package and owned exclusively by one scheduler session.
package graph

import (
	"github.com/mediarun/runtime/node"
)

// Edge is one outbound connection from a node, resolved to the target
// node id and the input port name it feeds (empty for single-input nodes).
type Edge struct {
	ToNodeID       string
	ToInputName    string
	FromOutputName string
}

// ToClient marks an edge whose target is the client sink rather than
// another node (manifest.ClientEndpoint).
const ToClient = "@client"

// Instance is one compiled node within the graph: its constructed
// instance, its bounded inbound queue, and its resolved outbound edges.
type Instance struct {
	ID          string
	Type        string
	Node        node.Node
	Inbound     chan node.Chunk
	OutEdges    []Edge
	IsSink      bool
	InputNames  map[string]bool // declared input_name set, for multi-input delivery checks
	OutputNames map[string]bool
}

// ExecutableGraph is the compiled form of a PipelineManifest: one Instance
// per node, a precomputed topological order for greedy scheduling, and the
// protocol version it was compiled against.
type ExecutableGraph struct {
	ProtocolVersion string
	Nodes           map[string]*Instance
	TopoOrder       []string // forward order: sources before sinks
}

// ReverseTopoOrder returns node ids in reverse of TopoOrder, the order
// cleanup() must be invoked in on session teardown (§4.3 step 5).
func (g *ExecutableGraph) ReverseTopoOrder() []string {
	out := make([]string, len(g.TopoOrder))
	for i, id := range g.TopoOrder {
		out[len(out)-1-i] = id
	}
	return out
}

// Sinks returns the ids of every terminal node (§4.2 step 6).
func (g *ExecutableGraph) Sinks() []string {
	var sinks []string
	for _, id := range g.TopoOrder {
		if g.Nodes[id].IsSink {
			sinks = append(sinks, id)
		}
	}
	return sinks
}
