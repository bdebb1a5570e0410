// Package node defines the runtime contract every pipeline node implements:
// a construction-time capability declaration, a lifecycle of
// initialize/process/cleanup, and the streaming-output shape process uses
// to emit zero, one, or many buffers per input chunk.
package node

import (
	"context"

	"github.com/mediarun/runtime/wire"
)

// Kind declares whether a node may emit more than one output per chunk.
// The scheduler treats both uniformly; inbound queue sizes come from the
// manifest's queue capacity, not from Kind.
type Kind int

const (
	// Unary nodes emit exactly zero or one Buffer per call to Process.
	Unary Kind = iota
	// Streaming nodes may emit many Buffers per call to Process.
	Streaming
)

// CapabilityRequirement is a single declared resource requirement (e.g.
// GPU memory, a named model) consumed by the capability admission check.
type CapabilityRequirement struct {
	Name  string
	Value float64 // interpretation is requirement-specific (bytes, count, ...)
}

// Capabilities is the static, construction-time description of a node
// used at admission time by the compiler (§4.2 step 3) and reported
// verbatim by GetVersion (§4.5).
type Capabilities struct {
	InputKinds   map[string][]wire.Kind // input_name -> accepted kinds; single-input nodes use the empty name
	OutputKinds  map[string][]wire.Kind // output_name -> produced kinds; single-output nodes use the empty name
	Streaming    bool
	Requirements []CapabilityRequirement
	// Tolerant marks a node that opts in to per-chunk errors being
	// downgraded from fatal to reportable (§7, "Tolerant node").
	Tolerant bool
}

// DefaultInputName and DefaultOutputName are used by single-input,
// single-output nodes that do not need named ports.
const (
	DefaultInputName  = ""
	DefaultOutputName = ""
)

// Chunk is what a node's Process method receives: either a single Buffer
// (single-input nodes) or a set of named buffers covering every declared
// input (multi-input nodes), per §3's DataChunk.
type Chunk struct {
	TargetNodeID string
	Buffer       *wire.Buffer
	NamedBuffers map[string]wire.Buffer
	Sequence     uint64
	TimestampMs  int64
}

// Output is one produced buffer, optionally tagged with the output name
// it was produced on (multi-output nodes only).
type Output struct {
	Name   string
	Buffer wire.Buffer
}

// Node is the runtime contract described in §4.1. Implementations are
// constructed by a registry.Constructor from a NodeManifest's params.
type Node interface {
	// Initialize is called once after construction, before any chunk.
	// It may block and allocate resources (e.g. load a model). Failure
	// aborts the session before it reaches Running.
	Initialize(ctx context.Context) error

	// Process is the core entry point. It returns a finite, ordered,
	// non-restartable sequence of outputs for one input chunk, delivered
	// to the caller through the returned channel. The node must close
	// the channel when done producing for this chunk and must not send
	// on it after returning an error.
	Process(ctx context.Context, chunk Chunk) (<-chan Output, error)

	// Cleanup is called exactly once on session close or on fatal error
	// of this node. It must run on every exit path and must be safe to
	// call even if Initialize failed partway through.
	Cleanup(ctx context.Context) error

	// Capabilities returns this node's static admission-time description.
	Capabilities() Capabilities
}

// Constructor builds a Node instance from a node type's opaque params.
// Returned by registry lookups; see the registry package.
type Constructor func(params []byte) (Node, error)

// IsStreaming reports whether a node's Capabilities mark it streaming.
func IsStreaming(n Node) bool {
	return n.Capabilities().Streaming
}

// IsTolerant reports whether a node opts in to per-chunk error downgrading.
func IsTolerant(n Node) bool {
	return n.Capabilities().Tolerant
}
