package node

import (
	"context"

	"github.com/mediarun/runtime/wire"
)

// BaseNode supplies no-op Initialize/Cleanup so simple nodes only need to
// implement Process and Capabilities. Embed it by value.
type BaseNode struct{}

func (BaseNode) Initialize(ctx context.Context) error { return nil }
func (BaseNode) Cleanup(ctx context.Context) error     { return nil }

// SingleKind is a convenience for declaring a node's single unnamed input
// or output port accepting/producing exactly one wire.Kind.
func SingleKind(k wire.Kind) map[string][]wire.Kind {
	return map[string][]wire.Kind{DefaultInputName: {k}}
}
