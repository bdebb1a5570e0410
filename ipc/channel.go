package ipc

import (
	"context"
	"fmt"

	"github.com/mediarun/runtime/wire"
)

// NodeChannel bundles the inbound and outbound services of one
// out-of-process node instance (§4.4). The scheduler package does not open
// or close NodeChannels; whoever opens one is responsible for closing it.
type NodeChannel struct {
	bus       *Bus
	sessionID string
	nodeID    string

	// Results carries messages published by the worker process back to
	// the scheduler — the receive side of DirectionOut.
	Results *Service
}

// OpenNodeChannel subscribes to the worker's outbound channel for
// (sessionID, nodeID) and returns a NodeChannel ready to Send chunks to
// the worker and receive its Results. The caller is responsible for having
// already started the
// worker process listening on its inbound channel, or for starting it
// immediately after this call returns — per §4.4, a publish with no
// active subscriber on either side is simply dropped.
func OpenNodeChannel(ctx context.Context, bus *Bus, sessionID, nodeID string) (*NodeChannel, error) {
	svc, err := bus.Subscribe(ctx, ServiceName(sessionID, nodeID, DirectionOut))
	if err != nil {
		return nil, fmt.Errorf("ipc: open channel for node %q: %w", nodeID, err)
	}
	return &NodeChannel{bus: bus, sessionID: sessionID, nodeID: nodeID, Results: svc}, nil
}

// Send publishes msg to the worker process's inbound channel.
func (c *NodeChannel) Send(ctx context.Context, msg wire.Message) error {
	return c.bus.Publish(ctx, ServiceName(c.sessionID, c.nodeID, DirectionIn), msg)
}

// Close tears down the Results subscription. Call it from the owning
// node's Cleanup.
func (c *NodeChannel) Close() error {
	return c.Results.Close()
}
