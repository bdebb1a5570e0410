// Package scheduler implements the Streaming Scheduler of §4.3: it owns
// one graph.ExecutableGraph per session, runs one goroutine per node,
// routes outputs along the compiled edges, and enforces backpressure
// through bounded inbound queues and a process-wide concurrency limit.
package scheduler

import (
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mediarun/runtime/events"
	"github.com/mediarun/runtime/graph"
	"github.com/mediarun/runtime/logger"
)

// DefaultDrainTimeout is how long Close waits for in-flight node work to
// finish before the session is forced into Closed (§4.3 cancellation).
const DefaultDrainTimeout = 5 * time.Second

// DefaultMaxConcurrentBlocking bounds how many node.Process calls may run
// concurrently across all sessions on this host, protecting CPU/GPU-bound
// nodes (codecs, ML inference) from unbounded fan-out.
const DefaultMaxConcurrentBlocking = 8

// DefaultNodeTimeout bounds a single node.Process call (§5); exceeding it
// is reported as a fatal node error naming the offending node.
const DefaultNodeTimeout = 30 * time.Second

// Scheduler holds configuration shared by every session it creates.
type Scheduler struct {
	DrainTimeout time.Duration
	NodeTimeout  time.Duration
	blockingPool *semaphore.Weighted
}

// New constructs a Scheduler. maxConcurrentBlocking <= 0 uses the default.
func New(maxConcurrentBlocking int64, drainTimeout, nodeTimeout time.Duration) *Scheduler {
	if maxConcurrentBlocking <= 0 {
		maxConcurrentBlocking = DefaultMaxConcurrentBlocking
	}
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	if nodeTimeout <= 0 {
		nodeTimeout = DefaultNodeTimeout
	}
	return &Scheduler{
		DrainTimeout: drainTimeout,
		NodeTimeout:  nodeTimeout,
		blockingPool: semaphore.NewWeighted(maxConcurrentBlocking),
	}
}

// NewSession creates a Session bound to g. The session starts in StateReady;
// call Open to move it to Running and start its node goroutines.
func (s *Scheduler) NewSession(sessionID string, g *graph.ExecutableGraph, bus *events.EventBus) *Session {
	return &Session{
		id:          sessionID,
		graph:       g,
		pool:        s.blockingPool,
		drain:       s.DrainTimeout,
		nodeTimeout: s.NodeTimeout,
		emitter:     events.NewEmitter(bus, sessionID),
		state:       StateReady,
		results:     make(chan ClientResult, 64),
		nodeDone:    make(chan struct{}),
	}
}

func logNodeFailure(sessionID, nodeID string, err error) {
	logger.Error("node failed",
		"session_id", sessionID,
		"node_id", nodeID,
		"error", err,
	)
}
