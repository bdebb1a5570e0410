package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mediarun/runtime/events"
	"github.com/mediarun/runtime/graph"
	"github.com/mediarun/runtime/node"
	pkgerrors "github.com/mediarun/runtime/pkg/errors"
	"github.com/mediarun/runtime/wire"
)

// ClientResult is one item destined for the client sink: either a Buffer
// produced by a sink node, or a terminal error for the session.
type ClientResult struct {
	NodeID string
	Buffer wire.Buffer
	Err    *pkgerrors.ContextualError
}

// Session runs one compiled graph to completion. It owns one goroutine per
// node, each reading its bounded Inbound queue and routing Process's
// outputs along the node's compiled OutEdges.
type Session struct {
	id          string
	graph       *graph.ExecutableGraph
	pool        *semaphore.Weighted
	drain       time.Duration
	nodeTimeout time.Duration
	emitter     *events.Emitter

	mu    sync.Mutex
	state State

	results  chan ClientResult
	nodeDone chan struct{}
	seq      uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Open initializes every node in topological order and starts one
// goroutine per node. A node whose Initialize fails aborts the session
// before it reaches Running, per §4.1.
func (s *Session) Open(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	for i, id := range s.graph.TopoOrder {
		inst := s.graph.Nodes[id]
		if err := inst.Node.Initialize(s.ctx); err != nil {
			for j := i; j >= 0; j-- {
				_ = s.graph.Nodes[s.graph.TopoOrder[j]].Node.Cleanup(ctx)
			}
			s.cancel()
			return fmt.Errorf("initialize node %q: %w", id, err)
		}
	}

	s.emitter.SessionOpened(len(s.graph.Nodes))
	s.setState(StateRunning)

	for _, id := range s.graph.TopoOrder {
		s.wg.Add(1)
		go s.runNode(s.graph.Nodes[id])
	}

	return nil
}

// Push delivers a chunk into the node it targets. It is the entry point
// for client-supplied DataChunk messages (§6.1).
func (s *Session) Push(chunk node.Chunk) error {
	inst, ok := s.graph.Nodes[chunk.TargetNodeID]
	if !ok {
		return fmt.Errorf("scheduler: unknown target node %q", chunk.TargetNodeID)
	}
	return s.deliver(inst, chunk)
}

func (s *Session) deliver(inst *graph.Instance, chunk node.Chunk) error {
	if len(inst.Inbound) == cap(inst.Inbound) {
		s.emitter.QueueSaturated(inst.ID, cap(inst.Inbound))
	}
	select {
	case inst.Inbound <- chunk:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Results returns the channel of items destined for the client. It is
// closed once every sink node has finished and the session reaches Closed.
func (s *Session) Results() <-chan ClientResult {
	return s.results
}

// runNode is the per-node goroutine: it drains Inbound until the channel
// is closed (session teardown) or the context is cancelled, calling
// Process for each chunk and routing its outputs downstream.
func (s *Session) runNode(inst *graph.Instance) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-inst.Inbound:
			if !ok {
				return
			}
			s.process(inst, chunk)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) process(inst *graph.Instance, chunk node.Chunk) {
	if err := s.pool.Acquire(s.ctx, 1); err != nil {
		return
	}
	defer s.pool.Release(1)

	sequence := atomic.AddUint64(&s.seq, 1)
	start := time.Now()
	s.emitter.NodeStarted(inst.ID, inst.Type, sequence)

	callCtx, cancel := context.WithTimeout(s.ctx, s.nodeTimeout)
	defer cancel()

	out, err := inst.Node.Process(callCtx, chunk)
	if err == nil && callCtx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("node exceeded %s timeout", s.nodeTimeout)
	}
	if err != nil {
		kind := pkgerrors.KindNodeFailure
		if callCtx.Err() == context.DeadlineExceeded {
			kind = pkgerrors.KindTimeout
		}
		s.emitter.NodeFailed(inst.ID, inst.Type, err, time.Since(start))
		logNodeFailure(s.id, inst.ID, err)
		s.reportNodeFailure(inst, err, kind)
		return
	}

	count := 0
	for output := range out {
		count++
		s.route(inst, output)
	}
	s.emitter.NodeCompleted(inst.ID, inst.Type, time.Since(start), count)
}

func (s *Session) reportNodeFailure(inst *graph.Instance, err error, kind pkgerrors.Kind) {
	ce := pkgerrors.New("scheduler", "Process", err).
		WithKind(kind).
		WithNodeID(inst.ID).
		WithRecoverable(node.IsTolerant(inst.Node))

	select {
	case s.results <- ClientResult{NodeID: inst.ID, Err: ce}:
	case <-s.ctx.Done():
	}

	if !node.IsTolerant(inst.Node) {
		s.cancel()
	}
}

// route forwards one node Output along every OutEdge whose FromOutputName
// matches, delivering to the client sink channel or a downstream node's
// inbound queue as appropriate (§4.3 routing).
func (s *Session) route(inst *graph.Instance, output node.Output) {
	for _, edge := range inst.OutEdges {
		if edge.FromOutputName != output.Name {
			continue
		}
		if edge.ToNodeID == graph.ToClient {
			select {
			case s.results <- ClientResult{NodeID: inst.ID, Buffer: output.Buffer}:
			case <-s.ctx.Done():
			}
			continue
		}

		downstream, ok := s.graph.Nodes[edge.ToNodeID]
		if !ok {
			continue
		}
		s.emitter.ChunkRouted(inst.ID, downstream.ID)

		chunk := node.Chunk{
			TargetNodeID: downstream.ID,
			Sequence:     atomic.AddUint64(&s.seq, 1),
			TimestampMs:  time.Now().UnixMilli(),
		}
		if edge.ToInputName == node.DefaultInputName {
			buf := output.Buffer
			chunk.Buffer = &buf
		} else {
			chunk.NamedBuffers = map[string]wire.Buffer{edge.ToInputName: output.Buffer}
		}
		_ = s.deliver(downstream, chunk)
	}
}

// Close begins the drain sequence: it stops accepting new top-level
// pushes, waits up to the configured drain timeout for in-flight node
// work to finish, then runs Cleanup on every node in reverse topological
// order and closes the results channel (§4.3 step 5).
func (s *Session) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		s.emitter.SessionClosing()
		start := time.Now()

		for _, id := range s.graph.TopoOrder {
			close(s.graph.Nodes[id].Inbound)
		}

		drainCtx, cancel := context.WithTimeout(ctx, s.drain)
		defer cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-drainCtx.Done():
			s.cancel()
			<-done
		}

		for _, id := range s.graph.ReverseTopoOrder() {
			if err := s.graph.Nodes[id].Node.Cleanup(ctx); err != nil && closeErr == nil {
				closeErr = fmt.Errorf("cleanup node %q: %w", id, err)
			}
		}

		close(s.results)
		s.setState(StateClosed)
		s.emitter.SessionClosed(time.Since(start))
	})
	return closeErr
}
