// Package session implements the per-client bidirectional session
// described in §3 and §6.1: it accepts an Init with a manifest, compiles
// it through the compiler package, runs it through a scheduler.Session,
// and translates scheduler results into the Ready/ChunkResult/Error/Closed
// message protocol a transport hands to the client.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mediarun/runtime/capability"
	"github.com/mediarun/runtime/compiler"
	"github.com/mediarun/runtime/events"
	"github.com/mediarun/runtime/manifest"
	"github.com/mediarun/runtime/node"
	pkgerrors "github.com/mediarun/runtime/pkg/errors"
	"github.com/mediarun/runtime/scheduler"
	"github.com/mediarun/runtime/wire"
)

// MessageType tags one of the four message shapes a Session ever emits on
// its reply stream (§6.1).
type MessageType string

const (
	MessageReady       MessageType = "Ready"
	MessageChunkResult MessageType = "ChunkResult"
	MessageError       MessageType = "Error"
	MessageClosed      MessageType = "Closed"
)

// ChunkResult mirrors the wire ChunkResult shape: the producing node,
// its buffer(s), and the sequence it was produced from.
type ChunkResult struct {
	TargetNodeID     string                 `json:"target_node_id"`
	Sequence         uint64                 `json:"sequence"`
	Buffer           *wire.Buffer           `json:"buffer,omitempty"`
	NamedBuffers     map[string]wire.Buffer `json:"named_buffers,omitempty"`
	ProcessingTimeMs int64                  `json:"processing_time_ms"`
}

// ErrorPayload mirrors the wire Error shape (§7).
type ErrorPayload struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	FailingNodeID string `json:"failing_node_id,omitempty"`
	Recoverable   bool   `json:"recoverable"`
}

// ClosedPayload mirrors the wire Closed shape.
type ClosedPayload struct {
	Reason string `json:"reason"`
}

// Message is one item on a Session's reply stream. Exactly one of
// ChunkResult/Error/Closed is set, matching Type.
type Message struct {
	Type        MessageType    `json:"type"`
	SessionID   string         `json:"session_id"`
	ChunkResult *ChunkResult   `json:"chunk_result,omitempty"`
	Error       *ErrorPayload  `json:"error,omitempty"`
	Closed      *ClosedPayload `json:"closed,omitempty"`
}

// Session is one bidirectional client stream (§3, "Session"). It is
// created in the Init state and moves one-way through
// Init -> Ready -> Running -> Closing -> Closed.
type Session struct {
	id        string
	compiler  *compiler.Compiler
	gate      *capability.Gate
	scheduler *scheduler.Scheduler
	bus       *events.EventBus

	mu    sync.Mutex
	sched *scheduler.Session

	out       chan Message
	closeOnce sync.Once
}

// New constructs a Session in the Init state. sessionID is generated if
// empty.
func New(sessionID string, comp *compiler.Compiler, gate *capability.Gate, sched *scheduler.Scheduler, bus *events.EventBus) *Session {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	return &Session{
		id:        sessionID,
		compiler:  comp,
		gate:      gate,
		scheduler: sched,
		bus:       bus,
		out:       make(chan Message, 64),
	}
}

// ID returns the session id reported in Ready.
func (s *Session) ID() string {
	return s.id
}

// Messages returns the reply stream a transport forwards to the client.
// It is closed after the Closed message has been sent.
func (s *Session) Messages() <-chan Message {
	return s.out
}

// Init handles the client's Init message (§6.1 step 1-2): it checks the
// client's protocol version against the capability gate, compiles the
// manifest, and on success starts the scheduler session and forwards its
// results. On any failure it emits Error then Closed and returns the error;
// Init must not be called again afterward.
func (s *Session) Init(ctx context.Context, clientVersion string, m manifest.PipelineManifest) error {
	s.mu.Lock()
	if s.sched != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: Init called more than once")
	}
	s.mu.Unlock()

	if !s.gate.AcceptsVersion(clientVersion) {
		ce := pkgerrors.New("session", "Init", fmt.Errorf("unsupported client_version %q", clientVersion)).
			WithKind(pkgerrors.KindVersion)
		s.failInit(ce)
		return ce
	}

	g, errs := s.compiler.Compile(m)
	if len(errs) > 0 {
		for _, ce := range errs {
			s.emit(Message{Type: MessageError, SessionID: s.id, Error: errorPayload(ce)})
		}
		s.emit(Message{Type: MessageClosed, SessionID: s.id, Closed: &ClosedPayload{Reason: "error"}})
		close(s.out)
		return errs[0]
	}

	sched := s.scheduler.NewSession(s.id, g, s.bus)
	if err := sched.Open(ctx); err != nil {
		ce := pkgerrors.New("session", "Open", err).WithKind(pkgerrors.KindInternal)
		s.failInit(ce)
		return ce
	}

	s.mu.Lock()
	s.sched = sched
	s.mu.Unlock()

	s.emit(Message{Type: MessageReady, SessionID: s.id})
	go s.forward()

	return nil
}

func (s *Session) failInit(ce *pkgerrors.ContextualError) {
	s.emit(Message{Type: MessageError, SessionID: s.id, Error: errorPayload(ce)})
	s.emit(Message{Type: MessageClosed, SessionID: s.id, Closed: &ClosedPayload{Reason: "error"}})
	close(s.out)
}

// forward drains the scheduler session's results onto the reply stream,
// translating each into a ChunkResult or Error message, then emits Closed
// once the scheduler has finished (§6.1 steps 4-5).
func (s *Session) forward() {
	reason := "normal"
	for res := range s.sched.Results() {
		if res.Err != nil {
			reason = "error"
			s.emit(Message{Type: MessageError, SessionID: s.id, Error: errorPayload(res.Err)})
			continue
		}
		buf := res.Buffer
		s.emit(Message{Type: MessageChunkResult, SessionID: s.id, ChunkResult: &ChunkResult{
			TargetNodeID: res.NodeID,
			Buffer:       &buf,
		}})
	}
	s.emit(Message{Type: MessageClosed, SessionID: s.id, Closed: &ClosedPayload{Reason: reason}})
	close(s.out)
}

func (s *Session) emit(msg Message) {
	s.out <- msg
}

func errorPayload(ce *pkgerrors.ContextualError) *ErrorPayload {
	return &ErrorPayload{
		Kind:          ce.Kind.WireKind(),
		Message:       ce.Error(),
		FailingNodeID: ce.NodeID,
		Recoverable:   ce.Recoverable,
	}
}

// Push delivers one client DataChunk to the compiled graph (§6.1, "any
// time after Ready"). It returns an error if called before Ready.
func (s *Session) Push(chunk node.Chunk) error {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	if sched == nil {
		return fmt.Errorf("session: Push called before Ready")
	}
	return sched.Push(chunk)
}

// Close handles a client or server-initiated Control{Close} (§4.3 step 5):
// it drains in-flight node work, runs cleanup on every node, and causes
// forward to emit the terminal Closed message. Calling Close before Init
// succeeded is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	if sched == nil {
		return nil
	}
	return sched.Close(ctx)
}
