// Package telemetry provides OpenTelemetry export for session recordings.
// This enables exporting session events as distributed traces to observability platforms.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mediarun/runtime/events"
)

// sessionState tracks the root span for one open session.
type sessionState struct {
	span trace.Span
	ctx  context.Context
}

// spanEntry tracks an in-flight child span keyed by node.
type spanEntry struct {
	span trace.Span
	ctx  context.Context
}

// pendingEnd buffers a completion event that arrived before its matching
// start event. The EventBus dispatches each Publish call on its own
// goroutine, so start/complete ordering for a given node isn't guaranteed.
type pendingEnd struct {
	errMsg string
	attrs  []attribute.KeyValue
}

// OTelEventListener converts runtime events into live OpenTelemetry spans.
// Register OnEvent with an EventBus via SubscribeAll.
type OTelEventListener struct {
	tracer trace.Tracer

	mu          sync.Mutex
	sessions    map[string]*sessionState
	inflight    map[string]*spanEntry
	pendingEnds map[string]*pendingEnd
}

// NewOTelEventListener creates a listener that starts spans on tracer.
func NewOTelEventListener(tracer trace.Tracer) *OTelEventListener {
	return &OTelEventListener{
		tracer:      tracer,
		sessions:    make(map[string]*sessionState),
		inflight:    make(map[string]*spanEntry),
		pendingEnds: make(map[string]*pendingEnd),
	}
}

// StartSession starts the root span for a session. Call this when a
// session opens, before any node events for it are published.
func (l *OTelEventListener) StartSession(parentCtx context.Context, sessionID string) {
	ctx, span := l.tracer.Start(parentCtx, "session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)

	l.mu.Lock()
	l.sessions[sessionID] = &sessionState{span: span, ctx: ctx}
	l.mu.Unlock()
}

// EndSession ends and forgets the root span for a session.
func (l *OTelEventListener) EndSession(sessionID string) {
	l.mu.Lock()
	ss, ok := l.sessions[sessionID]
	if ok {
		delete(l.sessions, sessionID)
	}
	l.mu.Unlock()

	if ok {
		ss.span.End()
	}
}

// OnEvent implements the events.Listener signature.
func (l *OTelEventListener) OnEvent(evt *events.Event) {
	switch evt.Type {
	case events.EventSessionOpened:
		l.handleSessionOpened(evt)
	case events.EventSessionClosing:
		l.handleSessionClosing(evt)
	case events.EventSessionClosed:
		l.handleSessionClosed(evt)
	case events.EventSessionFailed:
		l.handleSessionFailed(evt)
	case events.EventNodeStarted:
		l.startNode(evt)
	case events.EventNodeCompleted:
		l.completeNode(evt)
	case events.EventNodeFailed:
		l.failNode(evt)
	case events.EventQueueSaturated:
		l.handleQueueSaturated(evt)
	case events.EventChunkRouted:
		l.handleChunkRouted(evt)
	}
}

func (l *OTelEventListener) handleSessionOpened(evt *events.Event) {
	data, ok := asPtr[events.SessionOpenedData](evt.Data)
	if !ok {
		return
	}
	l.mu.Lock()
	ss, exists := l.sessions[evt.SessionID]
	l.mu.Unlock()
	if exists {
		ss.span.SetAttributes(attribute.Int("session.node_count", data.NodeCount))
	}
}

func (l *OTelEventListener) handleSessionClosing(evt *events.Event) {
	l.mu.Lock()
	ss, exists := l.sessions[evt.SessionID]
	l.mu.Unlock()
	if exists {
		ss.span.AddEvent("session.closing")
	}
}

func (l *OTelEventListener) handleSessionClosed(evt *events.Event) {
	data, ok := asPtr[events.SessionClosedData](evt.Data)

	l.mu.Lock()
	ss, exists := l.sessions[evt.SessionID]
	l.mu.Unlock()

	if exists {
		if ok {
			ss.span.SetAttributes(attribute.Int64("session.duration_ms", data.Duration.Milliseconds()))
		}
		ss.span.SetStatus(codes.Ok, "")
	}

	l.EndSession(evt.SessionID)
}

func (l *OTelEventListener) handleSessionFailed(evt *events.Event) {
	data, ok := asPtr[events.SessionFailedData](evt.Data)

	l.mu.Lock()
	ss, exists := l.sessions[evt.SessionID]
	l.mu.Unlock()

	if exists {
		if ok {
			ss.span.SetAttributes(attribute.Int64("session.duration_ms", data.Duration.Milliseconds()))
			errMsg := ""
			if data.Error != nil {
				errMsg = data.Error.Error()
			}
			ss.span.SetStatus(codes.Error, errMsg)
		} else {
			ss.span.SetStatus(codes.Error, "")
		}
	}

	l.EndSession(evt.SessionID)
}

func nodeKey(evt *events.Event) string {
	return evt.SessionID + ":" + evt.NodeID
}

func (l *OTelEventListener) startNode(evt *events.Event) {
	data, ok := asPtr[events.NodeStartedData](evt.Data)
	if !ok {
		return
	}
	l.startSpan(evt.SessionID, nodeKey(evt), "node."+data.NodeType, trace.SpanKindInternal,
		attribute.String("node.id", evt.NodeID),
		attribute.String("node.type", data.NodeType),
		attribute.Int64("node.sequence", int64(data.Sequence)),
	)
}

func (l *OTelEventListener) completeNode(evt *events.Event) {
	data, ok := asPtr[events.NodeCompletedData](evt.Data)
	if !ok {
		return
	}
	l.endSpan(nodeKey(evt),
		attribute.Int64("node.duration_ms", data.Duration.Milliseconds()),
		attribute.Int("node.outputs_count", data.OutputsCount),
	)
}

func (l *OTelEventListener) failNode(evt *events.Event) {
	data, ok := asPtr[events.NodeFailedData](evt.Data)
	if !ok {
		return
	}
	errMsg := ""
	if data.Error != nil {
		errMsg = data.Error.Error()
	}
	l.failSpan(nodeKey(evt), errMsg,
		attribute.Int64("node.duration_ms", data.Duration.Milliseconds()),
	)
}

func (l *OTelEventListener) handleQueueSaturated(evt *events.Event) {
	data, ok := asPtr[events.QueueSaturatedData](evt.Data)
	if !ok {
		return
	}
	l.mu.Lock()
	ss, exists := l.sessions[evt.SessionID]
	l.mu.Unlock()
	if exists {
		ss.span.AddEvent("queue.saturated", trace.WithAttributes(
			attribute.String("node.id", evt.NodeID),
			attribute.Int("queue.capacity", data.Capacity),
		))
	}
}

func (l *OTelEventListener) handleChunkRouted(evt *events.Event) {
	data, ok := asPtr[events.ChunkRoutedData](evt.Data)
	if !ok {
		return
	}
	l.mu.Lock()
	ss, exists := l.sessions[evt.SessionID]
	l.mu.Unlock()
	if exists {
		ss.span.AddEvent("chunk.routed", trace.WithAttributes(
			attribute.String("chunk.from_node", data.FromNodeID),
			attribute.String("chunk.to_node", data.ToNodeID),
		))
	}
}

// sessionCtx returns the context to parent a child span under, falling
// back to context.Background() when the session's root span isn't tracked.
func (l *OTelEventListener) sessionCtx(sessionID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ss, ok := l.sessions[sessionID]; ok {
		return ss.ctx
	}
	return context.Background()
}

// startSpan starts a child span under sessionID's root, storing it under
// key so a later endSpan/failSpan can find it. If a completion for key
// already arrived (pendingEnds), it is applied immediately.
func (l *OTelEventListener) startSpan(
	sessionID, key, name string, kind trace.SpanKind, attrs ...attribute.KeyValue,
) {
	ctx, span := l.tracer.Start(l.sessionCtx(sessionID), name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)

	l.mu.Lock()
	l.inflight[key] = &spanEntry{span: span, ctx: ctx}
	pending, hasPending := l.pendingEnds[key]
	if hasPending {
		delete(l.pendingEnds, key)
	}
	l.mu.Unlock()

	if hasPending {
		l.applyEnd(span, pending)
	}
}

func (l *OTelEventListener) endSpan(key string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	}
	l.mu.Unlock()

	if !ok {
		l.mu.Lock()
		l.pendingEnds[key] = &pendingEnd{attrs: attrs}
		l.mu.Unlock()
		return
	}

	l.applyEnd(entry.span, &pendingEnd{attrs: attrs})
}

func (l *OTelEventListener) failSpan(key, errMsg string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	}
	l.mu.Unlock()

	if !ok {
		l.mu.Lock()
		l.pendingEnds[key] = &pendingEnd{errMsg: errMsg, attrs: attrs}
		l.mu.Unlock()
		return
	}

	l.applyEnd(entry.span, &pendingEnd{errMsg: errMsg, attrs: attrs})
}

func (l *OTelEventListener) applyEnd(span trace.Span, end *pendingEnd) {
	span.SetAttributes(end.attrs...)
	if end.errMsg != "" {
		span.SetStatus(codes.Error, end.errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// asPtr extracts event data as *T whether the publisher passed a T value
// or a *T pointer.
func asPtr[T any](data any) (*T, bool) {
	switch v := data.(type) {
	case *T:
		return v, true
	case T:
		return &v, true
	default:
		return nil, false
	}
}
