package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mediarun/runtime/events"
)

// newTestListener returns a listener, in-memory exporter, and TracerProvider for tests.
func newTestListener(t *testing.T) (*OTelEventListener, *tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	tracer := tp.Tracer(InstrumentationName)
	listener := NewOTelEventListener(tracer)
	return listener, exp, tp
}

// flushAndGetSpans forces span export and returns spans.
// ForceFlush ensures all ended spans are exported; we read them before Shutdown
// because InMemoryExporter.Shutdown resets the buffer.
func flushAndGetSpans(t *testing.T, tp *sdktrace.TracerProvider, exp *tracetest.InMemoryExporter) tracetest.SpanStubs {
	t.Helper()
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	spans := exp.GetSpans()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	return spans
}

// findSpan finds a span by name in the stubs or fails.
func findSpan(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("span %q not found in %d spans", name, len(spans))
	return tracetest.SpanStub{}
}

// hasAttr checks if a span has an attribute with the given key and string value.
func hasAttr(span tracetest.SpanStub, key, want string) bool {
	for _, a := range span.Attributes {
		if string(a.Key) == key && a.Value.AsString() == want {
			return true
		}
	}
	return false
}

func TestOTelEventListener_SessionLifecycle(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.StartSession(context.Background(), "sess-1")
	listener.EndSession("sess-1")

	spans := flushAndGetSpans(t, tp, exp)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name != "session" {
		t.Errorf("expected span name 'session', got %q", s.Name)
	}
	if !hasAttr(s, "session.id", "sess-1") {
		t.Error("expected session.id attribute")
	}
}

func TestOTelEventListener_SessionOpenedSetsNodeCount(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.StartSession(context.Background(), "sess-1")
	listener.OnEvent(&events.Event{
		Type: events.EventSessionOpened, Timestamp: time.Now(),
		SessionID: "sess-1",
		Data:      events.SessionOpenedData{NodeCount: 3},
	})
	listener.EndSession("sess-1")

	spans := flushAndGetSpans(t, tp, exp)
	s := findSpan(t, spans, "session")

	found := false
	for _, a := range s.Attributes {
		if string(a.Key) == "session.node_count" && a.Value.AsInt64() == 3 {
			found = true
		}
	}
	if !found {
		t.Error("expected session.node_count=3")
	}
}

func TestOTelEventListener_SessionClosed(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")
	listener.OnEvent(&events.Event{
		Type: events.EventSessionClosed, Timestamp: now,
		SessionID: "sess-1",
		Data:      events.SessionClosedData{Duration: 2 * time.Second},
	})

	spans := flushAndGetSpans(t, tp, exp)
	s := findSpan(t, spans, "session")
	if s.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", s.Status.Code)
	}
}

func TestOTelEventListener_SessionFailed(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")
	listener.OnEvent(&events.Event{
		Type: events.EventSessionFailed, Timestamp: now,
		SessionID: "sess-1",
		Data:      events.SessionFailedData{Error: errors.New("boom"), Duration: time.Second},
	})

	spans := flushAndGetSpans(t, tp, exp)
	s := findSpan(t, spans, "session")
	if s.Status.Code != codes.Error {
		t.Errorf("expected Error status, got %v", s.Status.Code)
	}
	if s.Status.Description != "boom" {
		t.Errorf("expected error description 'boom', got %q", s.Status.Description)
	}
}

func TestOTelEventListener_NodeSpan(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventNodeStarted, Timestamp: now,
		SessionID: "sess-1", NodeID: "decoder-1",
		Data: events.NodeStartedData{NodeType: "decoder", Sequence: 1},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventNodeCompleted, Timestamp: now.Add(time.Second),
		SessionID: "sess-1", NodeID: "decoder-1",
		Data: events.NodeCompletedData{Duration: time.Second, NodeType: "decoder", OutputsCount: 3},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	nodeSpan := findSpan(t, spans, "node.decoder")
	if nodeSpan.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", nodeSpan.Status.Code)
	}
	if !hasAttr(nodeSpan, "node.id", "decoder-1") {
		t.Error("expected node.id attribute")
	}

	// Verify parent relationship.
	sessionSpan := findSpan(t, spans, "session")
	if nodeSpan.Parent.SpanID() != sessionSpan.SpanContext.SpanID() {
		t.Error("node span should be child of session span")
	}
}

func TestOTelEventListener_NodeFailed(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventNodeStarted, Timestamp: now,
		SessionID: "sess-1", NodeID: "encoder-1",
		Data: events.NodeStartedData{NodeType: "encoder", Sequence: 1},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventNodeFailed, Timestamp: now.Add(time.Second),
		SessionID: "sess-1", NodeID: "encoder-1",
		Data: events.NodeFailedData{NodeType: "encoder", Error: errors.New("boom"), Duration: time.Second},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	nodeSpan := findSpan(t, spans, "node.encoder")
	if nodeSpan.Status.Code != codes.Error {
		t.Errorf("expected Error status, got %v", nodeSpan.Status.Code)
	}
	if nodeSpan.Status.Description != "boom" {
		t.Errorf("expected error description 'boom', got %q", nodeSpan.Status.Description)
	}
}

func TestOTelEventListener_QueueSaturated(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")
	listener.OnEvent(&events.Event{
		Type: events.EventQueueSaturated, Timestamp: now,
		SessionID: "sess-1", NodeID: "decoder-1",
		Data: events.QueueSaturatedData{Capacity: 64},
	})
	listener.EndSession("sess-1")

	spans := flushAndGetSpans(t, tp, exp)
	s := findSpan(t, spans, "session")
	if len(s.Events) != 1 {
		t.Fatalf("expected 1 span event, got %d", len(s.Events))
	}
	if s.Events[0].Name != "queue.saturated" {
		t.Errorf("expected queue.saturated event, got %q", s.Events[0].Name)
	}
}

func TestOTelEventListener_ChunkRouted(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")
	listener.OnEvent(&events.Event{
		Type: events.EventChunkRouted, Timestamp: now,
		SessionID: "sess-1", NodeID: "decoder-1",
		Data: events.ChunkRoutedData{FromNodeID: "source-1", ToNodeID: "decoder-1"},
	})
	listener.EndSession("sess-1")

	spans := flushAndGetSpans(t, tp, exp)
	s := findSpan(t, spans, "session")
	if len(s.Events) != 1 {
		t.Fatalf("expected 1 span event, got %d", len(s.Events))
	}
	if s.Events[0].Name != "chunk.routed" {
		t.Errorf("expected chunk.routed event, got %q", s.Events[0].Name)
	}
}

func TestOTelEventListener_ParentTraceContext(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	// Create a parent span to verify nesting.
	tracer := tp.Tracer("test")
	parentCtx, parentSpan := tracer.Start(context.Background(), "parent-operation")

	listener.StartSession(parentCtx, "sess-1")
	listener.EndSession("sess-1")
	parentSpan.End()

	spans := flushAndGetSpans(t, tp, exp)
	sessionSpan := findSpan(t, spans, "session")
	parent := findSpan(t, spans, "parent-operation")

	if sessionSpan.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Error("session span should be child of parent span")
	}
	if sessionSpan.SpanContext.TraceID() != parent.SpanContext.TraceID() {
		t.Error("session span should share trace ID with parent")
	}
}

func TestOTelEventListener_EndSession_Idempotent(t *testing.T) {
	listener, _, tp := newTestListener(t)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	listener.StartSession(context.Background(), "sess-1")
	listener.EndSession("sess-1")
	// Second call should not panic.
	listener.EndSession("sess-1")
}

func TestOTelEventListener_UnknownEventType(t *testing.T) {
	listener, _, tp := newTestListener(t)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	listener.StartSession(context.Background(), "sess-1")

	// Should not panic on unhandled event types.
	listener.OnEvent(&events.Event{
		Type:      events.EventType("node.unknown"),
		SessionID: "sess-1",
	})

	listener.EndSession("sess-1")
}

func TestOTelEventListener_NodeSpanAttributes(t *testing.T) {
	// Verify specific attribute values on a completed node span.
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventNodeStarted, Timestamp: now,
		SessionID: "sess-1", NodeID: "mixer-1",
		Data: events.NodeStartedData{NodeType: "mixer", Sequence: 4},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventNodeCompleted, Timestamp: now.Add(time.Second),
		SessionID: "sess-1", NodeID: "mixer-1",
		Data: events.NodeCompletedData{
			NodeType:     "mixer",
			Duration:     time.Second,
			OutputsCount: 7,
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	nodeSpan := findSpan(t, spans, "node.mixer")

	attrMap := make(map[string]attribute.Value)
	for _, a := range nodeSpan.Attributes {
		attrMap[string(a.Key)] = a.Value
	}

	if v, ok := attrMap["node.outputs_count"]; !ok || v.AsInt64() != 7 {
		t.Errorf("expected node.outputs_count=7, got %v", attrMap["node.outputs_count"])
	}
	if v, ok := attrMap["node.sequence"]; !ok || v.AsInt64() != 4 {
		t.Errorf("expected node.sequence=4, got %v", attrMap["node.sequence"])
	}
}

func TestOTelEventListener_OutOfOrderDelivery(t *testing.T) {
	// Verify that a "completed" event arriving before "started" still produces a valid span.
	// This happens because EventBus dispatches each Publish() in a separate goroutine.
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	// Send completed BEFORE started (simulates async race).
	listener.OnEvent(&events.Event{
		Type: events.EventNodeCompleted, Timestamp: now.Add(time.Second),
		SessionID: "sess-1", NodeID: "decoder-1",
		Data: events.NodeCompletedData{
			NodeType: "decoder", Duration: time.Second, OutputsCount: 2,
		},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventNodeStarted, Timestamp: now,
		SessionID: "sess-1", NodeID: "decoder-1",
		Data: events.NodeStartedData{NodeType: "decoder", Sequence: 1},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	nodeSpan := findSpan(t, spans, "node.decoder")
	if nodeSpan.Status.Code != codes.Ok {
		t.Errorf("expected OK status, got %v", nodeSpan.Status.Code)
	}

	// Verify completion attributes were applied.
	attrMap := make(map[string]attribute.Value)
	for _, a := range nodeSpan.Attributes {
		attrMap[string(a.Key)] = a.Value
	}
	if v, ok := attrMap["node.outputs_count"]; !ok || v.AsInt64() != 2 {
		t.Errorf("expected node.outputs_count=2, got %v", attrMap["node.outputs_count"])
	}
}

func TestOTelEventListener_OutOfOrderFailed(t *testing.T) {
	// Verify that a "failed" event arriving before "started" produces a span with error status.
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	// Send failed BEFORE started.
	listener.OnEvent(&events.Event{
		Type: events.EventNodeFailed, Timestamp: now.Add(time.Second),
		SessionID: "sess-1", NodeID: "encoder-1",
		Data: events.NodeFailedData{
			NodeType: "encoder", Error: errors.New("timeout"), Duration: time.Second,
		},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventNodeStarted, Timestamp: now,
		SessionID: "sess-1", NodeID: "encoder-1",
		Data: events.NodeStartedData{NodeType: "encoder", Sequence: 1},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	nodeSpan := findSpan(t, spans, "node.encoder")
	if nodeSpan.Status.Code != codes.Error {
		t.Errorf("expected Error status, got %v", nodeSpan.Status.Code)
	}
	if nodeSpan.Status.Description != "timeout" {
		t.Errorf("expected error message 'timeout', got %q", nodeSpan.Status.Description)
	}
}
