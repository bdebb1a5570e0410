// Package telemetry provides OpenTelemetry export for session recordings.
// This enables exporting session events as distributed traces to observability platforms.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/mediarun/runtime/events"
)

// Exporter exports session events to an observability backend.
type Exporter interface {
	// Export sends spans to the backend.
	Export(ctx context.Context, spans []*Span) error

	// Shutdown performs cleanup and flushes any pending data.
	Shutdown(ctx context.Context) error
}

// Span represents a trace span in OpenTelemetry format.
type Span struct {
	// TraceID is the unique identifier for the trace (16 bytes, hex-encoded).
	TraceID string `json:"traceId"`
	// SpanID is the unique identifier for this span (8 bytes, hex-encoded).
	SpanID string `json:"spanId"`
	// ParentSpanID is the ID of the parent span (empty for root spans).
	ParentSpanID string `json:"parentSpanId,omitempty"`
	// Name is the operation name.
	Name string `json:"name"`
	// Kind is the span kind (client, server, producer, consumer, internal).
	Kind SpanKind `json:"kind"`
	// StartTime is when the span started.
	StartTime time.Time `json:"startTimeUnixNano"`
	// EndTime is when the span ended.
	EndTime time.Time `json:"endTimeUnixNano"`
	// Attributes are key-value pairs associated with the span.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	// Status is the span status.
	Status *SpanStatus `json:"status,omitempty"`
	// Events are timestamped events within the span.
	Events []*SpanEvent `json:"events,omitempty"`
}

// SpanKind represents the type of span.
type SpanKind int

// Span kinds.
const (
	SpanKindUnspecified SpanKind = 0
	SpanKindInternal    SpanKind = 1
	SpanKindServer      SpanKind = 2
	SpanKindClient      SpanKind = 3
	SpanKindProducer    SpanKind = 4
	SpanKindConsumer    SpanKind = 5
)

// SpanStatus represents the status of a span.
type SpanStatus struct {
	// Code is the status code (0=Unset, 1=Ok, 2=Error).
	Code StatusCode `json:"code"`
	// Message is the status message.
	Message string `json:"message,omitempty"`
}

// StatusCode represents the status of a span.
type StatusCode int

// Status codes.
const (
	StatusCodeUnset StatusCode = 0
	StatusCodeOk    StatusCode = 1
	StatusCodeError StatusCode = 2
)

// SpanEvent represents an event within a span.
type SpanEvent struct {
	// Name is the event name.
	Name string `json:"name"`
	// Time is when the event occurred.
	Time time.Time `json:"timeUnixNano"`
	// Attributes are key-value pairs associated with the event.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Resource represents the entity producing telemetry.
type Resource struct {
	// Attributes are key-value pairs describing the resource.
	Attributes map[string]interface{} `json:"attributes"`
}

// DefaultResource returns a default resource describing this runtime.
func DefaultResource() *Resource {
	return &Resource{
		Attributes: map[string]interface{}{
			"service.name":    "mediarund",
			"service.version": "1.0.0",
			"telemetry.sdk":   "mediarun-telemetry",
		},
	}
}

// ResourceWithSessionID returns a default resource with the session.id attribute set.
func ResourceWithSessionID(sessionID string) *Resource {
	r := DefaultResource()
	r.Attributes["session.id"] = sessionID
	return r
}

// EventConverter converts runtime events to OTLP spans.
type EventConverter struct {
	// Resource is the resource to attach to spans.
	Resource *Resource
}

// NewEventConverter creates a new event converter.
func NewEventConverter(resource *Resource) *EventConverter {
	if resource == nil {
		resource = DefaultResource()
	}
	return &EventConverter{Resource: resource}
}

// ConvertSession converts a session's events to spans.
// The session becomes the root span, with each node invocation as a child span.
func (c *EventConverter) ConvertSession(
	sessionID string, sessionEvents []events.Event,
) ([]*Span, error) {
	if len(sessionEvents) == 0 {
		return nil, nil
	}
	traceID := generateTraceID(sessionID)
	return c.buildTrace(sessionID, sessionEvents, traceID, "")
}

// convertEvent converts a single event to a span, or updates the root/an
// in-flight span, returning a completed child span when one closes.
func (c *EventConverter) convertEvent(
	traceID, parentSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	switch evt.Type {
	case events.EventSessionOpened:
		c.handleSessionOpened(evt, spanStack)
		return nil
	case events.EventSessionClosing:
		c.addRootEvent(spanStack, "session.closing", evt.Timestamp, nil)
		return nil
	case events.EventSessionClosed:
		c.handleSessionClosed(evt, spanStack)
		return nil
	case events.EventSessionFailed:
		c.handleSessionFailed(evt, spanStack)
		return nil
	case events.EventNodeStarted:
		return c.createNodeSpan(traceID, parentSpanID, evt, spanStack)
	case events.EventNodeCompleted, events.EventNodeFailed:
		return c.completeNodeSpan(evt, spanStack)
	case events.EventQueueSaturated:
		c.handleQueueSaturated(evt, spanStack)
		return nil
	case events.EventChunkRouted:
		c.handleChunkRouted(evt, spanStack)
		return nil
	default:
		return nil
	}
}

func (c *EventConverter) handleSessionOpened(evt *events.Event, spanStack map[string]*Span) {
	data, ok := asPtr[events.SessionOpenedData](evt.Data)
	if !ok {
		return
	}
	if root, ok := spanStack["root"]; ok {
		root.Attributes["session.node_count"] = data.NodeCount
	}
}

func (c *EventConverter) handleSessionClosed(evt *events.Event, spanStack map[string]*Span) {
	root, ok := spanStack["root"]
	if !ok {
		return
	}
	root.EndTime = evt.Timestamp
	if data, ok := asPtr[events.SessionClosedData](evt.Data); ok {
		root.Attributes["session.duration_ms"] = data.Duration.Milliseconds()
	}
	root.Status = &SpanStatus{Code: StatusCodeOk}
}

func (c *EventConverter) handleSessionFailed(evt *events.Event, spanStack map[string]*Span) {
	root, ok := spanStack["root"]
	if !ok {
		return
	}
	root.EndTime = evt.Timestamp
	status := &SpanStatus{Code: StatusCodeError}
	if data, ok := asPtr[events.SessionFailedData](evt.Data); ok {
		root.Attributes["session.duration_ms"] = data.Duration.Milliseconds()
		if data.Error != nil {
			status.Message = data.Error.Error()
		}
	}
	root.Status = status
}

func (c *EventConverter) createNodeSpan(
	traceID, parentSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	data, ok := asPtr[events.NodeStartedData](evt.Data)
	if !ok {
		return nil
	}

	key := "node:" + evt.SessionID + ":" + evt.NodeID
	span := &Span{
		TraceID:      traceID,
		SpanID:       generateSpanID(key),
		ParentSpanID: parentSpanID,
		Name:         "node." + data.NodeType,
		Kind:         SpanKindInternal,
		StartTime:    evt.Timestamp,
		EndTime:      evt.Timestamp, // Updated on completion
		Attributes: map[string]interface{}{
			"node.id":       evt.NodeID,
			"node.type":     data.NodeType,
			"node.sequence": data.Sequence,
		},
	}
	spanStack[key] = span
	return nil // Don't return until completed
}

func (c *EventConverter) completeNodeSpan(evt *events.Event, spanStack map[string]*Span) *Span {
	key := "node:" + evt.SessionID + ":" + evt.NodeID
	span, ok := spanStack[key]
	if !ok {
		return nil
	}
	delete(spanStack, key)

	span.EndTime = evt.Timestamp

	switch evt.Type {
	case events.EventNodeCompleted:
		if data, ok := asPtr[events.NodeCompletedData](evt.Data); ok {
			span.Attributes["node.duration_ms"] = data.Duration.Milliseconds()
			span.Attributes["node.outputs_count"] = data.OutputsCount
		}
		span.Status = &SpanStatus{Code: StatusCodeOk}
	case events.EventNodeFailed:
		if data, ok := asPtr[events.NodeFailedData](evt.Data); ok {
			span.Attributes["node.duration_ms"] = data.Duration.Milliseconds()
			span.Status = &SpanStatus{Code: StatusCodeError, Message: errString(data.Error)}
		}
	}

	return span
}

func (c *EventConverter) handleQueueSaturated(evt *events.Event, spanStack map[string]*Span) {
	data, ok := asPtr[events.QueueSaturatedData](evt.Data)
	if !ok {
		return
	}
	c.addRootEvent(spanStack, "queue.saturated", evt.Timestamp, map[string]interface{}{
		"node.id":        evt.NodeID,
		"queue.capacity": data.Capacity,
	})
}

func (c *EventConverter) handleChunkRouted(evt *events.Event, spanStack map[string]*Span) {
	data, ok := asPtr[events.ChunkRoutedData](evt.Data)
	if !ok {
		return
	}
	c.addRootEvent(spanStack, "chunk.routed", evt.Timestamp, map[string]interface{}{
		"chunk.from_node": data.FromNodeID,
		"chunk.to_node":   data.ToNodeID,
	})
}

func (c *EventConverter) addRootEvent(
	spanStack map[string]*Span, name string, at time.Time, attrs map[string]interface{},
) {
	root, ok := spanStack["root"]
	if !ok {
		return
	}
	root.Events = append(root.Events, &SpanEvent{Name: name, Time: at, Attributes: attrs})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ConvertSessionWithParent converts a session's events to spans, using the provided
// trace context as the parent trace instead of generating a fresh one from session ID.
// If traceCtx is nil or has an empty Traceparent, it falls back to ConvertSession behavior.
func (c *EventConverter) ConvertSessionWithParent(
	sessionID string, sessionEvents []events.Event, traceCtx *TraceContext,
) ([]*Span, error) {
	if traceCtx == nil || traceCtx.Traceparent == "" {
		return c.ConvertSession(sessionID, sessionEvents)
	}

	parentTraceID, parentSpanID, ok := parseTraceparent(traceCtx.Traceparent)
	if !ok {
		return c.ConvertSession(sessionID, sessionEvents)
	}

	if len(sessionEvents) == 0 {
		return nil, nil
	}

	return c.buildTrace(sessionID, sessionEvents, parentTraceID, parentSpanID)
}

// buildTrace creates the root session span and converts all events into child spans.
// parentSpanID is set on the root span when propagating an inbound trace context.
func (c *EventConverter) buildTrace(
	sessionID string, sessionEvents []events.Event, traceID, parentSpanID string,
) ([]*Span, error) {
	rootSpanID := generateSpanID(sessionID + ":root")

	var startTime, endTime time.Time
	for _, evt := range sessionEvents {
		if startTime.IsZero() || evt.Timestamp.Before(startTime) {
			startTime = evt.Timestamp
		}
		if endTime.IsZero() || evt.Timestamp.After(endTime) {
			endTime = evt.Timestamp
		}
	}

	rootSpan := &Span{
		TraceID:      traceID,
		SpanID:       rootSpanID,
		ParentSpanID: parentSpanID,
		Name:         "session",
		Kind:         SpanKindServer,
		StartTime:    startTime,
		EndTime:      endTime,
		Attributes: map[string]interface{}{
			"session.id": sessionID,
		},
		Status: &SpanStatus{Code: StatusCodeOk},
	}

	spans := []*Span{rootSpan}
	spanStack := make(map[string]*Span)
	spanStack["root"] = rootSpan

	for i := range sessionEvents {
		span := c.convertEvent(traceID, rootSpanID, &sessionEvents[i], spanStack)
		if span != nil {
			spans = append(spans, span)
		}
	}

	return spans, nil
}

// parseTraceparent extracts trace ID and span ID from a W3C traceparent header.
// Format: version-trace_id-parent_id-trace_flags (e.g., 00-<32 hex>-<16 hex>-<2 hex>).
func parseTraceparent(tp string) (traceID, spanID string, ok bool) {
	if !traceparentRe.MatchString(tp) {
		return "", "", false
	}
	// 00-<32 hex traceID>-<16 hex spanID>-<2 hex flags>
	traceID = tp[3:35]
	spanID = tp[36:52]
	return traceID, spanID, true
}

// generateTraceID generates a 16-byte trace ID from a string.
func generateTraceID(s string) string {
	// Use first 16 bytes of SHA256 hash
	hash := sha256Sum(s)
	return hex.EncodeToString(hash[:16])
}

// generateSpanID generates an 8-byte span ID from a string.
func generateSpanID(s string) string {
	// Use first 8 bytes of SHA256 hash
	hash := sha256Sum(s)
	return hex.EncodeToString(hash[:8])
}

// sha256Sum computes SHA256 hash of a string.
func sha256Sum(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}
