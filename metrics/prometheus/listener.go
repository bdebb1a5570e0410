// Package prometheus provides Prometheus metrics exporters for the streaming runtime.
package prometheus

import (
	"github.com/mediarun/runtime/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// MetricsListener records session and node events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
// This method is designed to be used with EventBus.SubscribeAll.
func (l *MetricsListener) Handle(event *events.Event) {
	switch event.Type {
	case events.EventSessionOpened:
		RecordSessionOpened()
	case events.EventSessionClosed:
		l.handleSessionClosed(event)
	case events.EventSessionFailed:
		l.handleSessionFailed(event)
	case events.EventNodeCompleted:
		l.handleNodeCompleted(event)
	case events.EventNodeFailed:
		l.handleNodeFailed(event)
	case events.EventQueueSaturated:
		RecordQueueSaturated(event.NodeID)
	case events.EventChunkRouted:
		l.handleChunkRouted(event)
	default:
		// Ignore events that don't have metrics
	}
}

func (l *MetricsListener) handleSessionClosed(event *events.Event) {
	if data, ok := asData[events.SessionClosedData](event.Data); ok {
		RecordSessionClosed(statusSuccess, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleSessionFailed(event *events.Event) {
	if data, ok := asData[events.SessionFailedData](event.Data); ok {
		RecordSessionClosed(statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleNodeCompleted(event *events.Event) {
	if data, ok := asData[events.NodeCompletedData](event.Data); ok {
		RecordNodeInvocation(data.NodeType, statusSuccess, data.Duration.Seconds())
		RecordNodeOutputs(data.NodeType, data.OutputsCount)
	}
}

func (l *MetricsListener) handleNodeFailed(event *events.Event) {
	if data, ok := asData[events.NodeFailedData](event.Data); ok {
		RecordNodeInvocation(data.NodeType, statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleChunkRouted(event *events.Event) {
	if data, ok := asData[events.ChunkRoutedData](event.Data); ok {
		RecordChunkRouted(data.FromNodeID, data.ToNodeID)
	}
}

// asData extracts event data as T whether the publisher passed a T value
// or a *T pointer.
func asData[T any](data any) (T, bool) {
	switch v := data.(type) {
	case T:
		return v, true
	case *T:
		return *v, true
	default:
		var zero T
		return zero, false
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
