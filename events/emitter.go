package events

import "time"

// Emitter provides helpers for publishing runtime events with shared
// session metadata, so call sites don't repeat the session id on every call.
type Emitter struct {
	bus       *EventBus
	sessionID string
}

// NewEmitter creates a new event emitter scoped to one session.
func NewEmitter(bus *EventBus, sessionID string) *Emitter {
	return &Emitter{bus: bus, sessionID: sessionID}
}

func (e *Emitter) emit(eventType EventType, nodeID string, data EventData) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		NodeID:    nodeID,
		Data:      data,
	})
}

// SessionOpened emits the session.opened event.
func (e *Emitter) SessionOpened(nodeCount int) {
	e.emit(EventSessionOpened, "", SessionOpenedData{NodeCount: nodeCount})
}

// SessionClosing emits the session.closing event.
func (e *Emitter) SessionClosing() {
	e.emit(EventSessionClosing, "", baseEventData{})
}

// SessionClosed emits the session.closed event.
func (e *Emitter) SessionClosed(duration time.Duration) {
	e.emit(EventSessionClosed, "", SessionClosedData{Duration: duration})
}

// SessionFailed emits the session.failed event.
func (e *Emitter) SessionFailed(err error, duration time.Duration) {
	e.emit(EventSessionFailed, "", SessionFailedData{Error: err, Duration: duration})
}

// NodeStarted emits the node.started event.
func (e *Emitter) NodeStarted(nodeID, nodeType string, sequence uint64) {
	e.emit(EventNodeStarted, nodeID, NodeStartedData{NodeType: nodeType, Sequence: sequence})
}

// NodeCompleted emits the node.completed event.
func (e *Emitter) NodeCompleted(nodeID, nodeType string, duration time.Duration, outputsCount int) {
	e.emit(EventNodeCompleted, nodeID, NodeCompletedData{
		NodeType: nodeType, Duration: duration, OutputsCount: outputsCount,
	})
}

// NodeFailed emits the node.failed event.
func (e *Emitter) NodeFailed(nodeID, nodeType string, err error, duration time.Duration) {
	e.emit(EventNodeFailed, nodeID, NodeFailedData{NodeType: nodeType, Error: err, Duration: duration})
}

// QueueSaturated emits the queue.saturated event.
func (e *Emitter) QueueSaturated(nodeID string, capacity int) {
	e.emit(EventQueueSaturated, nodeID, QueueSaturatedData{Capacity: capacity})
}

// ChunkRouted emits the chunk.routed event.
func (e *Emitter) ChunkRouted(fromNodeID, toNodeID string) {
	e.emit(EventChunkRouted, toNodeID, ChunkRoutedData{FromNodeID: fromNodeID, ToNodeID: toNodeID})
}
