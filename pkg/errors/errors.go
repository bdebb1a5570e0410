// Package errors provides the structured error type shared across the
// runtime, carrying enough context to map onto the wire error taxonomy
// without losing the underlying cause.
//
// Usage:
//
//	err := errors.New("compiler", "Compile", someErr)
//	err = err.WithKind(errors.KindCycle).WithDetails(map[string]any{"node_id": id})
package errors

import "fmt"

// Kind enumerates the error taxonomy surfaced to clients over the wire.
// It mirrors the small, closed set of failure classes a pipeline session
// can report rather than leaking Go error types across the session boundary.
type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindVersion      Kind = "VERSION_MISMATCH"
	KindUnknownNode  Kind = "UNKNOWN_NODE_TYPE"
	KindBadConfig    Kind = "NODE_CONFIG_INVALID"
	KindCapability   Kind = "CAPABILITY_UNMET"
	KindCycle        Kind = "CYCLE"
	KindEndpoint     Kind = "UNKNOWN_ENDPOINT"
	KindDuplicate    Kind = "DUPLICATE_NODE"
	KindKindMismatch Kind = "KIND_MISMATCH"
	KindNodeFailure  Kind = "NODE_FAILURE"
	KindTimeout      Kind = "TIMEOUT"
	KindResourceLimit Kind = "RESOURCE_LIMIT"
	KindTransport    Kind = "TRANSPORT"
	KindInternal     Kind = "INTERNAL"
)

// WireKind collapses the closed Kind taxonomy down to the seven top-level
// categories the streaming protocol reports to clients. Several compile-time
// Kinds (cycle, dangling endpoint, duplicate id, kind mismatch, unknown node
// type, bad config) are all forms of manifest validation failure on the wire.
func (k Kind) WireKind() string {
	switch k {
	case KindValidation, KindUnknownNode, KindBadConfig, KindCycle, KindEndpoint, KindDuplicate, KindKindMismatch:
		return "Validation"
	case KindVersion:
		return "VersionMismatch"
	case KindCapability:
		return "CapabilityUnmet"
	case KindNodeFailure, KindTimeout:
		return "NodeExecution"
	case KindResourceLimit:
		return "ResourceLimit"
	case KindTransport:
		return "Transport"
	default:
		return "Internal"
	}
}

// ContextualError is a structured error carrying the component and
// operation that produced it, an error Kind for wire mapping, and
// optional structured details plus the underlying cause.
type ContextualError struct {
	// Component identifies the subsystem that produced the error
	// (e.g. "compiler", "scheduler", "ipc").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// Kind is the closed error taxonomy value reported to clients.
	Kind Kind

	// Recoverable indicates whether the owning session may continue
	// after this error (see the error handling design for propagation policy).
	Recoverable bool

	// NodeID identifies the failing node, when applicable.
	NodeID string

	// Details holds optional structured metadata about the error.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates a ContextualError with the given component, operation, and cause.
func New(component, operation string, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Kind:      KindInternal,
		Cause:     cause,
	}
}

// Error returns a human-readable representation of the error.
func (e *ContextualError) Error() string {
	base := fmt.Sprintf("[%s] %s: %s", e.Component, e.Operation, e.Kind)
	if e.NodeID != "" {
		base += fmt.Sprintf(" (node %s)", e.NodeID)
	}
	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}
	return base
}

// Unwrap returns the underlying cause, enabling use with errors.Is and errors.As.
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// WithKind sets the wire error kind and returns the receiver for chaining.
func (e *ContextualError) WithKind(kind Kind) *ContextualError {
	e.Kind = kind
	return e
}

// WithNodeID records the failing node, if any, and returns the receiver for chaining.
func (e *ContextualError) WithNodeID(id string) *ContextualError {
	e.NodeID = id
	return e
}

// WithRecoverable marks whether the session can continue after this error.
func (e *ContextualError) WithRecoverable(recoverable bool) *ContextualError {
	e.Recoverable = recoverable
	return e
}

// WithDetails attaches structured metadata and returns the receiver for chaining.
func (e *ContextualError) WithDetails(details map[string]any) *ContextualError {
	e.Details = details
	return e
}
