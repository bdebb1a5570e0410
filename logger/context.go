// Package logger provides structured logging with automatic context
// field extraction.
package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. These keys are used to store
// values in context.Context that will be automatically extracted and
// added to log entries by ContextHandler.
const (
	// ContextKeySessionID identifies the streaming or unary session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyPipelineID identifies the compiled pipeline manifest.
	ContextKeyPipelineID contextKey = "pipeline_id"

	// ContextKeyNodeID identifies the node instance currently executing.
	ContextKeyNodeID contextKey = "node_id"

	// ContextKeyNodeType identifies the node's registry type.
	ContextKeyNodeType contextKey = "node_type"

	// ContextKeyRequestID identifies the individual request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyCorrelationID is used for distributed tracing.
	ContextKeyCorrelationID contextKey = "correlation_id"

	// ContextKeyEnvironment identifies the deployment environment.
	ContextKeyEnvironment contextKey = "environment"
)

// allContextKeys lists all context keys that should be extracted for logging.
// This is used by the handler to iterate over all possible context values.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyPipelineID,
	ContextKeyNodeID,
	ContextKeyNodeType,
	ContextKeyRequestID,
	ContextKeyCorrelationID,
	ContextKeyEnvironment,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithPipelineID returns a new context with the pipeline ID set.
func WithPipelineID(ctx context.Context, pipelineID string) context.Context {
	return context.WithValue(ctx, ContextKeyPipelineID, pipelineID)
}

// WithNodeID returns a new context with the node instance ID set.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, ContextKeyNodeID, nodeID)
}

// WithNodeType returns a new context with the node registry type set.
func WithNodeType(ctx context.Context, nodeType string) context.Context {
	return context.WithValue(ctx, ContextKeyNodeType, nodeType)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// WithEnvironment returns a new context with the environment set.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, ContextKeyEnvironment, environment)
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.SessionID != "" {
		ctx = WithSessionID(ctx, fields.SessionID)
	}
	if fields.PipelineID != "" {
		ctx = WithPipelineID(ctx, fields.PipelineID)
	}
	if fields.NodeID != "" {
		ctx = WithNodeID(ctx, fields.NodeID)
	}
	if fields.NodeType != "" {
		ctx = WithNodeType(ctx, fields.NodeType)
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.CorrelationID != "" {
		ctx = WithCorrelationID(ctx, fields.CorrelationID)
	}
	if fields.Environment != "" {
		ctx = WithEnvironment(ctx, fields.Environment)
	}
	return ctx
}

// LoggingFields holds all standard logging context fields.
type LoggingFields struct {
	SessionID     string
	PipelineID    string
	NodeID        string
	NodeType      string
	RequestID     string
	CorrelationID string
	Environment   string
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	fields := LoggingFields{}
	if v := ctx.Value(ContextKeySessionID); v != nil {
		fields.SessionID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyPipelineID); v != nil {
		fields.PipelineID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyNodeID); v != nil {
		fields.NodeID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyNodeType); v != nil {
		fields.NodeType, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		fields.RequestID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyCorrelationID); v != nil {
		fields.CorrelationID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyEnvironment); v != nil {
		fields.Environment, _ = v.(string)
	}
	return fields
}
