package node

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by node implementations and the scheduler's
// handling of them.
var (
	ErrMissingNamedBuffer = errors.New("node: chunk missing a required named buffer")
	ErrUnexpectedKind     = errors.New("node: buffer kind not declared in input_kinds")
	ErrAlreadyClosed      = errors.New("node: process called after cleanup")
	ErrProcessTimeout     = errors.New("node: process call exceeded its timeout")
)

// ExecutionError wraps a node's process failure with enough context for
// the scheduler to report a NodeExecution error (§7) naming the node.
type ExecutionError struct {
	NodeID   string
	NodeType string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %q (%s): %v", e.NodeID, e.NodeType, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecutionError wraps err with the failing node's identity.
func NewExecutionError(nodeID, nodeType string, err error) *ExecutionError {
	return &ExecutionError{NodeID: nodeID, NodeType: nodeType, Err: err}
}
