// Package protocol defines the interfaces and contracts for pluggable node handlers.
package protocol

import (
	"context"
)

// LogSink receives log entries produced while a node executes. The executor
// wires it to the node execution's persisted log sequence.
type LogSink interface {
	Append(level, message string, data map[string]any)
}

// NodeHandler executes a single node given its input data. Implementations are
// created per node by a HandlerFactory with the node's configuration bound in.
type NodeHandler interface {
	// Execute runs the node and returns its output map. A returned error
	// means the node failed; the executor converts it into a failed node
	// execution record and never re-raises it past that boundary.
	Execute(ctx context.Context, input map[string]any, logs LogSink) (map[string]any, error)
}

// HandlerFactory creates node handler instances and provides metadata about
// the node type.
type HandlerFactory interface {
	// Create creates a new handler instance for the given node configuration
	Create(ctx context.Context, nodeID string, config map[string]any) (NodeHandler, error)

	// ID returns the node type tag this factory serves
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node type does
	Description() string

	// Schema returns the JSON schema for configuring this node type
	Schema() map[string]any
}
