// Package registry maps node type tags to handler factories, enabling open
// extension of the node vocabulary without touching the orchestrator.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/orchestrix/orchestrix/pkg/protocol"
)

// ErrUnknownNodeType indicates a workflow references a node type with no
// registered handler. This is a configuration error, not a no-op.
var ErrUnknownNodeType = errors.New("unknown node type")

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.HandlerFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.HandlerFactory),
	}
}

func (r *Registry) Register(factory protocol.HandlerFactory) {
	r.factories[factory.ID()] = factory
}

// CreateHandler instantiates a handler for the given node type and config.
func (r *Registry) CreateHandler(ctx context.Context, nodeType, nodeID string, config map[string]any) (protocol.NodeHandler, error) {
	factory, ok := r.factories[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type %q: %w", nodeType, ErrUnknownNodeType)
	}

	return factory.Create(ctx, nodeID, config)
}

// IsRegistered reports whether a handler factory exists for the node type.
func (r *Registry) IsRegistered(nodeType string) bool {
	_, ok := r.factories[nodeType]

	return ok
}

// AvailableTypes returns all registered node type tags.
func (r *Registry) AvailableTypes() []string {
	types := make([]string, 0, len(r.factories))
	for nodeType := range r.factories {
		types = append(types, nodeType)
	}

	return types
}
