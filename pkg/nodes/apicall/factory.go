package apicall

import (
	"context"

	"github.com/orchestrix/orchestrix/pkg/protocol"
)

type APICallNodeFactory struct{}

func NewAPICallNodeFactory() *APICallNodeFactory {
	return &APICallNodeFactory{}
}

func (f *APICallNodeFactory) Create(_ context.Context, nodeID string, config map[string]any) (protocol.NodeHandler, error) {
	return NewAPICallNode(nodeID, config)
}

func (f *APICallNodeFactory) ID() string {
	return "api_call"
}

func (f *APICallNodeFactory) Name() string {
	return "API Call"
}

func (f *APICallNodeFactory) Description() string {
	return "Performs an HTTP request against an external API"
}

func (f *APICallNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"url"},
		"properties": map[string]any{
			"url":    map[string]any{"type": "string"},
			"method": map[string]any{"type": "string", "enum": []string{"GET", "POST"}},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body":    map[string]any{"type": "object"},
			"timeout": map[string]any{"type": "number", "minimum": 1, "maximum": 300},
		},
	}
}
