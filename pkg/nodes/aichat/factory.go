package aichat

import (
	"context"

	"github.com/orchestrix/orchestrix/pkg/protocol"
)

// ChatNodeFactory serves the ai_chat node type. CompletionNodeFactory serves
// ai_completion with the same simulated behavior.
type ChatNodeFactory struct{}

func NewChatNodeFactory() *ChatNodeFactory {
	return &ChatNodeFactory{}
}

func (f *ChatNodeFactory) Create(_ context.Context, nodeID string, config map[string]any) (protocol.NodeHandler, error) {
	return NewAIChatNode(nodeID, config)
}

func (f *ChatNodeFactory) ID() string {
	return "ai_chat"
}

func (f *ChatNodeFactory) Name() string {
	return "AI Chat"
}

func (f *ChatNodeFactory) Description() string {
	return "Produces a simulated chat-model response for the configured prompt"
}

func (f *ChatNodeFactory) Schema() map[string]any {
	return aiSchema()
}

type CompletionNodeFactory struct{}

func NewCompletionNodeFactory() *CompletionNodeFactory {
	return &CompletionNodeFactory{}
}

func (f *CompletionNodeFactory) Create(_ context.Context, nodeID string, config map[string]any) (protocol.NodeHandler, error) {
	return NewAIChatNode(nodeID, config)
}

func (f *CompletionNodeFactory) ID() string {
	return "ai_completion"
}

func (f *CompletionNodeFactory) Name() string {
	return "AI Completion"
}

func (f *CompletionNodeFactory) Description() string {
	return "Produces a simulated completion-model response for the configured prompt"
}

func (f *CompletionNodeFactory) Schema() map[string]any {
	return aiSchema()
}

func aiSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{"type": "string"},
			"model":  map[string]any{"type": "string"},
		},
	}
}
