// Package aichat provides the ai_chat and ai_completion node handlers. Both
// are simulated: they produce a deterministic echo of the configured prompt.
// A real model integration can replace the handler behind the same contract.
package aichat

import (
	"context"
	"fmt"

	"github.com/orchestrix/orchestrix/pkg/protocol"
)

const defaultModel = "gpt-3.5-turbo"

type AIChatNode struct {
	id     string
	prompt string
	model  string
}

func NewAIChatNode(id string, config map[string]any) (*AIChatNode, error) {
	node := &AIChatNode{
		id:     id,
		prompt: "Hello, how can I help you?",
		model:  defaultModel,
	}

	if prompt, ok := config["prompt"].(string); ok && prompt != "" {
		node.prompt = prompt
	}

	if model, ok := config["model"].(string); ok && model != "" {
		node.model = model
	}

	return node, nil
}

func (n *AIChatNode) Execute(_ context.Context, _ map[string]any, logs protocol.LogSink) (map[string]any, error) {
	logs.Append("info", fmt.Sprintf("AI chat prompt: %s", n.prompt), nil)

	return map[string]any{
		"ai_response": "AI Response to: " + n.prompt,
		"prompt_used": n.prompt,
		"model":       n.model,
	}, nil
}
