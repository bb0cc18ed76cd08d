package condition

import (
	"context"

	"github.com/orchestrix/orchestrix/pkg/expression"
	"github.com/orchestrix/orchestrix/pkg/protocol"
)

type ConditionNodeFactory struct {
	evaluator *expression.Evaluator
}

func NewConditionNodeFactory(evaluator *expression.Evaluator) *ConditionNodeFactory {
	return &ConditionNodeFactory{evaluator: evaluator}
}

func (f *ConditionNodeFactory) Create(_ context.Context, nodeID string, config map[string]any) (protocol.NodeHandler, error) {
	return NewConditionNode(nodeID, config, f.evaluator)
}

func (f *ConditionNodeFactory) ID() string {
	return "condition"
}

func (f *ConditionNodeFactory) Name() string {
	return "Condition"
}

func (f *ConditionNodeFactory) Description() string {
	return "Evaluates a boolean expression against the current data context"
}

func (f *ConditionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"condition"},
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Boolean expression over the data context keys",
			},
			TruePathKey: map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Child node ids executed when the condition is true",
			},
			FalsePathKey: map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Child node ids executed when the condition is false",
			},
		},
	}
}
