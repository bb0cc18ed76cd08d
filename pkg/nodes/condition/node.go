// Package condition provides the condition node handler. It evaluates a
// boolean expression against the current data context; branch selection based
// on the result is the orchestrator's job.
package condition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orchestrix/orchestrix/pkg/expression"
	"github.com/orchestrix/orchestrix/pkg/protocol"
)

const (
	// Config keys naming the child node ids each branch selects.
	TruePathKey  = "true_path"
	FalsePathKey = "false_path"
)

type ConditionNode struct {
	id        string
	condition string
	evaluator *expression.Evaluator
}

func NewConditionNode(id string, config map[string]any, evaluator *expression.Evaluator) (*ConditionNode, error) {
	condition, ok := config["condition"].(string)
	if !ok || condition == "" {
		return nil, errors.New("missing required field 'condition'")
	}

	return &ConditionNode{
		id:        id,
		condition: condition,
		evaluator: evaluator,
	}, nil
}

func (n *ConditionNode) Execute(_ context.Context, input map[string]any, logs protocol.LogSink) (map[string]any, error) {
	result := n.evaluator.EvaluateBool(n.condition, input)

	logs.Append("info", fmt.Sprintf("Condition %q evaluated to %t", n.condition, result), nil)

	return map[string]any{
		"condition_result": result,
		"condition":        n.condition,
		"evaluated_at":     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// SelectedPath returns the child node ids configured for the given branch.
// Both path keys are optional; a condition node without them is pure telemetry.
func SelectedPath(config map[string]any, result bool) []string {
	key := FalsePathKey
	if result {
		key = TruePathKey
	}

	raw, ok := config[key].([]any)
	if !ok {
		return nil
	}

	path := make([]string, 0, len(raw))

	for _, entry := range raw {
		if id, ok := entry.(string); ok {
			path = append(path, id)
		}
	}

	return path
}

// DeclaredPaths returns the union of child node ids named by either branch.
func DeclaredPaths(config map[string]any) map[string]bool {
	declared := make(map[string]bool)

	for _, id := range SelectedPath(config, true) {
		declared[id] = true
	}

	for _, id := range SelectedPath(config, false) {
		declared[id] = true
	}

	return declared
}
