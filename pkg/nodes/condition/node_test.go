package condition_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrix/orchestrix/pkg/expression"
	"github.com/orchestrix/orchestrix/pkg/nodes/condition"
)

type nopLogSink struct{}

func (nopLogSink) Append(_, _ string, _ map[string]any) {}

func TestNewConditionNodeRequiresCondition(t *testing.T) {
	evaluator := expression.NewEvaluator(slog.Default())

	_, err := condition.NewConditionNode("n1", map[string]any{}, evaluator)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "condition")

	_, err = condition.NewConditionNode("n1", map[string]any{"condition": ""}, evaluator)
	require.Error(t, err)
}

func TestConditionNodeExecute(t *testing.T) {
	evaluator := expression.NewEvaluator(slog.Default())

	node, err := condition.NewConditionNode("n1", map[string]any{"condition": "amount > 100"}, evaluator)
	require.NoError(t, err)

	output, err := node.Execute(context.Background(), map[string]any{"amount": 150}, nopLogSink{})
	require.NoError(t, err)
	assert.Equal(t, true, output["condition_result"])
	assert.Equal(t, "amount > 100", output["condition"])
	assert.NotEmpty(t, output["evaluated_at"])

	output, err = node.Execute(context.Background(), map[string]any{"amount": 50}, nopLogSink{})
	require.NoError(t, err)
	assert.Equal(t, false, output["condition_result"])
}

func TestSelectedPath(t *testing.T) {
	config := map[string]any{
		"true_path":  []any{"b", "c"},
		"false_path": []any{"d"},
	}

	assert.Equal(t, []string{"b", "c"}, condition.SelectedPath(config, true))
	assert.Equal(t, []string{"d"}, condition.SelectedPath(config, false))

	// Non-string entries are dropped, missing keys select nothing.
	assert.Equal(t, []string{"x"}, condition.SelectedPath(map[string]any{"true_path": []any{"x", 7}}, true))
	assert.Nil(t, condition.SelectedPath(map[string]any{}, true))
}

func TestDeclaredPaths(t *testing.T) {
	config := map[string]any{
		"true_path":  []any{"b"},
		"false_path": []any{"c", "b"},
	}

	declared := condition.DeclaredPaths(config)
	assert.Len(t, declared, 2)
	assert.True(t, declared["b"])
	assert.True(t, declared["c"])

	assert.Empty(t, condition.DeclaredPaths(map[string]any{}))
}
