package workflow_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrix/orchestrix/pkg/expression"
	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/persistence/memory"
	"github.com/orchestrix/orchestrix/pkg/registry"
	"github.com/orchestrix/orchestrix/pkg/tracker"
	"github.com/orchestrix/orchestrix/pkg/workflow"
)

func setupExecutor(t *testing.T) (*workflow.Executor, *tracker.Tracker) {
	t.Helper()

	logger := slog.Default()

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(expression.NewEvaluator(logger), recordingMailer{})

	trk := tracker.NewTracker(memory.NewPersistence().ExecutionRepository(), logger)

	return workflow.NewExecutor(reg, trk, logger), trk
}

func TestExecuteNodeSuccess(t *testing.T) {
	ctx := context.Background()
	executor, trk := setupExecutor(t)

	execution, err := trk.StartExecution(ctx, "wf-1", "user-1", nil, models.TriggerSourceManual, nil)
	require.NoError(t, err)

	node := &models.WorkflowNode{ID: "n1", Type: "trigger", Name: "start", Config: map[string]any{}}

	result, err := executor.ExecuteNode(ctx, execution.ID, node, map[string]any{"payload": "x"})
	require.NoError(t, err)

	assert.Equal(t, models.NodeExecutionStatusCompleted, result.Status)
	assert.Equal(t, "n1", result.NodeID)
	assert.Contains(t, result.Output, "triggered_at")

	// Handler log appends land on the node execution record.
	stored, err := trk.NodeExecutionByID(ctx, result.NodeExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeExecutionStatusCompleted, stored.Status)
	assert.NotEmpty(t, stored.Logs)
}

func TestExecuteNodeUnknownTypeFailsNode(t *testing.T) {
	ctx := context.Background()
	executor, trk := setupExecutor(t)

	execution, err := trk.StartExecution(ctx, "wf-1", "user-1", nil, models.TriggerSourceManual, nil)
	require.NoError(t, err)

	node := &models.WorkflowNode{ID: "n1", Type: "teleport", Name: "nope"}

	// Handler errors surface as a failed result, never as a Go error.
	result, err := executor.ExecuteNode(ctx, execution.ID, node, nil)
	require.NoError(t, err)
	assert.Equal(t, models.NodeExecutionStatusFailed, result.Status)
	assert.Contains(t, result.Error, "unknown node type")

	stored, err := trk.NodeExecutionByID(ctx, result.NodeExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeExecutionStatusFailed, stored.Status)
}

func TestExecuteNodeInputSchemaValidation(t *testing.T) {
	ctx := context.Background()
	executor, trk := setupExecutor(t)

	execution, err := trk.StartExecution(ctx, "wf-1", "user-1", nil, models.TriggerSourceManual, nil)
	require.NoError(t, err)

	node := &models.WorkflowNode{
		ID:     "n1",
		Type:   "trigger",
		Name:   "strict start",
		Config: map[string]any{},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"amount"},
			"properties": map[string]any{
				"amount": map[string]any{"type": "number"},
			},
		},
	}

	result, err := executor.ExecuteNode(ctx, execution.ID, node, map[string]any{"other": 1})
	require.NoError(t, err)
	assert.Equal(t, models.NodeExecutionStatusFailed, result.Status)
	assert.Contains(t, result.Error, "input does not match schema")

	// Conforming input passes.
	result, err = executor.ExecuteNode(ctx, execution.ID, node, map[string]any{"amount": 12.5})
	require.NoError(t, err)
	assert.Equal(t, models.NodeExecutionStatusCompleted, result.Status)
}

func TestExecuteNodeConditionOutput(t *testing.T) {
	ctx := context.Background()
	executor, trk := setupExecutor(t)

	execution, err := trk.StartExecution(ctx, "wf-1", "user-1", nil, models.TriggerSourceManual, nil)
	require.NoError(t, err)

	node := &models.WorkflowNode{
		ID:     "cond",
		Type:   "condition",
		Name:   "gate",
		Config: map[string]any{"condition": "amount > 100"},
	}

	result, err := executor.ExecuteNode(ctx, execution.ID, node, map[string]any{"amount": 150})
	require.NoError(t, err)
	assert.Equal(t, models.NodeExecutionStatusCompleted, result.Status)
	assert.Equal(t, true, result.Output["condition_result"])
	assert.Equal(t, "amount > 100", result.Output["condition"])
}
