// Package workflow runs workflows. The executor runs one node and records
// its outcome; the orchestrator walks the graph and owns execution state.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/otelhelper"
	"github.com/orchestrix/orchestrix/pkg/registry"
	"github.com/orchestrix/orchestrix/pkg/tracker"
)

// Executor runs a single workflow node. Handler errors never escape as Go
// errors; they are converted into a failed NodeResult so the orchestrator
// decides what a failure means for the run. Returned errors are reserved for
// infrastructure faults such as persistence being unavailable.
type Executor struct {
	registry *registry.Registry
	tracker  *tracker.Tracker
	logger   *slog.Logger
}

func NewExecutor(reg *registry.Registry, trk *tracker.Tracker, logger *slog.Logger) *Executor {
	return &Executor{
		registry: reg,
		tracker:  trk,
		logger:   logger.With("module", "executor"),
	}
}

// trackerLogSink bridges handler log appends into the node execution record.
type trackerLogSink struct {
	ctx             context.Context
	tracker         *tracker.Tracker
	nodeExecutionID string
}

func (s *trackerLogSink) Append(level, message string, data map[string]any) {
	s.tracker.AppendNodeLog(s.ctx, s.nodeExecutionID, level, message, data)
}

// ExecuteNode runs one node against the given input and returns the recorded
// outcome. The NodeExecution record is created in the running state before
// the handler is invoked so observers see progress while the node runs.
func (e *Executor) ExecuteNode(ctx context.Context, executionID string, node *models.WorkflowNode, input map[string]any) (*models.NodeResult, error) {
	ctx, span := otelhelper.StartNodeSpan(ctx, node.Type, node.ID)
	defer span.End()

	nodeExecution, err := e.tracker.BeginNode(ctx, executionID, node, input)
	if err != nil {
		return nil, fmt.Errorf("failed to record node start: %w", err)
	}

	logs := &trackerLogSink{ctx: ctx, tracker: e.tracker, nodeExecutionID: nodeExecution.ID}

	output, execErr := e.runHandler(ctx, node, input, logs)
	if execErr != nil {
		otelhelper.RecordError(span, execErr)
		e.logger.ErrorContext(ctx, "Node execution failed",
			"execution_id", executionID,
			"node_id", node.ID,
			"node_type", node.Type,
			"error", execErr)

		err := e.tracker.FailNode(ctx, nodeExecution, execErr.Error())
		if err != nil {
			return nil, fmt.Errorf("failed to record node failure: %w", err)
		}

		return &models.NodeResult{
			NodeExecutionID: nodeExecution.ID,
			NodeID:          node.ID,
			Status:          models.NodeExecutionStatusFailed,
			Output:          map[string]any{},
			Error:           execErr.Error(),
		}, nil
	}

	if output == nil {
		output = map[string]any{}
	}

	err = e.tracker.CompleteNode(ctx, nodeExecution, output)
	if err != nil {
		return nil, fmt.Errorf("failed to record node completion: %w", err)
	}

	e.logger.DebugContext(ctx, "Node executed",
		"execution_id", executionID,
		"node_id", node.ID,
		"node_type", node.Type)

	return &models.NodeResult{
		NodeExecutionID: nodeExecution.ID,
		NodeID:          node.ID,
		Status:          models.NodeExecutionStatusCompleted,
		Output:          output,
	}, nil
}

// ResumeNode re-runs a node against an existing node execution record that
// was reset to pending. The record keeps its identity and retry count; only
// its status, timestamps and outcome change.
func (e *Executor) ResumeNode(ctx context.Context, nodeExecution *models.NodeExecution, node *models.WorkflowNode) (*models.NodeResult, error) {
	ctx, span := otelhelper.StartNodeSpan(ctx, node.Type, node.ID)
	defer span.End()

	err := e.tracker.MarkNodeRunning(ctx, nodeExecution)
	if err != nil {
		return nil, fmt.Errorf("failed to mark node running: %w", err)
	}

	logs := &trackerLogSink{ctx: ctx, tracker: e.tracker, nodeExecutionID: nodeExecution.ID}

	output, execErr := e.runHandler(ctx, node, nodeExecution.InputData, logs)
	if execErr != nil {
		otelhelper.RecordError(span, execErr)

		err := e.tracker.FailNode(ctx, nodeExecution, execErr.Error())
		if err != nil {
			return nil, fmt.Errorf("failed to record node failure: %w", err)
		}

		return &models.NodeResult{
			NodeExecutionID: nodeExecution.ID,
			NodeID:          node.ID,
			Status:          models.NodeExecutionStatusFailed,
			Output:          map[string]any{},
			Error:           execErr.Error(),
		}, nil
	}

	if output == nil {
		output = map[string]any{}
	}

	err = e.tracker.CompleteNode(ctx, nodeExecution, output)
	if err != nil {
		return nil, fmt.Errorf("failed to record node completion: %w", err)
	}

	return &models.NodeResult{
		NodeExecutionID: nodeExecution.ID,
		NodeID:          node.ID,
		Status:          models.NodeExecutionStatusCompleted,
		Output:          output,
	}, nil
}

func (e *Executor) runHandler(ctx context.Context, node *models.WorkflowNode, input map[string]any, logs *trackerLogSink) (map[string]any, error) {
	err := validateInput(node, input)
	if err != nil {
		return nil, err
	}

	handler, err := e.registry.CreateHandler(ctx, node.Type, node.ID, node.Config)
	if err != nil {
		return nil, err
	}

	return handler.Execute(ctx, input, logs)
}

// validateInput checks the node's input against its declared input schema.
// Nodes without a schema accept anything.
func validateInput(node *models.WorkflowNode, input map[string]any) error {
	if len(node.InputSchema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(node.InputSchema),
		gojsonschema.NewGoLoader(input),
	)
	if err != nil {
		return fmt.Errorf("input schema validation failed: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("input does not match schema: %s", strings.Join(details, "; "))
}
