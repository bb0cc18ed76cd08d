// Package tracker records and mutates workflow and node execution state. It
// is the only component that writes execution records; every transition is
// persisted immediately so status endpoints observe live progress.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/persistence"
)

var (
	// ErrNotCancellable indicates a cancel request against a terminal execution.
	ErrNotCancellable = errors.New("execution is not running")

	// ErrNotRetryable indicates a retry request against a record that is not failed.
	ErrNotRetryable = errors.New("only failed records can be retried")
)

// versionRetries bounds the load-mutate-update loop under optimistic locking.
const versionRetries = 3

type Tracker struct {
	executions persistence.ExecutionRepository
	logger     *slog.Logger
}

func NewTracker(executions persistence.ExecutionRepository, logger *slog.Logger) *Tracker {
	return &Tracker{
		executions: executions,
		logger:     logger.With("module", "tracker"),
	}
}

// StartExecution creates a WorkflowExecution in the running state.
func (t *Tracker) StartExecution(
	ctx context.Context,
	workflowID, userID string,
	input map[string]any,
	triggerSource models.TriggerSource,
	executionContext map[string]any,
) (*models.WorkflowExecution, error) {
	if input == nil {
		input = map[string]any{}
	}

	execution := &models.WorkflowExecution{
		ID:            uuid.New().String(),
		WorkflowID:    workflowID,
		UserID:        userID,
		Status:        models.ExecutionStatusRunning,
		InputData:     input,
		OutputData:    map[string]any{},
		TriggerSource: triggerSource,
		Context:       executionContext,
		StartedAt:     time.Now().UTC(),
	}

	err := t.executions.CreateExecution(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	return execution, nil
}

// CreatePendingExecution records an accepted run submission before a worker
// picks it up. The API layer uses this so submitters get an execution id at
// submission time.
func (t *Tracker) CreatePendingExecution(
	ctx context.Context,
	workflowID, userID string,
	input map[string]any,
	triggerSource models.TriggerSource,
	executionContext map[string]any,
) (*models.WorkflowExecution, error) {
	if input == nil {
		input = map[string]any{}
	}

	execution := &models.WorkflowExecution{
		ID:            uuid.New().String(),
		WorkflowID:    workflowID,
		UserID:        userID,
		Status:        models.ExecutionStatusPending,
		InputData:     input,
		OutputData:    map[string]any{},
		TriggerSource: triggerSource,
		Context:       executionContext,
		StartedAt:     time.Now().UTC(),
	}

	err := t.executions.CreateExecution(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	return execution, nil
}

// ActivateExecution moves a pending execution to running when a worker picks
// it up, resetting StartedAt so durations measure actual run time rather than
// queue time.
func (t *Tracker) ActivateExecution(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return t.updateExecution(ctx, executionID, func(execution *models.WorkflowExecution) error {
		if execution.Status != models.ExecutionStatusPending {
			return fmt.Errorf("execution %s is %s, not pending", execution.ID, execution.Status)
		}

		execution.Status = models.ExecutionStatusRunning
		execution.StartedAt = time.Now().UTC()

		return nil
	})
}

// updateExecution runs a load-mutate-update cycle, retrying on version
// conflicts so concurrent writers to the same execution serialize instead of
// losing updates.
func (t *Tracker) updateExecution(ctx context.Context, executionID string, mutate func(*models.WorkflowExecution) error) (*models.WorkflowExecution, error) {
	var lastErr error

	for attempt := 0; attempt < versionRetries; attempt++ {
		execution, err := t.executions.ExecutionByID(ctx, executionID)
		if err != nil {
			return nil, err
		}

		err = mutate(execution)
		if err != nil {
			return nil, err
		}

		err = t.executions.UpdateExecution(ctx, execution)
		if err == nil {
			return execution, nil
		}

		if !persistence.IsVersionConflict(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("gave up after %d version conflicts: %w", versionRetries, lastErr)
}

// CompleteExecution marks an execution completed with its accumulated output.
func (t *Tracker) CompleteExecution(ctx context.Context, executionID string, output map[string]any) (*models.WorkflowExecution, error) {
	return t.updateExecution(ctx, executionID, func(execution *models.WorkflowExecution) error {
		now := time.Now().UTC()
		execution.Status = models.ExecutionStatusCompleted
		execution.OutputData = output
		execution.CompletedAt = &now

		return nil
	})
}

// FailExecution marks an execution failed with a human-readable message.
func (t *Tracker) FailExecution(ctx context.Context, executionID, errorMessage string) (*models.WorkflowExecution, error) {
	return t.updateExecution(ctx, executionID, func(execution *models.WorkflowExecution) error {
		now := time.Now().UTC()
		execution.Status = models.ExecutionStatusFailed
		execution.ErrorMessage = errorMessage
		execution.CompletedAt = &now

		return nil
	})
}

// CancelExecution transitions a pending or running execution to cancelled and
// cascades to its running node executions. In-flight handler I/O is not
// interrupted; the orchestrator notices the cancelled status between nodes.
func (t *Tracker) CancelExecution(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	execution, err := t.updateExecution(ctx, executionID, func(execution *models.WorkflowExecution) error {
		if execution.Status != models.ExecutionStatusRunning && execution.Status != models.ExecutionStatusPending {
			return ErrNotCancellable
		}

		now := time.Now().UTC()
		execution.Status = models.ExecutionStatusCancelled
		execution.CompletedAt = &now

		return nil
	})
	if err != nil {
		return nil, err
	}

	t.cascadeNodeStatus(ctx, executionID, models.NodeExecutionStatusCancelled, "Execution cancelled")

	return execution, nil
}

// TimeoutExecution marks a running execution as timed out and cascades to its
// running node executions. A no-op for executions that already reached a
// terminal state, which makes the timeout sweep idempotent.
func (t *Tracker) TimeoutExecution(ctx context.Context, executionID, errorMessage string) (*models.WorkflowExecution, error) {
	execution, err := t.updateExecution(ctx, executionID, func(execution *models.WorkflowExecution) error {
		if execution.Status != models.ExecutionStatusRunning {
			return ErrNotCancellable
		}

		now := time.Now().UTC()
		execution.Status = models.ExecutionStatusTimeout
		execution.ErrorMessage = errorMessage
		execution.CompletedAt = &now

		return nil
	})
	if err != nil {
		return nil, err
	}

	t.cascadeNodeStatus(ctx, executionID, models.NodeExecutionStatusTimeout, "Node execution timed out")

	return execution, nil
}

// cascadeNodeStatus moves all still-running node executions of an execution
// to the given terminal status. Per-node failures are logged, not escalated.
func (t *Tracker) cascadeNodeStatus(ctx context.Context, executionID string, status models.NodeExecutionStatus, message string) {
	nodeExecutions, err := t.executions.NodeExecutionsByExecutionID(ctx, executionID)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to list node executions for cascade",
			"execution_id", executionID, "error", err)

		return
	}

	for _, nodeExecution := range nodeExecutions {
		if nodeExecution.Status != models.NodeExecutionStatusRunning {
			continue
		}

		now := time.Now().UTC()
		nodeExecution.Status = status
		nodeExecution.ErrorMessage = message
		nodeExecution.CompletedAt = &now

		err := t.executions.UpdateNodeExecution(ctx, nodeExecution)
		if err != nil {
			t.logger.ErrorContext(ctx, "Failed to cascade node status",
				"node_execution_id", nodeExecution.ID, "error", err)
		}
	}
}

// BeginNode creates a NodeExecution in the running state. The record is the
// unit of observability and retry for a single node run.
func (t *Tracker) BeginNode(ctx context.Context, executionID string, node *models.WorkflowNode, input map[string]any) (*models.NodeExecution, error) {
	if input == nil {
		input = map[string]any{}
	}

	now := time.Now().UTC()
	nodeExecution := &models.NodeExecution{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		NodeID:      node.ID,
		NodeName:    node.Name,
		NodeType:    node.Type,
		Status:      models.NodeExecutionStatusRunning,
		InputData:   input,
		OutputData:  map[string]any{},
		Logs:        []models.ExecutionLog{},
		StartedAt:   &now,
	}

	err := t.executions.CreateNodeExecution(ctx, nodeExecution)
	if err != nil {
		return nil, fmt.Errorf("failed to create node execution: %w", err)
	}

	return nodeExecution, nil
}

// CompleteNode marks a node execution completed with its output.
func (t *Tracker) CompleteNode(ctx context.Context, nodeExecution *models.NodeExecution, output map[string]any) error {
	now := time.Now().UTC()
	nodeExecution.Status = models.NodeExecutionStatusCompleted
	nodeExecution.OutputData = output
	nodeExecution.CompletedAt = &now

	return t.executions.UpdateNodeExecution(ctx, nodeExecution)
}

// FailNode marks a node execution failed with the handler's error message.
func (t *Tracker) FailNode(ctx context.Context, nodeExecution *models.NodeExecution, errorMessage string) error {
	now := time.Now().UTC()
	nodeExecution.Status = models.NodeExecutionStatusFailed
	nodeExecution.ErrorMessage = errorMessage
	nodeExecution.CompletedAt = &now

	return t.executions.UpdateNodeExecution(ctx, nodeExecution)
}

// SkipNode records a node execution that was never run because branch
// selection excluded it.
func (t *Tracker) SkipNode(ctx context.Context, executionID string, node *models.WorkflowNode, reason string) (*models.NodeExecution, error) {
	now := time.Now().UTC()
	nodeExecution := &models.NodeExecution{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		NodeID:      node.ID,
		NodeName:    node.Name,
		NodeType:    node.Type,
		Status:      models.NodeExecutionStatusSkipped,
		InputData:   map[string]any{},
		OutputData:  map[string]any{},
		Logs: []models.ExecutionLog{{
			Timestamp: now,
			Level:     "info",
			Message:   reason,
		}},
		CompletedAt: &now,
	}

	err := t.executions.CreateNodeExecution(ctx, nodeExecution)
	if err != nil {
		return nil, fmt.Errorf("failed to create skipped node execution: %w", err)
	}

	return nodeExecution, nil
}

// AppendNodeLog appends one entry to a node execution's log sequence.
func (t *Tracker) AppendNodeLog(ctx context.Context, nodeExecutionID, level, message string, data map[string]any) {
	entry := models.ExecutionLog{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Data:      data,
	}

	err := t.executions.AppendNodeLog(ctx, nodeExecutionID, entry)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to append node log",
			"node_execution_id", nodeExecutionID, "error", err)
	}
}

// RetryNode resets a failed node execution to pending for resubmission. This
// is the one allowed terminal-to-pending transition: timestamps, output and
// error are cleared and the retry counter is incremented. The caller is
// responsible for resubmitting the node with its original input data.
func (t *Tracker) RetryNode(ctx context.Context, nodeExecutionID string) (*models.NodeExecution, error) {
	nodeExecution, err := t.executions.NodeExecutionByID(ctx, nodeExecutionID)
	if err != nil {
		return nil, err
	}

	if nodeExecution.Status != models.NodeExecutionStatusFailed {
		return nil, ErrNotRetryable
	}

	nodeExecution.Status = models.NodeExecutionStatusPending
	nodeExecution.StartedAt = nil
	nodeExecution.CompletedAt = nil
	nodeExecution.OutputData = map[string]any{}
	nodeExecution.ErrorMessage = ""
	nodeExecution.RetryCount++

	err = t.executions.UpdateNodeExecution(ctx, nodeExecution)
	if err != nil {
		return nil, err
	}

	return nodeExecution, nil
}

// MarkNodeRunning transitions a pending node execution back to running. Used
// when a retried node is picked up for resubmission.
func (t *Tracker) MarkNodeRunning(ctx context.Context, nodeExecution *models.NodeExecution) error {
	now := time.Now().UTC()
	nodeExecution.Status = models.NodeExecutionStatusRunning
	nodeExecution.StartedAt = &now

	return t.executions.UpdateNodeExecution(ctx, nodeExecution)
}

// NodeExecutionByID loads one node execution record.
func (t *Tracker) NodeExecutionByID(ctx context.Context, nodeExecutionID string) (*models.NodeExecution, error) {
	return t.executions.NodeExecutionByID(ctx, nodeExecutionID)
}

// ExecutionByID loads one execution record.
func (t *Tracker) ExecutionByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return t.executions.ExecutionByID(ctx, executionID)
}

// NodeExecutions loads the node records of an execution in start order.
func (t *Tracker) NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	return t.executions.NodeExecutionsByExecutionID(ctx, executionID)
}
