package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orchestrix/orchestrix/pkg/eventbus"
	"github.com/orchestrix/orchestrix/pkg/events"
	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/nodes/condition"
	"github.com/orchestrix/orchestrix/pkg/otelhelper"
	"github.com/orchestrix/orchestrix/pkg/persistence"
	"github.com/orchestrix/orchestrix/pkg/tracker"
)

// ParallelNodeType is handled by the orchestrator itself, not the registry:
// its children run concurrently and their outputs are joined into the node
// output keyed by child node id.
const ParallelNodeType = "parallel"

// ErrWorkflowInactive indicates a run request against a workflow that is not
// active. The execution is rejected before any record is created.
var ErrWorkflowInactive = errors.New("workflow is not active")

// errRunCancelled unwinds the node loop when a cancel was requested. It never
// leaves Run.
var errRunCancelled = errors.New("run cancelled")

// RunRequest describes one workflow run submission. ExecutionID is set when
// the submitter already created a pending execution record; the run then
// activates that record instead of creating a fresh one.
type RunRequest struct {
	WorkflowID    string
	ExecutionID   string
	UserID        string
	Input         map[string]any
	TriggerSource models.TriggerSource
	Initiator     string
}

// Orchestrator walks a workflow's node graph and drives it to a terminal
// state. Nodes run sequentially in (position_x, position_y) order; a node
// failure halts the run and fails the execution.
type Orchestrator struct {
	workflows persistence.WorkflowRepository
	tracker   *tracker.Tracker
	executor  *Executor
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	workerID  string
}

func NewOrchestrator(
	workflows persistence.WorkflowRepository,
	trk *tracker.Tracker,
	executor *Executor,
	publisher eventbus.EventPublisher,
	workerID string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		workflows: workflows,
		tracker:   trk,
		executor:  executor,
		publisher: publisher,
		logger:    logger.With("module", "orchestrator", "worker_id", workerID),
		workerID:  workerID,
	}
}

// runState carries the per-run mutable state. The data context is copied for
// every node invocation so handlers never share mutable maps.
type runState struct {
	workflow  *models.Workflow
	execution *models.WorkflowExecution
	data      map[string]any
	results   map[string]any
}

// Run executes a workflow from its root nodes and always leaves the execution
// in a terminal state, except when no execution record could be created at
// all. The returned execution reflects the final state.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*models.WorkflowExecution, error) {
	wf, err := o.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if !wf.Runnable() {
		if req.ExecutionID != "" {
			_, failErr := o.tracker.FailExecution(ctx, req.ExecutionID,
				fmt.Sprintf("workflow %s is not active", wf.ID))
			if failErr != nil {
				o.logger.ErrorContext(ctx, "Failed to fail execution for inactive workflow",
					"execution_id", req.ExecutionID, "error", failErr)
			}
		}

		return nil, fmt.Errorf("workflow %s: %w", wf.ID, ErrWorkflowInactive)
	}

	userID := req.UserID
	if userID == "" {
		userID = wf.OwnerID
	}

	var execution *models.WorkflowExecution

	if req.ExecutionID != "" {
		execution, err = o.tracker.ActivateExecution(ctx, req.ExecutionID)
	} else {
		executionContext := map[string]any{
			"task_id":    uuid.New().String(),
			"started_by": req.Initiator,
		}

		execution, err = o.tracker.StartExecution(ctx, wf.ID, userID, req.Input, req.TriggerSource, executionContext)
	}

	if err != nil {
		return nil, err
	}

	ctx, span := otelhelper.StartExecutionSpan(ctx, wf.ID, execution.ID)
	defer span.End()

	o.logger.InfoContext(ctx, "Execution started",
		"workflow_id", wf.ID,
		"execution_id", execution.ID,
		"trigger_source", req.TriggerSource)

	state := &runState{
		workflow:  wf,
		execution: execution,
		data:      copyMap(execution.InputData),
		results:   map[string]any{},
	}

	failed, err := o.runNodes(ctx, state, wf.RootNodes())

	switch {
	case errors.Is(err, errRunCancelled):
		// Terminal state already written by the cancel request.
		o.logger.InfoContext(ctx, "Execution cancelled", "execution_id", execution.ID)

		return o.tracker.ExecutionByID(ctx, execution.ID)

	case err != nil:
		otelhelper.RecordError(span, err)

		message := fmt.Sprintf("internal error: %v", err)

		final, failErr := o.tracker.FailExecution(ctx, execution.ID, message)
		if failErr != nil {
			return nil, errors.Join(err, failErr)
		}

		o.publishFailed(ctx, final, message)

		return final, err

	case failed != nil:
		node := wf.NodeByID(failed.NodeID)

		message := fmt.Sprintf("Node %s failed: %s", node.Name, failed.Error)

		final, failErr := o.tracker.FailExecution(ctx, execution.ID, message)
		if failErr != nil {
			return nil, failErr
		}

		o.logger.WarnContext(ctx, "Execution failed",
			"execution_id", execution.ID, "node_id", failed.NodeID, "error", failed.Error)
		o.publishFailed(ctx, final, message)

		return final, nil
	}

	final, err := o.tracker.CompleteExecution(ctx, execution.ID, state.results)
	if err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "Execution completed", "execution_id", execution.ID)
	o.publishCompleted(ctx, final)

	return final, nil
}

// runNodes executes a sibling group in stable order and descends into each
// node's children. A non-nil NodeResult reports the first failed node; a
// non-nil error reports an infrastructure fault.
func (o *Orchestrator) runNodes(ctx context.Context, state *runState, nodes []*models.WorkflowNode) (*models.NodeResult, error) {
	for _, node := range nodes {
		err := o.checkCancelled(ctx, state)
		if err != nil {
			return nil, err
		}

		var result *models.NodeResult

		if node.Type == ParallelNodeType {
			result, err = o.runParallel(ctx, state, node)
		} else {
			result, err = o.executor.ExecuteNode(ctx, state.execution.ID, node, copyMap(state.data))
		}

		if err != nil {
			return nil, err
		}

		if result.Status == models.NodeExecutionStatusFailed {
			return result, nil
		}

		state.results[node.ID] = result.Output
		mergeMap(state.data, result.Output)

		children := state.workflow.ChildNodes(node.ID)
		if len(children) == 0 {
			continue
		}

		if node.Type == ParallelNodeType {
			// Children already ran during the fan-out; descend into
			// each child's own children.
			for _, child := range children {
				failed, err := o.runNodes(ctx, state, state.workflow.ChildNodes(child.ID))
				if failed != nil || err != nil {
					return failed, err
				}
			}

			continue
		}

		if node.Type == "condition" {
			failed, err := o.runBranches(ctx, state, node, result, children)
			if failed != nil || err != nil {
				return failed, err
			}

			continue
		}

		failed, err := o.runNodes(ctx, state, children)
		if failed != nil || err != nil {
			return failed, err
		}
	}

	return nil, nil
}

// runBranches routes a condition node's children. Children on the selected
// path run first in stable order, children on the rejected path are recorded
// as skipped, and children named by neither path run unconditionally.
func (o *Orchestrator) runBranches(ctx context.Context, state *runState, node *models.WorkflowNode, result *models.NodeResult, children []*models.WorkflowNode) (*models.NodeResult, error) {
	conditionResult, _ := result.Output["condition_result"].(bool)

	selected := make(map[string]bool)
	for _, id := range condition.SelectedPath(node.Config, conditionResult) {
		selected[id] = true
	}

	declared := condition.DeclaredPaths(node.Config)

	var selectedChildren, unconditional []*models.WorkflowNode

	for _, child := range children {
		switch {
		case selected[child.ID]:
			selectedChildren = append(selectedChildren, child)
		case declared[child.ID]:
			reason := fmt.Sprintf("Skipped: condition %q selected the other branch", node.Name)

			_, err := o.tracker.SkipNode(ctx, state.execution.ID, child, reason)
			if err != nil {
				return nil, err
			}
		default:
			unconditional = append(unconditional, child)
		}
	}

	failed, err := o.runNodes(ctx, state, selectedChildren)
	if failed != nil || err != nil {
		return failed, err
	}

	return o.runNodes(ctx, state, unconditional)
}

// runParallel runs all children of a parallel node concurrently against
// copies of the current data context, joins on completion and merges the
// child outputs keyed by child node id. Any child failure fails the node.
func (o *Orchestrator) runParallel(ctx context.Context, state *runState, node *models.WorkflowNode) (*models.NodeResult, error) {
	nodeExecution, err := o.tracker.BeginNode(ctx, state.execution.ID, node, copyMap(state.data))
	if err != nil {
		return nil, err
	}

	children := state.workflow.ChildNodes(node.ID)

	childResults := make([]*models.NodeResult, len(children))
	childErrs := make([]error, len(children))

	var wg sync.WaitGroup

	for i, child := range children {
		wg.Add(1)

		go func(i int, child *models.WorkflowNode) {
			defer wg.Done()

			childResults[i], childErrs[i] = o.executor.ExecuteNode(ctx, state.execution.ID, child, copyMap(state.data))
		}(i, child)
	}

	wg.Wait()

	for _, err := range childErrs {
		if err != nil {
			failErr := o.tracker.FailNode(ctx, nodeExecution, err.Error())
			if failErr != nil {
				return nil, errors.Join(err, failErr)
			}

			return nil, err
		}
	}

	output := map[string]any{}

	for i, child := range children {
		result := childResults[i]

		if result.Status == models.NodeExecutionStatusFailed {
			message := fmt.Sprintf("child node %s failed: %s", child.Name, result.Error)

			err := o.tracker.FailNode(ctx, nodeExecution, message)
			if err != nil {
				return nil, err
			}

			return &models.NodeResult{
				NodeExecutionID: nodeExecution.ID,
				NodeID:          node.ID,
				Status:          models.NodeExecutionStatusFailed,
				Output:          map[string]any{},
				Error:           message,
			}, nil
		}

		state.results[child.ID] = result.Output
		output[child.ID] = result.Output
		mergeMap(state.data, result.Output)
	}

	err = o.tracker.CompleteNode(ctx, nodeExecution, output)
	if err != nil {
		return nil, err
	}

	return &models.NodeResult{
		NodeExecutionID: nodeExecution.ID,
		NodeID:          node.ID,
		Status:          models.NodeExecutionStatusCompleted,
		Output:          output,
	}, nil
}

// checkCancelled honors both context cancellation and an externally requested
// cancel, observed between nodes so in-flight handler I/O is never preempted.
func (o *Orchestrator) checkCancelled(ctx context.Context, state *runState) error {
	if ctx.Err() != nil {
		_, err := o.tracker.CancelExecution(context.WithoutCancel(ctx), state.execution.ID)
		if err != nil && !errors.Is(err, tracker.ErrNotCancellable) {
			o.logger.Error("Failed to cancel execution on context cancellation",
				"execution_id", state.execution.ID, "error", err)
		}

		return errRunCancelled
	}

	current, err := o.tracker.ExecutionByID(ctx, state.execution.ID)
	if err != nil {
		return err
	}

	if current.Status == models.ExecutionStatusCancelled {
		return errRunCancelled
	}

	return nil
}

// Cancel requests cooperative cancellation of a pending or running execution.
func (o *Orchestrator) Cancel(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return o.tracker.CancelExecution(ctx, executionID)
}

// RetryNode resubmits a failed node execution: the record is reset to pending
// and re-run with its original input. The parent execution's status is left
// unchanged; a full re-run goes through a retried execution instead.
func (o *Orchestrator) RetryNode(ctx context.Context, nodeExecutionID string) (*models.NodeResult, error) {
	nodeExecution, err := o.tracker.NodeExecutionByID(ctx, nodeExecutionID)
	if err != nil {
		return nil, err
	}

	if nodeExecution.Status == models.NodeExecutionStatusFailed {
		nodeExecution, err = o.tracker.RetryNode(ctx, nodeExecutionID)
		if err != nil {
			return nil, err
		}
	} else if nodeExecution.Status != models.NodeExecutionStatusPending {
		return nil, tracker.ErrNotRetryable
	}

	execution, err := o.tracker.ExecutionByID(ctx, nodeExecution.ExecutionID)
	if err != nil {
		return nil, err
	}

	wf, err := o.workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, err
	}

	node := wf.NodeByID(nodeExecution.NodeID)
	if node == nil {
		return nil, fmt.Errorf("node %s no longer exists in workflow %s", nodeExecution.NodeID, wf.ID)
	}

	return o.executor.ResumeNode(ctx, nodeExecution, node)
}

func (o *Orchestrator) publishCompleted(ctx context.Context, execution *models.WorkflowExecution) {
	if o.publisher == nil {
		return
	}

	event := events.ExecutionCompleted{
		BaseEvent: o.baseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),

		ExecutionID: execution.ID,
		UserID:      execution.UserID,
		Result:      execution.OutputData,
		Duration:    execution.Duration(time.Now().UTC()),
	}

	err := o.publisher.Publish(ctx, execution.WorkflowID, event)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to publish completion event",
			"execution_id", execution.ID, "error", err)
	}
}

func (o *Orchestrator) publishFailed(ctx context.Context, execution *models.WorkflowExecution, message string) {
	if o.publisher == nil {
		return
	}

	event := events.ExecutionFailed{
		BaseEvent: o.baseEvent(events.ExecutionFailedEvent, execution.WorkflowID),

		ExecutionID: execution.ID,
		UserID:      execution.UserID,
		Error:       message,
		Duration:    execution.Duration(time.Now().UTC()),
	}

	err := o.publisher.Publish(ctx, execution.WorkflowID, event)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to publish failure event",
			"execution_id", execution.ID, "error", err)
	}
}

func (o *Orchestrator) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		WorkerID:   o.workerID,
	}
}

// copyMap returns a shallow copy. Node outputs are treated as immutable once
// recorded, so a shallow copy is enough to keep siblings isolated.
func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}

	return dst
}

// mergeMap merges src into dst with last-writer-wins semantics.
func mergeMap(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
