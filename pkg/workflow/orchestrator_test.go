package workflow_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrix/orchestrix/pkg/eventbus"
	"github.com/orchestrix/orchestrix/pkg/events"
	"github.com/orchestrix/orchestrix/pkg/expression"
	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/persistence/memory"
	"github.com/orchestrix/orchestrix/pkg/registry"
	"github.com/orchestrix/orchestrix/pkg/tracker"
	"github.com/orchestrix/orchestrix/pkg/workflow"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) captured() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

type recordingMailer struct{}

func (recordingMailer) Send(_ context.Context, _, _, _ string) error { return nil }

type testHarness struct {
	store        *memory.Persistence
	tracker      *tracker.Tracker
	orchestrator *workflow.Orchestrator
	publisher    *capturingPublisher
}

func setupOrchestrator(t *testing.T, wf *models.Workflow) *testHarness {
	t.Helper()

	logger := slog.Default()

	store := memory.NewPersistence()
	store.SeedWorkflow(wf)

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(expression.NewEvaluator(logger), recordingMailer{})

	trk := tracker.NewTracker(store.ExecutionRepository(), logger)
	executor := workflow.NewExecutor(reg, trk, logger)
	publisher := &capturingPublisher{}

	return &testHarness{
		store:        store,
		tracker:      trk,
		orchestrator: workflow.NewOrchestrator(store.WorkflowRepository(), trk, executor, publisher, "worker-test", logger),
		publisher:    publisher,
	}
}

func activeWorkflow(nodes ...*models.WorkflowNode) *models.Workflow {
	return &models.Workflow{
		ID:       "wf-1",
		OwnerID:  "owner-1",
		Name:     "test workflow",
		Status:   models.WorkflowStatusActive,
		IsActive: true,
		Nodes:    nodes,
	}
}

func triggerNode(id string, parent *string, x float64) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:           id,
		ParentNodeID: parent,
		Type:         "trigger",
		Name:         "node " + id,
		Config:       map[string]any{},
		PositionX:    x,
	}
}

func strPtr(s string) *string { return &s }

func TestRunLinearWorkflow(t *testing.T) {
	ctx := context.Background()

	wf := activeWorkflow(
		triggerNode("n1", nil, 0),
		triggerNode("n2", strPtr("n1"), 100),
	)
	h := setupOrchestrator(t, wf)

	execution, err := h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		UserID:        "user-1",
		Input:         map[string]any{"amount": 42},
		TriggerSource: models.TriggerSourceManual,
		Initiator:     "tester",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.NotNil(t, execution.CompletedAt)
	assert.Contains(t, execution.OutputData, "n1")
	assert.Contains(t, execution.OutputData, "n2")

	nodeExecutions, err := h.tracker.NodeExecutions(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, nodeExecutions, 2)

	for _, nodeExecution := range nodeExecutions {
		assert.Equal(t, models.NodeExecutionStatusCompleted, nodeExecution.Status)
	}

	captured := h.publisher.captured()
	require.Len(t, captured, 1)
	completed, ok := captured[0].(events.ExecutionCompleted)
	require.True(t, ok)
	assert.Equal(t, execution.ID, completed.ExecutionID)
	assert.Equal(t, "worker-test", completed.WorkerID)
}

func TestRunHaltsOnNodeFailure(t *testing.T) {
	ctx := context.Background()

	// DELETE is outside the supported method set, so the node fails without
	// touching the network.
	failing := &models.WorkflowNode{
		ID:           "n2",
		ParentNodeID: strPtr("n1"),
		Type:         "api_call",
		Name:         "flaky call",
		Config:       map[string]any{"url": "http://localhost/unused", "method": "DELETE"},
		PositionX:    100,
	}

	wf := activeWorkflow(
		triggerNode("n1", nil, 0),
		failing,
		triggerNode("n3", strPtr("n2"), 200),
	)
	h := setupOrchestrator(t, wf)

	execution, err := h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		UserID:        "user-1",
		TriggerSource: models.TriggerSourceManual,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "Node flaky call failed:")
	assert.Contains(t, execution.ErrorMessage, "unsupported HTTP method")

	// The downstream node never ran.
	nodeExecutions, err := h.tracker.NodeExecutions(ctx, execution.ID)
	require.NoError(t, err)
	assert.Len(t, nodeExecutions, 2)

	captured := h.publisher.captured()
	require.Len(t, captured, 1)
	failedEvent, ok := captured[0].(events.ExecutionFailed)
	require.True(t, ok)
	assert.Equal(t, execution.ErrorMessage, failedEvent.Error)
}

func TestRunConditionBranching(t *testing.T) {
	ctx := context.Background()

	conditionNode := &models.WorkflowNode{
		ID:   "cond",
		Type: "condition",
		Name: "amount gate",
		Config: map[string]any{
			"condition":  "amount > 100",
			"true_path":  []any{"b"},
			"false_path": []any{"c"},
		},
	}

	wf := activeWorkflow(
		conditionNode,
		triggerNode("b", strPtr("cond"), 0),
		triggerNode("c", strPtr("cond"), 100),
		triggerNode("d", strPtr("cond"), 200),
	)
	h := setupOrchestrator(t, wf)

	execution, err := h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		UserID:        "user-1",
		Input:         map[string]any{"amount": 150},
		TriggerSource: models.TriggerSourceAPI,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	nodeExecutions, err := h.tracker.NodeExecutions(ctx, execution.ID)
	require.NoError(t, err)

	statusByNode := make(map[string]models.NodeExecutionStatus)
	for _, nodeExecution := range nodeExecutions {
		statusByNode[nodeExecution.NodeID] = nodeExecution.Status
	}

	assert.Equal(t, models.NodeExecutionStatusCompleted, statusByNode["cond"])
	assert.Equal(t, models.NodeExecutionStatusCompleted, statusByNode["b"])
	assert.Equal(t, models.NodeExecutionStatusSkipped, statusByNode["c"])
	// Children named by neither path run unconditionally.
	assert.Equal(t, models.NodeExecutionStatusCompleted, statusByNode["d"])
}

func TestRunConditionFalseBranch(t *testing.T) {
	ctx := context.Background()

	conditionNode := &models.WorkflowNode{
		ID:   "cond",
		Type: "condition",
		Name: "amount gate",
		Config: map[string]any{
			"condition":  "amount > 100",
			"true_path":  []any{"b"},
			"false_path": []any{"c"},
		},
	}

	wf := activeWorkflow(
		conditionNode,
		triggerNode("b", strPtr("cond"), 0),
		triggerNode("c", strPtr("cond"), 100),
	)
	h := setupOrchestrator(t, wf)

	execution, err := h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		UserID:        "user-1",
		Input:         map[string]any{"amount": 50},
		TriggerSource: models.TriggerSourceAPI,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	nodeExecutions, err := h.tracker.NodeExecutions(ctx, execution.ID)
	require.NoError(t, err)

	statusByNode := make(map[string]models.NodeExecutionStatus)
	for _, nodeExecution := range nodeExecutions {
		statusByNode[nodeExecution.NodeID] = nodeExecution.Status
	}

	assert.Equal(t, models.NodeExecutionStatusSkipped, statusByNode["b"])
	assert.Equal(t, models.NodeExecutionStatusCompleted, statusByNode["c"])
}

func TestRunParallelFanOut(t *testing.T) {
	ctx := context.Background()

	parallel := &models.WorkflowNode{
		ID:     "par",
		Type:   workflow.ParallelNodeType,
		Name:   "fan out",
		Config: map[string]any{},
	}

	wf := activeWorkflow(
		parallel,
		triggerNode("p1", strPtr("par"), 0),
		triggerNode("p2", strPtr("par"), 100),
		triggerNode("after", strPtr("p1"), 0),
	)
	h := setupOrchestrator(t, wf)

	execution, err := h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		UserID:        "user-1",
		TriggerSource: models.TriggerSourceManual,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	// The parallel node's output joins child outputs keyed by child id.
	parOutput, ok := execution.OutputData["par"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, parOutput, "p1")
	assert.Contains(t, parOutput, "p2")

	// Children of fanned-out nodes run after the join.
	assert.Contains(t, execution.OutputData, "after")

	nodeExecutions, err := h.tracker.NodeExecutions(ctx, execution.ID)
	require.NoError(t, err)
	assert.Len(t, nodeExecutions, 4)
}

func TestRunParallelChildFailureFailsNode(t *testing.T) {
	ctx := context.Background()

	parallel := &models.WorkflowNode{
		ID:     "par",
		Type:   workflow.ParallelNodeType,
		Name:   "fan out",
		Config: map[string]any{},
	}
	failing := &models.WorkflowNode{
		ID:           "p2",
		ParentNodeID: strPtr("par"),
		Type:         "api_call",
		Name:         "bad child",
		Config:       map[string]any{"url": "http://localhost/unused", "method": "PATCH"},
		PositionX:    100,
	}

	wf := activeWorkflow(parallel, triggerNode("p1", strPtr("par"), 0), failing)
	h := setupOrchestrator(t, wf)

	execution, err := h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		UserID:        "user-1",
		TriggerSource: models.TriggerSourceManual,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "child node bad child failed:")
}

func TestRunRejectsInactiveWorkflow(t *testing.T) {
	ctx := context.Background()

	wf := activeWorkflow(triggerNode("n1", nil, 0))
	wf.IsActive = false
	h := setupOrchestrator(t, wf)

	_, err := h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		TriggerSource: models.TriggerSourceManual,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrWorkflowInactive)
}

func TestRunFailsPreCreatedExecutionWhenInactive(t *testing.T) {
	ctx := context.Background()

	wf := activeWorkflow(triggerNode("n1", nil, 0))
	wf.Status = models.WorkflowStatusPaused
	h := setupOrchestrator(t, wf)

	pending, err := h.tracker.CreatePendingExecution(ctx, "wf-1", "user-1", nil, models.TriggerSourceAPI, nil)
	require.NoError(t, err)

	_, err = h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		ExecutionID:   pending.ID,
		TriggerSource: models.TriggerSourceAPI,
	})
	require.ErrorIs(t, err, workflow.ErrWorkflowInactive)

	stored, err := h.tracker.ExecutionByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "is not active")
}

func TestRunActivatesPendingExecution(t *testing.T) {
	ctx := context.Background()

	wf := activeWorkflow(triggerNode("n1", nil, 0))
	h := setupOrchestrator(t, wf)

	pending, err := h.tracker.CreatePendingExecution(ctx, "wf-1", "user-1",
		map[string]any{"x": 1}, models.TriggerSourceAPI, map[string]any{"task_id": "t-1"})
	require.NoError(t, err)

	execution, err := h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		ExecutionID:   pending.ID,
		UserID:        "user-1",
		TriggerSource: models.TriggerSourceAPI,
	})
	require.NoError(t, err)

	assert.Equal(t, pending.ID, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, models.TriggerSourceAPI, execution.TriggerSource)
}

func TestRunObservesContextCancellation(t *testing.T) {
	wf := activeWorkflow(triggerNode("n1", nil, 0))
	h := setupOrchestrator(t, wf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	execution, err := h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		UserID:        "user-1",
		TriggerSource: models.TriggerSourceManual,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)

	// No node ran.
	nodeExecutions, err := h.tracker.NodeExecutions(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Empty(t, nodeExecutions)
}

func TestRetryNodeResubmitsWithOriginalInput(t *testing.T) {
	ctx := context.Background()

	var calls atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	apiNode := &models.WorkflowNode{
		ID:     "n1",
		Type:   "api_call",
		Name:   "flaky call",
		Config: map[string]any{"url": server.URL},
	}

	wf := activeWorkflow(apiNode)
	h := setupOrchestrator(t, wf)

	execution, err := h.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    "wf-1",
		UserID:        "user-1",
		TriggerSource: models.TriggerSourceManual,
	})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusFailed, execution.Status)

	nodeExecutions, err := h.tracker.NodeExecutions(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, nodeExecutions, 1)
	require.Equal(t, models.NodeExecutionStatusFailed, nodeExecutions[0].Status)

	// Upstream recovered; the retry succeeds against the same record.
	result, err := h.orchestrator.RetryNode(ctx, nodeExecutions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeExecutionStatusCompleted, result.Status)
	assert.Equal(t, nodeExecutions[0].ID, result.NodeExecutionID)

	stored, err := h.tracker.NodeExecutionByID(ctx, nodeExecutions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	// Retrying a completed record is rejected.
	_, err = h.orchestrator.RetryNode(ctx, nodeExecutions[0].ID)
	assert.ErrorIs(t, err, tracker.ErrNotRetryable)
}

func TestCancelRunningExecution(t *testing.T) {
	ctx := context.Background()

	wf := activeWorkflow(triggerNode("n1", nil, 0))
	h := setupOrchestrator(t, wf)

	pending, err := h.tracker.CreatePendingExecution(ctx, "wf-1", "user-1", nil, models.TriggerSourceAPI, nil)
	require.NoError(t, err)

	cancelled, err := h.orchestrator.Cancel(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)

	_, err = h.orchestrator.Cancel(ctx, pending.ID)
	assert.ErrorIs(t, err, tracker.ErrNotCancellable)
}
