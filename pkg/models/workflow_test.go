package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orchestrix/orchestrix/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestSortNodesOrdersByPositionThenID(t *testing.T) {
	nodes := []*models.WorkflowNode{
		{ID: "c", PositionX: 200, PositionY: 0},
		{ID: "b", PositionX: 100, PositionY: 50},
		{ID: "a", PositionX: 100, PositionY: 0},
		{ID: "e", PositionX: 200, PositionY: 0},
	}

	models.SortNodes(nodes)

	got := make([]string, 0, len(nodes))
	for _, node := range nodes {
		got = append(got, node.ID)
	}

	assert.Equal(t, []string{"a", "b", "c", "e"}, got)
}

func TestRootAndChildNodes(t *testing.T) {
	workflow := &models.Workflow{
		Nodes: []*models.WorkflowNode{
			{ID: "root-2", PositionX: 100},
			{ID: "root-1", PositionX: 0},
			{ID: "child-1", ParentNodeID: strPtr("root-1"), PositionX: 0},
			{ID: "child-2", ParentNodeID: strPtr("root-1"), PositionX: 100},
			{ID: "grandchild", ParentNodeID: strPtr("child-1")},
		},
	}

	roots := workflow.RootNodes()
	assert.Len(t, roots, 2)
	assert.Equal(t, "root-1", roots[0].ID)
	assert.Equal(t, "root-2", roots[1].ID)

	children := workflow.ChildNodes("root-1")
	assert.Len(t, children, 2)
	assert.Equal(t, "child-1", children[0].ID)
	assert.Equal(t, "child-2", children[1].ID)

	assert.Empty(t, workflow.ChildNodes("grandchild"))
	assert.Nil(t, workflow.NodeByID("missing"))
	assert.NotNil(t, workflow.NodeByID("child-2"))
}

func TestRunnable(t *testing.T) {
	cases := []struct {
		status   models.WorkflowStatus
		isActive bool
		want     bool
	}{
		{models.WorkflowStatusActive, true, true},
		{models.WorkflowStatusActive, false, false},
		{models.WorkflowStatusPaused, true, false},
		{models.WorkflowStatusDraft, true, false},
		{models.WorkflowStatusArchived, true, false},
	}

	for _, tc := range cases {
		workflow := &models.Workflow{Status: tc.status, IsActive: tc.isActive}
		assert.Equal(t, tc.want, workflow.Runnable(), "status=%s active=%v", tc.status, tc.isActive)
	}
}

func TestExecutionStatusTerminal(t *testing.T) {
	assert.False(t, models.ExecutionStatusPending.Terminal())
	assert.False(t, models.ExecutionStatusRunning.Terminal())
	assert.True(t, models.ExecutionStatusCompleted.Terminal())
	assert.True(t, models.ExecutionStatusFailed.Terminal())
	assert.True(t, models.ExecutionStatusCancelled.Terminal())
	assert.True(t, models.ExecutionStatusTimeout.Terminal())

	assert.False(t, models.NodeExecutionStatusRunning.Terminal())
	assert.True(t, models.NodeExecutionStatusSkipped.Terminal())
}

func TestExecutionDuration(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)

	execution := &models.WorkflowExecution{StartedAt: started, CompletedAt: &completed}
	assert.Equal(t, 90*time.Second, execution.Duration(completed.Add(time.Hour)))

	running := &models.WorkflowExecution{StartedAt: started}
	assert.Equal(t, 5*time.Minute, running.Duration(started.Add(5*time.Minute)))

	neverStarted := &models.NodeExecution{}
	assert.Zero(t, neverStarted.Duration(time.Now()))
}

func TestMetricsRates(t *testing.T) {
	metrics := &models.ExecutionMetrics{
		TotalExecutions:      8,
		SuccessfulExecutions: 6,
		FailedExecutions:     2,
	}

	assert.InDelta(t, 75.0, metrics.SuccessRate(), 0.001)
	assert.InDelta(t, 25.0, metrics.FailureRate(), 0.001)

	empty := &models.ExecutionMetrics{}
	assert.Zero(t, empty.SuccessRate())
	assert.Zero(t, empty.FailureRate())
}
