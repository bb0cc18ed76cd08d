// Package web provides HTTP request and response types for the execution API.
package web

import (
	"time"

	"github.com/orchestrix/orchestrix/pkg/models"
)

// SubmitExecutionRequest represents the request body for submitting a run.
type SubmitExecutionRequest struct {
	WorkflowID string         `json:"workflow_id" validate:"required"`
	UserID     string         `json:"user_id"`
	Input      map[string]any `json:"input"`
	Initiator  string         `json:"initiator"`
}

// SubmitExecutionResponse acknowledges an accepted run submission.
type SubmitExecutionResponse struct {
	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      models.ExecutionStatus `json:"status"`
}

// ExecutionResponse is the detailed view of one execution.
type ExecutionResponse struct {
	*models.WorkflowExecution

	DurationMs     int64                   `json:"duration_ms"`
	NodeExecutions []*models.NodeExecution `json:"node_executions,omitempty"`
}

// NewExecutionResponse builds an ExecutionResponse with the derived fields
// filled in.
func NewExecutionResponse(execution *models.WorkflowExecution, nodes []*models.NodeExecution) *ExecutionResponse {
	return &ExecutionResponse{
		WorkflowExecution: execution,
		DurationMs:        execution.Duration(time.Now().UTC()).Milliseconds(),
		NodeExecutions:    nodes,
	}
}

// StatsResponse summarizes execution outcomes over a window.
type StatsResponse struct {
	Since               time.Time                      `json:"since"`
	TotalExecutions     int                            `json:"total_executions"`
	ByStatus            map[models.ExecutionStatus]int `json:"by_status"`
	SuccessRate         float64                        `json:"success_rate"`
	AvgDurationMs       int64                          `json:"avg_duration_ms"`
	RunningExecutions   int                            `json:"running_executions"`
	CompletedExecutions int                            `json:"completed_executions"`
	FailedExecutions    int                            `json:"failed_executions"`
}

// MetricsResponse wraps the aggregated metrics rows for a user.
type MetricsResponse struct {
	Since   time.Time                  `json:"since"`
	Metrics []*models.ExecutionMetrics `json:"metrics"`
}
