package models

import "time"

// ExecutionStatus defines the possible states of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusTimeout   ExecutionStatus = "timeout"
)

// Terminal reports whether the status is a final state.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimeout:
		return true
	default:
		return false
	}
}

// TriggerSource identifies what caused an execution.
type TriggerSource string

const (
	TriggerSourceManual    TriggerSource = "manual"
	TriggerSourceScheduled TriggerSource = "scheduled"
	TriggerSourceWebhook   TriggerSource = "webhook"
	TriggerSourceAPI       TriggerSource = "api"
	TriggerSourceEvent     TriggerSource = "event"
	TriggerSourceRetry     TriggerSource = "retry"
)

// WorkflowExecution tracks a single run of a workflow. completed_at is set
// exactly when the status is terminal. Version supports optimistic locking so
// concurrent writers to the same execution cannot silently lose updates.
type WorkflowExecution struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflow_id"`
	UserID        string          `json:"user_id"`
	Status        ExecutionStatus `json:"status"`
	InputData     map[string]any  `json:"input_data"`
	OutputData    map[string]any  `json:"output_data"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	TriggerSource TriggerSource   `json:"trigger_source"`
	Context       map[string]any  `json:"execution_context,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Version       int64           `json:"version"`
}

// Duration returns the elapsed execution time, using now for running records.
func (e *WorkflowExecution) Duration(now time.Time) time.Duration {
	if e.CompletedAt != nil {
		return e.CompletedAt.Sub(e.StartedAt)
	}

	return now.Sub(e.StartedAt)
}

// IsRunning reports whether the execution is currently in progress.
func (e *WorkflowExecution) IsRunning() bool {
	return e.Status == ExecutionStatusRunning
}

// NodeExecutionStatus defines the possible states of a node execution.
type NodeExecutionStatus string

const (
	NodeExecutionStatusPending   NodeExecutionStatus = "pending"
	NodeExecutionStatusRunning   NodeExecutionStatus = "running"
	NodeExecutionStatusCompleted NodeExecutionStatus = "completed"
	NodeExecutionStatusFailed    NodeExecutionStatus = "failed"
	NodeExecutionStatusSkipped   NodeExecutionStatus = "skipped"
	NodeExecutionStatusCancelled NodeExecutionStatus = "cancelled"
	NodeExecutionStatusTimeout   NodeExecutionStatus = "timeout"
)

// Terminal reports whether the status is a final state.
func (s NodeExecutionStatus) Terminal() bool {
	switch s {
	case NodeExecutionStatusCompleted, NodeExecutionStatusFailed,
		NodeExecutionStatusSkipped, NodeExecutionStatusCancelled, NodeExecutionStatusTimeout:
		return true
	default:
		return false
	}
}

// ExecutionLog is one entry in a node execution's ordered log sequence.
type ExecutionLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// NodeExecution tracks a single node run within a workflow execution. It
// belongs to exactly one WorkflowExecution. Status transitions are monotonic
// with one exception: an explicit retry resets failed back to pending and
// increments RetryCount.
type NodeExecution struct {
	ID           string              `json:"id"`
	ExecutionID  string              `json:"execution_id"`
	NodeID       string              `json:"node_id"`
	NodeName     string              `json:"node_name"`
	NodeType     string              `json:"node_type"`
	Status       NodeExecutionStatus `json:"status"`
	InputData    map[string]any      `json:"input_data"`
	OutputData   map[string]any      `json:"output_data"`
	ErrorMessage string              `json:"error_message,omitempty"`
	RetryCount   int                 `json:"retry_count"`
	Logs         []ExecutionLog      `json:"logs"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

// Duration returns the elapsed node time, zero when the node never started.
func (n *NodeExecution) Duration(now time.Time) time.Duration {
	if n.StartedAt == nil {
		return 0
	}

	if n.CompletedAt != nil {
		return n.CompletedAt.Sub(*n.StartedAt)
	}

	return now.Sub(*n.StartedAt)
}

// NodeResult is the value a node executor returns to the orchestrator. Errors
// never cross the executor boundary as Go errors; they travel in this struct.
type NodeResult struct {
	NodeExecutionID string              `json:"node_execution_id"`
	NodeID          string              `json:"node_id"`
	Status          NodeExecutionStatus `json:"status"`
	Output          map[string]any      `json:"output,omitempty"`
	Error           string              `json:"error,omitempty"`
}
