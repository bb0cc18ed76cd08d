// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/orchestrix/orchestrix/pkg/models"
)

type EventType string

// Topic carries all execution lifecycle events.
const Topic = "orchestrix.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run submission events.
	RunRequestedEvent       EventType = "execution.run.requested"
	NodeRetryRequestedEvent EventType = "execution.node.retry.requested"

	// Execution lifecycle events.
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionTimeoutEvent   EventType = "execution.timeout"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RunRequested asks a worker to execute a workflow. Retried executions are
// submitted the same way with TriggerSource set to retry.
type RunRequested struct {
	BaseEvent

	// ExecutionID names a pre-created pending execution, when the
	// submitter created one. Empty for fire-and-forget sources.
	ExecutionID   string               `json:"execution_id,omitempty"`
	UserID        string               `json:"user_id"`
	Input         map[string]any       `json:"input,omitempty"`
	TriggerSource models.TriggerSource `json:"trigger_source"`
	Initiator     string               `json:"initiator,omitempty"`
}

func (r RunRequested) GetType() EventType {
	return RunRequestedEvent
}

// NodeRetryRequested asks a worker to re-run one failed node that was reset
// to pending.
type NodeRetryRequested struct {
	BaseEvent

	ExecutionID     string `json:"execution_id"`
	NodeExecutionID string `json:"node_execution_id"`
}

func (n NodeRetryRequested) GetType() EventType {
	return NodeRetryRequestedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	UserID      string         `json:"user_id"`
	Result      map[string]any `json:"result,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	UserID      string        `json:"user_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionTimeout struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	UserID      string        `json:"user_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionTimeout) GetType() EventType {
	return ExecutionTimeoutEvent
}
