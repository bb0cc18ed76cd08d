// Package trigger provides the trigger node handler, a pure passthrough that
// records when the workflow run started and echoes the trigger payload.
package trigger

import (
	"context"
	"time"

	"github.com/orchestrix/orchestrix/pkg/protocol"
)

type TriggerNode struct {
	id string
}

func NewTriggerNode(id string, _ map[string]any) (*TriggerNode, error) {
	return &TriggerNode{id: id}, nil
}

func (n *TriggerNode) Execute(_ context.Context, input map[string]any, logs protocol.LogSink) (map[string]any, error) {
	logs.Append("info", "Trigger node executed - workflow started", nil)

	return map[string]any{
		"triggered_at": time.Now().UTC().Format(time.RFC3339),
		"trigger_data": input,
	}, nil
}
