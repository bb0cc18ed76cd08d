package trigger

import (
	"context"

	"github.com/orchestrix/orchestrix/pkg/protocol"
)

type TriggerNodeFactory struct{}

func NewTriggerNodeFactory() *TriggerNodeFactory {
	return &TriggerNodeFactory{}
}

func (f *TriggerNodeFactory) Create(_ context.Context, nodeID string, config map[string]any) (protocol.NodeHandler, error) {
	return NewTriggerNode(nodeID, config)
}

func (f *TriggerNodeFactory) ID() string {
	return "trigger"
}

func (f *TriggerNodeFactory) Name() string {
	return "Trigger"
}

func (f *TriggerNodeFactory) Description() string {
	return "Marks the entry point of a workflow and passes the trigger payload through"
}

func (f *TriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}
