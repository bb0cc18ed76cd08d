package trigger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrix/orchestrix/pkg/nodes/trigger"
)

type nopLogSink struct{}

func (nopLogSink) Append(_, _ string, _ map[string]any) {}

func TestTriggerNodeEchoesInput(t *testing.T) {
	node, err := trigger.NewTriggerNode("n1", nil)
	require.NoError(t, err)

	input := map[string]any{"order_id": "o-1", "amount": 42}

	output, err := node.Execute(context.Background(), input, nopLogSink{})
	require.NoError(t, err)

	assert.NotEmpty(t, output["triggered_at"])
	assert.Equal(t, input, output["trigger_data"])
}
