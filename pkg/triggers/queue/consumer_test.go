package queue_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/orchestrix/orchestrix/pkg/eventbus"
	"github.com/orchestrix/orchestrix/pkg/events"
	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/triggers/queue"
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

func TestNewConsumerRequiresQueueName(t *testing.T) {
	_, err := queue.NewConsumer(queue.Config{}, &capturingPublisher{}, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue name is required")
}

func TestConsumerPublishesRunRequests(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	publisher := &capturingPublisher{}

	consumer, err := queue.NewConsumer(queue.Config{
		Addr:  endpoint,
		Queue: "orchestrix:runs",
	}, publisher, slog.Default())
	require.NoError(t, err)

	require.NoError(t, consumer.Start(ctx))

	t.Cleanup(func() {
		_ = consumer.Stop(context.Background())
	})

	client := goredis.NewClient(&goredis.Options{Addr: endpoint})

	t.Cleanup(func() {
		_ = client.Close()
	})

	payload, err := json.Marshal(map[string]any{
		"workflow_id": "wf-1",
		"user_id":     "user-1",
		"input":       map[string]any{"amount": 42},
		"initiator":   "billing-system",
	})
	require.NoError(t, err)

	// Malformed and incomplete messages are discarded, valid ones pass.
	require.NoError(t, client.RPush(ctx, "orchestrix:runs", "not json").Err())
	require.NoError(t, client.RPush(ctx, "orchestrix:runs", `{"user_id":"user-1"}`).Err())
	require.NoError(t, client.RPush(ctx, "orchestrix:runs", string(payload)).Err())

	require.Eventually(t, func() bool {
		return len(publisher.captured()) == 1
	}, 10*time.Second, 100*time.Millisecond)

	captured := publisher.captured()
	runRequested, ok := captured[0].(events.RunRequested)
	require.True(t, ok)
	assert.Equal(t, "wf-1", runRequested.WorkflowID)
	assert.Equal(t, "user-1", runRequested.UserID)
	assert.Equal(t, models.TriggerSourceEvent, runRequested.TriggerSource)
	assert.Equal(t, "billing-system", runRequested.Initiator)
	// No pre-created execution for queue submissions.
	assert.Empty(t, runRequested.ExecutionID)
}
