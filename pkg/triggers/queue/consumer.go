// Package queue provides a Redis-backed run submission source. External
// systems push JSON messages onto a list; the consumer translates each one
// into a run-requested event with trigger source "event".
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/orchestrix/orchestrix/pkg/eventbus"
	"github.com/orchestrix/orchestrix/pkg/events"
	"github.com/orchestrix/orchestrix/pkg/models"
)

const popTimeout = 1 * time.Second

// Config configures the queue consumer. Queue is required.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// submission is the wire format external systems push onto the list.
type submission struct {
	WorkflowID string         `json:"workflow_id"`
	UserID     string         `json:"user_id"`
	Input      map[string]any `json:"input"`
	Initiator  string         `json:"initiator"`
}

type Consumer struct {
	config    Config
	client    redis.UniversalClient
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewConsumer(config Config, publisher eventbus.EventPublisher, logger *slog.Logger) (*Consumer, error) {
	if config.Queue == "" {
		return nil, errors.New("queue name is required")
	}

	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	return &Consumer{
		config:    config,
		publisher: publisher,
		stopCh:    make(chan struct{}),
		logger: logger.With(
			"module", "queue_consumer",
			"queue", config.Queue,
		),
	}, nil
}

// Start connects to Redis and begins consuming in the background.
func (c *Consumer) Start(ctx context.Context) error {
	c.client = redis.NewClient(&redis.Options{
		Addr:     c.config.Addr,
		Password: c.config.Password,
		DB:       c.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.client.Ping(pingCtx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.InfoContext(ctx, "Connected to Redis", "addr", c.config.Addr, "db", c.config.DB)

	c.wg.Add(1)

	go c.consume(ctx)

	return nil
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	c.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-c.stopCh:
			c.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			err := c.processMessage(ctx)
			if err != nil {
				c.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, popTimeout, c.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	var sub submission

	err = json.Unmarshal([]byte(message), &sub)
	if err != nil {
		c.logger.WarnContext(ctx, "Discarding malformed queue message", "error", err)

		return nil
	}

	if sub.WorkflowID == "" {
		c.logger.WarnContext(ctx, "Discarding queue message without workflow_id")

		return nil
	}

	event := events.RunRequested{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.RunRequestedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: sub.WorkflowID,
		},

		UserID:        sub.UserID,
		Input:         sub.Input,
		TriggerSource: models.TriggerSourceEvent,
		Initiator:     sub.Initiator,
	}

	err = c.publisher.Publish(ctx, sub.WorkflowID, event)
	if err != nil {
		return fmt.Errorf("failed to publish run request: %w", err)
	}

	c.logger.InfoContext(ctx, "Run submission accepted from queue", "workflow_id", sub.WorkflowID)

	return nil
}

// Stop halts consumption and closes the Redis connection.
func (c *Consumer) Stop(ctx context.Context) error {
	close(c.stopCh)
	c.wg.Wait()

	if c.client != nil {
		err := c.client.Close()
		if err != nil {
			c.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
