package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/orchestrix/orchestrix/pkg/eventbus"
	"github.com/orchestrix/orchestrix/pkg/events"
	"github.com/orchestrix/orchestrix/pkg/persistence"
	"github.com/orchestrix/orchestrix/pkg/registry"
	"github.com/orchestrix/orchestrix/pkg/tracker"
	"github.com/orchestrix/orchestrix/pkg/triggers/queue"
	"github.com/orchestrix/orchestrix/pkg/workflow"
)

// QueueConfig enables the Redis run submission source when Addr is set.
type QueueConfig struct {
	Addr  string
	Queue string
}

type WorkerManager struct {
	id           string
	logger       *slog.Logger
	persistence  persistence.Persistence
	registry     *registry.Registry
	eventBus     eventbus.EventBus
	queueConfig  QueueConfig
	orchestrator *workflow.Orchestrator
}

func NewWorkerManager(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	reg *registry.Registry,
	queueConfig QueueConfig,
) *WorkerManager {
	trk := tracker.NewTracker(p.ExecutionRepository(), logger)
	executor := workflow.NewExecutor(reg, trk, logger)

	return &WorkerManager{
		id:          id,
		logger:      logger.With("module", "worker_manager"),
		persistence: p,
		registry:    reg,
		eventBus:    eventBus,
		queueConfig: queueConfig,
		orchestrator: workflow.NewOrchestrator(
			p.WorkflowRepository(), trk, executor, eventBus, id, logger),
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.RunRequestedEvent, w.handleRunRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.NodeRetryRequestedEvent, w.handleNodeRetryRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	var consumer *queue.Consumer

	if w.queueConfig.Addr != "" {
		consumer, err = queue.NewConsumer(queue.Config{
			Addr:  w.queueConfig.Addr,
			Queue: w.queueConfig.Queue,
		}, w.eventBus, w.logger)
		if err != nil {
			return err
		}

		err = consumer.Start(ctx)
		if err != nil {
			return err
		}
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	if consumer != nil {
		err := consumer.Stop(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to stop queue consumer", "error", err)
		}
	}

	return nil
}

func (w *WorkerManager) handleRunRequested(ctx context.Context, event any) error {
	runEvent, ok := event.(*events.RunRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunRequested")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", runEvent.WorkflowID,
		"execution_id", runEvent.ExecutionID,
		"event_id", runEvent.ID,
	)
	logger.InfoContext(ctx, "Processing run request")

	_, err := w.orchestrator.Run(ctx, workflow.RunRequest{
		WorkflowID:    runEvent.WorkflowID,
		ExecutionID:   runEvent.ExecutionID,
		UserID:        runEvent.UserID,
		Input:         runEvent.Input,
		TriggerSource: runEvent.TriggerSource,
		Initiator:     runEvent.Initiator,
	})
	if err != nil {
		// Terminal-state bookkeeping and failure events are handled
		// inside the orchestrator; nacking here would re-run the
		// workflow.
		logger.ErrorContext(ctx, "Run request failed", "error", err)
	}

	return nil
}

func (w *WorkerManager) handleNodeRetryRequested(ctx context.Context, event any) error {
	retryEvent, ok := event.(*events.NodeRetryRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for NodeRetryRequested")

		return nil
	}

	logger := w.logger.With(
		"execution_id", retryEvent.ExecutionID,
		"node_execution_id", retryEvent.NodeExecutionID,
	)
	logger.InfoContext(ctx, "Processing node retry request")

	result, err := w.orchestrator.RetryNode(ctx, retryEvent.NodeExecutionID)
	if err != nil {
		logger.ErrorContext(ctx, "Node retry failed", "error", err)

		return nil
	}

	logger.InfoContext(ctx, "Node retry finished", "status", result.Status)

	return nil
}
