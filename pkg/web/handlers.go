// Package web provides HTTP handlers and REST API endpoints for the execution engine.
package web

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/orchestrix/orchestrix/pkg/eventbus"
	"github.com/orchestrix/orchestrix/pkg/events"
	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/persistence"
	"github.com/orchestrix/orchestrix/pkg/tracker"
)

const (
	defaultStatsWindowDays = 30
	defaultListLimit       = 50
	maxListLimit           = 500
)

type APIHandlers struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	metrics    persistence.MetricsRepository
	tracker    *tracker.Tracker
	publisher  eventbus.EventPublisher
	validator  *validator.Validate
	logger     *slog.Logger
}

func NewAPIHandlers(
	p persistence.Persistence,
	trk *tracker.Tracker,
	publisher eventbus.EventPublisher,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		workflows:  p.WorkflowRepository(),
		executions: p.ExecutionRepository(),
		metrics:    p.MetricsRepository(),
		tracker:    trk,
		publisher:  publisher,
		validator:  validate,
		logger:     logger.With("module", "web"),
	}
}

// SubmitExecution accepts a run submission, creates a pending execution and
// publishes a run-requested event for a worker to pick up.
func (h *APIHandlers) SubmitExecution(c fiber.Ctx) error {
	var req SubmitExecutionRequest

	err := c.Bind().Body(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	wf, err := h.workflows.GetByID(c.Context(), req.WorkflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !wf.Runnable() {
		return conflict(c, "workflow is not active")
	}

	userID := req.UserID
	if userID == "" {
		userID = wf.OwnerID
	}

	executionContext := map[string]any{
		"task_id":    uuid.New().String(),
		"started_by": req.Initiator,
	}

	execution, err := h.tracker.CreatePendingExecution(
		c.Context(), wf.ID, userID, req.Input, models.TriggerSourceAPI, executionContext)
	if err != nil {
		return handleServiceError(c, err)
	}

	err = h.publishRunRequest(c, execution, req.Initiator)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(SubmitExecutionResponse{
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		Status:      execution.Status,
	})
}

// GetExecution returns one execution with its node executions.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executions.ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	nodes, err := h.executions.NodeExecutionsByExecutionID(c.Context(), execution.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewExecutionResponse(execution, nodes))
}

// ListExecutions returns executions matching the query filters.
func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	opts, err := h.parseListOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	executions, err := h.executions.ListExecutions(c.Context(), *opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"count":      len(executions),
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

// CancelExecution requests cooperative cancellation of a pending or running
// execution.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	execution, err := h.tracker.CancelExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewExecutionResponse(execution, nil))
}

// RetryExecution resubmits a finished, non-successful execution as a fresh
// run with the original input and trigger source "retry". The original record
// is left untouched.
func (h *APIHandlers) RetryExecution(c fiber.Ctx) error {
	original, err := h.executions.ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	switch original.Status {
	case models.ExecutionStatusFailed, models.ExecutionStatusCancelled, models.ExecutionStatusTimeout:
	default:
		return conflict(c, "only failed, cancelled or timed out executions can be retried")
	}

	executionContext := map[string]any{
		"task_id":      uuid.New().String(),
		"retried_from": original.ID,
	}

	execution, err := h.tracker.CreatePendingExecution(
		c.Context(), original.WorkflowID, original.UserID, original.InputData,
		models.TriggerSourceRetry, executionContext)
	if err != nil {
		return handleServiceError(c, err)
	}

	err = h.publishRunRequest(c, execution, "")
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(SubmitExecutionResponse{
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		Status:      execution.Status,
	})
}

// RetryNodeExecution resets a failed node execution to pending and publishes
// a retry event for a worker to re-run it.
func (h *APIHandlers) RetryNodeExecution(c fiber.Ctx) error {
	nodeExecution, err := h.tracker.RetryNode(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	execution, err := h.executions.ExecutionByID(c.Context(), nodeExecution.ExecutionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	event := events.NodeRetryRequested{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.NodeRetryRequestedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: execution.WorkflowID,
		},

		ExecutionID:     nodeExecution.ExecutionID,
		NodeExecutionID: nodeExecution.ID,
	}

	err = h.publisher.Publish(c.Context(), execution.WorkflowID, event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(nodeExecution)
}

// GetStats summarizes execution outcomes for a user over a trailing window.
func (h *APIHandlers) GetStats(c fiber.Ctx) error {
	days := defaultStatsWindowDays

	if daysStr := c.Query("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "days must be a positive integer")
		}

		days = parsed
	}

	since := time.Now().UTC().AddDate(0, 0, -days)

	executions, err := h.executions.ListExecutions(c.Context(), persistence.ListExecutionsOptions{
		UserID:       c.Query("user_id"),
		WorkflowID:   c.Query("workflow_id"),
		StartedAfter: &since,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	stats := StatsResponse{
		Since:    since,
		ByStatus: make(map[models.ExecutionStatus]int),
	}

	now := time.Now().UTC()

	var totalDuration time.Duration

	for _, execution := range executions {
		stats.TotalExecutions++
		stats.ByStatus[execution.Status]++
		totalDuration += execution.Duration(now)
	}

	stats.RunningExecutions = stats.ByStatus[models.ExecutionStatusRunning]
	stats.CompletedExecutions = stats.ByStatus[models.ExecutionStatusCompleted]
	stats.FailedExecutions = stats.ByStatus[models.ExecutionStatusFailed]

	if stats.TotalExecutions > 0 {
		stats.SuccessRate = float64(stats.CompletedExecutions) / float64(stats.TotalExecutions) * 100
		stats.AvgDurationMs = (totalDuration / time.Duration(stats.TotalExecutions)).Milliseconds()
	}

	return c.JSON(stats)
}

// GetMetrics returns the aggregated daily metrics rows for a user.
func (h *APIHandlers) GetMetrics(c fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return badRequest(c, "user_id is required")
	}

	days := defaultStatsWindowDays

	if daysStr := c.Query("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "days must be a positive integer")
		}

		days = parsed
	}

	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := h.metrics.List(c.Context(), userID, since)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(MetricsResponse{Since: since, Metrics: rows})
}

// HealthCheck reports persistence availability.
func (h *APIHandlers) HealthCheck(p persistence.Persistence) fiber.Handler {
	return func(c fiber.Ctx) error {
		err := p.HealthCheck(c.Context())
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}

		return c.JSON(fiber.Map{"status": "healthy"})
	}
}

func (h *APIHandlers) publishRunRequest(c fiber.Ctx, execution *models.WorkflowExecution, initiator string) error {
	event := events.RunRequested{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.RunRequestedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: execution.WorkflowID,
		},

		ExecutionID:   execution.ID,
		UserID:        execution.UserID,
		Input:         execution.InputData,
		TriggerSource: execution.TriggerSource,
		Initiator:     initiator,
	}

	return h.publisher.Publish(c.Context(), execution.WorkflowID, event)
}

func (h *APIHandlers) parseListOptions(c fiber.Ctx) (*persistence.ListExecutionsOptions, error) {
	opts := &persistence.ListExecutionsOptions{
		WorkflowID: c.Query("workflow_id"),
		UserID:     c.Query("user_id"),
		Limit:      defaultListLimit,
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		opts.Status = &status
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		if limit > 0 && limit <= maxListLimit {
			opts.Limit = limit
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		opts.Offset = offset
	}

	return opts, nil
}
