// Package scheduler runs the periodic maintenance jobs: the timeout sweep,
// retention cleanup and daily metrics aggregation. Every job is idempotent
// and swallows per-record errors so one bad row never stops a sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/orchestrix/orchestrix/pkg/eventbus"
	"github.com/orchestrix/orchestrix/pkg/events"
	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/persistence"
	"github.com/orchestrix/orchestrix/pkg/tracker"
)

const (
	DefaultTimeoutThreshold   = time.Hour
	DefaultCompletedRetention = 90 * 24 * time.Hour
	DefaultFailedRetention    = 120 * 24 * time.Hour

	defaultSweepSchedule   = "@every 5m"
	defaultCleanupSchedule = "15 2 * * *"
	defaultMetricsSchedule = "45 0 * * *"

	// cleanupBatchSize bounds one delete pass so retention never holds a
	// large result set in memory.
	cleanupBatchSize = 500
)

// Config tunes the maintenance jobs. Zero values fall back to defaults.
type Config struct {
	TimeoutThreshold   time.Duration
	CompletedRetention time.Duration
	FailedRetention    time.Duration

	SweepSchedule   string
	CleanupSchedule string
	MetricsSchedule string
}

func (c *Config) withDefaults() Config {
	cfg := *c

	if cfg.TimeoutThreshold <= 0 {
		cfg.TimeoutThreshold = DefaultTimeoutThreshold
	}

	if cfg.CompletedRetention <= 0 {
		cfg.CompletedRetention = DefaultCompletedRetention
	}

	if cfg.FailedRetention <= 0 {
		cfg.FailedRetention = DefaultFailedRetention
	}

	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = defaultSweepSchedule
	}

	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = defaultCleanupSchedule
	}

	if cfg.MetricsSchedule == "" {
		cfg.MetricsSchedule = defaultMetricsSchedule
	}

	return cfg
}

type Scheduler struct {
	executions persistence.ExecutionRepository
	metrics    persistence.MetricsRepository
	tracker    *tracker.Tracker
	publisher  eventbus.EventPublisher
	cron       *cron.Cron
	config     Config
	logger     *slog.Logger
}

func NewScheduler(
	p persistence.Persistence,
	trk *tracker.Tracker,
	publisher eventbus.EventPublisher,
	config Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		executions: p.ExecutionRepository(),
		metrics:    p.MetricsRepository(),
		tracker:    trk,
		publisher:  publisher,
		cron:       cron.New(),
		config:     config.withDefaults(),
		logger:     logger.With("module", "scheduler"),
	}
}

// Start registers the cron jobs and starts the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.config.SweepSchedule, func() {
		sweepErr := s.SweepTimeouts(ctx)
		if sweepErr != nil {
			s.logger.ErrorContext(ctx, "Timeout sweep failed", "error", sweepErr)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule: %w", err)
	}

	_, err = s.cron.AddFunc(s.config.CleanupSchedule, func() {
		_, cleanupErr := s.CleanupExpired(ctx)
		if cleanupErr != nil {
			s.logger.ErrorContext(ctx, "Retention cleanup failed", "error", cleanupErr)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule: %w", err)
	}

	_, err = s.cron.AddFunc(s.config.MetricsSchedule, func() {
		// Aggregate yesterday; it is complete by the time the job runs.
		day := time.Now().UTC().AddDate(0, 0, -1)

		metricsErr := s.AggregateMetrics(ctx, day)
		if metricsErr != nil {
			s.logger.ErrorContext(ctx, "Metrics aggregation failed", "error", metricsErr)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid metrics schedule: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started",
		"sweep", s.config.SweepSchedule,
		"cleanup", s.config.CleanupSchedule,
		"metrics", s.config.MetricsSchedule)

	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// SweepTimeouts marks executions running longer than the threshold as timed
// out. Safe to run concurrently with itself: an execution another sweep (or a
// worker) already finished is skipped.
func (s *Scheduler) SweepTimeouts(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.config.TimeoutThreshold)
	running := models.ExecutionStatusRunning

	stale, err := s.executions.ListExecutions(ctx, persistence.ListExecutionsOptions{
		Status:        &running,
		StartedBefore: &cutoff,
	})
	if err != nil {
		return fmt.Errorf("failed to list stale executions: %w", err)
	}

	message := fmt.Sprintf("execution timed out after %s", s.config.TimeoutThreshold)

	for _, execution := range stale {
		final, err := s.tracker.TimeoutExecution(ctx, execution.ID, message)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			s.logger.WarnContext(ctx, "Failed to time out execution",
				"execution_id", execution.ID, "error", err)

			continue
		}

		s.logger.InfoContext(ctx, "Execution timed out",
			"execution_id", execution.ID, "started_at", execution.StartedAt)
		s.publishTimeout(ctx, final)
	}

	return nil
}

// CleanupExpired deletes terminal executions past their retention window and
// returns how many were removed. Completed runs are kept 90 days; failed,
// cancelled and timed out runs 120 days. Non-terminal records are never
// touched.
func (s *Scheduler) CleanupExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	windows := []struct {
		status    models.ExecutionStatus
		retention time.Duration
	}{
		{models.ExecutionStatusCompleted, s.config.CompletedRetention},
		{models.ExecutionStatusFailed, s.config.FailedRetention},
		{models.ExecutionStatusCancelled, s.config.FailedRetention},
		{models.ExecutionStatusTimeout, s.config.FailedRetention},
	}

	deleted := 0

	for _, window := range windows {
		cutoff := now.Add(-window.retention)
		status := window.status

		for {
			expired, err := s.executions.ListExecutions(ctx, persistence.ListExecutionsOptions{
				Status:        &status,
				StartedBefore: &cutoff,
				Limit:         cleanupBatchSize,
			})
			if err != nil {
				return deleted, fmt.Errorf("failed to list expired executions: %w", err)
			}

			if len(expired) == 0 {
				break
			}

			ids := make([]string, 0, len(expired))
			for _, execution := range expired {
				ids = append(ids, execution.ID)
			}

			n, err := s.executions.DeleteExecutions(ctx, ids)
			deleted += n

			if err != nil {
				return deleted, fmt.Errorf("failed to delete expired executions: %w", err)
			}

			if len(expired) < cleanupBatchSize {
				break
			}
		}
	}

	if deleted > 0 {
		s.logger.InfoContext(ctx, "Retention cleanup removed executions", "count", deleted)
	}

	return deleted, nil
}

// AggregateMetrics groups the day's terminal executions by (workflow, user)
// and upserts one metrics row per group. Re-running for the same day replaces
// the previous aggregate rather than duplicating it.
func (s *Scheduler) AggregateMetrics(ctx context.Context, day time.Time) error {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	executions, err := s.executions.ListExecutions(ctx, persistence.ListExecutionsOptions{
		StartedAfter:  &dayStart,
		StartedBefore: &dayEnd,
	})
	if err != nil {
		return fmt.Errorf("failed to list executions for aggregation: %w", err)
	}

	type key struct {
		workflowID string
		userID     string
	}

	groups := make(map[key][]*models.WorkflowExecution)

	for _, execution := range executions {
		if !execution.Status.Terminal() {
			continue
		}

		k := key{workflowID: execution.WorkflowID, userID: execution.UserID}
		groups[k] = append(groups[k], execution)
	}

	now := time.Now().UTC()

	for k, group := range groups {
		metrics := &models.ExecutionMetrics{
			ID:         uuid.New().String(),
			WorkflowID: k.workflowID,
			UserID:     k.userID,
			Date:       dayStart,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		var total time.Duration

		for _, execution := range group {
			metrics.TotalExecutions++

			if execution.Status == models.ExecutionStatusCompleted {
				metrics.SuccessfulExecutions++
			} else {
				metrics.FailedExecutions++
			}

			total += execution.Duration(now)
		}

		metrics.TotalDuration = total
		metrics.AvgDuration = total / time.Duration(metrics.TotalExecutions)

		err := s.metrics.Upsert(ctx, metrics)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to upsert metrics",
				"workflow_id", k.workflowID, "user_id", k.userID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Metrics aggregated",
		"date", dayStart.Format(time.DateOnly), "groups", len(groups))

	return nil
}

func (s *Scheduler) publishTimeout(ctx context.Context, execution *models.WorkflowExecution) {
	if s.publisher == nil {
		return
	}

	event := events.ExecutionTimeout{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.ExecutionTimeoutEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: execution.WorkflowID,
		},

		ExecutionID: execution.ID,
		UserID:      execution.UserID,
		Duration:    execution.Duration(time.Now().UTC()),
	}

	err := s.publisher.Publish(ctx, execution.WorkflowID, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish timeout event",
			"execution_id", execution.ID, "error", err)
	}
}
