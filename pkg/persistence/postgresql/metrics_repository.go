package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/persistence"
)

// MetricsRepository stores the daily aggregates keyed by (workflow, user, date).
type MetricsRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewMetricsRepository(db *sql.DB, logger *slog.Logger) *MetricsRepository {
	return &MetricsRepository{db: db, logger: logger}
}

// Upsert inserts or replaces the row for the metrics key. The existing row's
// id and created_at survive a replace.
func (mr *MetricsRepository) Upsert(ctx context.Context, metrics *models.ExecutionMetrics) error {
	query := `
		INSERT INTO execution_metrics (
			id, workflow_id, user_id, date, total_executions,
			successful_executions, failed_executions, avg_duration_ns,
			total_duration_ns, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (workflow_id, user_id, date) DO UPDATE SET
			total_executions = EXCLUDED.total_executions,
			successful_executions = EXCLUDED.successful_executions,
			failed_executions = EXCLUDED.failed_executions,
			avg_duration_ns = EXCLUDED.avg_duration_ns,
			total_duration_ns = EXCLUDED.total_duration_ns,
			updated_at = EXCLUDED.updated_at
	`

	_, err := mr.db.ExecContext(ctx, query,
		metrics.ID, metrics.WorkflowID, metrics.UserID, metrics.Date,
		metrics.TotalExecutions, metrics.SuccessfulExecutions, metrics.FailedExecutions,
		int64(metrics.AvgDuration), int64(metrics.TotalDuration),
		metrics.CreatedAt, metrics.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metrics: %w", err)
	}

	return nil
}

const metricsColumns = `
	id, workflow_id, user_id, date, total_executions, successful_executions,
	failed_executions, avg_duration_ns, total_duration_ns, created_at, updated_at
`

func (mr *MetricsRepository) List(ctx context.Context, userID string, since time.Time) ([]*models.ExecutionMetrics, error) {
	query := `
		SELECT ` + metricsColumns + `
		FROM execution_metrics
		WHERE user_id = $1 AND date >= $2
		ORDER BY date DESC, workflow_id
	`

	rows, err := mr.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var result []*models.ExecutionMetrics

	for rows.Next() {
		metrics, err := scanMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}

		result = append(result, metrics)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate metrics: %w", err)
	}

	return result, nil
}

func (mr *MetricsRepository) ByKey(ctx context.Context, workflowID, userID string, date time.Time) (*models.ExecutionMetrics, error) {
	query := `
		SELECT ` + metricsColumns + `
		FROM execution_metrics
		WHERE workflow_id = $1 AND user_id = $2 AND date = $3
	`

	metrics, err := scanMetrics(mr.db.QueryRowContext(ctx, query, workflowID, userID, date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrMetricsNotFound
		}

		return nil, fmt.Errorf("failed to scan metrics: %w", err)
	}

	return metrics, nil
}

func scanMetrics(row rowScanner) (*models.ExecutionMetrics, error) {
	metrics := &models.ExecutionMetrics{}

	var avgNs, totalNs int64

	err := row.Scan(
		&metrics.ID, &metrics.WorkflowID, &metrics.UserID, &metrics.Date,
		&metrics.TotalExecutions, &metrics.SuccessfulExecutions, &metrics.FailedExecutions,
		&avgNs, &totalNs, &metrics.CreatedAt, &metrics.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	metrics.AvgDuration = time.Duration(avgNs)
	metrics.TotalDuration = time.Duration(totalNs)

	return metrics, nil
}
