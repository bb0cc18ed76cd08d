// Package persistence provides the data storage abstraction layer for
// workflows, execution records, and aggregated metrics.
package persistence

import (
	"context"
	"time"

	"github.com/orchestrix/orchestrix/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	MetricsRepository() MetricsRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository reads workflow definitions. The engine never writes
// workflows; they come from the out-of-scope authoring surface.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context) ([]*models.Workflow, error)
}

// ListExecutionsOptions filters execution queries.
type ListExecutionsOptions struct {
	WorkflowID    string
	UserID        string
	Status        *models.ExecutionStatus
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Limit         int
	Offset        int
}

// ExecutionRepository stores workflow and node execution records. Updates to
// a WorkflowExecution are guarded by its Version field: an update with a stale
// version fails with ErrVersionConflict so per-execution writes serialize.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListExecutions(ctx context.Context, opts ListExecutionsOptions) ([]*models.WorkflowExecution, error)
	DeleteExecutions(ctx context.Context, ids []string) (int, error)

	CreateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error
	UpdateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error
	NodeExecutionByID(ctx context.Context, id string) (*models.NodeExecution, error)
	NodeExecutionsByExecutionID(ctx context.Context, executionID string) ([]*models.NodeExecution, error)
	AppendNodeLog(ctx context.Context, nodeExecutionID string, entry models.ExecutionLog) error
}

// MetricsRepository stores aggregated execution metrics.
type MetricsRepository interface {
	// Upsert inserts or replaces the row keyed by (workflow, user, date).
	Upsert(ctx context.Context, metrics *models.ExecutionMetrics) error
	List(ctx context.Context, userID string, since time.Time) ([]*models.ExecutionMetrics, error)
	ByKey(ctx context.Context, workflowID, userID string, date time.Time) (*models.ExecutionMetrics, error)
}
