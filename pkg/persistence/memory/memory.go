// Package memory provides an in-memory persistence implementation for tests
// and local development. Records are deep-copied on the way in and out so
// callers never share mutable state with the store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/persistence"
)

type Persistence struct {
	mu sync.RWMutex

	workflows      map[string]*models.Workflow
	executions     map[string]*models.WorkflowExecution
	nodeExecutions map[string]*models.NodeExecution
	metrics        map[string]*models.ExecutionMetrics // keyed by workflow|user|date
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:      make(map[string]*models.Workflow),
		executions:     make(map[string]*models.WorkflowExecution),
		nodeExecutions: make(map[string]*models.NodeExecution),
		metrics:        make(map[string]*models.ExecutionMetrics),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &workflowRepository{p: p}
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return &executionRepository{p: p}
}

func (p *Persistence) MetricsRepository() persistence.MetricsRepository {
	return &metricsRepository{p: p}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// SeedWorkflow stores a workflow definition. The engine itself never writes
// workflows; this is the hook tests and local setups use to provide them.
func (p *Persistence) SeedWorkflow(workflow *models.Workflow) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows[workflow.ID] = clone(workflow)
}

// clone deep-copies a record through JSON. Good enough for map-of-any models
// and keeps the store free of aliasing bugs.
func clone[T any](v *T) *T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("memory persistence: marshal: %v", err))
	}

	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("memory persistence: unmarshal: %v", err))
	}

	return out
}

type workflowRepository struct {
	p *Persistence
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	workflow, ok := r.p.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return clone(workflow), nil
}

func (r *workflowRepository) List(_ context.Context) ([]*models.Workflow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.p.workflows))
	for _, workflow := range r.p.workflows {
		workflows = append(workflows, clone(workflow))
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	return workflows, nil
}

type executionRepository struct {
	p *Persistence
}

func (r *executionRepository) CreateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.executions[execution.ID]; ok {
		return persistence.NewExecutionError("CreateExecution", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	execution.Version = 1
	r.p.executions[execution.ID] = clone(execution)

	return nil
}

func (r *executionRepository) UpdateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored, ok := r.p.executions[execution.ID]
	if !ok {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrExecutionNotFound)
	}

	if stored.Version != execution.Version {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrVersionConflict)
	}

	execution.Version++
	r.p.executions[execution.ID] = clone(execution)

	return nil
}

func (r *executionRepository) ExecutionByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	execution, ok := r.p.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return clone(execution), nil
}

func (r *executionRepository) ListExecutions(_ context.Context, opts persistence.ListExecutionsOptions) ([]*models.WorkflowExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	executions := make([]*models.WorkflowExecution, 0)

	for _, execution := range r.p.executions {
		if opts.WorkflowID != "" && execution.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.UserID != "" && execution.UserID != opts.UserID {
			continue
		}

		if opts.Status != nil && execution.Status != *opts.Status {
			continue
		}

		if opts.StartedAfter != nil && execution.StartedAt.Before(*opts.StartedAfter) {
			continue
		}

		if opts.StartedBefore != nil && !execution.StartedAt.Before(*opts.StartedBefore) {
			continue
		}

		executions = append(executions, clone(execution))
	}

	sort.Slice(executions, func(i, j int) bool {
		if !executions[i].StartedAt.Equal(executions[j].StartedAt) {
			return executions[i].StartedAt.After(executions[j].StartedAt)
		}

		return executions[i].ID < executions[j].ID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(executions) {
			return nil, nil
		}

		executions = executions[opts.Offset:]
	}

	if opts.Limit > 0 && len(executions) > opts.Limit {
		executions = executions[:opts.Limit]
	}

	return executions, nil
}

func (r *executionRepository) DeleteExecutions(_ context.Context, ids []string) (int, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	deleted := 0

	for _, id := range ids {
		if _, ok := r.p.executions[id]; !ok {
			continue
		}

		delete(r.p.executions, id)

		for nodeID, nodeExecution := range r.p.nodeExecutions {
			if nodeExecution.ExecutionID == id {
				delete(r.p.nodeExecutions, nodeID)
			}
		}

		deleted++
	}

	return deleted, nil
}

func (r *executionRepository) CreateNodeExecution(_ context.Context, nodeExecution *models.NodeExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.nodeExecutions[nodeExecution.ID] = clone(nodeExecution)

	return nil
}

func (r *executionRepository) UpdateNodeExecution(_ context.Context, nodeExecution *models.NodeExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.nodeExecutions[nodeExecution.ID]; !ok {
		return persistence.ErrNodeExecutionNotFound
	}

	r.p.nodeExecutions[nodeExecution.ID] = clone(nodeExecution)

	return nil
}

func (r *executionRepository) NodeExecutionByID(_ context.Context, id string) (*models.NodeExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	nodeExecution, ok := r.p.nodeExecutions[id]
	if !ok {
		return nil, persistence.ErrNodeExecutionNotFound
	}

	return clone(nodeExecution), nil
}

func (r *executionRepository) NodeExecutionsByExecutionID(_ context.Context, executionID string) ([]*models.NodeExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	nodeExecutions := make([]*models.NodeExecution, 0)

	for _, nodeExecution := range r.p.nodeExecutions {
		if nodeExecution.ExecutionID == executionID {
			nodeExecutions = append(nodeExecutions, clone(nodeExecution))
		}
	}

	sort.Slice(nodeExecutions, func(i, j int) bool {
		left, right := nodeExecutions[i], nodeExecutions[j]

		switch {
		case left.StartedAt == nil && right.StartedAt == nil:
			return left.ID < right.ID
		case left.StartedAt == nil:
			return false
		case right.StartedAt == nil:
			return true
		case !left.StartedAt.Equal(*right.StartedAt):
			return left.StartedAt.Before(*right.StartedAt)
		default:
			return left.ID < right.ID
		}
	})

	return nodeExecutions, nil
}

func (r *executionRepository) AppendNodeLog(_ context.Context, nodeExecutionID string, entry models.ExecutionLog) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	nodeExecution, ok := r.p.nodeExecutions[nodeExecutionID]
	if !ok {
		return persistence.ErrNodeExecutionNotFound
	}

	nodeExecution.Logs = append(nodeExecution.Logs, entry)

	return nil
}

type metricsRepository struct {
	p *Persistence
}

func metricsKey(workflowID, userID string, date time.Time) string {
	return workflowID + "|" + userID + "|" + date.UTC().Format("2006-01-02")
}

func (r *metricsRepository) Upsert(_ context.Context, metrics *models.ExecutionMetrics) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	key := metricsKey(metrics.WorkflowID, metrics.UserID, metrics.Date)

	if existing, ok := r.p.metrics[key]; ok {
		metrics.ID = existing.ID
		metrics.CreatedAt = existing.CreatedAt
	}

	r.p.metrics[key] = clone(metrics)

	return nil
}

func (r *metricsRepository) List(_ context.Context, userID string, since time.Time) ([]*models.ExecutionMetrics, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	rows := make([]*models.ExecutionMetrics, 0)

	for _, metrics := range r.p.metrics {
		if userID != "" && metrics.UserID != userID {
			continue
		}

		if metrics.Date.Before(since) {
			continue
		}

		rows = append(rows, clone(metrics))
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.After(rows[j].Date)
		}

		return rows[i].WorkflowID < rows[j].WorkflowID
	})

	return rows, nil
}

func (r *metricsRepository) ByKey(_ context.Context, workflowID, userID string, date time.Time) (*models.ExecutionMetrics, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	metrics, ok := r.p.metrics[metricsKey(workflowID, userID, date)]
	if !ok {
		return nil, persistence.ErrMetricsNotFound
	}

	return clone(metrics), nil
}
