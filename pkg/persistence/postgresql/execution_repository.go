package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/persistence"
)

// ExecutionRepository stores workflow and node execution records. Execution
// updates carry the optimistic version in the WHERE clause; a stale writer
// matches zero rows and gets ErrVersionConflict.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (er *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	inputJSON, outputJSON, contextJSON, err := marshalExecutionJSON(execution)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_executions (
			id, workflow_id, user_id, status, input_data, output_data,
			error_message, trigger_source, execution_context, started_at,
			completed_at, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = er.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.UserID, execution.Status,
		inputJSON, outputJSON, execution.ErrorMessage, execution.TriggerSource,
		contextJSON, execution.StartedAt, execution.CompletedAt, execution.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return persistence.ErrExecutionAlreadyExists
		}

		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

func (er *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	inputJSON, outputJSON, contextJSON, err := marshalExecutionJSON(execution)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_executions SET
			status = $1, input_data = $2, output_data = $3, error_message = $4,
			execution_context = $5, started_at = $6, completed_at = $7,
			version = version + 1
		WHERE id = $8 AND version = $9
	`

	result, err := er.db.ExecContext(ctx, query,
		execution.Status, inputJSON, outputJSON, execution.ErrorMessage,
		contextJSON, execution.StartedAt, execution.CompletedAt,
		execution.ID, execution.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		exists, err := er.executionExists(ctx, execution.ID)
		if err != nil {
			return err
		}

		if !exists {
			return persistence.ErrExecutionNotFound
		}

		return persistence.ErrVersionConflict
	}

	execution.Version++

	return nil
}

func (er *ExecutionRepository) executionExists(ctx context.Context, id string) (bool, error) {
	var exists bool

	err := er.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM workflow_executions WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check execution existence: %w", err)
	}

	return exists, nil
}

const executionColumns = `
	id, workflow_id, user_id, status, input_data, output_data, error_message,
	trigger_source, execution_context, started_at, completed_at, version
`

func (er *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(er.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (er *ExecutionRepository) ListExecutions(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.WorkflowExecution, error) {
	var (
		conditions []string
		args       []any
	)

	addCondition := func(column, op string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" "+op+" $"+strconv.Itoa(len(args)))
	}

	if opts.WorkflowID != "" {
		addCondition("workflow_id", "=", opts.WorkflowID)
	}

	if opts.UserID != "" {
		addCondition("user_id", "=", opts.UserID)
	}

	if opts.Status != nil {
		addCondition("status", "=", *opts.Status)
	}

	if opts.StartedAfter != nil {
		addCondition("started_at", ">=", *opts.StartedAfter)
	}

	if opts.StartedBefore != nil {
		addCondition("started_at", "<", *opts.StartedBefore)
	}

	query := `SELECT ` + executionColumns + ` FROM workflow_executions`

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY started_at DESC, id"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var executions []*models.WorkflowExecution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return executions, nil
}

// DeleteExecutions removes executions by id; node executions follow via the
// foreign key cascade.
func (er *ExecutionRepository) DeleteExecutions(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := er.db.ExecContext(ctx,
		"DELETE FROM workflow_executions WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}

	return int(affected), nil
}

func (er *ExecutionRepository) CreateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error {
	inputJSON, outputJSON, logsJSON, err := marshalNodeExecutionJSON(nodeExecution)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO node_executions (
			id, execution_id, node_id, node_name, node_type, status,
			input_data, output_data, error_message, retry_count, logs,
			started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = er.db.ExecContext(ctx, query,
		nodeExecution.ID, nodeExecution.ExecutionID, nodeExecution.NodeID,
		nodeExecution.NodeName, nodeExecution.NodeType, nodeExecution.Status,
		inputJSON, outputJSON, nodeExecution.ErrorMessage, nodeExecution.RetryCount,
		logsJSON, nodeExecution.StartedAt, nodeExecution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node execution: %w", err)
	}

	return nil
}

func (er *ExecutionRepository) UpdateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error {
	inputJSON, outputJSON, logsJSON, err := marshalNodeExecutionJSON(nodeExecution)
	if err != nil {
		return err
	}

	query := `
		UPDATE node_executions SET
			status = $1, input_data = $2, output_data = $3, error_message = $4,
			retry_count = $5, logs = $6, started_at = $7, completed_at = $8
		WHERE id = $9
	`

	result, err := er.db.ExecContext(ctx, query,
		nodeExecution.Status, inputJSON, outputJSON, nodeExecution.ErrorMessage,
		nodeExecution.RetryCount, logsJSON, nodeExecution.StartedAt,
		nodeExecution.CompletedAt, nodeExecution.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update node execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrNodeExecutionNotFound
	}

	return nil
}

const nodeExecutionColumns = `
	id, execution_id, node_id, node_name, node_type, status, input_data,
	output_data, error_message, retry_count, logs, started_at, completed_at
`

func (er *ExecutionRepository) NodeExecutionByID(ctx context.Context, id string) (*models.NodeExecution, error) {
	query := `SELECT ` + nodeExecutionColumns + ` FROM node_executions WHERE id = $1`

	nodeExecution, err := scanNodeExecution(er.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNodeExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan node execution: %w", err)
	}

	return nodeExecution, nil
}

func (er *ExecutionRepository) NodeExecutionsByExecutionID(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	query := `
		SELECT ` + nodeExecutionColumns + `
		FROM node_executions
		WHERE execution_id = $1
		ORDER BY started_at NULLS LAST, id
	`

	rows, err := er.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node executions: %w", err)
	}
	defer rows.Close()

	var nodeExecutions []*models.NodeExecution

	for rows.Next() {
		nodeExecution, err := scanNodeExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		nodeExecutions = append(nodeExecutions, nodeExecution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate node executions: %w", err)
	}

	return nodeExecutions, nil
}

// AppendNodeLog appends one entry to the node's JSONB log array in place.
func (er *ExecutionRepository) AppendNodeLog(ctx context.Context, nodeExecutionID string, entry models.ExecutionLog) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	query := `
		UPDATE node_executions
		SET logs = logs || $1::jsonb
		WHERE id = $2
	`

	result, err := er.db.ExecContext(ctx, query, entryJSON, nodeExecutionID)
	if err != nil {
		return fmt.Errorf("failed to append node log: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrNodeExecutionNotFound
	}

	return nil
}

func marshalExecutionJSON(execution *models.WorkflowExecution) (input, output, execCtx []byte, err error) {
	input, err = json.Marshal(execution.InputData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal input data: %w", err)
	}

	output, err = json.Marshal(execution.OutputData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal output data: %w", err)
	}

	execCtx, err = json.Marshal(execution.Context)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal execution context: %w", err)
	}

	return input, output, execCtx, nil
}

func marshalNodeExecutionJSON(nodeExecution *models.NodeExecution) (input, output, logs []byte, err error) {
	input, err = json.Marshal(nodeExecution.InputData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal input data: %w", err)
	}

	output, err = json.Marshal(nodeExecution.OutputData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal output data: %w", err)
	}

	if nodeExecution.Logs == nil {
		logs = []byte("[]")
	} else {
		logs, err = json.Marshal(nodeExecution.Logs)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal logs: %w", err)
		}
	}

	return input, output, logs, nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	execution := &models.WorkflowExecution{}

	var (
		inputJSON   []byte
		outputJSON  []byte
		contextJSON []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &execution.UserID, &execution.Status,
		&inputJSON, &outputJSON, &execution.ErrorMessage, &execution.TriggerSource,
		&contextJSON, &execution.StartedAt, &completedAt, &execution.Version,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	err = unmarshalJSONColumn(inputJSON, &execution.InputData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
	}

	err = unmarshalJSONColumn(outputJSON, &execution.OutputData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal output data: %w", err)
	}

	err = unmarshalJSONColumn(contextJSON, &execution.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
	}

	return execution, nil
}

func scanNodeExecution(row rowScanner) (*models.NodeExecution, error) {
	nodeExecution := &models.NodeExecution{}

	var (
		inputJSON   []byte
		outputJSON  []byte
		logsJSON    []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&nodeExecution.ID, &nodeExecution.ExecutionID, &nodeExecution.NodeID,
		&nodeExecution.NodeName, &nodeExecution.NodeType, &nodeExecution.Status,
		&inputJSON, &outputJSON, &nodeExecution.ErrorMessage, &nodeExecution.RetryCount,
		&logsJSON, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		nodeExecution.StartedAt = &startedAt.Time
	}

	if completedAt.Valid {
		nodeExecution.CompletedAt = &completedAt.Time
	}

	err = unmarshalJSONColumn(inputJSON, &nodeExecution.InputData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
	}

	err = unmarshalJSONColumn(outputJSON, &nodeExecution.OutputData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal output data: %w", err)
	}

	if len(logsJSON) > 0 {
		err = json.Unmarshal(logsJSON, &nodeExecution.Logs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal logs: %w", err)
		}
	}

	return nodeExecution, nil
}
