package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/orchestrix/orchestrix/pkg/models"
	"github.com/orchestrix/orchestrix/pkg/persistence"
)

// WorkflowRepository reads workflow definitions. The engine never writes
// workflows.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id, owner_id, name, description, status, is_active, trigger_type,
	trigger_config, version, tags, last_run_at, created_at, updated_at
`

func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	wf, err := scanWorkflow(wr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	wf.Nodes, err = wr.nodesByWorkflowID(ctx, wf.ID)
	if err != nil {
		return nil, err
	}

	return wf, nil
}

func (wr *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at`

	rows, err := wr.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow

	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, wf)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	for _, wf := range workflows {
		wf.Nodes, err = wr.nodesByWorkflowID(ctx, wf.ID)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (wr *WorkflowRepository) nodesByWorkflowID(ctx context.Context, workflowID string) ([]*models.WorkflowNode, error) {
	query := `
		SELECT id, workflow_id, parent_node_id, node_type, name, config,
		       input_schema, output_schema, position_x, position_y
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY position_x, position_y, id
	`

	rows, err := wr.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.WorkflowNode

	for rows.Next() {
		node := &models.WorkflowNode{}

		var (
			parentNodeID sql.NullString
			configJSON   []byte
			inputSchema  []byte
			outputSchema []byte
		)

		err := rows.Scan(
			&node.ID, &node.WorkflowID, &parentNodeID, &node.Type, &node.Name,
			&configJSON, &inputSchema, &outputSchema, &node.PositionX, &node.PositionY,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow node: %w", err)
		}

		if parentNodeID.Valid {
			node.ParentNodeID = &parentNodeID.String
		}

		err = unmarshalJSONColumn(configJSON, &node.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node config: %w", err)
		}

		err = unmarshalJSONColumn(inputSchema, &node.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node input schema: %w", err)
		}

		err = unmarshalJSONColumn(outputSchema, &node.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node output schema: %w", err)
		}

		nodes = append(nodes, node)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate workflow nodes: %w", err)
	}

	return nodes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	wf := &models.Workflow{}

	var (
		triggerConfig []byte
		tagsJSON      []byte
		lastRunAt     sql.NullTime
	)

	err := row.Scan(
		&wf.ID, &wf.OwnerID, &wf.Name, &wf.Description, &wf.Status, &wf.IsActive,
		&wf.TriggerType, &triggerConfig, &wf.Version, &tagsJSON, &lastRunAt,
		&wf.CreatedAt, &wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastRunAt.Valid {
		wf.LastRunAt = &lastRunAt.Time
	}

	err = unmarshalJSONColumn(triggerConfig, &wf.TriggerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	if len(tagsJSON) > 0 {
		err = json.Unmarshal(tagsJSON, &wf.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return wf, nil
}

// unmarshalJSONColumn decodes a nullable JSONB column into a map.
func unmarshalJSONColumn(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, dst)
}
