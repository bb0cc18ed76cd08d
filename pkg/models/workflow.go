// Package models defines the core domain models for node-based workflow automation
package models

import (
	"sort"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily not executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, not executable
)

// TriggerType represents how a workflow is meant to be started.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"
	TriggerTypeScheduled TriggerType = "scheduled"
	TriggerTypeWebhook   TriggerType = "webhook"
	TriggerTypeAPI       TriggerType = "api"
	TriggerTypeEvent     TriggerType = "event"
)

// Workflow represents a node-based workflow definition. The execution engine
// treats workflows as read-only: they are supplied by an external definition
// provider and never mutated during a run.
type Workflow struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Name          string          `json:"name"           validate:"required,min=3"`
	Description   string          `json:"description"`
	Status        WorkflowStatus  `json:"status"         validate:"required"`
	IsActive      bool            `json:"is_active"`
	TriggerType   TriggerType     `json:"trigger_type"`
	TriggerConfig map[string]any  `json:"trigger_config,omitempty"`
	Nodes         []*WorkflowNode `json:"nodes"`
	Version       int             `json:"version"`
	Tags          []string        `json:"tags,omitempty"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Runnable reports whether the workflow can be executed.
func (w *Workflow) Runnable() bool {
	return w.IsActive && w.Status == WorkflowStatusActive
}

// RootNodes returns the nodes with no parent, in execution order.
func (w *Workflow) RootNodes() []*WorkflowNode {
	roots := make([]*WorkflowNode, 0, len(w.Nodes))

	for _, node := range w.Nodes {
		if node.ParentNodeID == nil {
			roots = append(roots, node)
		}
	}

	SortNodes(roots)

	return roots
}

// ChildNodes returns the children of the given node, in execution order.
func (w *Workflow) ChildNodes(parentID string) []*WorkflowNode {
	children := make([]*WorkflowNode, 0)

	for _, node := range w.Nodes {
		if node.ParentNodeID != nil && *node.ParentNodeID == parentID {
			children = append(children, node)
		}
	}

	SortNodes(children)

	return children
}

// NodeByID returns the node with the given ID, or nil.
func (w *Workflow) NodeByID(nodeID string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == nodeID {
			return node
		}
	}

	return nil
}

// WorkflowNode represents a node instance in a workflow. Position coordinates
// double as the execution order key for sibling nodes.
type WorkflowNode struct {
	ID           string         `json:"id"             validate:"required"`
	WorkflowID   string         `json:"workflow_id"`
	ParentNodeID *string        `json:"parent_node_id,omitempty"`
	Type         string         `json:"type"           validate:"required"`
	Name         string         `json:"name"           validate:"required,min=1"`
	Config       map[string]any `json:"config"`
	InputSchema  map[string]any `json:"input_schema,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
	PositionX    float64        `json:"position_x"`
	PositionY    float64        `json:"position_y"`
}

// SortNodes orders nodes by (position_x, position_y, id). The node ID is the
// final tie-break so sibling order is a deterministic total order.
func SortNodes(nodes []*WorkflowNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].PositionX != nodes[j].PositionX {
			return nodes[i].PositionX < nodes[j].PositionX
		}

		if nodes[i].PositionY != nodes[j].PositionY {
			return nodes[i].PositionY < nodes[j].PositionY
		}

		return nodes[i].ID < nodes[j].ID
	})
}
