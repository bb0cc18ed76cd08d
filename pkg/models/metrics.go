package models

import "time"

// ExecutionMetrics stores aggregated execution counts and durations per
// (workflow, user, date). Rows are upserted by the daily aggregation job and
// never mutated elsewhere.
type ExecutionMetrics struct {
	ID                   string        `json:"id"`
	WorkflowID           string        `json:"workflow_id"`
	UserID               string        `json:"user_id"`
	Date                 time.Time     `json:"date"` // Truncated to day, UTC
	TotalExecutions      int           `json:"total_executions"`
	SuccessfulExecutions int           `json:"successful_executions"`
	FailedExecutions     int           `json:"failed_executions"`
	AvgDuration          time.Duration `json:"avg_duration"`
	TotalDuration        time.Duration `json:"total_duration"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// SuccessRate returns the percentage of successful executions.
func (m *ExecutionMetrics) SuccessRate() float64 {
	if m.TotalExecutions == 0 {
		return 0
	}

	return float64(m.SuccessfulExecutions) / float64(m.TotalExecutions) * 100
}

// FailureRate returns the percentage of failed executions.
func (m *ExecutionMetrics) FailureRate() float64 {
	if m.TotalExecutions == 0 {
		return 0
	}

	return float64(m.FailedExecutions) / float64(m.TotalExecutions) * 100
}
