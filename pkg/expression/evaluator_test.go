package expression_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrix/orchestrix/pkg/expression"
)

func newEvaluator() *expression.Evaluator {
	return expression.NewEvaluator(slog.Default())
}

func TestEvaluateBoolLiterals(t *testing.T) {
	evaluator := newEvaluator()

	trueLiterals := []string{"true", "True", "TRUE", "1", "yes", " yes "}
	for _, literal := range trueLiterals {
		assert.True(t, evaluator.EvaluateBool(literal, nil), "literal %q", literal)
	}

	falseLiterals := []string{"false", "False", "0", "no", "NO"}
	for _, literal := range falseLiterals {
		assert.False(t, evaluator.EvaluateBool(literal, nil), "literal %q", literal)
	}
}

func TestEvaluateBoolExpressions(t *testing.T) {
	evaluator := newEvaluator()

	assert.True(t, evaluator.EvaluateBool("amount > 100", map[string]any{"amount": 150}))
	assert.False(t, evaluator.EvaluateBool("amount > 100", map[string]any{"amount": 50}))
	assert.True(t, evaluator.EvaluateBool(`status == "active" && amount > 100`, map[string]any{
		"status": "active",
		"amount": 150,
	}))
}

func TestEvaluateBoolDegradesToFalse(t *testing.T) {
	evaluator := newEvaluator()

	// Malformed expression.
	assert.False(t, evaluator.EvaluateBool("amount >", map[string]any{"amount": 150}))

	// Non-boolean result.
	assert.False(t, evaluator.EvaluateBool("amount + 1", map[string]any{"amount": 150}))

	// Empty expression.
	assert.False(t, evaluator.EvaluateBool("", nil))

	// Undefined variables evaluate against nil, not panic.
	assert.False(t, evaluator.EvaluateBool("missing > 100", map[string]any{}))
}

func TestEvaluateReusesCompiledPrograms(t *testing.T) {
	evaluator := newEvaluator()

	result, err := evaluator.Evaluate("amount * 2", map[string]any{"amount": 21})
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	// Second evaluation hits the cache and still sees fresh data.
	result, err = evaluator.Evaluate("amount * 2", map[string]any{"amount": 10})
	require.NoError(t, err)
	assert.Equal(t, 20, result)
}
