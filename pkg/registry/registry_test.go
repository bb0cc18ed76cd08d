package registry_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrix/orchestrix/pkg/expression"
	"github.com/orchestrix/orchestrix/pkg/notification"
	"github.com/orchestrix/orchestrix/pkg/registry"
)

type nopMailer struct{}

func (nopMailer) Send(_ context.Context, _, _, _ string) error { return nil }

func newDefaultRegistry() *registry.Registry {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultNodes(expression.NewEvaluator(slog.Default()), nopMailer{})

	return reg
}

var _ notification.Mailer = nopMailer{}

func TestRegisterDefaultNodes(t *testing.T) {
	reg := newDefaultRegistry()

	for _, nodeType := range []string{"trigger", "condition", "api_call", "email", "ai_chat", "ai_completion"} {
		assert.True(t, reg.IsRegistered(nodeType), "type %s", nodeType)
	}

	assert.Len(t, reg.AvailableTypes(), 6)
}

func TestCreateHandlerUnknownType(t *testing.T) {
	reg := newDefaultRegistry()

	_, err := reg.CreateHandler(context.Background(), "teleport", "node-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnknownNodeType)
}

func TestCreateHandlerPropagatesConfigErrors(t *testing.T) {
	reg := newDefaultRegistry()

	// Condition nodes require a condition expression.
	_, err := reg.CreateHandler(context.Background(), "condition", "node-1", map[string]any{})
	require.Error(t, err)
}
