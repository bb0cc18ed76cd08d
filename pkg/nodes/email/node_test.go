package email_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrix/orchestrix/pkg/nodes/email"
)

type nopLogSink struct{}

func (nopLogSink) Append(_, _ string, _ map[string]any) {}

type recordingMailer struct {
	to      string
	subject string
	body    string
	err     error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}

	m.to = to
	m.subject = subject
	m.body = body

	return nil
}

func TestNewEmailNodeRequiresRecipient(t *testing.T) {
	_, err := email.NewEmailNode("n1", map[string]any{}, &recordingMailer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "to_email")
}

func TestEmailNodeSendsWithDefaults(t *testing.T) {
	mailer := &recordingMailer{}

	node, err := email.NewEmailNode("n1", map[string]any{"to_email": "user@example.com"}, mailer)
	require.NoError(t, err)

	output, err := node.Execute(context.Background(), nil, nopLogSink{})
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", mailer.to)
	assert.Equal(t, "Workflow Notification", mailer.subject)
	assert.Equal(t, true, output["email_sent"])
	assert.Equal(t, "user@example.com", output["to_email"])
	assert.NotEmpty(t, output["sent_at"])
}

func TestEmailNodeCustomSubjectAndMessage(t *testing.T) {
	mailer := &recordingMailer{}

	node, err := email.NewEmailNode("n1", map[string]any{
		"to_email": "user@example.com",
		"subject":  "Order shipped",
		"message":  "Your order is on its way.",
	}, mailer)
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), nil, nopLogSink{})
	require.NoError(t, err)

	assert.Equal(t, "Order shipped", mailer.subject)
	assert.Equal(t, "Your order is on its way.", mailer.body)
}

func TestEmailNodePropagatesSendFailure(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("relay down")}

	node, err := email.NewEmailNode("n1", map[string]any{"to_email": "user@example.com"}, mailer)
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), nil, nopLogSink{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")
}
