// Package email provides the email node handler, sending mail through the
// configured transport.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orchestrix/orchestrix/pkg/notification"
	"github.com/orchestrix/orchestrix/pkg/protocol"
)

type EmailNode struct {
	id      string
	to      string
	subject string
	message string
	mailer  notification.Mailer
}

func NewEmailNode(id string, config map[string]any, mailer notification.Mailer) (*EmailNode, error) {
	to, ok := config["to_email"].(string)
	if !ok || to == "" {
		return nil, errors.New("missing required field 'to_email'")
	}

	node := &EmailNode{
		id:      id,
		to:      to,
		subject: "Workflow Notification",
		message: "This is a notification from your workflow.",
		mailer:  mailer,
	}

	if subject, ok := config["subject"].(string); ok && subject != "" {
		node.subject = subject
	}

	if message, ok := config["message"].(string); ok && message != "" {
		node.message = message
	}

	return node, nil
}

func (n *EmailNode) Execute(ctx context.Context, _ map[string]any, logs protocol.LogSink) (map[string]any, error) {
	logs.Append("info", fmt.Sprintf("Sending email to %s", n.to), nil)

	err := n.mailer.Send(ctx, n.to, n.subject, n.message)
	if err != nil {
		logs.Append("error", fmt.Sprintf("Email sending failed: %v", err), nil)

		return nil, err
	}

	return map[string]any{
		"email_sent": true,
		"to_email":   n.to,
		"subject":    n.subject,
		"sent_at":    time.Now().UTC().Format(time.RFC3339),
	}, nil
}
