package email

import (
	"context"

	"github.com/orchestrix/orchestrix/pkg/notification"
	"github.com/orchestrix/orchestrix/pkg/protocol"
)

type EmailNodeFactory struct {
	mailer notification.Mailer
}

func NewEmailNodeFactory(mailer notification.Mailer) *EmailNodeFactory {
	return &EmailNodeFactory{mailer: mailer}
}

func (f *EmailNodeFactory) Create(_ context.Context, nodeID string, config map[string]any) (protocol.NodeHandler, error) {
	return NewEmailNode(nodeID, config, f.mailer)
}

func (f *EmailNodeFactory) ID() string {
	return "email"
}

func (f *EmailNodeFactory) Name() string {
	return "Email"
}

func (f *EmailNodeFactory) Description() string {
	return "Sends an email through the configured mail transport"
}

func (f *EmailNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"to_email"},
		"properties": map[string]any{
			"to_email": map[string]any{"type": "string"},
			"subject":  map[string]any{"type": "string"},
			"message":  map[string]any{"type": "string"},
		},
	}
}
