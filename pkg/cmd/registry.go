// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"os"

	"github.com/orchestrix/orchestrix/pkg/expression"
	"github.com/orchestrix/orchestrix/pkg/notification"
	"github.com/orchestrix/orchestrix/pkg/registry"
)

func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	evaluator := expression.NewEvaluator(logger)
	reg.RegisterDefaultNodes(evaluator, NewMailer())

	return reg
}

// NewMailer builds the SMTP transport from the environment. Deployments
// without SMTP settings get a mailer pointed at localhost, which suits
// development setups running a local relay.
func NewMailer() notification.Mailer {
	addr := os.Getenv("SMTP_ADDR")
	if addr == "" {
		addr = "localhost:25"
	}

	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "noreply@localhost"
	}

	return notification.NewSMTPMailer(notification.SMTPConfig{
		Addr:     addr,
		From:     from,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
	})
}
