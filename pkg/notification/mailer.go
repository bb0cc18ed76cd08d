// Package notification provides the outbound mail transport and the
// execution-outcome notifier.
package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends an email to a single recipient. Implementations must be safe
// for concurrent use.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig configures the SMTP mail transport.
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	config SMTPConfig
}

func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: config}
}

func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	message := strings.Join([]string{
		"From: " + m.config.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if m.config.Username != "" {
		host := m.config.Addr
		if idx := strings.Index(host, ":"); idx >= 0 {
			host = host[:idx]
		}

		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, host)
	}

	err := smtp.SendMail(m.config.Addr, auth, m.config.From, []string{to}, []byte(message))
	if err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", to, err)
	}

	return nil
}
