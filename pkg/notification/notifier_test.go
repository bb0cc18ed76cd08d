package notification_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrix/orchestrix/pkg/events"
	"github.com/orchestrix/orchestrix/pkg/notification"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})

	return nil
}

func (m *recordingMailer) sentMails() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]sentMail(nil), m.sent...)
}

func completedEvent(userID string) *events.ExecutionCompleted {
	return &events.ExecutionCompleted{
		BaseEvent: events.BaseEvent{
			Type:       events.ExecutionCompletedEvent,
			WorkflowID: "wf-1",
		},
		ExecutionID: "exec-1",
		UserID:      userID,
		Duration:    42 * time.Second,
	}
}

func TestNotifyCompletedSendsMail(t *testing.T) {
	prefs := notification.NewStaticPreferences("")
	prefs.Set("user-1", notification.Preferences{Email: "user@example.com", EmailNotifications: true})

	mailer := &recordingMailer{}
	notifier := notification.NewNotifier(prefs, mailer, slog.Default())

	notifier.NotifyCompleted(context.Background(), completedEvent("user-1"))

	sent := mailer.sentMails()
	require.Len(t, sent, 1)
	assert.Equal(t, "user@example.com", sent[0].to)
	assert.Equal(t, "Workflow execution completed", sent[0].subject)
	assert.Contains(t, sent[0].body, "exec-1")
	assert.Contains(t, sent[0].body, "wf-1")
}

func TestNotifyFailedIncludesError(t *testing.T) {
	prefs := notification.NewStaticPreferences("")
	prefs.Set("user-1", notification.Preferences{Email: "user@example.com", EmailNotifications: true})

	mailer := &recordingMailer{}
	notifier := notification.NewNotifier(prefs, mailer, slog.Default())

	notifier.NotifyFailed(context.Background(), &events.ExecutionFailed{
		BaseEvent:   events.BaseEvent{WorkflowID: "wf-1"},
		ExecutionID: "exec-1",
		UserID:      "user-1",
		Error:       "Node start failed: boom",
	})

	sent := mailer.sentMails()
	require.Len(t, sent, 1)
	assert.Equal(t, "Workflow execution failed", sent[0].subject)
	assert.Contains(t, sent[0].body, "Node start failed: boom")
}

func TestDisabledPreferencesSuppressMail(t *testing.T) {
	prefs := notification.NewStaticPreferences("fallback@example.com")
	prefs.Set("user-1", notification.Preferences{Email: "user@example.com", EmailNotifications: false})

	mailer := &recordingMailer{}
	notifier := notification.NewNotifier(prefs, mailer, slog.Default())

	notifier.NotifyCompleted(context.Background(), completedEvent("user-1"))

	assert.Empty(t, mailer.sentMails())
}

func TestUnknownUserFallsBack(t *testing.T) {
	mailer := &recordingMailer{}

	// With a fallback address, unknown users are notified there.
	notifier := notification.NewNotifier(notification.NewStaticPreferences("ops@example.com"), mailer, slog.Default())
	notifier.NotifyCompleted(context.Background(), completedEvent("stranger"))

	sent := mailer.sentMails()
	require.Len(t, sent, 1)
	assert.Equal(t, "ops@example.com", sent[0].to)

	// Without one, nothing is sent.
	silent := &recordingMailer{}
	notifier = notification.NewNotifier(notification.NewStaticPreferences(""), silent, slog.Default())
	notifier.NotifyCompleted(context.Background(), completedEvent("stranger"))

	assert.Empty(t, silent.sentMails())
}

func TestMailerFailureIsSwallowed(t *testing.T) {
	prefs := notification.NewStaticPreferences("")
	prefs.Set("user-1", notification.Preferences{Email: "user@example.com", EmailNotifications: true})

	mailer := &recordingMailer{err: errors.New("relay down")}
	notifier := notification.NewNotifier(prefs, mailer, slog.Default())

	// Must not panic or propagate.
	notifier.NotifyCompleted(context.Background(), completedEvent("user-1"))

	assert.Empty(t, mailer.sentMails())
}
