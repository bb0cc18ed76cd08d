package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/orchestrix/orchestrix/pkg/eventbus"
	"github.com/orchestrix/orchestrix/pkg/events"
)

// Preferences holds a user's notification settings. Email notifications
// default to enabled when no record exists for the user.
type Preferences struct {
	Email              string
	EmailNotifications bool
}

// PreferenceSource resolves notification preferences per user.
type PreferenceSource interface {
	PreferencesFor(ctx context.Context, userID string) (*Preferences, error)
}

// StaticPreferences is an in-memory PreferenceSource for development and
// single-tenant deployments. Unknown users get notifications enabled when a
// fallback address is set.
type StaticPreferences struct {
	mu       sync.RWMutex
	users    map[string]Preferences
	fallback string
}

func NewStaticPreferences(fallback string) *StaticPreferences {
	return &StaticPreferences{
		users:    make(map[string]Preferences),
		fallback: fallback,
	}
}

func (s *StaticPreferences) Set(userID string, prefs Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = prefs
}

func (s *StaticPreferences) PreferencesFor(_ context.Context, userID string) (*Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if prefs, ok := s.users[userID]; ok {
		return &prefs, nil
	}

	return &Preferences{
		Email:              s.fallback,
		EmailNotifications: s.fallback != "",
	}, nil
}

// Notifier sends execution outcome mail. It is event-driven: it subscribes to
// completion and failure events and never sits on the execution path, so a
// slow or broken mail relay cannot slow a run down. Send failures are logged
// and dropped.
type Notifier struct {
	preferences PreferenceSource
	mailer      Mailer
	logger      *slog.Logger
}

func NewNotifier(preferences PreferenceSource, mailer Mailer, logger *slog.Logger) *Notifier {
	return &Notifier{
		preferences: preferences,
		mailer:      mailer,
		logger:      logger.With("module", "notifier"),
	}
}

// Register hooks the notifier into the event bus.
func (n *Notifier) Register(bus eventbus.EventSubscriber) error {
	err := bus.Handle(events.ExecutionCompletedEvent, func(ctx context.Context, event any) error {
		if completed, ok := event.(*events.ExecutionCompleted); ok {
			n.NotifyCompleted(ctx, completed)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return bus.Handle(events.ExecutionFailedEvent, func(ctx context.Context, event any) error {
		if failed, ok := event.(*events.ExecutionFailed); ok {
			n.NotifyFailed(ctx, failed)
		}

		return nil
	})
}

func (n *Notifier) NotifyCompleted(ctx context.Context, event *events.ExecutionCompleted) {
	subject := "Workflow execution completed"
	body := fmt.Sprintf(
		"Your workflow %s completed successfully.\n\nExecution: %s\nDuration: %s\n",
		event.WorkflowID, event.ExecutionID, event.Duration)

	n.send(ctx, event.UserID, subject, body)
}

func (n *Notifier) NotifyFailed(ctx context.Context, event *events.ExecutionFailed) {
	subject := "Workflow execution failed"
	body := fmt.Sprintf(
		"Your workflow %s failed.\n\nExecution: %s\nError: %s\nDuration: %s\n",
		event.WorkflowID, event.ExecutionID, event.Error, event.Duration)

	n.send(ctx, event.UserID, subject, body)
}

func (n *Notifier) send(ctx context.Context, userID, subject, body string) {
	prefs, err := n.preferences.PreferencesFor(ctx, userID)
	if err != nil {
		n.logger.ErrorContext(ctx, "Failed to load notification preferences",
			"user_id", userID, "error", err)

		return
	}

	if !prefs.EmailNotifications || prefs.Email == "" {
		n.logger.DebugContext(ctx, "Notification suppressed by preferences", "user_id", userID)

		return
	}

	err = n.mailer.Send(ctx, prefs.Email, subject, body)
	if err != nil {
		n.logger.ErrorContext(ctx, "Failed to send notification mail",
			"user_id", userID, "error", err)

		return
	}

	n.logger.InfoContext(ctx, "Notification sent", "user_id", userID, "subject", subject)
}
