package service

import (
	"context"

	"github.com/rs/zerolog"
)

// EventKind identifies a notification event emitted by the engine.
type EventKind string

const (
	EventDecisionRequested EventKind = "decision_requested"
	EventDecisionRecorded  EventKind = "decision_recorded"
	EventVersionPublished  EventKind = "version_published"
	EventVersionRejected   EventKind = "version_rejected"
	EventScheduleConflict  EventKind = "schedule_conflict"
	EventScheduleExecuted  EventKind = "schedule_executed"
	EventScheduleFailed    EventKind = "schedule_failed"
)

// Notifier is the fire-and-forget notification sink. Implementations must not
// return delivery failures to the engine; they log and move on.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind EventKind, payload map[string]any)
}

type logNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier returns a Notifier that records events to the structured log,
// the default sink when no mail/push transport is wired.
func NewLogNotifier(log zerolog.Logger) Notifier {
	return &logNotifier{log: log}
}

func (n *logNotifier) Notify(_ context.Context, userID string, kind EventKind, payload map[string]any) {
	n.log.Info().
		Str("user_id", userID).
		Str("event", string(kind)).
		Interface("payload", payload).
		Msg("notification")
}

// notifyAll fans one event out to a set of users; nil notifier is a no-op.
func notifyAll(ctx context.Context, n Notifier, users []string, kind EventKind, payload map[string]any) {
	if n == nil {
		return
	}
	for _, u := range users {
		n.Notify(ctx, u, kind, payload)
	}
}
