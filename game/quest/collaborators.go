package quest

import (
	"context"
	"time"

	"github.com/kasuganosora/focusquest/audit"
)

// Notifier shows the hero's quest status outside the app. All calls are best
// effort: failures are logged and never fail a transition.
type Notifier interface {
	ShowOngoing(ctx context.Context, heroID, questID string, endsAt time.Time) error
	ClearOngoing(ctx context.Context, heroID string) error
	ScheduleEnd(ctx context.Context, heroID, questID string, at time.Time) error
	CancelScheduledEnd(ctx context.Context, heroID string) error
	ShowCompleted(ctx context.Context, heroID, questID string, xp, gold int, items []string) error
}

// RemoteVerdict is an authoritative validator's answer for a completion.
type RemoteVerdict struct {
	Accepted bool
	// Seed, when non-zero, replaces the quest seed for the loot roll.
	Seed   int64
	Reason string
}

// RemoteValidator checks completions against an authority. On error the
// store falls back to local validation.
type RemoteValidator interface {
	Validate(ctx context.Context, q Quest, end time.Time) (RemoteVerdict, error)
}

// Auditor records lifecycle actions.
type Auditor interface {
	Log(entry audit.Entry)
}

type nopNotifier struct{}

func (nopNotifier) ShowOngoing(context.Context, string, string, time.Time) error { return nil }
func (nopNotifier) ClearOngoing(context.Context, string) error                   { return nil }
func (nopNotifier) ScheduleEnd(context.Context, string, string, time.Time) error { return nil }
func (nopNotifier) CancelScheduledEnd(context.Context, string) error             { return nil }
func (nopNotifier) ShowCompleted(context.Context, string, string, int, int, []string) error {
	return nil
}

type nopAuditor struct{}

func (nopAuditor) Log(audit.Entry) {}
