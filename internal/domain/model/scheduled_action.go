package model

import (
	"time"

	"github.com/google/uuid"
)

type ScheduledActionState string

const (
	ScheduledActionScheduled ScheduledActionState = "scheduled"
	ScheduledActionRunning   ScheduledActionState = "running"
	ScheduledActionDone      ScheduledActionState = "done"
	ScheduledActionCanceled  ScheduledActionState = "canceled"
	ScheduledActionFailed    ScheduledActionState = "failed"
)

// Well-known ActionType values handled by the registry in internal/scheduler.
const (
	ActionPlaceCallAttempt = "place_call_attempt"
	ActionSendReminder     = "send_reminder"
)

// ScheduledAction is a durable, at-least-once timer entry. The durable
// scheduler (internal/scheduler) polls rows where State=Scheduled and
// RunAt<=now, using SELECT ... FOR UPDATE SKIP LOCKED so only one runner
// claims a given row (spec §4.4).
type ScheduledAction struct {
	ID         uuid.UUID
	IncidentID uuid.UUID
	ActionType string
	RunAt      time.Time
	State      ScheduledActionState
	Payload    []byte
	Attempts   int
	// ClaimedAt is set when a runner moves the row to Running; crash
	// recovery compares against this, not RunAt, so a backlogged row that
	// was already overdue when claimed isn't immediately eligible for
	// recovery.
	ClaimedAt *time.Time
}
