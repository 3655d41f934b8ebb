package model

import (
	"time"

	"github.com/google/uuid"
)

type CallResult string

const (
	CallPending         CallResult = "pending"
	CallRinging         CallResult = "ringing"
	CallAnsweredHuman   CallResult = "answered-human"
	CallAnsweredMachine CallResult = "answered-machine"
	CallNoAnswer        CallResult = "no-answer"
	CallBusy            CallResult = "busy"
	CallFailed          CallResult = "failed"
	CallAcknowledged    CallResult = "acknowledged"
)

// IsTerminal reports whether the result ends the attempt (invariant: at most
// one attempt with result=pending per alert).
func (r CallResult) IsTerminal() bool {
	return r != CallPending && r != CallRinging
}

// CallAttempt is a single voice-call placement under an alert. Attempts are
// 1-based and sequenced: attempt n+1 is never scheduled before attempt n
// reaches a terminal result (spec §5).
type CallAttempt struct {
	ID             uuid.UUID
	AlertID        uuid.UUID
	ProviderCallID string
	AttemptNumber  int
	Result         CallResult
	DTMFReceived   string
	StartedAt      time.Time
	EndedAt        *time.Time
	ErrorCode      string
}
