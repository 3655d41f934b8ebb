package model

import (
	"time"

	"github.com/google/uuid"
)

// IncidentStatus tracks the panic-incident lifecycle. Once it leaves Open it
// is terminal: the incident service only writes a transition after checking
// Status=open under the advisory lock (spec invariant: terminal statuses are
// monotonic); the store layer itself does not check.
type IncidentStatus string

const (
	IncidentOpen         IncidentStatus = "open"
	IncidentAcknowledged IncidentStatus = "acknowledged"
	IncidentCanceled     IncidentStatus = "canceled"
)

// AckVia records which channel produced an acknowledgment, for audit and for
// the acknowledged_by_user_id tie-break described in spec §4.8.
type AckVia string

const (
	AckViaChatButton AckVia = "chat-button"
	AckViaDTMF       AckVia = "dtmf"
)

type Incident struct {
	ID               uuid.UUID
	TravelerID       uuid.UUID
	Status           IncidentStatus
	CreatedAt        time.Time
	AcknowledgedAt   *time.Time
	AcknowledgedByID *uuid.UUID
	AcknowledgedVia  *AckVia
	CanceledAt       *time.Time
	CanceledByID     *uuid.UUID
}

// IsOpen reports whether the incident still accepts cascade activity.
func (i *Incident) IsOpen() bool {
	return i.Status == IncidentOpen
}

// IncidentEventKind enumerates the audit-trail entries appended alongside
// every state transition (SPEC_FULL.md §3 audit trail addition).
type IncidentEventKind string

const (
	IncidentEventOpened       IncidentEventKind = "opened"
	IncidentEventAcknowledged IncidentEventKind = "acknowledged"
	IncidentEventCanceled     IncidentEventKind = "canceled"
)

type IncidentEvent struct {
	ID          uuid.UUID
	IncidentID  uuid.UUID
	Kind        IncidentEventKind
	ActorUserID *uuid.UUID
	OccurredAt  time.Time
	Detail      map[string]any
}
