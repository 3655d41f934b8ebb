// Package event defines the closed set of domain events that flow from the
// incident state machine (C7) and cascade policy engine (C8) to the
// in-process event bus (internal/adapter/pubsub), replacing the dynamic
// parameter dispatch of the source with the tagged-variant style described
// in spec §9.
package event

import (
	"time"

	"github.com/google/uuid"
)

type Kind int16

const (
	KindIncidentOpened Kind = iota + 1
	KindIncidentAcknowledged
	KindIncidentCanceled
	KindCallTerminal
)

func (k Kind) RoutingKey() string {
	switch k {
	case KindIncidentOpened:
		return "incident.opened"
	case KindIncidentAcknowledged:
		return "incident.acknowledged"
	case KindIncidentCanceled:
		return "incident.canceled"
	case KindCallTerminal:
		return "call.terminal"
	default:
		return "unknown"
	}
}

// Eventer is the contract for every event published on the domain bus.
type Eventer interface {
	GetID() string
	GetKind() Kind
	GetIncidentID() uuid.UUID
	GetOccurredAt() int64
	GetRoutingKey() string
}

type base struct {
	ID         string
	IncidentID uuid.UUID
	OccurredAt int64
}

func newBase(incidentID uuid.UUID) base {
	return base{ID: uuid.NewString(), IncidentID: incidentID, OccurredAt: time.Now().UnixNano()}
}

func (b base) GetID() string             { return b.ID }
func (b base) GetIncidentID() uuid.UUID  { return b.IncidentID }
func (b base) GetOccurredAt() int64      { return b.OccurredAt }

// IncidentOpened seeds the cascade (consumed by C8).
type IncidentOpened struct {
	base
	TravelerID uuid.UUID
}

func NewIncidentOpened(incidentID, travelerID uuid.UUID) IncidentOpened {
	return IncidentOpened{base: newBase(incidentID), TravelerID: travelerID}
}
func (e IncidentOpened) GetKind() Kind        { return KindIncidentOpened }
func (e IncidentOpened) GetRoutingKey() string { return KindIncidentOpened.RoutingKey() }

// IncidentAcknowledged fans out hangups/edits to guardians (consumed by C8).
type IncidentAcknowledged struct {
	base
	ByUserID uuid.UUID
}

func NewIncidentAcknowledged(incidentID, byUserID uuid.UUID) IncidentAcknowledged {
	return IncidentAcknowledged{base: newBase(incidentID), ByUserID: byUserID}
}
func (e IncidentAcknowledged) GetKind() Kind        { return KindIncidentAcknowledged }
func (e IncidentAcknowledged) GetRoutingKey() string { return KindIncidentAcknowledged.RoutingKey() }

// IncidentCanceled fans out "canceled by traveler" edits (consumed by C8).
type IncidentCanceled struct {
	base
	ByUserID uuid.UUID
}

func NewIncidentCanceled(incidentID, byUserID uuid.UUID) IncidentCanceled {
	return IncidentCanceled{base: newBase(incidentID), ByUserID: byUserID}
}
func (e IncidentCanceled) GetKind() Kind        { return KindIncidentCanceled }
func (e IncidentCanceled) GetRoutingKey() string { return KindIncidentCanceled.RoutingKey() }

// CallTerminal describes a voice attempt reaching a terminal result. Nothing
// publishes or subscribes to it: the voice webhook hands call results to
// cascade.Engine.HandleCallResult directly.
type CallTerminal struct {
	base
	AlertID  uuid.UUID
	AudienceID uuid.UUID
}

func NewCallTerminal(incidentID, alertID, audienceID uuid.UUID) CallTerminal {
	return CallTerminal{base: newBase(incidentID), AlertID: alertID, AudienceID: audienceID}
}
func (e CallTerminal) GetKind() Kind        { return KindCallTerminal }
func (e CallTerminal) GetRoutingKey() string { return KindCallTerminal.RoutingKey() }
