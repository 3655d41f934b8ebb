package model

import (
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxMessage records the intent to invoke a provider exactly once per
// IdempotencyKey (spec invariant 4). A duplicate Send() for the same key
// returns the previously stored ProviderMessageID without a new call.
type OutboxMessage struct {
	ID                uuid.UUID
	IdempotencyKey    string
	Channel           AlertChannel
	Payload           []byte
	Status            OutboxStatus
	ProviderMessageID string
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
