package model

import (
	"time"

	"github.com/google/uuid"
)

// InboxEvent is the deduplication record for one inbound provider callback.
// Uniqueness is (Provider, ProviderEventID); a duplicate insert is rejected
// at the database constraint, not re-derived in Go (spec invariant 3).
type InboxEvent struct {
	ID             uuid.UUID
	Provider       string
	ProviderEventID string
	ReceivedAt     time.Time
	RawPayload     []byte
	ProcessedAt    *time.Time
}
