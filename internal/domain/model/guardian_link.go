package model

import (
	"time"

	"github.com/google/uuid"
)

// GuardianLinkStatus is the lifecycle of a traveler-guardian relationship.
type GuardianLinkStatus string

const (
	GuardianLinkActive  GuardianLinkStatus = "active"
	GuardianLinkRevoked GuardianLinkStatus = "revoked"
)

// GuardianLink declares one guardian's responsibilities for one traveler.
// Uniqueness is (TravelerID, WatcherID); priority rank plus CreatedAt impose
// a total per-traveler contact order (spec invariant 5).
type GuardianLink struct {
	ID                 uuid.UUID
	TravelerID         uuid.UUID
	WatcherID          uuid.UUID
	PriorityRank       int
	RingTimeoutSeconds int
	MaxRetries         int
	RetryBackoffSeconds int
	ChatEnabled        bool
	CallEnabled        bool
	Status             GuardianLinkStatus
	CreatedAt          time.Time
}
