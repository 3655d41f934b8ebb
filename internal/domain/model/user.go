package model

import "github.com/google/uuid"

// User is a traveler or guardian known to the system. The same row serves
// both roles; whether a user acts as traveler or guardian is determined by
// which side of a GuardianLink references it.
type User struct {
	ID             uuid.UUID
	ChatProviderID string // unique per chat provider, e.g. Telegram user id
	PhoneE164      string
	DisplayName    string
}
