package model

import "github.com/google/uuid"

type AlertChannel string

const (
	ChannelChat  AlertChannel = "chat"
	ChannelVoice AlertChannel = "voice"
)

type AlertStatus string

const (
	AlertPending   AlertStatus = "pending"
	AlertSent      AlertStatus = "sent"
	AlertDelivered AlertStatus = "delivered"
	AlertFailed    AlertStatus = "failed"
	AlertHalted    AlertStatus = "halted"
)

// Alert is the intent to contact one guardian via one channel for one
// incident. Uniqueness is (IncidentID, AudienceUserID, Channel).
type Alert struct {
	ID             uuid.UUID
	IncidentID     uuid.UUID
	AudienceUserID uuid.UUID
	Channel        AlertChannel
	Status         AlertStatus
	Attempts       int
	LastError      string
}
