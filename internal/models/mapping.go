package models

import "time"

// MappingStatus is the lifecycle state of a mapping record.
type MappingStatus string

const (
	MappingActive MappingStatus = "active"
	MappingClosed MappingStatus = "closed"
)

// MappingRecord links one alert identity to the ticket created for it.
// At most one active record exists per alert identity; records are kept
// after closure for idempotence and audit.
type MappingRecord struct {
	AlertID   string        `json:"alert_id"`
	TicketID  string        `json:"ticket_id"`
	Status    MappingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewMapping returns an active mapping record for the given pair.
func NewMapping(alertID, ticketID string, now time.Time) MappingRecord {
	return MappingRecord{
		AlertID:   alertID,
		TicketID:  ticketID,
		Status:    MappingActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Active reports whether the record still points at an open ticket.
func (m MappingRecord) Active() bool {
	return m.Status == MappingActive
}
