package dto

import (
	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
)

// SessionAvailabilityResponse represents computed capacity for one session
type SessionAvailabilityResponse struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier"`
	Capacity   int    `json:"capacity"`
	Sold       int    `json:"sold"`
	Available  int    `json:"available"`
}

// TicketTypeAvailabilityResponse represents sellability of one ticket type
type TicketTypeAvailabilityResponse struct {
	TicketTypeID string `json:"ticket_type_id"`
	Name         string `json:"name"`
	Available    int    `json:"available"`
	Unlimited    bool   `json:"unlimited"`
	Purchasable  bool   `json:"purchasable"`
	Reason       string `json:"reason,omitempty"`
}

// EventAvailabilityResponse is the full capacity picture for an event
type EventAvailabilityResponse struct {
	EventID     string                           `json:"event_id"`
	Sessions    []SessionAvailabilityResponse    `json:"sessions"`
	TicketTypes []TicketTypeAvailabilityResponse `json:"ticket_types"`
}

// SessionAvailabilityFromDomain converts a computed domain value
func SessionAvailabilityFromDomain(sa domain.SessionAvailability) SessionAvailabilityResponse {
	return SessionAvailabilityResponse{
		SessionID:  sa.SessionID,
		Identifier: sa.Identifier,
		Capacity:   sa.Capacity,
		Sold:       sa.Sold,
		Available:  sa.Available,
	}
}
