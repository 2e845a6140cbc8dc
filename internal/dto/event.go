package dto

import (
	"time"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
)

// CreateEventRequest represents request to create an event
type CreateEventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date" binding:"required"`
	EndDate     time.Time `json:"end_date" binding:"required"`
	Location    string    `json:"location" binding:"required"`
	Capacity    int       `json:"capacity"`
}

// AddSessionRequest represents request to add a session to an event
type AddSessionRequest struct {
	Identifier string    `json:"identifier" binding:"required"`
	Name       string    `json:"name" binding:"required"`
	StartTime  time.Time `json:"start_time" binding:"required"`
	EndTime    time.Time `json:"end_time" binding:"required"`
	Capacity   int       `json:"capacity" binding:"required,min=1"`
	IsRequired bool      `json:"is_required"`
}

// AddTicketTypeRequest represents request to add a ticket type to an event
type AddTicketTypeRequest struct {
	Name               string     `json:"name" binding:"required"`
	Description        string     `json:"description"`
	IncludedSessionIDs []string   `json:"included_session_ids"`
	MinPrice           float64    `json:"min_price"`
	MaxPrice           float64    `json:"max_price"`
	QuantityAvailable  *int       `json:"quantity_available,omitempty"`
	SalesStart         *time.Time `json:"sales_start,omitempty"`
	SalesEnd           *time.Time `json:"sales_end,omitempty"`
}

// EventResponse represents an event in API responses
type EventResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Location    string    `json:"location"`
	Capacity    int       `json:"capacity"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionResponse represents a session in API responses
type SessionResponse struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	Identifier string    `json:"identifier"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Capacity   int       `json:"capacity"`
	IsRequired bool      `json:"is_required"`
	IsActive   bool      `json:"is_active"`
}

// TicketTypeResponse represents a ticket type in API responses
type TicketTypeResponse struct {
	ID                 string     `json:"id"`
	EventID            string     `json:"event_id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	IncludedSessionIDs []string   `json:"included_session_ids"`
	MinPrice           float64    `json:"min_price"`
	MaxPrice           float64    `json:"max_price"`
	QuantityAvailable  *int       `json:"quantity_available,omitempty"`
	SalesStart         *time.Time `json:"sales_start,omitempty"`
	SalesEnd           *time.Time `json:"sales_end,omitempty"`
	IsActive           bool       `json:"is_active"`
}

// EventDetailResponse bundles an event with its sessions and ticket types
type EventDetailResponse struct {
	Event       EventResponse        `json:"event"`
	Sessions    []SessionResponse    `json:"sessions"`
	TicketTypes []TicketTypeResponse `json:"ticket_types"`
}

// EventFromDomain converts a domain Event to EventResponse
func EventFromDomain(e *domain.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
		Location:    e.Location,
		Capacity:    e.Capacity,
		IsPublished: e.IsPublished,
		CreatedAt:   e.CreatedAt,
	}
}

// SessionFromDomain converts a domain Session to SessionResponse
func SessionFromDomain(s *domain.Session) SessionResponse {
	return SessionResponse{
		ID:         s.ID,
		EventID:    s.EventID,
		Identifier: s.Identifier,
		Name:       s.Name,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		Capacity:   s.Capacity,
		IsRequired: s.IsRequired,
		IsActive:   s.IsActive,
	}
}

// TicketTypeFromDomain converts a domain TicketType to TicketTypeResponse
func TicketTypeFromDomain(t *domain.TicketType) TicketTypeResponse {
	return TicketTypeResponse{
		ID:                 t.ID,
		EventID:            t.EventID,
		Name:               t.Name,
		Description:        t.Description,
		IncludedSessionIDs: t.IncludedSessionIDs,
		MinPrice:           t.MinPrice,
		MaxPrice:           t.MaxPrice,
		QuantityAvailable:  t.QuantityAvailable,
		SalesStart:         t.SalesStart,
		SalesEnd:           t.SalesEnd,
		IsActive:           t.IsActive,
	}
}

// EventDetailFromDomain converts a full aggregate to EventDetailResponse
func EventDetailFromDomain(agg *domain.EventAggregate) *EventDetailResponse {
	out := &EventDetailResponse{
		Event:       EventFromDomain(&agg.Event),
		Sessions:    make([]SessionResponse, 0, len(agg.Sessions)),
		TicketTypes: make([]TicketTypeResponse, 0, len(agg.TicketTypes)),
	}
	for i := range agg.Sessions {
		out.Sessions = append(out.Sessions, SessionFromDomain(&agg.Sessions[i]))
	}
	for i := range agg.TicketTypes {
		out.TicketTypes = append(out.TicketTypes, TicketTypeFromDomain(&agg.TicketTypes[i]))
	}
	return out
}
