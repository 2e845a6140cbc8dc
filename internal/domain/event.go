package domain

import (
	"time"
)

// Event aggregates sessions, ticket types and enrollments. When an event has
// sessions, per-session capacity governs availability; otherwise the flat
// Capacity field does.
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Location     string    `json:"location"`
	Capacity     int       `json:"capacity"`
	IsPublished  bool      `json:"is_published"`
	OrganizerIDs []string  `json:"organizer_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks the authoring invariants for a new event.
func (e *Event) Validate(now time.Time) error {
	if !e.EndDate.After(e.StartDate) {
		return ErrInvalidDateRange
	}
	if !e.StartDate.After(now) {
		return ErrEventInPast
	}
	if e.Capacity < 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// OverlapsWith reports whether two [start, end) intervals intersect.
func (e *Event) OverlapsWith(start, end time.Time) bool {
	return e.StartDate.Before(end) && e.EndDate.After(start)
}

// IsOrganizer reports whether the user owns this event.
func (e *Event) IsOrganizer(userID string) bool {
	for _, id := range e.OrganizerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Session is a scheduled time-block within an event with its own capacity.
// Sold counts are always recomputed from non-cancelled enrollments, never
// trusted as a stored counter.
type Session struct {
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

// Validate checks the authoring invariants for a new session.
func (s *Session) Validate() error {
	if !s.EndTime.After(s.StartTime) {
		return ErrInvalidDateRange
	}
	if s.Capacity < 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// TicketType is a purchasable product bundling zero or more sessions. An
// empty IncludedSessionIDs set means a whole-event ticket.
type TicketType struct {
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

// Validate checks the authoring invariants for a new ticket type.
func (t *TicketType) Validate() error {
	if t.MinPrice < 0 || t.MinPrice > t.MaxPrice {
		return ErrInvalidPriceRange
	}
	if t.SalesStart != nil && t.SalesEnd != nil && !t.SalesEnd.After(*t.SalesStart) {
		return ErrInvalidDateRange
	}
	return nil
}

// InSalesWindow reports whether sales are open at the given instant. A nil
// bound is open-ended on that side.
func (t *TicketType) InSalesWindow(now time.Time) bool {
	if t.SalesStart != nil && now.Before(*t.SalesStart) {
		return false
	}
	if t.SalesEnd != nil && now.After(*t.SalesEnd) {
		return false
	}
	return true
}

// IsFree reports whether the ticket type has no price attached.
func (t *TicketType) IsFree() bool {
	return t.MaxPrice == 0
}

// AcceptsAmount reports whether an offered sliding-scale amount falls inside
// the [MinPrice, MaxPrice] band.
func (t *TicketType) AcceptsAmount(amount float64) bool {
	return amount >= t.MinPrice && amount <= t.MaxPrice
}

// EventAggregate is the full read state used by the availability calculator:
// the event, its sessions and ticket types, and the non-cancelled enrollments
// currently holding capacity.
type EventAggregate struct {
	Event       Event
	Sessions    []Session
	TicketTypes []TicketType
	Enrollments []Enrollment
}

// SessionByID returns the session with the given id, if present.
func (a *EventAggregate) SessionByID(id string) (*Session, bool) {
	for i := range a.Sessions {
		if a.Sessions[i].ID == id {
			return &a.Sessions[i], true
		}
	}
	return nil, false
}

// TicketTypeByID returns the ticket type with the given id, if present.
func (a *EventAggregate) TicketTypeByID(id string) (*TicketType, bool) {
	for i := range a.TicketTypes {
		if a.TicketTypes[i].ID == id {
			return &a.TicketTypes[i], true
		}
	}
	return nil, false
}

// HasSessions reports whether per-session capacity governs this event.
func (a *EventAggregate) HasSessions() bool {
	return len(a.Sessions) > 0
}

// ActiveSessionIDs returns the ids of all active sessions in authoring order.
func (a *EventAggregate) ActiveSessionIDs() []string {
	ids := make([]string, 0, len(a.Sessions))
	for _, s := range a.Sessions {
		if s.IsActive {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
