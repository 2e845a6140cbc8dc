package repository

import (
	"context"
	"time"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
)

// EventRepository defines persistence operations for events and their
// authoring sub-resources.
type EventRepository interface {
	// Create persists a new draft event
	Create(ctx context.Context, event *domain.Event) error

	// GetByID retrieves a single event
	GetByID(ctx context.Context, id string) (*domain.Event, error)

	// GetAggregate loads the event with its sessions, ticket types and all
	// non-cancelled enrollments in one consistent read
	GetAggregate(ctx context.Context, eventID string) (*domain.EventAggregate, error)

	// ListPublished retrieves published events, newest first
	ListPublished(ctx context.Context, limit, offset int) ([]*domain.Event, error)

	// Publish flips is_published to true. Publication is one-way.
	Publish(ctx context.Context, id string, now time.Time) error

	// FindPublishedOverlapping returns published events at the location whose
	// [start, end) interval intersects the given one
	FindPublishedOverlapping(ctx context.Context, location string, start, end time.Time, excludeEventID string) ([]*domain.Event, error)

	// AddSession persists a new session under an event
	AddSession(ctx context.Context, session *domain.Session) error

	// AddTicketType persists a new ticket type under an event
	AddTicketType(ctx context.Context, tt *domain.TicketType) error

	// DeactivateSession retires a session without deleting sold history
	DeactivateSession(ctx context.Context, eventID, sessionID string) error

	// DeactivateTicketType retires a ticket type without deleting sold history
	DeactivateTicketType(ctx context.Context, eventID, ticketTypeID string) error
}

// EnrollmentRepository defines persistence operations for enrollments. The
// capacity-sensitive operations take a closure executed while the event row
// is locked, so that every seat decision for one event serializes.
type EnrollmentRepository interface {
	// CreateWithCapacityCheck locks the event row, loads the aggregate, runs
	// decide (which sets the enrollment's status and session set from the
	// locked state) and inserts the enrollment, all in one transaction
	CreateWithCapacityCheck(ctx context.Context, enrollment *domain.Enrollment, decide func(agg *domain.EventAggregate) error) error

	// GetByID retrieves a single enrollment
	GetByID(ctx context.Context, id string) (*domain.Enrollment, error)

	// GetByUserID retrieves a user's enrollments, newest first
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Enrollment, error)

	// GetByEventID retrieves an event's enrollments, oldest first
	GetByEventID(ctx context.Context, eventID string, limit, offset int) ([]*domain.Enrollment, error)

	// Cancel transitions an enrollment to cancelled unless it is terminal
	Cancel(ctx context.Context, id, reason string, now time.Time) error

	// CheckIn transitions a confirmed enrollment to checked_in
	CheckIn(ctx context.Context, id, staffUserID string, now time.Time) error

	// PromoteOldestWaitlisted locks the event row, finds the earliest
	// waitlisted enrollment and confirms it if eligible returns true.
	// Returns nil when no waitlisted enrollment exists or none is eligible.
	PromoteOldestWaitlisted(ctx context.Context, eventID string, eligible func(agg *domain.EventAggregate, candidate *domain.Enrollment) bool) (*domain.Enrollment, error)

	// ListEventsWithWaitlist returns ids of published events that currently
	// have at least one waitlisted enrollment
	ListEventsWithWaitlist(ctx context.Context, limit int) ([]string, error)
}
