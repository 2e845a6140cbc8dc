package domain

import "time"

// EnrollmentEventType identifies an enrollment lifecycle notification
type EnrollmentEventType string

const (
	EnrollmentEventCreated   EnrollmentEventType = "enrollment.created"
	EnrollmentEventConfirmed EnrollmentEventType = "enrollment.confirmed"
	EnrollmentEventWaitlisted EnrollmentEventType = "enrollment.waitlisted"
	EnrollmentEventCancelled EnrollmentEventType = "enrollment.cancelled"
	EnrollmentEventCheckedIn EnrollmentEventType = "enrollment.checked_in"
	EnrollmentEventPromoted  EnrollmentEventType = "enrollment.promoted"
)

// EnrollmentEvent is the message published to the notification stream on
// every enrollment state change. Downstream consumers (email, dashboards)
// read this, never the database.
type EnrollmentEvent struct {
	EventID          string              `json:"event_id"`
	Type             EnrollmentEventType `json:"type"`
	EnrollmentID     string              `json:"enrollment_id"`
	ParentEventID    string              `json:"parent_event_id"`
	UserID           string              `json:"user_id"`
	Status           string              `json:"status"`
	ConfirmationCode string              `json:"confirmation_code"`
	OccurredAt       time.Time           `json:"occurred_at"`
}

// NewEnrollmentEvent builds a notification message for an enrollment
func NewEnrollmentEvent(eventType EnrollmentEventType, e *Enrollment, eventID string) *EnrollmentEvent {
	return &EnrollmentEvent{
		EventID:          eventID,
		Type:             eventType,
		EnrollmentID:     e.ID,
		ParentEventID:    e.EventID,
		UserID:           e.UserID,
		Status:           string(e.Status),
		ConfirmationCode: e.ConfirmationCode,
		OccurredAt:       time.Now(),
	}
}

// Key returns the partition key. Keying by parent event keeps all state
// changes for one event in order.
func (e *EnrollmentEvent) Key() string {
	return e.ParentEventID
}
