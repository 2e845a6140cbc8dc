package domain

import "time"

// EnrollmentStatus represents the lifecycle state of an enrollment
type EnrollmentStatus string

const (
	EnrollmentStatusPending    EnrollmentStatus = "pending"
	EnrollmentStatusConfirmed  EnrollmentStatus = "confirmed"
	EnrollmentStatusWaitlisted EnrollmentStatus = "waitlisted"
	EnrollmentStatusCheckedIn  EnrollmentStatus = "checked_in"
	EnrollmentStatusCancelled  EnrollmentStatus = "cancelled"
)

// String returns the status as a string
func (s EnrollmentStatus) String() string {
	return string(s)
}

// Enrollment is a member's claim on an event or a set of its sessions. It
// unifies RSVP, registration and ticket purchase. Enrollments are never
// deleted, only status-transitioned.
type Enrollment struct {
	ID                 string           `json:"id"`
	EventID            string           `json:"event_id"`
	UserID             string           `json:"user_id"`
	TicketTypeID       *string          `json:"ticket_type_id,omitempty"`
	SelectedSessionIDs []string         `json:"selected_session_ids"`
	Status             EnrollmentStatus `json:"status"`
	ConfirmationCode   string           `json:"confirmation_code"`
	AmountPaid         float64          `json:"amount_paid"`
	PaymentRef         string           `json:"payment_ref,omitempty"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	CheckedInAt        *time.Time       `json:"checked_in_at,omitempty"`
	CheckedInBy        string           `json:"checked_in_by,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// IsActive reports whether the enrollment still holds capacity.
func (e *Enrollment) IsActive() bool {
	return e.Status != EnrollmentStatusCancelled
}

// IsCancelled reports whether the enrollment has been cancelled.
func (e *Enrollment) IsCancelled() bool {
	return e.Status == EnrollmentStatusCancelled
}

// IsCheckedIn reports whether the enrollment reached its terminal day-of state.
func (e *Enrollment) IsCheckedIn() bool {
	return e.Status == EnrollmentStatusCheckedIn
}

// BelongsToUser verifies ownership.
func (e *Enrollment) BelongsToUser(userID string) bool {
	return e.UserID == userID
}

// HoldsSession reports whether the enrollment occupies the given session.
func (e *Enrollment) HoldsSession(sessionID string) bool {
	for _, id := range e.SelectedSessionIDs {
		if id == sessionID {
			return true
		}
	}
	return false
}

// CanCancel reports whether a transition to Cancelled is allowed.
// CheckedIn and Cancelled are terminal.
func (e *Enrollment) CanCancel() error {
	switch e.Status {
	case EnrollmentStatusCancelled:
		return ErrAlreadyCancelled
	case EnrollmentStatusCheckedIn:
		return ErrAlreadyCheckedIn
	default:
		return nil
	}
}

// CanCheckIn reports whether a transition to CheckedIn is allowed. Only
// confirmed enrollments may check in.
func (e *Enrollment) CanCheckIn() error {
	switch e.Status {
	case EnrollmentStatusCheckedIn:
		return ErrAlreadyCheckedIn
	case EnrollmentStatusConfirmed:
		return nil
	default:
		return ErrNotConfirmed
	}
}

// Cancel transitions the enrollment to Cancelled. Capacity is released
// implicitly: availability is recomputed from non-cancelled rows, so no
// counter decrement exists to go out of sync.
func (e *Enrollment) Cancel(reason string, now time.Time) error {
	if err := e.CanCancel(); err != nil {
		return err
	}
	e.Status = EnrollmentStatusCancelled
	e.CancelledAt = &now
	e.CancellationReason = reason
	e.UpdatedAt = now
	return nil
}

// CheckIn transitions a confirmed enrollment to its terminal CheckedIn state.
func (e *Enrollment) CheckIn(staffUserID string, now time.Time) error {
	if err := e.CanCheckIn(); err != nil {
		return err
	}
	e.Status = EnrollmentStatusCheckedIn
	e.CheckedInAt = &now
	e.CheckedInBy = staffUserID
	e.UpdatedAt = now
	return nil
}

// Promote moves a waitlisted enrollment to Confirmed. The caller is
// responsible for verifying capacity first, under the same lock that
// created the vacancy.
func (e *Enrollment) Promote(now time.Time) error {
	if e.Status != EnrollmentStatusWaitlisted {
		return ErrNotConfirmed
	}
	e.Status = EnrollmentStatusConfirmed
	e.UpdatedAt = now
	return nil
}
