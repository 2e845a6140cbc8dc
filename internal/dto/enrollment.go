package dto

import (
	"time"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
)

// CreateEnrollmentRequest represents request to enroll in an event
type CreateEnrollmentRequest struct {
	TicketTypeID *string `json:"ticket_type_id,omitempty"`
	AmountPaid   float64 `json:"amount_paid"`
	PaymentRef   string  `json:"payment_ref,omitempty"`
}

// CancelEnrollmentRequest represents request to cancel an enrollment
type CancelEnrollmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

// EnrollmentResponse represents an enrollment in API responses
type EnrollmentResponse struct {
	ID                 string     `json:"id"`
	EventID            string     `json:"event_id"`
	UserID             string     `json:"user_id"`
	TicketTypeID       *string    `json:"ticket_type_id,omitempty"`
	SelectedSessionIDs []string   `json:"selected_session_ids"`
	Status             string     `json:"status"`
	ConfirmationCode   string     `json:"confirmation_code"`
	AmountPaid         float64    `json:"amount_paid"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CheckedInAt        *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// EnrollmentListResponse represents a page of enrollments
type EnrollmentListResponse struct {
	Enrollments []EnrollmentResponse `json:"enrollments"`
	HasMore     bool                 `json:"has_more"`
}

// EnrollmentFromDomain converts a domain Enrollment to EnrollmentResponse
func EnrollmentFromDomain(e *domain.Enrollment) *EnrollmentResponse {
	return &EnrollmentResponse{
		ID:                 e.ID,
		EventID:            e.EventID,
		UserID:             e.UserID,
		TicketTypeID:       e.TicketTypeID,
		SelectedSessionIDs: e.SelectedSessionIDs,
		Status:             string(e.Status),
		ConfirmationCode:   e.ConfirmationCode,
		AmountPaid:         e.AmountPaid,
		CancelledAt:        e.CancelledAt,
		CheckedInAt:        e.CheckedInAt,
		CreatedAt:          e.CreatedAt,
	}
}

// EnrollmentListFromDomain converts a page of domain enrollments
func EnrollmentListFromDomain(enrollments []domain.Enrollment, hasMore bool) *EnrollmentListResponse {
	out := &EnrollmentListResponse{
		Enrollments: make([]EnrollmentResponse, 0, len(enrollments)),
		HasMore:     hasMore,
	}
	for i := range enrollments {
		out.Enrollments = append(out.Enrollments, *EnrollmentFromDomain(&enrollments[i]))
	}
	return out
}
