package domain

import "errors"

// Domain errors
var (
	// Lookup errors
	ErrEventNotFound      = errors.New("event not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	// Conflict errors
	ErrDuplicateEnrollment = errors.New("user already has an active enrollment for this event")
	ErrVenueConflict       = errors.New("another published event overlaps at this location")
	ErrAlreadyCancelled    = errors.New("enrollment already cancelled")
	ErrAlreadyCheckedIn    = errors.New("enrollment already checked in")
	ErrAlreadyPublished    = errors.New("event already published")

	// Validation errors
	ErrInvalidEventID      = errors.New("invalid event id")
	ErrInvalidUserID       = errors.New("invalid user id")
	ErrInvalidEnrollmentID = errors.New("invalid enrollment id")
	ErrInvalidDateRange    = errors.New("end must be after start")
	ErrEventInPast         = errors.New("event start must be in the future")
	ErrEventNotPublished   = errors.New("event is not published")
	ErrInvalidCapacity     = errors.New("capacity cannot be negative")
	ErrInvalidPriceRange   = errors.New("min price cannot exceed max price")
	ErrAmountOutOfRange    = errors.New("amount outside the ticket type price range")
	ErrPaymentRequired     = errors.New("payment reference required for priced ticket type")
	ErrNotConfirmed        = errors.New("only confirmed enrollments can check in")
	ErrTicketTypeInactive  = errors.New("ticket type is not active")
	ErrOutsideSalesWindow  = errors.New("ticket type is outside its sales window")

	// Authorization errors
	ErrForbidden = errors.New("actor is not authorized for this operation")

	// Data-integrity errors. These indicate a bug or corrupt data, never a
	// business outcome, and map to an internal failure.
	ErrForeignSession = errors.New("ticket type references a session from a different event")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrTicketTypeNotFound) ||
		errors.Is(err, ErrEnrollmentNotFound)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateEnrollment) ||
		errors.Is(err, ErrVenueConflict) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrAlreadyCheckedIn) ||
		errors.Is(err, ErrAlreadyPublished)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidEnrollmentID) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrEventInPast) ||
		errors.Is(err, ErrEventNotPublished) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrInvalidPriceRange) ||
		errors.Is(err, ErrAmountOutOfRange) ||
		errors.Is(err, ErrPaymentRequired) ||
		errors.Is(err, ErrNotConfirmed) ||
		errors.Is(err, ErrTicketTypeInactive) ||
		errors.Is(err, ErrOutsideSalesWindow)
}

// IsForbiddenError checks if the error is an authorization error
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrForbidden)
}
