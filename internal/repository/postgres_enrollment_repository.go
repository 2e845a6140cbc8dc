package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/telemetry"
)

// PostgresEnrollmentRepository implements EnrollmentRepository using
// PostgreSQL with pgxpool. Capacity decisions run inside transactions that
// lock the parent event row, so concurrent enrollments for one event
// serialize and the last seat is granted exactly once.
type PostgresEnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEnrollmentRepository creates a new PostgresEnrollmentRepository
func NewPostgresEnrollmentRepository(pool *pgxpool.Pool) *PostgresEnrollmentRepository {
	return &PostgresEnrollmentRepository{pool: pool}
}

// CreateWithCapacityCheck locks the event row, loads the aggregate under the
// lock, lets decide assign the enrollment's status and session set, then
// inserts. The partial unique index on (user_id, event_id) over non-cancelled
// rows backstops the duplicate check under the same transaction.
func (r *PostgresEnrollmentRepository) CreateWithCapacityCheck(ctx context.Context, enrollment *domain.Enrollment, decide func(agg *domain.EventAggregate) error) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.enrollment.create_with_capacity_check")
	defer span.End()

	span.SetAttributes(
		attribute.String("enrollment_id", enrollment.ID),
		attribute.String("event_id", enrollment.EventID),
		attribute.String("user_id", enrollment.UserID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockEvent(ctx, tx, enrollment.EventID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	agg, err := loadAggregate(ctx, tx, enrollment.EventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for i := range agg.Enrollments {
		if agg.Enrollments[i].UserID == enrollment.UserID {
			span.SetStatus(codes.Error, "duplicate enrollment")
			return domain.ErrDuplicateEnrollment
		}
	}

	if err := decide(agg); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := insertEnrollment(ctx, tx, enrollment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit enrollment: %w", err)
	}

	span.SetAttributes(attribute.String("status", enrollment.Status.String()))
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves an enrollment by its ID
func (r *PostgresEnrollmentRepository) GetByID(ctx context.Context, id string) (*domain.Enrollment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.enrollment.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("enrollment_id", id))

	row := r.pool.QueryRow(ctx, selectEnrollmentColumns+` WHERE id = $1`, id)
	enrollment, err := scanEnrollmentRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrEnrollmentNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return enrollment, nil
}

// GetByUserID retrieves a user's enrollments, newest first
func (r *PostgresEnrollmentRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Enrollment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.enrollment.get_by_user_id")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	query := selectEnrollmentColumns + `
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	enrollments, err := r.queryEnrollments(ctx, query, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(enrollments)))
	span.SetStatus(codes.Ok, "")
	return enrollments, nil
}

// GetByEventID retrieves an event's enrollments, oldest first
func (r *PostgresEnrollmentRepository) GetByEventID(ctx context.Context, eventID string, limit, offset int) ([]*domain.Enrollment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.enrollment.get_by_event_id")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	query := selectEnrollmentColumns + `
		WHERE event_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`

	enrollments, err := r.queryEnrollments(ctx, query, eventID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(enrollments)))
	span.SetStatus(codes.Ok, "")
	return enrollments, nil
}

// Cancel transitions an enrollment to cancelled. The status condition keeps
// terminal states terminal; the affected-rows fallback diagnoses which rule
// blocked the update.
func (r *PostgresEnrollmentRepository) Cancel(ctx context.Context, id, reason string, now time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.enrollment.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("enrollment_id", id))

	query := `
		UPDATE enrollments SET
			status = $2,
			cancelled_at = $3,
			cancellation_reason = $4,
			updated_at = $5
		WHERE id = $1 AND status NOT IN ('cancelled', 'checked_in')
	`

	result, err := r.pool.Exec(ctx, query, id, domain.EnrollmentStatusCancelled.String(), now, reason, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to cancel enrollment: %w", err)
	}

	if result.RowsAffected() == 0 {
		var status string
		err := r.pool.QueryRow(ctx, "SELECT status FROM enrollments WHERE id = $1", id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				span.SetStatus(codes.Error, "not found")
				return domain.ErrEnrollmentNotFound
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to check enrollment status: %w", err)
		}
		if status == domain.EnrollmentStatusCheckedIn.String() {
			span.SetStatus(codes.Error, "already checked in")
			return domain.ErrAlreadyCheckedIn
		}
		span.SetStatus(codes.Error, "already cancelled")
		return domain.ErrAlreadyCancelled
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CheckIn transitions a confirmed enrollment to its terminal checked_in state
func (r *PostgresEnrollmentRepository) CheckIn(ctx context.Context, id, staffUserID string, now time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.enrollment.check_in")
	defer span.End()

	span.SetAttributes(
		attribute.String("enrollment_id", id),
		attribute.String("staff_user_id", staffUserID),
	)

	query := `
		UPDATE enrollments SET
			status = $2,
			checked_in_at = $3,
			checked_in_by = $4,
			updated_at = $5
		WHERE id = $1 AND status = 'confirmed'
	`

	result, err := r.pool.Exec(ctx, query, id, domain.EnrollmentStatusCheckedIn.String(), now, staffUserID, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to check in enrollment: %w", err)
	}

	if result.RowsAffected() == 0 {
		var status string
		err := r.pool.QueryRow(ctx, "SELECT status FROM enrollments WHERE id = $1", id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				span.SetStatus(codes.Error, "not found")
				return domain.ErrEnrollmentNotFound
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to check enrollment status: %w", err)
		}
		if status == domain.EnrollmentStatusCheckedIn.String() {
			span.SetStatus(codes.Error, "already checked in")
			return domain.ErrAlreadyCheckedIn
		}
		span.SetStatus(codes.Error, "not confirmed")
		return domain.ErrNotConfirmed
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// PromoteOldestWaitlisted confirms the earliest waitlisted enrollment that
// passes the eligibility check, under the same event-row lock used at
// creation time. Returns the promoted enrollment, or nil when nothing
// qualified.
func (r *PostgresEnrollmentRepository) PromoteOldestWaitlisted(ctx context.Context, eventID string, eligible func(agg *domain.EventAggregate, candidate *domain.Enrollment) bool) (*domain.Enrollment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.enrollment.promote_oldest_waitlisted")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockEvent(ctx, tx, eventID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	agg, err := loadAggregate(ctx, tx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var candidate *domain.Enrollment
	for i := range agg.Enrollments {
		e := &agg.Enrollments[i]
		if e.Status != domain.EnrollmentStatusWaitlisted {
			continue
		}
		if eligible(agg, e) {
			candidate = e
			break
		}
	}
	if candidate == nil {
		span.SetStatus(codes.Ok, "no eligible candidate")
		return nil, nil
	}

	now := time.Now()
	if err := candidate.Promote(now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := tx.Exec(ctx, `
		UPDATE enrollments SET
			status = $2,
			updated_at = $3
		WHERE id = $1 AND status = 'waitlisted'
	`, candidate.ID, domain.EnrollmentStatusConfirmed.String(), now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to promote enrollment: %w", err)
	}
	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "candidate no longer waitlisted")
		return nil, domain.ErrEnrollmentNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit promotion: %w", err)
	}

	span.SetAttributes(attribute.String("enrollment_id", candidate.ID))
	span.SetStatus(codes.Ok, "")
	return candidate, nil
}

// ListEventsWithWaitlist returns ids of published events with at least one
// waitlisted enrollment, oldest waitlist entry first.
func (r *PostgresEnrollmentRepository) ListEventsWithWaitlist(ctx context.Context, limit int) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.enrollment.list_events_with_waitlist")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		SELECT e.event_id
		FROM enrollments e
		JOIN events ev ON ev.id = e.event_id
		WHERE e.status = 'waitlisted' AND ev.is_published = TRUE
		GROUP BY e.event_id
		ORDER BY MIN(e.created_at) ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list events with waitlist: %w", err)
	}
	defer rows.Close()

	var eventIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		eventIDs = append(eventIDs, id)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating event ids: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(eventIDs)))
	span.SetStatus(codes.Ok, "")
	return eventIDs, nil
}

func (r *PostgresEnrollmentRepository) queryEnrollments(ctx context.Context, query string, args ...any) ([]*domain.Enrollment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*domain.Enrollment
	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, enrollment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}
	return enrollments, nil
}

// lockEvent takes the per-event advisory row lock every capacity decision
// serializes on.
func lockEvent(ctx context.Context, tx pgx.Tx, eventID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("failed to lock event: %w", err)
	}
	return nil
}

func insertEnrollment(ctx context.Context, tx pgx.Tx, e *domain.Enrollment) error {
	query := `
		INSERT INTO enrollments (
			id, event_id, user_id, ticket_type_id, selected_session_ids,
			status, confirmation_code, amount_paid, payment_ref,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11
		)
	`
	_, err := tx.Exec(ctx, query,
		e.ID,
		e.EventID,
		e.UserID,
		e.TicketTypeID,
		e.SelectedSessionIDs,
		e.Status.String(),
		e.ConfirmationCode,
		e.AmountPaid,
		nullString(e.PaymentRef),
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	return nil
}

const selectEnrollmentColumns = `
	SELECT
		id, event_id, user_id, ticket_type_id, selected_session_ids,
		status, confirmation_code, amount_paid, payment_ref,
		cancelled_at, cancellation_reason, checked_in_at, checked_in_by,
		created_at, updated_at
	FROM enrollments
`

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanEnrollment(rows pgx.Rows) (*domain.Enrollment, error) {
	enrollment, err := scanEnrollmentRow(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}
	return enrollment, nil
}

func scanEnrollmentRow(row pgx.Row) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	var (
		status             string
		paymentRef         *string
		cancellationReason *string
		checkedInBy        *string
	)

	err := row.Scan(
		&e.ID,
		&e.EventID,
		&e.UserID,
		&e.TicketTypeID,
		&e.SelectedSessionIDs,
		&status,
		&e.ConfirmationCode,
		&e.AmountPaid,
		&paymentRef,
		&e.CancelledAt,
		&cancellationReason,
		&e.CheckedInAt,
		&checkedInBy,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = domain.EnrollmentStatus(status)
	if paymentRef != nil {
		e.PaymentRef = *paymentRef
	}
	if cancellationReason != nil {
		e.CancellationReason = *cancellationReason
	}
	if checkedInBy != nil {
		e.CheckedInBy = *checkedInBy
	}

	return e, nil
}

// Ensure PostgresEnrollmentRepository implements EnrollmentRepository
var _ EnrollmentRepository = (*PostgresEnrollmentRepository)(nil)
