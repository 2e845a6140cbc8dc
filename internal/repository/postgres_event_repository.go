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

// querier is the subset of pgx operations shared by *pgxpool.Pool and pgx.Tx,
// so aggregate loading works both standalone and inside a locking transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresEventRepository implements EventRepository using PostgreSQL with pgxpool
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

// Create persists a new draft event
func (r *PostgresEventRepository) Create(ctx context.Context, event *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("location", event.Location),
	)

	query := `
		INSERT INTO events (
			id, title, description, start_date, end_date, location,
			capacity, is_published, organizer_ids, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Title,
		event.Description,
		event.StartDate,
		event.EndDate,
		event.Location,
		event.Capacity,
		event.IsPublished,
		event.OrganizerIDs,
		event.CreatedAt,
		event.UpdatedAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves an event by its ID
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	event, err := getEvent(ctx, r.pool, id)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			span.SetStatus(codes.Error, "not found")
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return event, nil
}

// GetAggregate loads the event plus sessions, ticket types and non-cancelled
// enrollments. Reads run on the pool; callers needing a serialized view go
// through the enrollment repository's locking transactions instead.
func (r *PostgresEventRepository) GetAggregate(ctx context.Context, eventID string) (*domain.EventAggregate, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_aggregate")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	agg, err := loadAggregate(ctx, r.pool, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			span.SetStatus(codes.Error, "not found")
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("sessions", len(agg.Sessions)),
		attribute.Int("ticket_types", len(agg.TicketTypes)),
		attribute.Int("enrollments", len(agg.Enrollments)),
	)
	span.SetStatus(codes.Ok, "")
	return agg, nil
}

// ListPublished retrieves published events, newest first
func (r *PostgresEventRepository) ListPublished(ctx context.Context, limit, offset int) ([]*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.list_published")
	defer span.End()

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	query := selectEventColumns + `
		WHERE is_published = TRUE
		ORDER BY start_date ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list published events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(events)))
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// Publish flips is_published. The status condition makes publication one-way:
// a second publish affects zero rows and the fallback diagnoses why.
func (r *PostgresEventRepository) Publish(ctx context.Context, id string, now time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.publish")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	query := `
		UPDATE events SET
			is_published = TRUE,
			updated_at = $2
		WHERE id = $1 AND is_published = FALSE
	`

	result, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to check event existence: %w", err)
		}
		if !exists {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrEventNotFound
		}
		span.SetStatus(codes.Error, "already published")
		return domain.ErrAlreadyPublished
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// FindPublishedOverlapping returns published events at the location whose
// [start, end) interval intersects the given one.
func (r *PostgresEventRepository) FindPublishedOverlapping(ctx context.Context, location string, start, end time.Time, excludeEventID string) ([]*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.find_overlapping")
	defer span.End()

	span.SetAttributes(
		attribute.String("location", location),
		attribute.String("exclude_event_id", excludeEventID),
	)

	query := selectEventColumns + `
		WHERE is_published = TRUE
			AND location = $1
			AND start_date < $3
			AND end_date > $2
			AND id != $4
		ORDER BY start_date ASC
	`

	rows, err := r.pool.Query(ctx, query, location, start, end, excludeEventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to find overlapping events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(events)))
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// AddSession persists a new session under an event
func (r *PostgresEventRepository) AddSession(ctx context.Context, session *domain.Session) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.add_session")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", session.EventID),
		attribute.String("session_id", session.ID),
		attribute.String("identifier", session.Identifier),
	)

	query := `
		INSERT INTO sessions (
			id, event_id, identifier, name, start_time, end_time,
			capacity, is_required, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9
		)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.EventID,
		session.Identifier,
		session.Name,
		session.StartTime,
		session.EndTime,
		session.Capacity,
		session.IsRequired,
		session.IsActive,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to add session: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// AddTicketType persists a new ticket type under an event
func (r *PostgresEventRepository) AddTicketType(ctx context.Context, tt *domain.TicketType) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.add_ticket_type")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", tt.EventID),
		attribute.String("ticket_type_id", tt.ID),
	)

	query := `
		INSERT INTO ticket_types (
			id, event_id, name, description, included_session_ids,
			min_price, max_price, quantity_available, sales_start, sales_end, is_active
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.pool.Exec(ctx, query,
		tt.ID,
		tt.EventID,
		tt.Name,
		tt.Description,
		tt.IncludedSessionIDs,
		tt.MinPrice,
		tt.MaxPrice,
		tt.QuantityAvailable,
		tt.SalesStart,
		tt.SalesEnd,
		tt.IsActive,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to add ticket type: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// DeactivateSession retires a session. Sold history stays intact.
func (r *PostgresEventRepository) DeactivateSession(ctx context.Context, eventID, sessionID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.deactivate_session")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("session_id", sessionID),
	)

	query := `UPDATE sessions SET is_active = FALSE WHERE id = $1 AND event_id = $2`

	result, err := r.pool.Exec(ctx, query, sessionID, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to deactivate session: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrSessionNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// DeactivateTicketType retires a ticket type. Sold history stays intact.
func (r *PostgresEventRepository) DeactivateTicketType(ctx context.Context, eventID, ticketTypeID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.deactivate_ticket_type")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("ticket_type_id", ticketTypeID),
	)

	query := `UPDATE ticket_types SET is_active = FALSE WHERE id = $1 AND event_id = $2`

	result, err := r.pool.Exec(ctx, query, ticketTypeID, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to deactivate ticket type: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrTicketTypeNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

const selectEventColumns = `
	SELECT
		id, title, description, start_date, end_date, location,
		capacity, is_published, organizer_ids, created_at, updated_at
	FROM events
`

func getEvent(ctx context.Context, q querier, id string) (*domain.Event, error) {
	row := q.QueryRow(ctx, selectEventColumns+` WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	event := &domain.Event{}
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.StartDate,
		&event.EndDate,
		&event.Location,
		&event.Capacity,
		&event.IsPublished,
		&event.OrganizerIDs,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// loadAggregate reads the full event state with the given querier. When q is a
// transaction holding the event row lock, the result is the serialized view
// capacity decisions are made against.
func loadAggregate(ctx context.Context, q querier, eventID string) (*domain.EventAggregate, error) {
	event, err := getEvent(ctx, q, eventID)
	if err != nil {
		return nil, err
	}

	agg := &domain.EventAggregate{Event: *event}

	sessionQuery := `
		SELECT id, event_id, identifier, name, start_time, end_time,
			capacity, is_required, is_active
		FROM sessions
		WHERE event_id = $1
		ORDER BY start_time ASC
	`
	rows, err := q.Query(ctx, sessionQuery, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(
			&s.ID, &s.EventID, &s.Identifier, &s.Name, &s.StartTime, &s.EndTime,
			&s.Capacity, &s.IsRequired, &s.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		agg.Sessions = append(agg.Sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	rows.Close()

	ticketTypeQuery := `
		SELECT id, event_id, name, description, included_session_ids,
			min_price, max_price, quantity_available, sales_start, sales_end, is_active
		FROM ticket_types
		WHERE event_id = $1
		ORDER BY name ASC
	`
	rows, err = q.Query(ctx, ticketTypeQuery, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t domain.TicketType
		if err := rows.Scan(
			&t.ID, &t.EventID, &t.Name, &t.Description, &t.IncludedSessionIDs,
			&t.MinPrice, &t.MaxPrice, &t.QuantityAvailable, &t.SalesStart, &t.SalesEnd, &t.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ticket type: %w", err)
		}
		agg.TicketTypes = append(agg.TicketTypes, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket types: %w", err)
	}
	rows.Close()

	enrollmentQuery := selectEnrollmentColumns + `
		WHERE event_id = $1 AND status != 'cancelled'
		ORDER BY created_at ASC
	`
	rows, err = q.Query(ctx, enrollmentQuery, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		agg.Enrollments = append(agg.Enrollments, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}

	return agg, nil
}

// Ensure PostgresEventRepository implements EventRepository
var _ EventRepository = (*PostgresEventRepository)(nil)
