package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/dto"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/metrics"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/repository"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/telemetry"
)

// EventService defines the interface for event authoring and publication
type EventService interface {
	// CreateEvent creates a draft event owned by the organizer
	CreateEvent(ctx context.Context, organizerID string, req *dto.CreateEventRequest) (*dto.EventResponse, error)

	// GetEvent retrieves a single event
	GetEvent(ctx context.Context, eventID string) (*dto.EventResponse, error)

	// GetEventDetail retrieves an event with its sessions and ticket types
	GetEventDetail(ctx context.Context, eventID string) (*dto.EventDetailResponse, error)

	// ListEvents retrieves published events with pagination
	ListEvents(ctx context.Context, page, pageSize int) ([]dto.EventResponse, error)

	// PublishEvent makes an event visible and enrollable. One-way.
	PublishEvent(ctx context.Context, eventID, organizerID string) (*dto.EventResponse, error)

	// AddSession adds a session to an unpublished or published event
	AddSession(ctx context.Context, eventID, organizerID string, req *dto.AddSessionRequest) (*dto.SessionResponse, error)

	// AddTicketType adds a ticket type to an event
	AddTicketType(ctx context.Context, eventID, organizerID string, req *dto.AddTicketTypeRequest) (*dto.TicketTypeResponse, error)

	// DeactivateSession retires a session without deleting sold history
	DeactivateSession(ctx context.Context, eventID, sessionID, organizerID string) error

	// DeactivateTicketType retires a ticket type without deleting sold history
	DeactivateTicketType(ctx context.Context, eventID, ticketTypeID, organizerID string) error
}

// eventService implements EventService
type eventService struct {
	eventRepo repository.EventRepository
	recorder  *metrics.Recorder
	now       func() time.Time
}

// NewEventService creates a new event service. A nil recorder disables
// metric recording.
func NewEventService(eventRepo repository.EventRepository, recorder *metrics.Recorder) EventService {
	return &eventService{
		eventRepo: eventRepo,
		recorder:  recorder,
		now:       time.Now,
	}
}

// CreateEvent creates a draft event. The venue guard runs here as well as at
// publication: a draft colliding with an already-published event is rejected
// early rather than at publish time.
func (s *eventService) CreateEvent(ctx context.Context, organizerID string, req *dto.CreateEventRequest) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.create")
	defer span.End()

	if organizerID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	now := s.now()
	event := &domain.Event{
		ID:           uuid.New().String(),
		Title:        req.Title,
		Description:  req.Description,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Location:     req.Location,
		Capacity:     req.Capacity,
		OrganizerIDs: []string{organizerID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	span.SetAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("location", event.Location),
	)

	if err := event.Validate(now); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.checkVenue(ctx, event); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	resp := dto.EventFromDomain(event)
	return &resp, nil
}

// GetEvent retrieves a single event
func (s *eventService) GetEvent(ctx context.Context, eventID string) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.get")
	defer span.End()

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	resp := dto.EventFromDomain(event)
	return &resp, nil
}

// GetEventDetail retrieves an event with its sessions and ticket types
func (s *eventService) GetEventDetail(ctx context.Context, eventID string) (*dto.EventDetailResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.get_detail")
	defer span.End()

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	agg, err := s.eventRepo.GetAggregate(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.EventDetailFromDomain(agg), nil
}

// ListEvents retrieves published events with pagination
func (s *eventService) ListEvents(ctx context.Context, page, pageSize int) ([]dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.list")
	defer span.End()

	page, pageSize = normalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	span.SetAttributes(
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	events, err := s.eventRepo.ListPublished(ctx, pageSize, offset)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make([]dto.EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, dto.EventFromDomain(e))
	}

	span.SetAttributes(attribute.Int("count", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// PublishEvent makes an event visible and enrollable. The venue guard runs
// again here against the publication-time state of the calendar.
func (s *eventService) PublishEvent(ctx context.Context, eventID, organizerID string) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.publish")
	defer span.End()

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("organizer_id", organizerID),
	)

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !event.IsOrganizer(organizerID) {
		span.SetStatus(codes.Error, "forbidden")
		return nil, domain.ErrForbidden
	}
	if event.IsPublished {
		span.SetStatus(codes.Error, "already published")
		return nil, domain.ErrAlreadyPublished
	}

	if err := s.checkVenue(ctx, event); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.now()
	if err := s.eventRepo.Publish(ctx, eventID, now); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	event.IsPublished = true
	event.UpdatedAt = now

	if s.recorder != nil {
		s.recorder.EventPublished(ctx)
	}

	span.SetStatus(codes.Ok, "")
	resp := dto.EventFromDomain(event)
	return &resp, nil
}

// AddSession adds a session to an event
func (s *eventService) AddSession(ctx context.Context, eventID, organizerID string, req *dto.AddSessionRequest) (*dto.SessionResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.add_session")
	defer span.End()

	event, err := s.requireOrganizer(ctx, eventID, organizerID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	session := &domain.Session{
		ID:         uuid.New().String(),
		EventID:    event.ID,
		Identifier: req.Identifier,
		Name:       req.Name,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Capacity:   req.Capacity,
		IsRequired: req.IsRequired,
		IsActive:   true,
	}

	span.SetAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("session_id", session.ID),
	)

	if err := session.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.eventRepo.AddSession(ctx, session); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	resp := dto.SessionFromDomain(session)
	return &resp, nil
}

// AddTicketType adds a ticket type to an event. Every bundled session id must
// belong to this event; a foreign reference would poison every later
// availability computation.
func (s *eventService) AddTicketType(ctx context.Context, eventID, organizerID string, req *dto.AddTicketTypeRequest) (*dto.TicketTypeResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.add_ticket_type")
	defer span.End()

	if _, err := s.requireOrganizer(ctx, eventID, organizerID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	agg, err := s.eventRepo.GetAggregate(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tt := &domain.TicketType{
		ID:                 uuid.New().String(),
		EventID:            eventID,
		Name:               req.Name,
		Description:        req.Description,
		IncludedSessionIDs: req.IncludedSessionIDs,
		MinPrice:           req.MinPrice,
		MaxPrice:           req.MaxPrice,
		QuantityAvailable:  req.QuantityAvailable,
		SalesStart:         req.SalesStart,
		SalesEnd:           req.SalesEnd,
		IsActive:           true,
	}

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("ticket_type_id", tt.ID),
	)

	if err := tt.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for _, sid := range tt.IncludedSessionIDs {
		if _, ok := agg.SessionByID(sid); !ok {
			span.SetStatus(codes.Error, "unknown session")
			return nil, domain.ErrSessionNotFound
		}
	}

	if err := s.eventRepo.AddTicketType(ctx, tt); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	resp := dto.TicketTypeFromDomain(tt)
	return &resp, nil
}

// DeactivateSession retires a session without deleting sold history
func (s *eventService) DeactivateSession(ctx context.Context, eventID, sessionID, organizerID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.event.deactivate_session")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("session_id", sessionID),
	)

	if _, err := s.requireOrganizer(ctx, eventID, organizerID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.eventRepo.DeactivateSession(ctx, eventID, sessionID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// DeactivateTicketType retires a ticket type without deleting sold history
func (s *eventService) DeactivateTicketType(ctx context.Context, eventID, ticketTypeID, organizerID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.event.deactivate_ticket_type")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("ticket_type_id", ticketTypeID),
	)

	if _, err := s.requireOrganizer(ctx, eventID, organizerID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.eventRepo.DeactivateTicketType(ctx, eventID, ticketTypeID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *eventService) requireOrganizer(ctx context.Context, eventID, organizerID string) (*domain.Event, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidEventID
	}
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsOrganizer(organizerID) {
		return nil, domain.ErrForbidden
	}
	return event, nil
}

// checkVenue rejects the event when another published event occupies the same
// location over an intersecting [start, end) interval.
func (s *eventService) checkVenue(ctx context.Context, event *domain.Event) error {
	overlapping, err := s.eventRepo.FindPublishedOverlapping(ctx, event.Location, event.StartDate, event.EndDate, event.ID)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		return domain.ErrVenueConflict
	}
	return nil
}
