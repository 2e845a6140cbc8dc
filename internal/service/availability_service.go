package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/dto"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/repository"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/telemetry"
)

// AvailabilityService defines the interface for read-only capacity queries
type AvailabilityService interface {
	// GetEventAvailability computes the full capacity picture for an event
	GetEventAvailability(ctx context.Context, eventID string) (*dto.EventAvailabilityResponse, error)

	// GetTicketTypeAvailability computes sellability of one ticket type
	GetTicketTypeAvailability(ctx context.Context, eventID, ticketTypeID string) (*dto.TicketTypeAvailabilityResponse, error)
}

// availabilityService implements AvailabilityService
type availabilityService struct {
	eventRepo repository.EventRepository
	now       func() time.Time
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(eventRepo repository.EventRepository) AvailabilityService {
	return &availabilityService{
		eventRepo: eventRepo,
		now:       time.Now,
	}
}

// GetEventAvailability computes per-session and per-ticket-type availability
// from one aggregate read. Everything is recomputed from non-cancelled
// enrollments; zero availability is a normal result, not an error.
func (s *availabilityService) GetEventAvailability(ctx context.Context, eventID string) (*dto.EventAvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.get_event_availability")
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

	sessions := domain.ComputeSessionAvailability(agg)

	resp := &dto.EventAvailabilityResponse{
		EventID:     eventID,
		Sessions:    make([]dto.SessionAvailabilityResponse, 0, len(sessions)),
		TicketTypes: make([]dto.TicketTypeAvailabilityResponse, 0, len(agg.TicketTypes)),
	}

	// Emit sessions in authoring order; the implicit flat-capacity session
	// is keyed by the event id.
	if agg.HasSessions() {
		for _, sess := range agg.Sessions {
			if sa, ok := sessions[sess.ID]; ok {
				resp.Sessions = append(resp.Sessions, dto.SessionAvailabilityFromDomain(sa))
			}
		}
	} else if sa, ok := sessions[agg.Event.ID]; ok {
		resp.Sessions = append(resp.Sessions, dto.SessionAvailabilityFromDomain(sa))
	}

	now := s.now()
	for i := range agg.TicketTypes {
		tt := &agg.TicketTypes[i]
		entry, err := s.ticketTypeEntry(agg, tt, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		resp.TicketTypes = append(resp.TicketTypes, *entry)
	}

	span.SetAttributes(
		attribute.Int("sessions", len(resp.Sessions)),
		attribute.Int("ticket_types", len(resp.TicketTypes)),
	)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// GetTicketTypeAvailability computes sellability of one ticket type
func (s *availabilityService) GetTicketTypeAvailability(ctx context.Context, eventID, ticketTypeID string) (*dto.TicketTypeAvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.get_ticket_type_availability")
	defer span.End()

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("ticket_type_id", ticketTypeID),
	)

	agg, err := s.eventRepo.GetAggregate(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tt, ok := agg.TicketTypeByID(ticketTypeID)
	if !ok {
		span.SetStatus(codes.Error, "not found")
		return nil, domain.ErrTicketTypeNotFound
	}

	entry, err := s.ticketTypeEntry(agg, tt, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return entry, nil
}

func (s *availabilityService) ticketTypeEntry(agg *domain.EventAggregate, tt *domain.TicketType, now time.Time) (*dto.TicketTypeAvailabilityResponse, error) {
	available, err := domain.ComputeTicketTypeAvailability(agg, tt)
	if err != nil {
		return nil, err
	}

	reason, err := domain.ConstraintReason(agg, tt, now)
	if err != nil {
		return nil, err
	}

	unlimited := available == domain.Unlimited
	entry := &dto.TicketTypeAvailabilityResponse{
		TicketTypeID: tt.ID,
		Name:         tt.Name,
		Available:    available,
		Unlimited:    unlimited,
		Purchasable:  reason == "",
		Reason:       reason,
	}
	if unlimited {
		entry.Available = 0
	}
	return entry, nil
}
