package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/dto"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/metrics"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/repository"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/logger"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/telemetry"
	"go.uber.org/zap"
)

// EnrollmentService defines the interface for enrollment business logic
type EnrollmentService interface {
	// CreateEnrollment enrolls a user in an event, confirming or waitlisting
	// based on availability at creation time
	CreateEnrollment(ctx context.Context, userID, eventID string, req *dto.CreateEnrollmentRequest) (*dto.EnrollmentResponse, error)

	// GetEnrollment retrieves an enrollment, enforcing ownership for members
	GetEnrollment(ctx context.Context, enrollmentID, callerID string, callerIsStaff bool) (*dto.EnrollmentResponse, error)

	// GetUserEnrollments retrieves a user's enrollments with pagination
	GetUserEnrollments(ctx context.Context, userID string, page, pageSize int) (*dto.EnrollmentListResponse, error)

	// GetEventRoster retrieves an event's enrollments with pagination
	GetEventRoster(ctx context.Context, eventID string, page, pageSize int) (*dto.EnrollmentListResponse, error)

	// CancelEnrollment cancels an enrollment, releasing its capacity
	CancelEnrollment(ctx context.Context, enrollmentID, callerID string, callerIsStaff bool, reason string) (*dto.EnrollmentResponse, error)

	// CheckIn marks a confirmed enrollment as attended
	CheckIn(ctx context.Context, enrollmentID, staffUserID string) (*dto.EnrollmentResponse, error)

	// PromoteWaitlist confirms the oldest eligible waitlisted enrollment for
	// an event. Returns nil when nothing qualifies.
	PromoteWaitlist(ctx context.Context, eventID string) (*dto.EnrollmentResponse, error)
}

// enrollmentService implements EnrollmentService
type enrollmentService struct {
	enrollmentRepo repository.EnrollmentRepository
	eventRepo      repository.EventRepository
	publisher      NotificationPublisher
	recorder       *metrics.Recorder
	now            func() time.Time
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(
	enrollmentRepo repository.EnrollmentRepository,
	eventRepo repository.EventRepository,
	publisher NotificationPublisher,
	recorder *metrics.Recorder,
) EnrollmentService {
	if publisher == nil {
		publisher = NewNoOpNotificationPublisher()
	}
	return &enrollmentService{
		enrollmentRepo: enrollmentRepo,
		eventRepo:      eventRepo,
		publisher:      publisher,
		recorder:       recorder,
		now:            time.Now,
	}
}

// CreateEnrollment enrolls a user in an event. The status decision runs
// inside the repository's locking transaction: every capacity decision for
// one event serializes, so the last seat is granted exactly once and ties
// break by arrival order at the lock.
func (s *enrollmentService) CreateEnrollment(ctx context.Context, userID, eventID string, req *dto.CreateEnrollmentRequest) (*dto.EnrollmentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.enrollment.create")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	if req == nil {
		req = &dto.CreateEnrollmentRequest{}
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	now := s.now()
	enrollment := &domain.Enrollment{
		ID:               uuid.New().String(),
		EventID:          eventID,
		UserID:           userID,
		TicketTypeID:     req.TicketTypeID,
		Status:           domain.EnrollmentStatusPending,
		ConfirmationCode: generateConfirmationCode(),
		AmountPaid:       req.AmountPaid,
		PaymentRef:       req.PaymentRef,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.enrollmentRepo.CreateWithCapacityCheck(ctx, enrollment, func(agg *domain.EventAggregate) error {
		if !agg.Event.IsPublished {
			return domain.ErrEventNotPublished
		}
		if !agg.Event.StartDate.After(now) {
			return domain.ErrEventInPast
		}

		var tt *domain.TicketType
		if req.TicketTypeID != nil {
			var ok bool
			tt, ok = agg.TicketTypeByID(*req.TicketTypeID)
			if !ok {
				return domain.ErrTicketTypeNotFound
			}
			if !tt.IsActive {
				return domain.ErrTicketTypeInactive
			}
			if !tt.InSalesWindow(now) {
				return domain.ErrOutsideSalesWindow
			}
			if !tt.IsFree() && !tt.AcceptsAmount(req.AmountPaid) {
				return domain.ErrAmountOutOfRange
			}
			if req.AmountPaid > 0 && req.PaymentRef == "" {
				return domain.ErrPaymentRequired
			}
		}

		enrollment.SelectedSessionIDs = domain.SessionsForEnrollment(agg, tt)

		status := domain.DecideEnrollmentStatus(agg, enrollment.SelectedSessionIDs)
		if status == domain.EnrollmentStatusConfirmed && tt != nil {
			available, err := domain.ComputeTicketTypeAvailability(agg, tt)
			if err != nil {
				return err
			}
			if available < 1 {
				status = domain.EnrollmentStatusWaitlisted
			}
		}
		enrollment.Status = status
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("enrollment_id", enrollment.ID),
		attribute.String("status", enrollment.Status.String()),
	)

	if s.recorder != nil {
		s.recorder.EnrollmentCreated(ctx, enrollment.Status)
	}

	if err := s.publisher.PublishEnrollmentCreated(ctx, enrollment); err != nil {
		// Notification failures never fail the enrollment.
		logger.Get().Warn("failed to publish enrollment created event",
			zap.String("enrollment_id", enrollment.ID),
			zap.Error(err),
		)
	}

	span.SetStatus(codes.Ok, "")
	return dto.EnrollmentFromDomain(enrollment), nil
}

// GetEnrollment retrieves an enrollment. Members only see their own; staff
// see everything.
func (s *enrollmentService) GetEnrollment(ctx context.Context, enrollmentID, callerID string, callerIsStaff bool) (*dto.EnrollmentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.enrollment.get")
	defer span.End()

	if enrollmentID == "" {
		span.SetStatus(codes.Error, "invalid enrollment_id")
		return nil, domain.ErrInvalidEnrollmentID
	}

	span.SetAttributes(attribute.String("enrollment_id", enrollmentID))

	enrollment, err := s.enrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !callerIsStaff && !enrollment.BelongsToUser(callerID) {
		span.SetStatus(codes.Error, "forbidden")
		return nil, domain.ErrForbidden
	}

	span.SetStatus(codes.Ok, "")
	return dto.EnrollmentFromDomain(enrollment), nil
}

// GetUserEnrollments retrieves a user's enrollments, newest first. Fetches
// one extra row to detect whether another page exists.
func (s *enrollmentService) GetUserEnrollments(ctx context.Context, userID string, page, pageSize int) (*dto.EnrollmentListResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.enrollment.get_user_enrollments")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	page, pageSize = normalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	rows, err := s.enrollmentRepo.GetByUserID(ctx, userID, pageSize+1, offset)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return pageOf(rows, pageSize), nil
}

// GetEventRoster retrieves an event's enrollments, oldest first
func (s *enrollmentService) GetEventRoster(ctx context.Context, eventID string, page, pageSize int) (*dto.EnrollmentListResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.enrollment.get_event_roster")
	defer span.End()

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}

	page, pageSize = normalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	rows, err := s.enrollmentRepo.GetByEventID(ctx, eventID, pageSize+1, offset)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return pageOf(rows, pageSize), nil
}

// CancelEnrollment cancels an enrollment. Capacity is released implicitly:
// the cancelled row drops out of every availability recomputation.
func (s *enrollmentService) CancelEnrollment(ctx context.Context, enrollmentID, callerID string, callerIsStaff bool, reason string) (*dto.EnrollmentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.enrollment.cancel")
	defer span.End()

	if enrollmentID == "" {
		span.SetStatus(codes.Error, "invalid enrollment_id")
		return nil, domain.ErrInvalidEnrollmentID
	}

	span.SetAttributes(attribute.String("enrollment_id", enrollmentID))

	enrollment, err := s.enrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !callerIsStaff && !enrollment.BelongsToUser(callerID) {
		span.SetStatus(codes.Error, "forbidden")
		return nil, domain.ErrForbidden
	}

	now := s.now()
	if err := enrollment.Cancel(reason, now); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.enrollmentRepo.Cancel(ctx, enrollmentID, reason, now); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.EnrollmentCancelled(ctx)
	}

	if err := s.publisher.PublishEnrollmentCancelled(ctx, enrollment); err != nil {
		logger.Get().Warn("failed to publish enrollment cancelled event",
			zap.String("enrollment_id", enrollment.ID),
			zap.Error(err),
		)
	}

	span.SetStatus(codes.Ok, "")
	return dto.EnrollmentFromDomain(enrollment), nil
}

// CheckIn marks a confirmed enrollment as attended. Terminal.
func (s *enrollmentService) CheckIn(ctx context.Context, enrollmentID, staffUserID string) (*dto.EnrollmentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.enrollment.check_in")
	defer span.End()

	if enrollmentID == "" {
		span.SetStatus(codes.Error, "invalid enrollment_id")
		return nil, domain.ErrInvalidEnrollmentID
	}
	if staffUserID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	span.SetAttributes(
		attribute.String("enrollment_id", enrollmentID),
		attribute.String("staff_user_id", staffUserID),
	)

	enrollment, err := s.enrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.now()
	if err := enrollment.CheckIn(staffUserID, now); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.enrollmentRepo.CheckIn(ctx, enrollmentID, staffUserID, now); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.EnrollmentCheckedIn(ctx)
	}

	if err := s.publisher.PublishEnrollmentCheckedIn(ctx, enrollment); err != nil {
		logger.Get().Warn("failed to publish enrollment checked in event",
			zap.String("enrollment_id", enrollment.ID),
			zap.Error(err),
		)
	}

	span.SetStatus(codes.Ok, "")
	return dto.EnrollmentFromDomain(enrollment), nil
}

// PromoteWaitlist confirms the oldest waitlisted enrollment whose session set
// has a seat for it. Waitlisted rows count toward sold, so eligibility is
// judged on the aggregate with the candidate itself excluded.
func (s *enrollmentService) PromoteWaitlist(ctx context.Context, eventID string) (*dto.EnrollmentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.enrollment.promote_waitlist")
	defer span.End()

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	promoted, err := s.enrollmentRepo.PromoteOldestWaitlisted(ctx, eventID, canPromote)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if promoted == nil {
		span.SetStatus(codes.Ok, "no eligible candidate")
		return nil, nil
	}

	span.SetAttributes(attribute.String("enrollment_id", promoted.ID))

	if s.recorder != nil {
		s.recorder.WaitlistPromoted(ctx)
	}

	if err := s.publisher.PublishEnrollmentPromoted(ctx, promoted); err != nil {
		logger.Get().Warn("failed to publish enrollment promoted event",
			zap.String("enrollment_id", promoted.ID),
			zap.Error(err),
		)
	}

	span.SetStatus(codes.Ok, "")
	return dto.EnrollmentFromDomain(promoted), nil
}

// canPromote checks whether the candidate's sessions have room once the
// candidate's own hold is removed from the picture.
func canPromote(agg *domain.EventAggregate, candidate *domain.Enrollment) bool {
	trimmed := &domain.EventAggregate{
		Event:       agg.Event,
		Sessions:    agg.Sessions,
		TicketTypes: agg.TicketTypes,
	}
	trimmed.Enrollments = make([]domain.Enrollment, 0, len(agg.Enrollments))
	for i := range agg.Enrollments {
		if agg.Enrollments[i].ID == candidate.ID {
			continue
		}
		trimmed.Enrollments = append(trimmed.Enrollments, agg.Enrollments[i])
	}
	if domain.DecideEnrollmentStatus(trimmed, candidate.SelectedSessionIDs) != domain.EnrollmentStatusConfirmed {
		return false
	}
	if candidate.TicketTypeID != nil {
		if tt, ok := trimmed.TicketTypeByID(*candidate.TicketTypeID); ok && tt.QuantityAvailable != nil {
			if *tt.QuantityAvailable-domain.SoldUnits(trimmed, tt.ID) < 1 {
				return false
			}
		}
	}
	return true
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// pageOf trims the extra probe row fetched to detect a following page.
func pageOf(rows []*domain.Enrollment, pageSize int) *dto.EnrollmentListResponse {
	hasMore := len(rows) > pageSize
	if hasMore {
		rows = rows[:pageSize]
	}
	enrollments := make([]domain.Enrollment, 0, len(rows))
	for _, e := range rows {
		enrollments = append(enrollments, *e)
	}
	return dto.EnrollmentListFromDomain(enrollments, hasMore)
}

// generateConfirmationCode generates a random confirmation code
func generateConfirmationCode() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return uuid.New().String()[:8]
	}
	return hex.EncodeToString(bytes)
}
