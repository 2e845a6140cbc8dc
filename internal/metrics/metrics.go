package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/telemetry"
)

var (
	enrollmentsCreated   *telemetry.Counter
	enrollmentsCancelled *telemetry.Counter
	enrollmentsCheckedIn *telemetry.Counter
	waitlistPromotions   *telemetry.Counter
	eventsPublished      *telemetry.Counter

	initOnce sync.Once
	initErr  error
)

// Init initializes all availability metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	enrollmentsCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollments_created_total",
		Description: "Total number of enrollments created, by assigned status",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	enrollmentsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollments_cancelled_total",
		Description: "Total number of enrollments cancelled",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	enrollmentsCheckedIn, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollments_checked_in_total",
		Description: "Total number of enrollments checked in",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	waitlistPromotions, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "waitlist_promotions_total",
		Description: "Total number of waitlisted enrollments promoted to confirmed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	eventsPublished, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "events_published_total",
		Description: "Total number of events published",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// Recorder exposes the availability metrics to the service layer. A nil
// Recorder disables recording, which tests rely on.
type Recorder struct{}

// NewRecorder initializes the instruments and returns a recorder
func NewRecorder() (*Recorder, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	return &Recorder{}, nil
}

// EnrollmentCreated counts a new enrollment by its assigned status
func (r *Recorder) EnrollmentCreated(ctx context.Context, status domain.EnrollmentStatus) {
	enrollmentsCreated.Inc(ctx, attribute.String("status", status.String()))
}

// EnrollmentCancelled counts a cancellation
func (r *Recorder) EnrollmentCancelled(ctx context.Context) {
	enrollmentsCancelled.Inc(ctx)
}

// EnrollmentCheckedIn counts a check-in
func (r *Recorder) EnrollmentCheckedIn(ctx context.Context) {
	enrollmentsCheckedIn.Inc(ctx)
}

// WaitlistPromoted counts a waitlist promotion
func (r *Recorder) WaitlistPromoted(ctx context.Context) {
	waitlistPromotions.Inc(ctx)
}

// EventPublished counts a publication
func (r *Recorder) EventPublished(ctx context.Context) {
	eventsPublished.Inc(ctx)
}
