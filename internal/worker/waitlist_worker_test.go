package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/dto"
)

// fakeEnrollmentRepo implements the subset of EnrollmentRepository the
// worker touches; everything else panics if reached.
type fakeEnrollmentRepo struct {
	eventIDs []string
	listErr  error
	calls    int
}

func (f *fakeEnrollmentRepo) ListEventsWithWaitlist(ctx context.Context, limit int) ([]string, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.eventIDs) > limit {
		return f.eventIDs[:limit], nil
	}
	return f.eventIDs, nil
}

func (f *fakeEnrollmentRepo) CreateWithCapacityCheck(ctx context.Context, enrollment *domain.Enrollment, decide func(agg *domain.EventAggregate) error) error {
	panic("not used by the worker")
}

func (f *fakeEnrollmentRepo) GetByID(ctx context.Context, id string) (*domain.Enrollment, error) {
	panic("not used by the worker")
}

func (f *fakeEnrollmentRepo) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Enrollment, error) {
	panic("not used by the worker")
}

func (f *fakeEnrollmentRepo) GetByEventID(ctx context.Context, eventID string, limit, offset int) ([]*domain.Enrollment, error) {
	panic("not used by the worker")
}

func (f *fakeEnrollmentRepo) Cancel(ctx context.Context, id, reason string, now time.Time) error {
	panic("not used by the worker")
}

func (f *fakeEnrollmentRepo) CheckIn(ctx context.Context, id, staffUserID string, now time.Time) error {
	panic("not used by the worker")
}

func (f *fakeEnrollmentRepo) PromoteOldestWaitlisted(ctx context.Context, eventID string, eligible func(agg *domain.EventAggregate, candidate *domain.Enrollment) bool) (*domain.Enrollment, error) {
	panic("not used by the worker")
}

// fakeEnrollmentService drains a fixed queue of promotions per event
type fakeEnrollmentService struct {
	queues     map[string][]*dto.EnrollmentResponse
	promoteErr error
	promotions []string
}

func (f *fakeEnrollmentService) PromoteWaitlist(ctx context.Context, eventID string) (*dto.EnrollmentResponse, error) {
	if f.promoteErr != nil {
		return nil, f.promoteErr
	}
	q := f.queues[eventID]
	if len(q) == 0 {
		return nil, nil
	}
	next := q[0]
	f.queues[eventID] = q[1:]
	f.promotions = append(f.promotions, next.ID)
	return next, nil
}

func (f *fakeEnrollmentService) CreateEnrollment(ctx context.Context, userID, eventID string, req *dto.CreateEnrollmentRequest) (*dto.EnrollmentResponse, error) {
	panic("not used by the worker")
}

func (f *fakeEnrollmentService) GetEnrollment(ctx context.Context, enrollmentID, callerID string, callerIsStaff bool) (*dto.EnrollmentResponse, error) {
	panic("not used by the worker")
}

func (f *fakeEnrollmentService) GetUserEnrollments(ctx context.Context, userID string, page, pageSize int) (*dto.EnrollmentListResponse, error) {
	panic("not used by the worker")
}

func (f *fakeEnrollmentService) GetEventRoster(ctx context.Context, eventID string, page, pageSize int) (*dto.EnrollmentListResponse, error) {
	panic("not used by the worker")
}

func (f *fakeEnrollmentService) CancelEnrollment(ctx context.Context, enrollmentID, callerID string, callerIsStaff bool, reason string) (*dto.EnrollmentResponse, error) {
	panic("not used by the worker")
}

func (f *fakeEnrollmentService) CheckIn(ctx context.Context, enrollmentID, staffUserID string) (*dto.EnrollmentResponse, error) {
	panic("not used by the worker")
}

func TestWaitlistWorker_ProcessWaitlists(t *testing.T) {
	repo := &fakeEnrollmentRepo{eventIDs: []string{"evt-1", "evt-2"}}
	svc := &fakeEnrollmentService{
		queues: map[string][]*dto.EnrollmentResponse{
			"evt-1": {
				{ID: "enr-1", EventID: "evt-1", UserID: "u1"},
				{ID: "enr-2", EventID: "evt-1", UserID: "u2"},
			},
			"evt-2": {
				{ID: "enr-3", EventID: "evt-2", UserID: "u3"},
			},
		},
	}

	w := NewWaitlistWorker(repo, svc, nil)
	w.processWaitlists(context.Background())

	// Each event drains fully, one promotion at a time.
	require.Len(t, svc.promotions, 3)
	assert.Equal(t, []string{"enr-1", "enr-2", "enr-3"}, svc.promotions)

	stats := w.GetStats()
	assert.Equal(t, int64(3), stats.TotalPromoted)
	assert.False(t, stats.LastScanTime.IsZero())
}

func TestWaitlistWorker_ProcessWaitlists_Empty(t *testing.T) {
	repo := &fakeEnrollmentRepo{}
	svc := &fakeEnrollmentService{queues: map[string][]*dto.EnrollmentResponse{}}

	w := NewWaitlistWorker(repo, svc, nil)
	w.processWaitlists(context.Background())

	assert.Empty(t, svc.promotions)
}

func TestWaitlistWorker_ProcessWaitlists_PromoteErrorMovesOn(t *testing.T) {
	repo := &fakeEnrollmentRepo{eventIDs: []string{"evt-1"}}
	svc := &fakeEnrollmentService{promoteErr: errors.New("lock timeout")}

	w := NewWaitlistWorker(repo, svc, nil)
	w.processWaitlists(context.Background())

	// A failed promotion must not count.
	assert.Equal(t, int64(0), w.GetStats().TotalPromoted)
}

func TestWaitlistWorker_StartStop(t *testing.T) {
	repo := &fakeEnrollmentRepo{}
	svc := &fakeEnrollmentService{queues: map[string][]*dto.EnrollmentResponse{}}

	w := NewWaitlistWorker(repo, svc, &WaitlistWorkerConfig{
		ScanInterval: 10 * time.Millisecond,
		BatchSize:    10,
	})

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start should fail while running")

	time.Sleep(30 * time.Millisecond)
	w.Stop()

	stats := w.GetStats()
	assert.False(t, stats.IsRunning)
	assert.GreaterOrEqual(t, repo.calls, 2)
}
