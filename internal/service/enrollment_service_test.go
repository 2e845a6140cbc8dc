package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/dto"
)

// MockEnrollmentRepository is an in-memory implementation of
// EnrollmentRepository. It shares aggregate state with a MockEventRepository
// so that availability decisions see enrollments the same way the service
// does in production.
type MockEnrollmentRepository struct {
	events      *MockEventRepository
	enrollments map[string]*domain.Enrollment
	createErr   error
}

func NewMockEnrollmentRepository(events *MockEventRepository) *MockEnrollmentRepository {
	return &MockEnrollmentRepository{
		events:      events,
		enrollments: make(map[string]*domain.Enrollment),
	}
}

func (m *MockEnrollmentRepository) CreateWithCapacityCheck(ctx context.Context, enrollment *domain.Enrollment, decide func(agg *domain.EventAggregate) error) error {
	if m.createErr != nil {
		return m.createErr
	}
	agg, ok := m.events.aggregates[enrollment.EventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	agg.Event = *m.events.events[enrollment.EventID]
	for i := range agg.Enrollments {
		e := &agg.Enrollments[i]
		if e.UserID == enrollment.UserID && e.IsActive() {
			return domain.ErrDuplicateEnrollment
		}
	}
	if err := decide(agg); err != nil {
		return err
	}
	cp := *enrollment
	m.enrollments[enrollment.ID] = &cp
	agg.Enrollments = append(agg.Enrollments, *enrollment)
	return nil
}

func (m *MockEnrollmentRepository) GetByID(ctx context.Context, id string) (*domain.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, domain.ErrEnrollmentNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockEnrollmentRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Enrollment, error) {
	var out []*domain.Enrollment
	for _, e := range m.enrollments {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return slicePage(out, limit, offset), nil
}

func (m *MockEnrollmentRepository) GetByEventID(ctx context.Context, eventID string, limit, offset int) ([]*domain.Enrollment, error) {
	var out []*domain.Enrollment
	for _, e := range m.enrollments {
		if e.EventID == eventID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return slicePage(out, limit, offset), nil
}

func (m *MockEnrollmentRepository) Cancel(ctx context.Context, id, reason string, now time.Time) error {
	e, ok := m.enrollments[id]
	if !ok {
		return domain.ErrEnrollmentNotFound
	}
	if err := e.Cancel(reason, now); err != nil {
		return err
	}
	m.syncAggregate(e)
	return nil
}

func (m *MockEnrollmentRepository) CheckIn(ctx context.Context, id, staffUserID string, now time.Time) error {
	e, ok := m.enrollments[id]
	if !ok {
		return domain.ErrEnrollmentNotFound
	}
	if err := e.CheckIn(staffUserID, now); err != nil {
		return err
	}
	m.syncAggregate(e)
	return nil
}

func (m *MockEnrollmentRepository) PromoteOldestWaitlisted(ctx context.Context, eventID string, eligible func(agg *domain.EventAggregate, candidate *domain.Enrollment) bool) (*domain.Enrollment, error) {
	agg, ok := m.events.aggregates[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	var candidates []*domain.Enrollment
	for _, e := range m.enrollments {
		if e.EventID == eventID && e.Status == domain.EnrollmentStatusWaitlisted {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	for _, c := range candidates {
		if !eligible(agg, c) {
			continue
		}
		if err := c.Promote(time.Now()); err != nil {
			return nil, err
		}
		m.syncAggregate(c)
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *MockEnrollmentRepository) ListEventsWithWaitlist(ctx context.Context, limit int) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.enrollments {
		if e.Status != domain.EnrollmentStatusWaitlisted || seen[e.EventID] {
			continue
		}
		event, ok := m.events.events[e.EventID]
		if !ok || !event.IsPublished {
			continue
		}
		seen[e.EventID] = true
		out = append(out, e.EventID)
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// syncAggregate propagates a status change into the shared aggregate so
// availability recomputation sees it.
func (m *MockEnrollmentRepository) syncAggregate(e *domain.Enrollment) {
	agg, ok := m.events.aggregates[e.EventID]
	if !ok {
		return
	}
	for i := range agg.Enrollments {
		if agg.Enrollments[i].ID == e.ID {
			agg.Enrollments[i] = *e
			return
		}
	}
}

func slicePage(rows []*domain.Enrollment, limit, offset int) []*domain.Enrollment {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// mockPublisher records published notifications
type mockPublisher struct {
	created   []string
	cancelled []string
	checkedIn []string
	promoted  []string
	err       error
}

func (p *mockPublisher) PublishEnrollmentCreated(ctx context.Context, e *domain.Enrollment) error {
	p.created = append(p.created, e.ID)
	return p.err
}

func (p *mockPublisher) PublishEnrollmentCancelled(ctx context.Context, e *domain.Enrollment) error {
	p.cancelled = append(p.cancelled, e.ID)
	return p.err
}

func (p *mockPublisher) PublishEnrollmentCheckedIn(ctx context.Context, e *domain.Enrollment) error {
	p.checkedIn = append(p.checkedIn, e.ID)
	return p.err
}

func (p *mockPublisher) PublishEnrollmentPromoted(ctx context.Context, e *domain.Enrollment) error {
	p.promoted = append(p.promoted, e.ID)
	return p.err
}

func (p *mockPublisher) Close() error { return nil }

type enrollmentFixture struct {
	eventRepo      *MockEventRepository
	enrollmentRepo *MockEnrollmentRepository
	publisher      *mockPublisher
	svc            *enrollmentService
	now            time.Time
}

func newEnrollmentFixture(t *testing.T) *enrollmentFixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eventRepo := NewMockEventRepository()
	enrollmentRepo := NewMockEnrollmentRepository(eventRepo)
	publisher := &mockPublisher{}
	svc := NewEnrollmentService(enrollmentRepo, eventRepo, publisher, nil).(*enrollmentService)
	svc.now = func() time.Time { return now }
	return &enrollmentFixture{
		eventRepo:      eventRepo,
		enrollmentRepo: enrollmentRepo,
		publisher:      publisher,
		svc:            svc,
		now:            now,
	}
}

// seedFlatEvent creates a published flat-capacity event
func (f *enrollmentFixture) seedFlatEvent(id string, capacity int) {
	f.eventRepo.AddAggregate(&domain.EventAggregate{Event: domain.Event{
		ID:          id,
		Title:       "Flat Event",
		StartDate:   f.now.Add(48 * time.Hour),
		EndDate:     f.now.Add(72 * time.Hour),
		Location:    "Studio A",
		Capacity:    capacity,
		IsPublished: true,
	}})
}

// enrollN enrolls n distinct users, failing the test on any error
func (f *enrollmentFixture) enrollN(t *testing.T, eventID string, n int) []*dto.EnrollmentResponse {
	t.Helper()
	out := make([]*dto.EnrollmentResponse, 0, n)
	for i := 0; i < n; i++ {
		resp, err := f.svc.CreateEnrollment(context.Background(), fmt.Sprintf("user-%d", i), eventID, nil)
		if err != nil {
			t.Fatalf("enrollment %d failed: %v", i, err)
		}
		out = append(out, resp)
	}
	return out
}

func TestEnrollmentService_CreateEnrollment_FlatCapacity(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.seedFlatEvent("evt-1", 2)
	ctx := context.Background()

	first, err := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Status != string(domain.EnrollmentStatusConfirmed) {
		t.Errorf("expected confirmed, got %s", first.Status)
	}
	if first.ConfirmationCode == "" {
		t.Error("confirmation code must be assigned")
	}

	second, err := f.svc.CreateEnrollment(ctx, "bob", "evt-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Status != string(domain.EnrollmentStatusConfirmed) {
		t.Errorf("expected confirmed, got %s", second.Status)
	}

	// Capacity exhausted: the third enrollment waitlists rather than failing.
	third, err := f.svc.CreateEnrollment(ctx, "carol", "evt-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.Status != string(domain.EnrollmentStatusWaitlisted) {
		t.Errorf("expected waitlisted, got %s", third.Status)
	}

	if len(f.publisher.created) != 3 {
		t.Errorf("expected 3 created notifications, got %d", len(f.publisher.created))
	}
}

func TestEnrollmentService_CreateEnrollment_Validation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  string
		eventID string
		req     *dto.CreateEnrollmentRequest
		seed    func(f *enrollmentFixture)
		wantErr error
	}{
		{
			name:    "missing user",
			userID:  "",
			eventID: "evt-1",
			wantErr: domain.ErrInvalidUserID,
		},
		{
			name:    "missing event",
			userID:  "alice",
			eventID: "",
			wantErr: domain.ErrInvalidEventID,
		},
		{
			name:    "unknown event",
			userID:  "alice",
			eventID: "missing",
			seed:    func(f *enrollmentFixture) { f.seedFlatEvent("evt-1", 5) },
			wantErr: domain.ErrEventNotFound,
		},
		{
			name:    "unpublished event",
			userID:  "alice",
			eventID: "evt-1",
			seed: func(f *enrollmentFixture) {
				f.eventRepo.AddAggregate(&domain.EventAggregate{Event: domain.Event{
					ID:        "evt-1",
					StartDate: now.Add(48 * time.Hour),
					EndDate:   now.Add(72 * time.Hour),
					Capacity:  5,
				}})
			},
			wantErr: domain.ErrEventNotPublished,
		},
		{
			name:    "event already started",
			userID:  "alice",
			eventID: "evt-1",
			seed: func(f *enrollmentFixture) {
				f.eventRepo.AddAggregate(&domain.EventAggregate{Event: domain.Event{
					ID:          "evt-1",
					StartDate:   now.Add(-1 * time.Hour),
					EndDate:     now.Add(24 * time.Hour),
					Capacity:    5,
					IsPublished: true,
				}})
			},
			wantErr: domain.ErrEventInPast,
		},
		{
			name:    "duplicate active enrollment",
			userID:  "alice",
			eventID: "evt-1",
			seed: func(f *enrollmentFixture) {
				f.seedFlatEvent("evt-1", 5)
				_, _ = f.svc.CreateEnrollment(context.Background(), "alice", "evt-1", nil)
			},
			wantErr: domain.ErrDuplicateEnrollment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEnrollmentFixture(t)
			if tt.seed != nil {
				tt.seed(f)
			}
			_, err := f.svc.CreateEnrollment(ctx, tt.userID, tt.eventID, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEnrollmentService_CreateEnrollment_AfterCancelReenroll(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.seedFlatEvent("evt-1", 5)
	ctx := context.Background()

	first, err := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.CancelEnrollment(ctx, first.ID, "alice", false, "plans changed"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// A cancelled enrollment no longer blocks re-enrollment.
	second, err := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)
	if err != nil {
		t.Fatalf("re-enrollment failed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("re-enrollment must create a new enrollment")
	}
	if second.Status != string(domain.EnrollmentStatusConfirmed) {
		t.Errorf("expected confirmed, got %s", second.Status)
	}
}

func TestEnrollmentService_CreateEnrollment_TicketTypes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	qty := 1
	salesClosed := now.Add(-1 * time.Hour)
	salesNotYetOpen := now.Add(1 * time.Hour)

	seed := func(f *enrollmentFixture) {
		f.eventRepo.AddAggregate(&domain.EventAggregate{
			Event: domain.Event{
				ID:          "evt-1",
				StartDate:   now.Add(48 * time.Hour),
				EndDate:     now.Add(72 * time.Hour),
				Capacity:    50,
				IsPublished: true,
			},
			Sessions: []domain.Session{
				{ID: "sess-1", EventID: "evt-1", Identifier: "S1", Capacity: 10, IsActive: true},
				{ID: "sess-2", EventID: "evt-1", Identifier: "S2", Capacity: 10, IsActive: true},
			},
			TicketTypes: []domain.TicketType{
				{ID: "tt-free", EventID: "evt-1", Name: "Free", IncludedSessionIDs: []string{"sess-1"}, IsActive: true},
				{ID: "tt-paid", EventID: "evt-1", Name: "Paid", IncludedSessionIDs: []string{"sess-1"}, MinPrice: 20, MaxPrice: 60, IsActive: true},
				{ID: "tt-capped", EventID: "evt-1", Name: "Capped", IncludedSessionIDs: []string{"sess-2"}, QuantityAvailable: &qty, IsActive: true},
				{ID: "tt-inactive", EventID: "evt-1", Name: "Retired", IsActive: false},
				{ID: "tt-closed", EventID: "evt-1", Name: "Closed", SalesEnd: &salesClosed, IsActive: true},
				{ID: "tt-early", EventID: "evt-1", Name: "Early", SalesStart: &salesNotYetOpen, IsActive: true},
			},
		})
	}

	strptr := func(s string) *string { return &s }

	tests := []struct {
		name       string
		userID     string
		req        *dto.CreateEnrollmentRequest
		wantErr    error
		wantStatus domain.EnrollmentStatus
	}{
		{
			name:       "free ticket confirms",
			userID:     "alice",
			req:        &dto.CreateEnrollmentRequest{TicketTypeID: strptr("tt-free")},
			wantStatus: domain.EnrollmentStatusConfirmed,
		},
		{
			name:       "sliding scale amount in band",
			userID:     "bob",
			req:        &dto.CreateEnrollmentRequest{TicketTypeID: strptr("tt-paid"), AmountPaid: 35, PaymentRef: "pay-1"},
			wantStatus: domain.EnrollmentStatusConfirmed,
		},
		{
			name:    "amount below the band",
			userID:  "carol",
			req:     &dto.CreateEnrollmentRequest{TicketTypeID: strptr("tt-paid"), AmountPaid: 5, PaymentRef: "pay-2"},
			wantErr: domain.ErrAmountOutOfRange,
		},
		{
			name:    "paid amount without payment ref",
			userID:  "dave",
			req:     &dto.CreateEnrollmentRequest{TicketTypeID: strptr("tt-paid"), AmountPaid: 35},
			wantErr: domain.ErrPaymentRequired,
		},
		{
			name:    "unknown ticket type",
			userID:  "erin",
			req:     &dto.CreateEnrollmentRequest{TicketTypeID: strptr("tt-missing")},
			wantErr: domain.ErrTicketTypeNotFound,
		},
		{
			name:    "inactive ticket type",
			userID:  "frank",
			req:     &dto.CreateEnrollmentRequest{TicketTypeID: strptr("tt-inactive")},
			wantErr: domain.ErrTicketTypeInactive,
		},
		{
			name:    "sales window closed",
			userID:  "grace",
			req:     &dto.CreateEnrollmentRequest{TicketTypeID: strptr("tt-closed")},
			wantErr: domain.ErrOutsideSalesWindow,
		},
		{
			name:    "sales not yet open",
			userID:  "heidi",
			req:     &dto.CreateEnrollmentRequest{TicketTypeID: strptr("tt-early")},
			wantErr: domain.ErrOutsideSalesWindow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEnrollmentFixture(t)
			seed(f)
			resp, err := f.svc.CreateEnrollment(ctx, tt.userID, "evt-1", tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Status != string(tt.wantStatus) {
				t.Errorf("expected status %s, got %s", tt.wantStatus, resp.Status)
			}
		})
	}

	t.Run("quantity cap exhaustion waitlists", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		seed(f)
		first, err := f.svc.CreateEnrollment(ctx, "u1", "evt-1", &dto.CreateEnrollmentRequest{TicketTypeID: strptr("tt-capped")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.Status != string(domain.EnrollmentStatusConfirmed) {
			t.Fatalf("expected confirmed, got %s", first.Status)
		}
		second, err := f.svc.CreateEnrollment(ctx, "u2", "evt-1", &dto.CreateEnrollmentRequest{TicketTypeID: strptr("tt-capped")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.Status != string(domain.EnrollmentStatusWaitlisted) {
			t.Errorf("expected waitlisted past the quantity cap, got %s", second.Status)
		}
	})
}

func TestEnrollmentService_CreateEnrollment_SessionBottleneck(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	strptr := func(s string) *string { return &s }

	// A weekend-pass bundle is only as available as its fullest session.
	f := newEnrollmentFixture(t)
	f.eventRepo.AddAggregate(&domain.EventAggregate{
		Event: domain.Event{
			ID:          "evt-1",
			StartDate:   now.Add(48 * time.Hour),
			EndDate:     now.Add(96 * time.Hour),
			IsPublished: true,
		},
		Sessions: []domain.Session{
			{ID: "sat", EventID: "evt-1", Identifier: "SAT", Capacity: 2, IsActive: true},
			{ID: "sun", EventID: "evt-1", Identifier: "SUN", Capacity: 1, IsActive: true},
		},
		TicketTypes: []domain.TicketType{
			{ID: "weekend", EventID: "evt-1", Name: "Weekend Pass", IncludedSessionIDs: []string{"sat", "sun"}, IsActive: true},
			{ID: "sat-only", EventID: "evt-1", Name: "Saturday Only", IncludedSessionIDs: []string{"sat"}, IsActive: true},
		},
	})

	first, err := f.svc.CreateEnrollment(ctx, "alice", "evt-1", &dto.CreateEnrollmentRequest{TicketTypeID: strptr("weekend")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Status != string(domain.EnrollmentStatusConfirmed) {
		t.Fatalf("expected confirmed, got %s", first.Status)
	}

	// Sunday is now full, so another weekend pass waitlists even though
	// Saturday has a seat.
	second, err := f.svc.CreateEnrollment(ctx, "bob", "evt-1", &dto.CreateEnrollmentRequest{TicketTypeID: strptr("weekend")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Status != string(domain.EnrollmentStatusWaitlisted) {
		t.Errorf("expected waitlisted on the sunday bottleneck, got %s", second.Status)
	}

	// But the Saturday-only ticket still confirms.
	third, err := f.svc.CreateEnrollment(ctx, "carol", "evt-1", &dto.CreateEnrollmentRequest{TicketTypeID: strptr("sat-only")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.Status != string(domain.EnrollmentStatusConfirmed) {
		t.Errorf("expected confirmed for the unblocked session, got %s", third.Status)
	}
}

func TestEnrollmentService_GetEnrollment(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.seedFlatEvent("evt-1", 5)
	ctx := context.Background()

	created, err := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("owner sees own enrollment", func(t *testing.T) {
		got, err := f.svc.GetEnrollment(ctx, created.ID, "alice", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != created.ID {
			t.Errorf("expected %s, got %s", created.ID, got.ID)
		}
	})

	t.Run("other member is rejected", func(t *testing.T) {
		if _, err := f.svc.GetEnrollment(ctx, created.ID, "mallory", false); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("staff sees any enrollment", func(t *testing.T) {
		if _, err := f.svc.GetEnrollment(ctx, created.ID, "staff-1", true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("unknown enrollment", func(t *testing.T) {
		if _, err := f.svc.GetEnrollment(ctx, "missing", "alice", false); !errors.Is(err, domain.ErrEnrollmentNotFound) {
			t.Fatalf("expected ErrEnrollmentNotFound, got %v", err)
		}
	})
}

func TestEnrollmentService_CancelEnrollment(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels and releases the seat", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.seedFlatEvent("evt-1", 1)

		created, err := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cancelled, err := f.svc.CancelEnrollment(ctx, created.ID, "alice", false, "plans changed")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cancelled.Status != string(domain.EnrollmentStatusCancelled) {
			t.Errorf("expected cancelled, got %s", cancelled.Status)
		}
		if len(f.publisher.cancelled) != 1 {
			t.Errorf("expected 1 cancelled notification, got %d", len(f.publisher.cancelled))
		}

		// The released seat confirms the next enrollment.
		next, err := f.svc.CreateEnrollment(ctx, "bob", "evt-1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next.Status != string(domain.EnrollmentStatusConfirmed) {
			t.Errorf("expected confirmed after cancellation freed the seat, got %s", next.Status)
		}
	})

	t.Run("stranger cannot cancel", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.seedFlatEvent("evt-1", 5)
		created, _ := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)

		if _, err := f.svc.CancelEnrollment(ctx, created.ID, "mallory", false, ""); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("staff may cancel on behalf of a member", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.seedFlatEvent("evt-1", 5)
		created, _ := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)

		if _, err := f.svc.CancelEnrollment(ctx, created.ID, "staff-1", true, "no-show policy"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("cancelling twice fails", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.seedFlatEvent("evt-1", 5)
		created, _ := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)

		if _, err := f.svc.CancelEnrollment(ctx, created.ID, "alice", false, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := f.svc.CancelEnrollment(ctx, created.ID, "alice", false, ""); !errors.Is(err, domain.ErrAlreadyCancelled) {
			t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
		}
	})

	t.Run("checked-in enrollment cannot cancel", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.seedFlatEvent("evt-1", 5)
		created, _ := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)

		if _, err := f.svc.CheckIn(ctx, created.ID, "staff-1"); err != nil {
			t.Fatalf("check-in failed: %v", err)
		}
		if _, err := f.svc.CancelEnrollment(ctx, created.ID, "alice", false, ""); !errors.Is(err, domain.ErrAlreadyCheckedIn) {
			t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
		}
	})
}

func TestEnrollmentService_CheckIn(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed checks in", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.seedFlatEvent("evt-1", 5)
		created, _ := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)

		got, err := f.svc.CheckIn(ctx, created.ID, "staff-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != string(domain.EnrollmentStatusCheckedIn) {
			t.Errorf("expected checked_in, got %s", got.Status)
		}
		if len(f.publisher.checkedIn) != 1 {
			t.Errorf("expected 1 checked-in notification, got %d", len(f.publisher.checkedIn))
		}
	})

	t.Run("waitlisted cannot check in", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.seedFlatEvent("evt-1", 0)
		created, _ := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)
		if created.Status != string(domain.EnrollmentStatusWaitlisted) {
			t.Fatalf("expected waitlisted on a zero-capacity event, got %s", created.Status)
		}

		if _, err := f.svc.CheckIn(ctx, created.ID, "staff-1"); !errors.Is(err, domain.ErrNotConfirmed) {
			t.Fatalf("expected ErrNotConfirmed, got %v", err)
		}
	})

	t.Run("checking in twice fails", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.seedFlatEvent("evt-1", 5)
		created, _ := f.svc.CreateEnrollment(ctx, "alice", "evt-1", nil)

		if _, err := f.svc.CheckIn(ctx, created.ID, "staff-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := f.svc.CheckIn(ctx, created.ID, "staff-1"); !errors.Is(err, domain.ErrAlreadyCheckedIn) {
			t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
		}
	})
}

func TestEnrollmentService_PromoteWaitlist(t *testing.T) {
	ctx := context.Background()

	t.Run("oldest waitlisted promotes after a cancellation", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.seedFlatEvent("evt-1", 2)

		confirmed := f.enrollN(t, "evt-1", 2)

		// Two more waitlist in order; stagger creation times for FIFO.
		base := f.now
		f.svc.now = func() time.Time { return base.Add(1 * time.Minute) }
		w1, _ := f.svc.CreateEnrollment(ctx, "w-first", "evt-1", nil)
		f.svc.now = func() time.Time { return base.Add(2 * time.Minute) }
		w2, _ := f.svc.CreateEnrollment(ctx, "w-second", "evt-1", nil)
		f.svc.now = func() time.Time { return base.Add(3 * time.Minute) }

		// Nothing is eligible while the event is full: waitlisted rows hold
		// capacity, so the aggregate still counts 4 active enrollments.
		none, err := f.svc.PromoteWaitlist(ctx, "evt-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if none != nil {
			t.Fatalf("expected no promotion while full, got %s", none.ID)
		}

		if _, err := f.svc.CancelEnrollment(ctx, confirmed[0].ID, "user-0", false, ""); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}

		promoted, err := f.svc.PromoteWaitlist(ctx, "evt-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if promoted == nil {
			t.Fatal("expected a promotion after the seat freed")
		}
		if promoted.ID != w1.ID {
			t.Errorf("expected FIFO promotion of %s, got %s", w1.ID, promoted.ID)
		}
		if promoted.Status != string(domain.EnrollmentStatusConfirmed) {
			t.Errorf("expected confirmed, got %s", promoted.Status)
		}
		if len(f.publisher.promoted) != 1 {
			t.Errorf("expected 1 promoted notification, got %d", len(f.publisher.promoted))
		}

		// Only one seat freed, so the second waitlisted entry stays put.
		again, err := f.svc.PromoteWaitlist(ctx, "evt-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != nil {
			t.Errorf("expected no second promotion, got %s", again.ID)
		}
		stored, _ := f.svc.GetEnrollment(ctx, w2.ID, "w-second", false)
		if stored.Status != string(domain.EnrollmentStatusWaitlisted) {
			t.Errorf("expected %s to remain waitlisted, got %s", w2.ID, stored.Status)
		}
	})

	t.Run("empty waitlist is a no-op", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.seedFlatEvent("evt-1", 2)

		promoted, err := f.svc.PromoteWaitlist(ctx, "evt-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if promoted != nil {
			t.Errorf("expected nil, got %s", promoted.ID)
		}
	})
}

func TestEnrollmentService_Pagination(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.seedFlatEvent("evt-1", 50)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.svc.now = func() time.Time { return f.now.Add(time.Duration(i) * time.Minute) }
		if _, err := f.svc.CreateEnrollment(ctx, fmt.Sprintf("user-%d", i), "evt-1", nil); err != nil {
			t.Fatalf("enrollment %d failed: %v", i, err)
		}
	}

	page1, err := f.svc.GetEventRoster(ctx, "evt-1", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page1.Enrollments) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page1.Enrollments))
	}
	if !page1.HasMore {
		t.Error("expected more pages after the first")
	}

	page3, err := f.svc.GetEventRoster(ctx, "evt-1", 3, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page3.Enrollments) != 1 {
		t.Fatalf("expected 1 row on the final page, got %d", len(page3.Enrollments))
	}
	if page3.HasMore {
		t.Error("final page must not report more")
	}

	mine, err := f.svc.GetUserEnrollments(ctx, "user-0", 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mine.Enrollments) != 1 {
		t.Fatalf("expected 1 enrollment for user-0, got %d", len(mine.Enrollments))
	}
}
