package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/kafka"
)

// fakeProducer captures produced messages. When deliverErr is set it invokes
// the error callback, standing in for a broker that rejects the record;
// when ackPending is set it never invokes any callback, standing in for a
// broker that has not answered yet.
type fakeProducer struct {
	messages   []*kafka.Message
	deliverErr error
	ackPending bool
}

func (f *fakeProducer) ProduceAsync(ctx context.Context, msg *kafka.Message, onErr func(error)) {
	f.messages = append(f.messages, msg)
	if f.ackPending {
		return
	}
	if f.deliverErr != nil && onErr != nil {
		onErr(f.deliverErr)
	}
}

func (f *fakeProducer) Close() {}

func newTestPublisher(producer eventProducer) *KafkaNotificationPublisher {
	return &KafkaNotificationPublisher{
		producer:    producer,
		topic:       "enrollment-events",
		serviceName: "availability-service",
	}
}

func TestKafkaNotificationPublisher_EventTypes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		publish  func(p *KafkaNotificationPublisher, ctx context.Context, e *domain.Enrollment) error
		status   domain.EnrollmentStatus
		wantType domain.EnrollmentEventType
	}{
		{
			name:     "created confirmed",
			publish:  (*KafkaNotificationPublisher).PublishEnrollmentCreated,
			status:   domain.EnrollmentStatusConfirmed,
			wantType: domain.EnrollmentEventConfirmed,
		},
		{
			name:     "created waitlisted",
			publish:  (*KafkaNotificationPublisher).PublishEnrollmentCreated,
			status:   domain.EnrollmentStatusWaitlisted,
			wantType: domain.EnrollmentEventWaitlisted,
		},
		{
			name:     "cancelled",
			publish:  (*KafkaNotificationPublisher).PublishEnrollmentCancelled,
			status:   domain.EnrollmentStatusCancelled,
			wantType: domain.EnrollmentEventCancelled,
		},
		{
			name:     "checked in",
			publish:  (*KafkaNotificationPublisher).PublishEnrollmentCheckedIn,
			status:   domain.EnrollmentStatusCheckedIn,
			wantType: domain.EnrollmentEventCheckedIn,
		},
		{
			name:     "promoted",
			publish:  (*KafkaNotificationPublisher).PublishEnrollmentPromoted,
			status:   domain.EnrollmentStatusConfirmed,
			wantType: domain.EnrollmentEventPromoted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := &fakeProducer{}
			pub := newTestPublisher(producer)
			enrollment := &domain.Enrollment{
				ID:               "enr-1",
				EventID:          "evt-1",
				UserID:           "u1",
				Status:           tt.status,
				ConfirmationCode: "abc123ef",
			}

			if err := tt.publish(pub, ctx, enrollment); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(producer.messages) != 1 {
				t.Fatalf("expected 1 message, got %d", len(producer.messages))
			}

			msg := producer.messages[0]
			if msg.Topic != "enrollment-events" {
				t.Errorf("unexpected topic %q", msg.Topic)
			}
			// Keyed by the parent event so one event's changes stay ordered.
			if string(msg.Key) != "evt-1" {
				t.Errorf("unexpected key %q", msg.Key)
			}
			if msg.Headers["event_type"] != string(tt.wantType) {
				t.Errorf("header event_type = %q, want %q", msg.Headers["event_type"], tt.wantType)
			}

			var payload domain.EnrollmentEvent
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				t.Fatalf("payload did not unmarshal: %v", err)
			}
			if payload.Type != tt.wantType {
				t.Errorf("payload type = %q, want %q", payload.Type, tt.wantType)
			}
			if payload.EnrollmentID != "enr-1" || payload.ParentEventID != "evt-1" {
				t.Errorf("unexpected payload identity: %+v", payload)
			}
			if payload.Status != string(tt.status) {
				t.Errorf("payload status = %q, want %q", payload.Status, tt.status)
			}
		})
	}
}

func TestKafkaNotificationPublisher_DeliveryFailureNotSurfaced(t *testing.T) {
	producer := &fakeProducer{deliverErr: errors.New("broker unreachable")}
	pub := newTestPublisher(producer)
	enrollment := &domain.Enrollment{ID: "enr-1", EventID: "evt-1", UserID: "u1", Status: domain.EnrollmentStatusConfirmed}

	if err := pub.PublishEnrollmentCreated(context.Background(), enrollment); err != nil {
		t.Fatalf("broker failure must not surface to the caller, got %v", err)
	}
	if len(producer.messages) != 1 {
		t.Fatalf("expected the record to be handed off, got %d messages", len(producer.messages))
	}
}

func TestKafkaNotificationPublisher_DoesNotWaitForAck(t *testing.T) {
	producer := &fakeProducer{ackPending: true}
	pub := newTestPublisher(producer)
	enrollment := &domain.Enrollment{ID: "enr-1", EventID: "evt-1", UserID: "u1", Status: domain.EnrollmentStatusConfirmed}

	// The publish call returns before any delivery outcome exists.
	if err := pub.PublishEnrollmentCancelled(context.Background(), enrollment); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(producer.messages) != 1 {
		t.Fatalf("expected the record to be handed off, got %d messages", len(producer.messages))
	}
}
