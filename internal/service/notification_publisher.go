package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/kafka"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/logger"
)

// NotificationPublisher defines the interface for publishing enrollment
// lifecycle notifications
type NotificationPublisher interface {
	// PublishEnrollmentCreated publishes the initial created notification
	PublishEnrollmentCreated(ctx context.Context, enrollment *domain.Enrollment) error

	// PublishEnrollmentCancelled publishes a cancellation notification
	PublishEnrollmentCancelled(ctx context.Context, enrollment *domain.Enrollment) error

	// PublishEnrollmentCheckedIn publishes a check-in notification
	PublishEnrollmentCheckedIn(ctx context.Context, enrollment *domain.Enrollment) error

	// PublishEnrollmentPromoted publishes a waitlist promotion notification
	PublishEnrollmentPromoted(ctx context.Context, enrollment *domain.Enrollment) error

	// Close closes the publisher
	Close() error
}

// eventProducer is the transport the publisher writes through
type eventProducer interface {
	ProduceAsync(ctx context.Context, msg *kafka.Message, onErr func(error))
	Close()
}

// KafkaNotificationPublisher implements NotificationPublisher using Kafka
type KafkaNotificationPublisher struct {
	producer    eventProducer
	topic       string
	serviceName string
}

// NotificationPublisherConfig contains configuration for the publisher
type NotificationPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaNotificationPublisher creates a new Kafka notification publisher
func NewKafkaNotificationPublisher(ctx context.Context, cfg *NotificationPublisherConfig) (*KafkaNotificationPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notification publisher config is required")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "enrollment-events"
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "availability-service"
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "availability-service-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaNotificationPublisher{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}, nil
}

// PublishEnrollmentCreated publishes the initial created notification. The
// event type reflects the assigned status so consumers can tell confirmed
// from waitlisted without diffing state.
func (p *KafkaNotificationPublisher) PublishEnrollmentCreated(ctx context.Context, enrollment *domain.Enrollment) error {
	eventType := domain.EnrollmentEventConfirmed
	if enrollment.Status == domain.EnrollmentStatusWaitlisted {
		eventType = domain.EnrollmentEventWaitlisted
	}
	return p.publishEvent(ctx, eventType, enrollment)
}

// PublishEnrollmentCancelled publishes a cancellation notification
func (p *KafkaNotificationPublisher) PublishEnrollmentCancelled(ctx context.Context, enrollment *domain.Enrollment) error {
	return p.publishEvent(ctx, domain.EnrollmentEventCancelled, enrollment)
}

// PublishEnrollmentCheckedIn publishes a check-in notification
func (p *KafkaNotificationPublisher) PublishEnrollmentCheckedIn(ctx context.Context, enrollment *domain.Enrollment) error {
	return p.publishEvent(ctx, domain.EnrollmentEventCheckedIn, enrollment)
}

// PublishEnrollmentPromoted publishes a waitlist promotion notification
func (p *KafkaNotificationPublisher) PublishEnrollmentPromoted(ctx context.Context, enrollment *domain.Enrollment) error {
	return p.publishEvent(ctx, domain.EnrollmentEventPromoted, enrollment)
}

// Close closes the publisher
func (p *KafkaNotificationPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

func (p *KafkaNotificationPublisher) publishEvent(ctx context.Context, eventType domain.EnrollmentEventType, enrollment *domain.Enrollment) error {
	eventID := uuid.New().String()
	event := domain.NewEnrollmentEvent(eventType, enrollment, eventID)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := map[string]string{
		"event_type":   string(eventType),
		"event_id":     eventID,
		"source":       p.serviceName,
		"content_type": "application/json",
	}

	msg := &kafka.Message{
		Topic:     p.topic,
		Key:       []byte(event.Key()),
		Value:     value,
		Headers:   headers,
		Timestamp: time.Now(),
	}

	// ProduceAsync is non-blocking: the enrollment outcome is already
	// committed, so the caller never waits on the broker ack. Delivery must
	// outlive the request, hence the detached context.
	p.producer.ProduceAsync(context.WithoutCancel(ctx), msg, func(err error) {
		logger.Get().Warn("notification delivery failed",
			zap.String("event_type", string(eventType)),
			zap.String("enrollment_id", enrollment.ID),
			zap.Error(err),
		)
	})

	return nil
}

// NoOpNotificationPublisher is a no-op implementation for testing and for
// running without a broker
type NoOpNotificationPublisher struct{}

// NewNoOpNotificationPublisher creates a new no-op publisher
func NewNoOpNotificationPublisher() *NoOpNotificationPublisher {
	return &NoOpNotificationPublisher{}
}

// PublishEnrollmentCreated is a no-op
func (p *NoOpNotificationPublisher) PublishEnrollmentCreated(ctx context.Context, enrollment *domain.Enrollment) error {
	return nil
}

// PublishEnrollmentCancelled is a no-op
func (p *NoOpNotificationPublisher) PublishEnrollmentCancelled(ctx context.Context, enrollment *domain.Enrollment) error {
	return nil
}

// PublishEnrollmentCheckedIn is a no-op
func (p *NoOpNotificationPublisher) PublishEnrollmentCheckedIn(ctx context.Context, enrollment *domain.Enrollment) error {
	return nil
}

// PublishEnrollmentPromoted is a no-op
func (p *NoOpNotificationPublisher) PublishEnrollmentPromoted(ctx context.Context, enrollment *domain.Enrollment) error {
	return nil
}

// Close is a no-op
func (p *NoOpNotificationPublisher) Close() error {
	return nil
}
