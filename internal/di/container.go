package di

import (
	"github.com/DarkMonkDev/witchcityrope-availability/internal/handler"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/metrics"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/repository"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/service"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/database"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/redis"
)

// Container holds all dependencies for the availability service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	EventRepo      repository.EventRepository
	EnrollmentRepo repository.EnrollmentRepository

	// Publishers
	Publisher service.NotificationPublisher

	// Services
	EventService        service.EventService
	AvailabilityService service.AvailabilityService
	EnrollmentService   service.EnrollmentService

	// Handlers
	HealthHandler       *handler.HealthHandler
	EventHandler        *handler.EventHandler
	AvailabilityHandler *handler.AvailabilityHandler
	EnrollmentHandler   *handler.EnrollmentHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB             *database.PostgresDB
	Redis          *redis.Client
	EventRepo      repository.EventRepository
	EnrollmentRepo repository.EnrollmentRepository
	Publisher      service.NotificationPublisher
	Recorder       *metrics.Recorder
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		EventRepo:      cfg.EventRepo,
		EnrollmentRepo: cfg.EnrollmentRepo,
		Publisher:      cfg.Publisher,
	}

	// Initialize services
	c.EventService = service.NewEventService(c.EventRepo, cfg.Recorder)
	c.AvailabilityService = service.NewAvailabilityService(c.EventRepo)
	c.EnrollmentService = service.NewEnrollmentService(
		c.EnrollmentRepo,
		c.EventRepo,
		c.Publisher,
		cfg.Recorder,
	)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.EventHandler = handler.NewEventHandler(c.EventService)
	c.AvailabilityHandler = handler.NewAvailabilityHandler(c.AvailabilityService)
	c.EnrollmentHandler = handler.NewEnrollmentHandler(c.EnrollmentService)

	return c
}
