package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/repository"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/service"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/worker"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/config"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/database"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logLevel := "info"
	if cfg.App.Debug {
		logLevel = "debug"
	}
	logCfg := &logger.Config{
		Level:       logLevel,
		ServiceName: "waitlist-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Waitlist Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      10,
		MinConns:      2,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize Kafka notification publisher
	var publisher service.NotificationPublisher
	publisher, err = service.NewKafkaNotificationPublisher(ctx, &service.NotificationPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		ServiceName: "waitlist-worker",
		ClientID:    "waitlist-worker",
	})
	if err != nil {
		appLog.Warn("Kafka connection failed, using no-op publisher", zap.Error(err))
		publisher = service.NewNoOpNotificationPublisher()
	} else {
		appLog.Info("Kafka notification publisher connected")
	}
	defer publisher.Close()

	// Initialize repositories and services
	eventRepo := repository.NewPostgresEventRepository(db.Pool())
	enrollmentRepo := repository.NewPostgresEnrollmentRepository(db.Pool())
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, eventRepo, publisher, nil)

	// Create worker
	waitlistWorker := worker.NewWaitlistWorker(enrollmentRepo, enrollmentService, &worker.WaitlistWorkerConfig{
		ScanInterval: cfg.Waitlist.ScanInterval,
		BatchSize:    50,
	})

	if err := waitlistWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start worker", zap.Error(err))
	}
	appLog.Info("Waitlist Worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	waitlistWorker.Stop()

	appLog.Info("Worker exited gracefully")
}
