package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Import pprof for profiling
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/di"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/metrics"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/repository"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/service"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/worker"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/config"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/database"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/logger"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/middleware"
	pkgredis "github.com/DarkMonkDev/witchcityrope-availability/pkg/redis"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/telemetry"
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
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Availability Service...")

	ctx := context.Background()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Fatal("Telemetry init failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   1 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected", zap.Int32("min_conns", dbCfg.MinConns), zap.Int32("max_conns", dbCfg.MaxConns))

	// Initialize Redis connection (idempotency storage)
	redisCfg := &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
	}
	redisClient, err := pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Fatal("Redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	// Initialize Kafka notification publisher
	var publisher service.NotificationPublisher
	publisher, err = service.NewKafkaNotificationPublisher(ctx, &service.NotificationPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		ServiceName: cfg.App.Name,
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn("Kafka connection failed, using no-op publisher", zap.Error(err))
		publisher = service.NewNoOpNotificationPublisher()
	} else {
		appLog.Info("Kafka notification publisher connected")
	}
	defer publisher.Close()

	// Initialize metrics
	recorder, err := metrics.NewRecorder()
	if err != nil {
		appLog.Warn("Metrics init failed", zap.Error(err))
	}

	// Initialize repositories
	eventRepo := repository.NewPostgresEventRepository(db.Pool())
	enrollmentRepo := repository.NewPostgresEnrollmentRepository(db.Pool())

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:             db,
		Redis:          redisClient,
		EventRepo:      eventRepo,
		EnrollmentRepo: enrollmentRepo,
		Publisher:      publisher,
		Recorder:       recorder,
	})

	// Optionally start the FIFO waitlist promotion worker
	var waitlistWorker *worker.WaitlistWorker
	if cfg.Waitlist.AutoPromote {
		waitlistWorker = worker.NewWaitlistWorker(enrollmentRepo, container.EnrollmentService, &worker.WaitlistWorkerConfig{
			ScanInterval: cfg.Waitlist.ScanInterval,
			BatchSize:    50,
		})
		if err := waitlistWorker.Start(ctx); err != nil {
			appLog.Fatal("Failed to start waitlist worker", zap.Error(err))
		}
		appLog.Info("Waitlist auto-promotion enabled")
	}

	// Setup Gin
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
		gin.DisableConsoleColor()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Pool stats for monitoring
	router.GET("/metrics/db", func(c *gin.Context) {
		stats := db.Stats()
		c.JSON(http.StatusOK, gin.H{
			"db_pool": gin.H{
				"total_conns":    stats.TotalConns(),
				"acquired_conns": stats.AcquiredConns(),
				"idle_conns":     stats.IdleConns(),
				"max_conns":      stats.MaxConns(),
			},
		})
	})

	authMW := middleware.Auth(&middleware.AuthConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	})

	idempotencyCfg := middleware.DefaultIdempotencyConfig(redisClient.Client())

	// API routes
	v1 := router.Group("/api/v1")
	{
		events := v1.Group("/events")
		{
			// Public reads
			events.GET("", container.EventHandler.ListEvents)
			events.GET("/:id", container.EventHandler.GetEvent)
			events.GET("/:id/availability", container.AvailabilityHandler.GetEventAvailability)
			events.GET("/:id/ticket-types/:ticketTypeId/availability", container.AvailabilityHandler.GetTicketTypeAvailability)

			// Authoring (organizer role)
			authoring := events.Group("", authMW, middleware.RequireRole(middleware.RoleOrganizer))
			{
				authoring.POST("", container.EventHandler.CreateEvent)
				authoring.POST("/:id/publish", container.EventHandler.PublishEvent)
				authoring.POST("/:id/sessions", container.EventHandler.AddSession)
				authoring.POST("/:id/ticket-types", container.EventHandler.AddTicketType)
				authoring.DELETE("/:id/sessions/:sessionId", container.EventHandler.DeactivateSession)
				authoring.DELETE("/:id/ticket-types/:ticketTypeId", container.EventHandler.DeactivateTicketType)
			}

			// Enrollment creation (member, idempotent)
			events.POST("/:id/enrollments", authMW, middleware.Idempotency(idempotencyCfg), container.EnrollmentHandler.CreateEnrollment)

			// Staff operations
			events.GET("/:id/roster", authMW, middleware.RequireRole(middleware.RoleStaff), container.EnrollmentHandler.GetEventRoster)
			events.POST("/:id/waitlist/promote", authMW, middleware.RequireRole(middleware.RoleAdmin), container.EnrollmentHandler.PromoteWaitlist)
		}

		enrollments := v1.Group("/enrollments", authMW)
		{
			enrollments.GET("/:id", container.EnrollmentHandler.GetEnrollment)
			enrollments.POST("/:id/cancel", container.EnrollmentHandler.CancelEnrollment)
			enrollments.POST("/:id/check-in", middleware.RequireRole(middleware.RoleStaff), container.EnrollmentHandler.CheckIn)
		}

		v1.GET("/users/me/enrollments", authMW, container.EnrollmentHandler.GetMyEnrollments)
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start pprof server on separate port for profiling
	go func() {
		pprofAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1000)
		appLog.Info("pprof server listening", zap.String("addr", pprofAddr))
		if err := http.ListenAndServe(pprofAddr, nil); err != nil {
			appLog.Error("pprof server error", zap.Error(err))
		}
	}()

	// Start server in goroutine
	go func() {
		appLog.Info("Availability Service listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	if waitlistWorker != nil {
		waitlistWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal("Server forced to shutdown", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}
