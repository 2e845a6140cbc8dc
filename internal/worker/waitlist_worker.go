package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/repository"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/service"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/logger"
)

// WaitlistWorkerConfig contains configuration for the waitlist worker
type WaitlistWorkerConfig struct {
	// ScanInterval is the interval between promotion scans
	ScanInterval time.Duration
	// BatchSize is the number of events examined per scan
	BatchSize int
}

// DefaultWaitlistWorkerConfig returns default configuration
func DefaultWaitlistWorkerConfig() *WaitlistWorkerConfig {
	return &WaitlistWorkerConfig{
		ScanInterval: 30 * time.Second,
		BatchSize:    50,
	}
}

// WaitlistWorker periodically promotes waitlisted enrollments in FIFO order
// when capacity has freed up. It only runs when auto-promotion is enabled;
// otherwise promotion stays an admin-triggered operation.
type WaitlistWorker struct {
	enrollmentRepo    repository.EnrollmentRepository
	enrollmentService service.EnrollmentService
	config            *WaitlistWorkerConfig
	log               *logger.Logger
	stopCh            chan struct{}
	wg                sync.WaitGroup
	mu                sync.Mutex
	running           bool

	// Stats
	totalPromoted int64
	lastScanTime  time.Time
}

// NewWaitlistWorker creates a new waitlist worker
func NewWaitlistWorker(
	enrollmentRepo repository.EnrollmentRepository,
	enrollmentService service.EnrollmentService,
	config *WaitlistWorkerConfig,
) *WaitlistWorker {
	if config == nil {
		config = DefaultWaitlistWorkerConfig()
	}

	return &WaitlistWorker{
		enrollmentRepo:    enrollmentRepo,
		enrollmentService: enrollmentService,
		config:            config,
		log:               logger.Get(),
		stopCh:            make(chan struct{}),
	}
}

// Start starts the waitlist worker
func (w *WaitlistWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("waitlist worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting waitlist worker")

	w.wg.Add(1)
	go w.scanWaitlists(ctx)

	return nil
}

// Stop stops the waitlist worker
func (w *WaitlistWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping waitlist worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Waitlist worker stopped")
}

// scanWaitlists periodically scans events with waitlisted enrollments
func (w *WaitlistWorker) scanWaitlists(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	w.processWaitlists(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processWaitlists(ctx)
		}
	}
}

// processWaitlists promotes eligible enrollments across all waitlisted events.
// Each event drains one promotion at a time so the FIFO order re-checks
// capacity after every confirmed seat.
func (w *WaitlistWorker) processWaitlists(ctx context.Context) {
	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.mu.Unlock()

	eventIDs, err := w.enrollmentRepo.ListEventsWithWaitlist(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to list events with waitlist: %v", err))
		return
	}

	if len(eventIDs) == 0 {
		return
	}

	for _, eventID := range eventIDs {
		for {
			promoted, err := w.enrollmentService.PromoteWaitlist(ctx, eventID)
			if err != nil {
				w.log.Error(fmt.Sprintf("Failed to promote waitlist for event %s: %v", eventID, err))
				break
			}
			if promoted == nil {
				break
			}

			w.mu.Lock()
			w.totalPromoted++
			w.mu.Unlock()

			w.log.Info(fmt.Sprintf("Promoted enrollment %s (event: %s, user: %s)",
				promoted.ID, eventID, promoted.UserID))
		}
	}
}

// GetStats returns worker statistics
func (w *WaitlistWorker) GetStats() *WaitlistWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &WaitlistWorkerStats{
		IsRunning:     w.running,
		TotalPromoted: w.totalPromoted,
		LastScanTime:  w.lastScanTime,
	}
}

// WaitlistWorkerStats contains worker statistics
type WaitlistWorkerStats struct {
	IsRunning     bool      `json:"is_running"`
	TotalPromoted int64     `json:"total_promoted"`
	LastScanTime  time.Time `json:"last_scan_time"`
}
