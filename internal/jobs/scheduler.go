package jobs

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs periodic maintenance jobs
type Scheduler struct {
	scheduler *gocron.Scheduler
	reconcile *ReconcileCountersJob
	interval  time.Duration
}

// NewScheduler creates a scheduler that reconciles link counters every interval
func NewScheduler(reconcile *ReconcileCountersJob, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		reconcile: reconcile,
		interval:  interval,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		if _, err := s.reconcile.Run(context.Background()); err != nil {
			log.Printf("Error reconciling link counters: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Printf("Scheduler started, reconciling every %s", s.interval)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
