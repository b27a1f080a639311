package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Job is a periodic job: Next computes the next run after the given time,
// Run performs the work.
type Job struct {
	Name string
	Next func(after time.Time) time.Time
	Run  func(ctx context.Context) error
}

// NextDailyAt returns a Next function for a job that runs once a day at the
// given UTC wall-clock time.
func NextDailyAt(hour, minute int) func(time.Time) time.Time {
	return func(after time.Time) time.Time {
		after = after.UTC()
		next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, time.UTC)
		if !next.After(after) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

// NextEvery returns a Next function for a fixed-interval job.
func NextEvery(interval time.Duration) func(time.Time) time.Time {
	return func(after time.Time) time.Time {
		return after.Add(interval)
	}
}

// Scheduler runs periodic jobs on their own timers. No cron engine: each
// job computes its next run and sleeps until then.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewScheduler creates a Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger: logger.With("component", "tasks.scheduler"),
	}
}

// Add registers a job. Must be called before Run.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Run starts all job loops. Blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.done = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer close(s.done)

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runJob(ctx, job)
		}(job)
	}

	s.logger.Info("scheduler started", "jobs", len(s.jobs))

	wg.Wait()
	return ctx.Err()
}

// Shutdown stops all job loops.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	for {
		next := job.Next(time.Now())
		s.logger.Info("job scheduled",
			"job", job.Name,
			"next_run", next.Format(time.RFC3339),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("job failed",
				"job", job.Name,
				"duration_ms", float64(time.Since(start).Microseconds())/1000,
				"error", err,
			)
			continue
		}

		s.logger.Info("job completed",
			"job", job.Name,
			"duration_ms", float64(time.Since(start).Microseconds())/1000,
		)
	}
}
