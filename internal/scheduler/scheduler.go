// Package scheduler runs periodic jobs with an explicit start/stop
// lifecycle.
//
// Each job has its own ticker goroutine and never overlaps with itself.
// Lock contention reported by a job is logged at warn and the run is
// skipped; the next tick tries again.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/docsnap/internal/core/domain"
)

// Job is a named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns a set of jobs.
type Scheduler struct {
	mu         sync.Mutex
	jobs       []Job
	runOnStart bool
	logger     *slog.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRunOnStart runs every job once immediately after Start.
func WithRunOnStart(v bool) Option {
	return func(s *Scheduler) { s.runOnStart = v }
}

// New creates an empty scheduler.
func New(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{logger: logger.With("component", "scheduler")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job. Jobs cannot be added after Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return domain.ErrInvalidArgument.WithDetails("job needs a name and a run func")
	}
	if job.Interval <= 0 {
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("job %s: interval must be positive", job.Name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler: add %s: already started", job.Name)
	}
	for _, j := range s.jobs {
		if j.Name == job.Name {
			return domain.ErrInvalidArgument.WithDetails("duplicate job " + job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

// Start launches one goroutine per job. Calling Start twice is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
		s.logger.Info("job scheduled", "job", job.Name, "interval", job.Interval)
	}
	return nil
}

// Stop cancels running jobs and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	if s.runOnStart {
		s.run(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, job)
		}
	}
}

// run executes job synchronously, so a slow run delays the next tick
// instead of overlapping it.
func (s *Scheduler) run(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	err := s.safeRun(ctx, job)
	elapsed := time.Since(started)

	switch {
	case err == nil:
		s.logger.Info("job completed", "job", job.Name, "elapsed", elapsed)
	case errors.Is(err, domain.ErrLockContention):
		s.logger.Warn("job skipped, backup directory busy", "job", job.Name, "error", err)
	case errors.Is(err, context.Canceled):
		s.logger.Debug("job cancelled", "job", job.Name)
	default:
		s.logger.Error("job failed", "job", job.Name, "elapsed", elapsed, "error", err)
	}
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}
