package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"FeedPulse/internal/logging"
	"FeedPulse/internal/ports"
)

// Sweeper drops idle state; the rate limiter satisfies it.
type Sweeper interface {
	Sweep() int
	Len() int
}

// SchedulerDeps pairs each background job with the driver that triggers it.
// A nil driver disables that job.
type SchedulerDeps struct {
	WarmDriver  ports.Scheduler
	SweepDriver ports.Scheduler
	Feeds       *FeedService
	Limiter     Sweeper
	Logger      *slog.Logger
	// OnSweep receives the number of keys left after each sweep.
	OnSweep func(remaining int)
}

// Scheduler wires schedule drivers to the cache-warming and limiter-sweeping jobs.
type Scheduler struct {
	deps   SchedulerDeps
	logger *slog.Logger
	// Warm runs are bounded so a hung upstream cannot pile up work.
	warmTimeout time.Duration
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(deps SchedulerDeps, warmTimeout time.Duration) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{deps: deps, logger: logger, warmTimeout: warmTimeout}
}

// Start registers both jobs with their drivers.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.deps.WarmDriver != nil && s.deps.Feeds != nil {
		if err := s.deps.WarmDriver.Start(ctx, func(trigger time.Time) { s.warm(ctx, trigger) }); err != nil {
			return err
		}
	}
	if s.deps.SweepDriver != nil && s.deps.Limiter != nil {
		if err := s.deps.SweepDriver.Start(ctx, func(time.Time) { s.sweep() }); err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully tears down both drivers.
func (s *Scheduler) Stop(ctx context.Context) error {
	var errs []error
	if s.deps.WarmDriver != nil {
		errs = append(errs, s.deps.WarmDriver.Stop(ctx))
	}
	if s.deps.SweepDriver != nil {
		errs = append(errs, s.deps.SweepDriver.Stop(ctx))
	}
	return errors.Join(errs...)
}

func (s *Scheduler) warm(ctx context.Context, trigger time.Time) {
	if s.warmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.warmTimeout)
		defer cancel()
	}
	err := s.deps.Feeds.Warm(ctx)
	s.logger.Debug("warm run finished", "trigger", trigger, "ok", err == nil)
}

func (s *Scheduler) sweep() {
	removed := s.deps.Limiter.Sweep()
	remaining := s.deps.Limiter.Len()
	if s.deps.OnSweep != nil {
		s.deps.OnSweep(remaining)
	}
	if removed > 0 {
		s.logger.Debug("rate limiter swept", "removed", removed, "remaining", remaining)
	}
}
