package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"FeedPulse/internal/ports"
)

// specParser accepts five-field crontab lines and descriptors such as "@every 5m".
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronScheduler runs a job on a cron schedule. Runs never overlap: a
// firing that arrives while the job is busy is skipped.
type CronScheduler struct {
	spec      string
	immediate bool
	logger    cron.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	quit    chan struct{}
	pending sync.WaitGroup
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// EverySpec turns a fixed period into a cron descriptor.
func EverySpec(d time.Duration) string {
	return "@every " + d.String()
}

// NewCronScheduler builds a scheduler for spec. When immediate is set the
// job also runs once right after Start.
func NewCronScheduler(spec string, immediate bool, logger *slog.Logger) *CronScheduler {
	return &CronScheduler{spec: spec, immediate: immediate, logger: cronLogger{logger}}
}

// Start schedules job until ctx ends or Stop is called. Starting twice is a no-op.
func (s *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	schedule, err := specParser.Parse(s.spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", s.spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	wrapped := cron.NewChain(cron.Recover(s.logger), cron.SkipIfStillRunning(s.logger)).
		Then(cron.FuncJob(func() { job(time.Now()) }))

	c := cron.New(cron.WithParser(specParser))
	c.Schedule(schedule, wrapped)
	c.Start()
	quit := make(chan struct{})
	s.cron, s.quit = c, quit

	if s.immediate {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			wrapped.Run()
		}()
	}

	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-quit:
		}
	}()

	return nil
}

// Stop halts the schedule and waits for a running job to return.
func (s *CronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, quit := s.cron, s.quit
	s.cron, s.quit = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	close(quit)

	idle := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.pending.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's internal messages (skips, recovered panics) to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if l.log != nil {
		l.log.Debug(msg, keysAndValues...)
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	if l.log != nil {
		l.log.Error(msg, append(keysAndValues, "error", err)...)
	}
}
