package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualDriver captures the job so tests can trigger it directly.
type manualDriver struct {
	mu      sync.Mutex
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.mu.Lock()
	d.job = job
	d.mu.Unlock()
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return nil
}

func (d *manualDriver) fire() {
	d.mu.Lock()
	job := d.job
	d.mu.Unlock()
	job(time.Now())
}

type fakeSweeper struct {
	sweeps int
	keys   int
}

func (f *fakeSweeper) Sweep() int {
	f.sweeps++
	removed := f.keys
	f.keys = 0
	return removed
}

func (f *fakeSweeper) Len() int { return f.keys }

func TestSchedulerRunsWarmAndSweepJobs(t *testing.T) {
	f := newFixture(t, nil)
	warm, sweep := &manualDriver{}, &manualDriver{}
	limiter := &fakeSweeper{keys: 4}

	remaining := -1
	s := NewScheduler(SchedulerDeps{
		WarmDriver:  warm,
		SweepDriver: sweep,
		Feeds:       f.svc,
		Limiter:     limiter,
		OnSweep:     func(n int) { remaining = n },
	}, time.Second)
	require.NoError(t, s.Start(context.Background()))

	warm.fire()
	assert.Equal(t, 2, f.source.Calls())

	sweep.fire()
	assert.Equal(t, 1, limiter.sweeps)
	assert.Zero(t, remaining)

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, warm.stopped)
	assert.True(t, sweep.stopped)
}

func TestSchedulerWithoutDrivers(t *testing.T) {
	s := NewScheduler(SchedulerDeps{}, 0)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
