package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedPulse/internal/logging"
)

func TestCronSchedulerRunsOnSchedule(t *testing.T) {
	s := NewCronScheduler(EverySpec(time.Second), false, logging.Discard())

	var runs atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(time.Time) { runs.Add(1) }))
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	after := runs.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestCronSchedulerImmediateRun(t *testing.T) {
	s := NewCronScheduler(EverySpec(time.Hour), true, nil)

	ran := make(chan struct{}, 1)
	require.NoError(t, s.Start(context.Background(), func(time.Time) { ran <- struct{}{} }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run on start")
	}
	require.NoError(t, s.Stop(context.Background()))
}

func TestCronSchedulerStopWaitsForRunningJob(t *testing.T) {
	s := NewCronScheduler(EverySpec(time.Hour), true, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, s.Start(context.Background(), func(time.Time) {
		close(started)
		<-release
		finished.Store(true)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	close(release)
	require.Eventually(t, finished.Load, time.Second, time.Millisecond)
}

func TestCronSchedulerAcceptsCrontabLines(t *testing.T) {
	s := NewCronScheduler("*/5 * * * *", false, nil)
	require.NoError(t, s.Start(context.Background(), func(time.Time) {}))
	require.NoError(t, s.Stop(context.Background()))
}

func TestCronSchedulerRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"", "every day", "@every soon"} {
		s := NewCronScheduler(spec, false, nil)
		assert.Error(t, s.Start(context.Background(), func(time.Time) {}), spec)
	}
}

func TestCronSchedulerStopWithoutStart(t *testing.T) {
	s := NewCronScheduler(EverySpec(time.Second), false, nil)
	require.NoError(t, s.Stop(context.Background()))
}

func TestEverySpec(t *testing.T) {
	assert.Equal(t, "@every 5m0s", EverySpec(5*time.Minute))
}
