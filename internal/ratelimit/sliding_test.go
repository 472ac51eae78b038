package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestAdmitRejectsBeyondLimit(t *testing.T) {
	c := newClock()
	l := New(30, time.Minute, WithClock(c.Now))

	for i := range 30 {
		d := l.Admit("1.2.3.4")
		require.Truef(t, d.Allowed, "request %d should be admitted", i+1)
		c.Advance(time.Second)
	}

	d := l.Admit("1.2.3.4")
	assert.False(t, d.Allowed)
	// First admission at t=0 leaves the window at t=60s; now is t=30s.
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	assert.True(t, l.Admit("5.6.7.8").Allowed, "other keys are unaffected")
}

func TestAdmitAfterWindowElapses(t *testing.T) {
	c := newClock()
	l := New(2, time.Minute, WithClock(c.Now))

	require.True(t, l.Admit("k").Allowed)
	require.True(t, l.Admit("k").Allowed)
	require.False(t, l.Admit("k").Allowed)

	c.Advance(time.Minute + time.Millisecond)
	assert.True(t, l.Admit("k").Allowed)
}

func TestRejectedAttemptsAreNotRecorded(t *testing.T) {
	c := newClock()
	l := New(1, time.Minute, WithClock(c.Now))

	require.True(t, l.Admit("k").Allowed)
	for range 5 {
		c.Advance(10 * time.Second)
		require.False(t, l.Admit("k").Allowed)
	}
	c.Advance(11 * time.Second)
	assert.True(t, l.Admit("k").Allowed)
}

func TestRetryAfterHasOneSecondFloor(t *testing.T) {
	c := newClock()
	l := New(1, time.Minute, WithClock(c.Now))

	require.True(t, l.Admit("k").Allowed)
	c.Advance(time.Minute - 100*time.Millisecond)
	d := l.Admit("k")
	require.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)
}

func TestSweepRemovesIdleKeys(t *testing.T) {
	c := newClock()
	l := New(5, time.Minute, WithClock(c.Now))

	l.Admit("old")
	c.Advance(45 * time.Second)
	l.Admit("recent")
	require.Equal(t, 2, l.Len())

	c.Advance(30 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	c.Advance(time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Zero(t, l.Len())
}

func TestAdmitConcurrentNeverExceedsLimit(t *testing.T) {
	l := New(50, time.Hour)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("shared").Allowed {
				admitted.Add(1)
			}
			l.Admit(fmt.Sprintf("own-%d", i))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), admitted.Load())
}
