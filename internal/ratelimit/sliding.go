// Package ratelimit admits or rejects requests per caller key using a
// sliding window of admission timestamps.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one admission check. RetryAfter is set only
// when the request was rejected and says when the oldest admission leaves
// the window.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type window struct {
	mu      sync.Mutex
	stamps  []time.Time
	removed bool
}

// Limiter admits at most limit requests per key in any trailing window.
// Rejected attempts are not recorded.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	windows map[string]*window
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter. Non-positive arguments fall back to 30 per minute.
func New(limit int, win time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = 30
	}
	if win <= 0 {
		win = time.Minute
	}
	l := &Limiter{limit: limit, window: win, now: time.Now, windows: map[string]*window{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit records an admission for key if the key is under its limit.
func (l *Limiter) Admit(key string) Decision {
	for {
		w := l.windowFor(key)
		w.mu.Lock()
		if w.removed {
			// Swept between lookup and lock; use the replacement.
			w.mu.Unlock()
			continue
		}
		d := l.admit(w, l.now())
		w.mu.Unlock()
		return d
	}
}

func (l *Limiter) admit(w *window, now time.Time) Decision {
	w.stamps = prune(w.stamps, now.Add(-l.window))
	if len(w.stamps) >= l.limit {
		retry := w.stamps[0].Add(l.window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retry}
	}
	w.stamps = append(w.stamps, now)
	return Decision{Allowed: true}
}

// Sweep forgets keys with no admissions inside the window and returns how
// many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		w.mu.Lock()
		w.stamps = prune(w.stamps, cutoff)
		empty := len(w.stamps) == 0
		w.removed = empty
		w.mu.Unlock()
		if empty {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len reports how many keys are tracked.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.windows)
}

// Limit returns the per-window admission cap.
func (l *Limiter) Limit() int {
	return l.limit
}

func (l *Limiter) windowFor(key string) *window {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[key]; !ok {
		w = &window{}
		l.windows[key] = w
	}
	return w
}

// prune drops stamps at or before cutoff. Stamps are appended in order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
