// Package cache holds last-known-good values per logical slot and decides
// whether to serve them, refresh them, or fall back to them when a refresh
// fails. At most one refresh per slot is in flight at any time.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultRefreshTimeout = 30 * time.Second

// Entry is one successful fill of a slot. Entries are immutable once stored.
type Entry[T any] struct {
	Value       T
	Fingerprint string
	FilledAt    time.Time
	Version     int
}

// Result is an entry plus how it was obtained.
type Result[T any] struct {
	Entry  Entry[T]
	Cached bool
	Stale  bool
}

// Policy carries the freshness TTLs. DerivedTTL is not enforced here;
// callers that derive artifacts read it through Group.Policy.
type Policy struct {
	RawTTL     time.Duration
	DerivedTTL time.Duration
}

// RefreshFunc produces a new value for a slot. prev is nil when the slot is
// empty or was invalidated by a version bump.
type RefreshFunc[T any] func(ctx context.Context, prev *Entry[T]) (value T, fingerprint string, err error)

// Outcome labels how a Get was served.
type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeRefresh Outcome = "refresh"
	OutcomeStale   Outcome = "stale"
	OutcomeError   Outcome = "error"
)

// Observer receives one event per refresh attempt and per cache hit.
type Observer interface {
	ObserveCache(slot string, outcome Outcome, elapsed time.Duration)
}

// Option configures a Group.
type Option func(*options)

type options struct {
	timeout  time.Duration
	now      func() time.Time
	observer Observer
}

// WithRefreshTimeout bounds a whole refresh, independent of any caller's deadline.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithObserver attaches a metrics sink.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

type slot[T any] struct {
	entry atomic.Pointer[Entry[T]]
}

// Group is a set of independently refreshed slots sharing one policy and
// one version marker.
type Group[T any] struct {
	policy  Policy
	version atomic.Int64
	opts    options

	flight singleflight.Group
	mu     sync.Mutex
	slots  map[string]*slot[T]
}

// NewGroup creates an empty group at the given version.
func NewGroup[T any](policy Policy, version int, opts ...Option) *Group[T] {
	o := options{timeout: defaultRefreshTimeout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	g := &Group[T]{policy: policy, opts: o, slots: map[string]*slot[T]{}}
	g.version.Store(int64(version))
	return g
}

// Policy returns the group's freshness policy.
func (g *Group[T]) Policy() Policy {
	return g.policy
}

// Version returns the current version marker.
func (g *Group[T]) Version() int {
	return int(g.version.Load())
}

// BumpVersion invalidates every slot; each refreshes on its next access.
func (g *Group[T]) BumpVersion() int {
	return int(g.version.Add(1))
}

// Peek returns the stored entry for key regardless of age or version.
func (g *Group[T]) Peek(key string) (Entry[T], bool) {
	g.mu.Lock()
	s, ok := g.slots[key]
	g.mu.Unlock()
	if !ok {
		return Entry[T]{}, false
	}
	e := s.entry.Load()
	if e == nil {
		return Entry[T]{}, false
	}
	return *e, true
}

// Get serves the slot for key. A fresh entry is returned without I/O.
// Otherwise one refresh runs for all concurrent callers; it is detached
// from ctx so a caller that goes away does not waste it. A failed refresh
// falls back to the previous entry (Stale) when there is one, whatever
// its version.
func (g *Group[T]) Get(ctx context.Context, key string, refresh RefreshFunc[T]) (Result[T], error) {
	if refresh == nil {
		return Result[T]{}, errors.New("cache: nil refresh func")
	}

	s := g.slot(key)
	if e, ok := g.fresh(s); ok {
		g.observe(key, OutcomeHit, 0)
		return Result[T]{Entry: e, Cached: true}, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(key, func() (any, error) {
		return g.refresh(detached, key, s, refresh)
	})

	select {
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result[T]{}, res.Err
		}
		return res.Val.(Result[T]), nil
	}
}

func (g *Group[T]) refresh(ctx context.Context, key string, s *slot[T], refresh RefreshFunc[T]) (Result[T], error) {
	// A flight that finished just before this one started may have filled the slot.
	if e, ok := g.fresh(s); ok {
		return Result[T]{Entry: e, Cached: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
	defer cancel()

	version := g.Version()
	stored := s.entry.Load()
	var prior *Entry[T]
	if stored != nil && stored.Version == version {
		cp := *stored
		prior = &cp
	}

	start := g.opts.now()
	value, fingerprint, err := refresh(ctx, prior)
	elapsed := g.opts.now().Sub(start)
	if err != nil {
		// Any earlier fill beats an error, even one from before a version bump.
		if stored != nil {
			g.observe(key, OutcomeStale, elapsed)
			return Result[T]{Entry: *stored, Cached: true, Stale: true}, nil
		}
		g.observe(key, OutcomeError, elapsed)
		return Result[T]{}, fmt.Errorf("refresh %s: %w", key, err)
	}

	filled := g.opts.now()
	if stored != nil && filled.Before(stored.FilledAt) {
		filled = stored.FilledAt
	}
	e := &Entry[T]{Value: value, Fingerprint: fingerprint, FilledAt: filled, Version: version}
	s.entry.Store(e)

	g.observe(key, OutcomeRefresh, elapsed)
	return Result[T]{Entry: *e}, nil
}

func (g *Group[T]) fresh(s *slot[T]) (Entry[T], bool) {
	e := s.entry.Load()
	if e == nil || e.Version != g.Version() {
		return Entry[T]{}, false
	}
	if g.opts.now().Sub(e.FilledAt) >= g.policy.RawTTL {
		return Entry[T]{}, false
	}
	return *e, true
}

func (g *Group[T]) slot(key string) *slot[T] {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.slots[key]
	if !ok {
		s = &slot[T]{}
		g.slots[key] = s
	}
	return s
}

func (g *Group[T]) observe(key string, outcome Outcome, elapsed time.Duration) {
	if g.opts.observer != nil {
		g.opts.observer.ObserveCache(key, outcome, elapsed)
	}
}
