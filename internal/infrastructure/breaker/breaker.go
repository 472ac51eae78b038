// Package breaker stops calling a failing dependency for a cooldown period
// after consecutive failures.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned without calling the protected function while open.
var ErrOpen = errors.New("circuit breaker is open")

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before one trial call.
	Cooldown time.Duration
	// OnStateChange is called under the breaker lock; keep it cheap.
	OnStateChange func(from, to State)
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	now      func() time.Time
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// New creates a closed breaker. Non-positive settings fall back to 3 failures
// and a two minute cooldown.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Minute
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open. Context cancellation by the
// caller is not counted as a dependency failure. A panic in fn counts as a
// failure and is re-raised.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			b.after(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	err := fn(ctx)
	b.after(err)
	return err
}

// State reports the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: retry in %s", ErrOpen, wait.Round(time.Second))
		}
		b.transition(StateHalfOpen)
		b.trial = true
	case StateHalfOpen:
		if b.trial {
			return fmt.Errorf("%w: trial call in progress", ErrOpen)
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	if errors.Is(err, context.Canceled) {
		return
	}

	if err == nil {
		b.failures = 0
		b.transition(StateClosed)
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if to != StateOpen {
		b.failures = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
