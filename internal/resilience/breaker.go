// Package resilience keeps the assistant answering when a cloud speech or
// language backend misbehaves.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open).
// [Chain] tries several backends of the same kind in configured order, each
// behind its own breaker. The STT, TTS and LLM wrappers present a chain as a
// single provider.
//
// A call aborted because its context ended counts as neither a success nor a
// failure: barge-in and hangup cancel requests routinely, and that must not
// trip a breaker or fail over to the next backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-down
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. One
	// failure re-opens the breaker; enough successes close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels log messages and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// TrialCalls is the number of successful half-open calls required to close.
	// Default: 1.
	TrialCalls int

	// OnStateChange, if set, is called after every transition with the
	// lock released.
	OnStateChange func(name string, from, to State)
}

// Breaker implements the three-state circuit breaker pattern.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	trials      int
	onChange    func(string, State, State)
	now         func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// NewBreaker creates a [Breaker]. Zero-value config fields take defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.TrialCalls <= 0 {
		cfg.TrialCalls = 1
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		trials:      cfg.TrialCalls,
		onChange:    cfg.OnStateChange,
		now:         time.Now,
	}
}

// Do runs fn if the breaker allows it. The outcome is recorded unless ctx
// ended, in which case fn's error is returned without affecting the state.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()

	switch {
	case err != nil && ctx.Err() != nil:
		b.release(trial)
	case err != nil:
		b.fail(trial)
	default:
		b.succeed(trial)
	}
	return err
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	var from State
	changed := false
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		from, changed = b.state, true
		b.state = StateHalfOpen
		b.inFlight, b.successes = 0, 0
		fallthrough
	case StateHalfOpen:
		if b.inFlight+b.successes >= b.trials {
			b.mu.Unlock()
			b.notify(changed, from, StateHalfOpen)
			return false, ErrCircuitOpen
		}
		b.inFlight++
		b.mu.Unlock()
		b.notify(changed, from, StateHalfOpen)
		return true, nil
	}
	b.mu.Unlock()
	return false, nil
}

func (b *Breaker) release(trial bool) {
	if !trial {
		return
	}
	b.mu.Lock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	b.mu.Unlock()
}

func (b *Breaker) fail(trial bool) {
	b.mu.Lock()
	from := b.state
	if trial {
		b.inFlight--
	}
	b.failures++
	open := from == StateHalfOpen || b.failures >= b.maxFailures
	if open && from != StateOpen {
		b.state = StateOpen
		b.openedAt = b.now()
		slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
	b.mu.Unlock()
	b.notify(open && from != StateOpen, from, StateOpen)
}

func (b *Breaker) succeed(trial bool) {
	b.mu.Lock()
	from := b.state
	closed := false
	if trial {
		b.inFlight--
		b.successes++
		if b.state == StateHalfOpen && b.successes >= b.trials {
			b.state = StateClosed
			closed = true
			slog.Info("circuit breaker closed", "name", b.name)
		}
	}
	if b.state == StateClosed {
		b.failures = 0
	}
	b.mu.Unlock()
	b.notify(closed, from, StateClosed)
}

func (b *Breaker) notify(changed bool, from, to State) {
	if changed && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// State returns the current [State]. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Name returns the configured name.
func (b *Breaker) Name() string { return b.name }

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures, b.inFlight, b.successes = 0, 0, 0
	b.mu.Unlock()
	b.notify(from != StateClosed, from, StateClosed)
}
