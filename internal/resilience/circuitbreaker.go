// Package resilience provides circuit breaker and provider failover primitives
// for the remote backends of a lyric run (transcription, separation, LLM).
//
// The central type is [CircuitBreaker], a three-state breaker (closed → open
// → half-open) that stops hammering a backend that keeps failing.
// [FallbackGroup] composes several backends of the same kind with one breaker
// each, so a failing primary is bypassed in favour of the next healthy entry.
//
// Cancellation is not failure: an attempt that ends because its context was
// cancelled (a superseded or reset run) never counts against a breaker and
// stops the failover walk immediately.
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

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. Enough
	// successes close the breaker; any failure opens it again.
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker]. Zero fields
// take the documented defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 60s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probes allowed, and the number of probe
	// successes needed to close. Default: 1.
	HalfOpenMax int

	// OnStateChange, if set, is called with the breaker's name and new state
	// after every transition. It runs with the breaker's lock held and must
	// not call back into the breaker.
	OnStateChange func(name string, to State)

	// Now replaces time.Now.
	Now func() time.Time
}

// CircuitBreaker guards one backend. Construct with [NewCircuitBreaker].
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive failures while closed
	openedAt time.Time // last failure that opened the breaker
	probes   int       // probes admitted in the current half-open window
	passed   int       // probes that succeeded in that window
}

// NewCircuitBreaker creates a closed [CircuitBreaker].
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn unless the breaker rejects the call with [ErrCircuitOpen].
// A done ctx returns ctx's error without calling fn. When fn fails while ctx
// is done the attempt counts as abandoned: the failure count is untouched and
// a half-open probe slot is released.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil:
		cb.succeeded(probe)
	case ctx.Err() != nil:
		if probe && cb.state == StateHalfOpen {
			cb.probes--
		}
	default:
		cb.failed(probe)
	}
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateClosed {
		return false, nil
	}
	if cb.probes >= cb.cfg.HalfOpenMax {
		return false, ErrCircuitOpen
	}
	cb.probes++
	return true, nil
}

// succeeded must be called with cb.mu held.
func (cb *CircuitBreaker) succeeded(probe bool) {
	if !probe {
		cb.failures = 0
		return
	}
	if cb.state != StateHalfOpen {
		return
	}
	cb.passed++
	if cb.passed >= cb.cfg.HalfOpenMax {
		cb.transition(StateClosed)
	}
}

// failed must be called with cb.mu held.
func (cb *CircuitBreaker) failed(probe bool) {
	now := cb.cfg.Now()
	if probe {
		cb.openedAt = now
		cb.transition(StateOpen)
		return
	}
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
		cb.openedAt = now
		cb.transition(StateOpen)
	}
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.probes, cb.passed = 0, 0
	if to == StateClosed {
		cb.failures = 0
	}

	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state change",
		"name", cb.cfg.Name, "from", from, "to", to, "consecutive_failures", cb.failures)

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, to)
	}
}

// State returns the breaker's state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call to [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.failures = 0
}
