// Package resilience keeps remote provider failures from reaching the learner.
//
// [CircuitBreaker] stops calling a backend that keeps failing and probes it
// again after a cool-down. [FallbackGroup] chains several backends of the same
// kind, each behind its own breaker, so a secondary feedback or narration
// provider can answer before the caller falls back to its fixed behaviour.
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

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// rejecting calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-down ends.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. One failed
	// probe re-opens the breaker; enough successful probes close it.
	StateHalfOpen
)

// String returns the lowercase name of the state.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values select defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change notifications.
	Name string

	// MaxFailures is the run of consecutive failures that opens the breaker.
	// Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing. Default: 30s.
	Cooldown time.Duration

	// Probes is how many successful half-open calls close the breaker.
	// Default: 1.
	Probes int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Logger receives transition logs. Default: slog.Default().
	Logger *slog.Logger
}

// CircuitBreaker is a three-state breaker.
type CircuitBreaker struct {
	name     string
	maxFail  int
	cooldown time.Duration
	probes   int
	notify   func(name string, from, to State)
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	probeWins int
}

// NewCircuitBreaker returns a closed breaker configured by cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{
		name:     cfg.Name,
		maxFail:  cfg.MaxFailures,
		cooldown: cfg.Cooldown,
		probes:   cfg.Probes,
		notify:   cfg.OnStateChange,
		log:      cfg.Logger,
		now:      time.Now,
	}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the breaker is rejecting calls.
//
// Cancellation of the caller's own context is not the backend's fault, so an
// error wrapping [context.Canceled] is returned without being counted.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	switch {
	case err == nil:
		cb.succeed(probe)
	case errors.Is(err, context.Canceled):
		cb.release(probe)
	default:
		cb.fail(probe)
	}
	return err
}

// admit decides whether a call may proceed and whether it counts as a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.state = StateHalfOpen
		cb.inFlight = 0
		cb.probeWins = 0
	}
	to := cb.state

	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.probes {
			cb.mu.Unlock()
			cb.transitioned(from, to)
			return false, ErrCircuitOpen
		}
		cb.inFlight++
		cb.mu.Unlock()
		cb.transitioned(from, to)
		return true, nil
	}
	cb.mu.Unlock()
	return false, nil
}

func (cb *CircuitBreaker) succeed(probe bool) {
	cb.mu.Lock()
	from := cb.state
	if probe && cb.state == StateHalfOpen {
		cb.inFlight--
		cb.probeWins++
		if cb.probeWins >= cb.probes {
			cb.state = StateClosed
			cb.failures = 0
		}
	} else if cb.state == StateClosed {
		cb.failures = 0
	}
	to := cb.state
	cb.mu.Unlock()
	cb.transitioned(from, to)
}

func (cb *CircuitBreaker) fail(probe bool) {
	cb.mu.Lock()
	from := cb.state
	switch {
	case probe && cb.state == StateHalfOpen:
		cb.inFlight--
		cb.state = StateOpen
		cb.openedAt = cb.now()
	case cb.state == StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFail {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	}
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	if from != to && to == StateOpen {
		cb.log.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", failures)
	}
	cb.transitioned(from, to)
}

func (cb *CircuitBreaker) release(probe bool) {
	if !probe {
		return
	}
	cb.mu.Lock()
	if cb.state == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) transitioned(from, to State) {
	if from == to {
		return
	}
	if to != StateOpen {
		cb.log.Info("circuit breaker state changed", "name", cb.name, "from", from, "to", to)
	}
	if cb.notify != nil {
		cb.notify(cb.name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.inFlight = 0
	cb.probeWins = 0
	cb.mu.Unlock()
	cb.transitioned(from, StateClosed)
}
