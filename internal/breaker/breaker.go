// Package breaker implements the circuit breaker guarding the external
// analysis call. It tracks only the health of that call, never the rest of
// the pipeline: when the provider keeps failing, the breaker short-circuits
// further calls for a cooldown period instead of amplifying the outage.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State represents the breaker state.
type State int

const (
	StateClosed   State = iota // normal operation, calls pass through
	StateOpen                  // failing, calls short-circuit (fail fast)
	StateHalfOpen              // cooldown elapsed, one probe call allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when a call is short-circuited. Callers treat
// it as terminal for the attempt: an open circuit is never retried.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Stats is a snapshot of breaker counters for monitoring.
type Stats struct {
	State               State
	ConsecutiveFailures int
	Successes           uint64 // total recorded successes
	Failures            uint64 // total recorded failures
	Rejections          uint64 // calls short-circuited while open
	LastFailureTime     time.Time
}

// Config holds breaker tuning.
type Config struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	// Default: 5.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before allowing
	// a probe call. Default: 30s.
	RecoveryTimeout time.Duration
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1 (got %d)", c.FailureThreshold)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("recovery timeout must be positive (got %v)", c.RecoveryTimeout)
	}
	return nil
}

// Breaker is a process-wide circuit breaker shared by every analysis
// request targeting the same provider. Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	state               State
	consecutiveFailures int
	lastFailureTime     time.Time
	probeInFlight       bool

	successes  uint64
	failures   uint64
	rejections uint64

	cfg   Config
	clock func() time.Time
	log   *slog.Logger

	// onStateChange, when set, is invoked (outside the lock) after every
	// state transition. Consumed by the logging collaborator.
	onStateChange func(from, to State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(b *Breaker) { b.clock = clock }
}

// WithLogger sets the logger for state transitions.
func WithLogger(log *slog.Logger) Option {
	return func(b *Breaker) { b.log = log }
}

// WithStateChangeHook registers a callback fired on every state transition.
func WithStateChangeHook(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onStateChange = fn }
}

// New creates a closed breaker with the given configuration.
func New(cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		state: StateClosed,
		cfg:   cfg,
		clock: time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn through the breaker: it is rejected with ErrCircuitOpen
// when the circuit is open, and its outcome is recorded otherwise.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Allow reports whether a call may proceed. While open it returns
// ErrCircuitOpen until the recovery timeout has elapsed since the last
// failure, then transitions to half-open and admits exactly one probe;
// concurrent callers during the probe are rejected.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return nil

	case StateOpen:
		if b.clock().Sub(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			notify := b.transition(StateHalfOpen)
			b.probeInFlight = true
			b.mu.Unlock()
			notify()
			return nil
		}
		b.rejections++
		b.mu.Unlock()
		return ErrCircuitOpen

	case StateHalfOpen:
		if b.probeInFlight {
			// One probe at a time; everyone else keeps failing fast.
			b.rejections++
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probeInFlight = true
		b.mu.Unlock()
		return nil

	default:
		b.rejections++
		b.mu.Unlock()
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful call. In half-open state the probe
// success closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.successes++
	notify := func() {}

	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.probeInFlight = false
		notify = b.transition(StateClosed)
	}
	b.mu.Unlock()
	notify()
}

// RecordFailure records a failed call. Reaching the failure threshold in
// closed state opens the circuit; any failure in half-open state re-opens
// it and restarts the recovery timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.failures++
	b.lastFailureTime = b.clock()
	notify := func() {}

	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			notify = b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.probeInFlight = false
		notify = b.transition(StateOpen)
	}
	b.mu.Unlock()
	notify()
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		Successes:           b.successes,
		Failures:            b.failures,
		Rejections:          b.rejections,
		LastFailureTime:     b.lastFailureTime,
	}
}

// ForceState is an operational override that moves the breaker to the given
// state regardless of call history. Forcing OPEN restarts the recovery
// timer; forcing CLOSED resets the consecutive failure count.
func (b *Breaker) ForceState(s State) {
	b.mu.Lock()
	notify := func() {}
	if b.state != s {
		notify = b.transition(s)
	}
	switch s {
	case StateClosed:
		b.consecutiveFailures = 0
		b.probeInFlight = false
	case StateOpen:
		b.lastFailureTime = b.clock()
		b.probeInFlight = false
	case StateHalfOpen:
		b.probeInFlight = false
	}
	b.mu.Unlock()
	notify()
}

// transition moves the breaker to a new state and returns the notification
// to run after the lock is released. Must be called with the lock held.
// State changes are logged once per transition.
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.consecutiveFailures = 0
	}

	log := b.log
	hook := b.onStateChange
	failures := b.consecutiveFailures
	return func() {
		log.Info("circuit breaker state change",
			"from", from.String(),
			"to", to.String(),
			"consecutive_failures", failures,
		)
		if hook != nil {
			hook(from, to)
		}
	}
}
