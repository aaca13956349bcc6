// Package retry executes the external analysis call with bounded retries,
// exponential backoff, and the circuit breaker in front of every attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/errsight/errsight/internal/breaker"
)

// ErrRetryExhausted marks a call that failed on every allowed attempt.
// Use errors.Is to detect it; Unwrap exposes the last underlying error.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// ExhaustedError wraps the final failure after all attempts were spent.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("call failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Is makes errors.Is(err, ErrRetryExhausted) match.
func (e *ExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// Policy holds retry tuning. Immutable once handed to an Executor.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	// Default: 3.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; each further
	// attempt doubles it. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff. Default: 30s.
	MaxDelay time.Duration

	// Jitter adds up to ±25% randomization to each delay, preventing
	// retry storms from synchronizing. Default: true.
	Jitter bool

	// AttemptTimeout bounds each individual call. The attempt context is
	// cancelled on expiry and the failure treated as transient.
	// Default: 60s.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Jitter:         true,
		AttemptTimeout: 60 * time.Second,
	}
}

// Validate checks the policy for usable values.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1 (got %d)", p.MaxAttempts)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
		return fmt.Errorf("base delay %v exceeds max delay %v", p.BaseDelay, p.MaxDelay)
	}
	return nil
}

// Backoff returns the delay before the given retry (attempt is 1-based:
// the delay after attempt N). Exponential with a cap, no jitter applied.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Executor runs callables through the circuit breaker with retries. One
// executor is shared by all analysis requests targeting a provider.
type Executor struct {
	policy  Policy
	breaker *breaker.Breaker

	// sem bounds concurrent provider calls across all requests. nil means
	// unlimited; admission normally happens upstream in the queue, this is
	// a second gate for deployments that run multiple queues.
	sem *semaphore.Weighted

	// limiter smooths the provider call rate. nil disables.
	limiter *rate.Limiter

	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
	rng   func() float64
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrencyLimit bounds concurrent provider calls. n <= 0 disables.
func WithConcurrencyLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRateLimit smooths outgoing calls to rps requests per second with the
// given burst. rps <= 0 disables.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *Executor) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// withSleep overrides the backoff sleeper, for tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor creates an executor using the given policy and breaker.
func NewExecutor(policy Policy, cb *breaker.Breaker, opts ...Option) *Executor {
	e := &Executor{
		policy:  policy,
		breaker: cb,
		log:     slog.Default(),
		sleep:   sleepCtx,
		rng:     rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Call invokes fn with retries and backoff. Each attempt passes through the
// circuit breaker; a breaker rejection is terminal: open-circuit errors
// surface immediately and are never retried. Non-retryable failure classes
// (validation, auth) also surface immediately. On exhaustion the last error
// is wrapped in an ExhaustedError.
func (e *Executor) Call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquiring call slot for %s: %w", operation, err)
		}
		defer e.sem.Release(1)
	}

	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s: %w", operation, err)
			}
		}

		if err := e.breaker.Allow(); err != nil {
			// Open circuit: stop retrying and surface immediately. The
			// breaker logs the transition; per-call rejections stay quiet
			// at debug level to avoid log storms.
			e.log.Debug("call short-circuited", "operation", operation, "attempt", attempt)
			return err
		}

		err := e.attempt(ctx, fn)
		if err == nil {
			e.breaker.RecordSuccess()
			if attempt > 1 {
				e.log.Info("call succeeded after retries", "operation", operation, "attempts", attempt)
			}
			return nil
		}
		lastErr = err

		class, hint := Classify(err)
		if !class.Retryable() {
			// Provider rejected the request itself; the provider is fine.
			// Don't count it against the breaker.
			e.log.Warn("call failed with non-retryable error",
				"operation", operation, "class", class.String(), "error", err)
			return err
		}
		e.breaker.RecordFailure()

		if attempt == e.policy.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		}

		delay := e.delayFor(attempt, hint)
		e.log.Info("call failed, backing off",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.policy.MaxAttempts,
			"delay", delay,
			"class", class.String(),
			"error", err,
		)
		if err := e.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w", operation, err)
		}
	}

	exhausted := &ExhaustedError{Attempts: e.policy.MaxAttempts, Last: lastErr}
	e.log.Warn("call exhausted retries", "operation", operation, "attempts", e.policy.MaxAttempts, "error", lastErr)
	return exhausted
}

// attempt runs fn under the per-attempt timeout. The timeout's resources
// are released on every exit path.
func (e *Executor) attempt(ctx context.Context, fn func(context.Context) error) error {
	attemptCtx := ctx
	if e.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.policy.AttemptTimeout)
		defer cancel()
	}
	return fn(attemptCtx)
}

// delayFor computes the backoff before the next attempt. A provider
// retry-after hint acts as a floor: when the hint exceeds the computed
// exponential delay, the hint wins (and is not doubled further).
func (e *Executor) delayFor(attempt int, hint time.Duration) time.Duration {
	delay := e.policy.Backoff(attempt)
	if e.policy.Jitter && delay > 0 {
		// ±25% jitter
		delta := 0.25 * float64(delay)
		delay = time.Duration(float64(delay) - delta + 2*delta*e.rng())
	}
	if hint > delay {
		delay = hint
	}
	return delay
}

// sleepCtx blocks for d or until ctx is done. The timer is always stopped
// so no timer leaks survive cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
