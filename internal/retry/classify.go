package retry

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Class buckets call failures by how the executor should react.
type Class int

const (
	ClassUnknown   Class = iota // unclassified; not retried
	ClassTransient              // network/timeout/5xx; retried
	ClassRateLimit              // provider rate limit; retried, honors retry-after
	ClassInvalid                // bad request (4xx); not retried
	ClassAuth                   // credentials problem; not retried
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "TRANSIENT"
	case ClassRateLimit:
		return "RATE_LIMIT"
	case ClassInvalid:
		return "INVALID"
	case ClassAuth:
		return "AUTH"
	default:
		return "UNKNOWN"
	}
}

// Retryable reports whether failures of this class should be retried.
func (c Class) Retryable() bool {
	return c == ClassTransient || c == ClassRateLimit
}

// rateLimitedError carries a provider-supplied retry-after hint. Provider
// adapters wrap SDK rate-limit errors with RateLimited so the executor can
// honor the hint without importing any SDK.
type rateLimitedError struct {
	err        error
	retryAfter time.Duration
}

func (e *rateLimitedError) Error() string {
	return e.err.Error()
}

func (e *rateLimitedError) Unwrap() error { return e.err }

// RateLimited wraps err as a rate-limit failure with an explicit
// retry-after hint. A zero hint means the provider gave none.
func RateLimited(err error, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	return &rateLimitedError{err: err, retryAfter: retryAfter}
}

// retryAfterRe matches "retry after 30s" style hints and bare
// "retry-after: 30" / "retry_after": 30 forms in provider messages.
var retryAfterRe = regexp.MustCompile(`(?i)(?:retry[-_ ]after["':\s]*|try again in )(\d+)(\s*(?:s|sec|second|seconds)?)`)

// Classify buckets an error and extracts any retry-after hint.
//
// Classification falls back to message inspection because not every layer
// preserves typed errors: HTTP status codes and well-known network failure
// strings are recognized the same way the provider SDKs surface them.
func Classify(err error) (Class, time.Duration) {
	if err == nil {
		return ClassUnknown, 0
	}

	var rl *rateLimitedError
	if errors.As(err, &rl) {
		return ClassRateLimit, rl.retryAfter
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient, 0
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "quota"):
		return ClassRateLimit, parseRetryAfterHint(msg)

	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "invalid api key"):
		return ClassAuth, 0

	case strings.Contains(msg, "400"),
		strings.Contains(msg, "404"),
		strings.Contains(msg, "422"),
		strings.Contains(msg, "bad request"),
		strings.Contains(msg, "not found"),
		strings.Contains(msg, "validation"):
		return ClassInvalid, 0

	case strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"),
		strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "gateway timeout"),
		strings.Contains(msg, "overloaded"):
		return ClassTransient, 0

	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network"):
		return ClassTransient, 0
	}

	return ClassUnknown, 0
}

// parseRetryAfterHint pulls a seconds-granularity retry-after hint out of a
// rate-limit message, or 0 if none is present.
func parseRetryAfterHint(msg string) time.Duration {
	m := retryAfterRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
