package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedClass Class
		expectedHint  time.Duration
	}{
		{
			name:          "nil error",
			err:           nil,
			expectedClass: ClassUnknown,
		},
		{
			name:          "generic error",
			err:           errors.New("something odd happened"),
			expectedClass: ClassUnknown,
		},
		{
			name:          "deadline exceeded",
			err:           context.DeadlineExceeded,
			expectedClass: ClassTransient,
		},
		{
			name:          "wrapped deadline exceeded",
			err:           fmt.Errorf("calling provider: %w", context.DeadlineExceeded),
			expectedClass: ClassTransient,
		},
		{
			name:          "429 rate limit",
			err:           errors.New("HTTP 429: rate limit exceeded"),
			expectedClass: ClassRateLimit,
		},
		{
			name:          "rate limit with retry-after in message",
			err:           errors.New("rate limit exceeded, retry after 30 seconds"),
			expectedClass: ClassRateLimit,
			expectedHint:  30 * time.Second,
		},
		{
			name:          "quota message with try again hint",
			err:           errors.New("quota exceeded, try again in 120 seconds"),
			expectedClass: ClassRateLimit,
			expectedHint:  120 * time.Second,
		},
		{
			name:          "500 internal server error",
			err:           errors.New("HTTP 500: internal server error"),
			expectedClass: ClassTransient,
		},
		{
			name:          "502 bad gateway",
			err:           errors.New("502 bad gateway"),
			expectedClass: ClassTransient,
		},
		{
			name:          "503 service unavailable",
			err:           errors.New("service unavailable (503)"),
			expectedClass: ClassTransient,
		},
		{
			name:          "overloaded provider",
			err:           errors.New("overloaded_error: the API is temporarily overloaded"),
			expectedClass: ClassTransient,
		},
		{
			name:          "connection refused",
			err:           errors.New("dial tcp: connection refused"),
			expectedClass: ClassTransient,
		},
		{
			name:          "network timeout",
			err:           errors.New("request timed out"),
			expectedClass: ClassTransient,
		},
		{
			name:          "400 bad request",
			err:           errors.New("HTTP 400: bad request"),
			expectedClass: ClassInvalid,
		},
		{
			name:          "422 validation",
			err:           errors.New("422 validation failed"),
			expectedClass: ClassInvalid,
		},
		{
			name:          "401 unauthorized",
			err:           errors.New("401 unauthorized"),
			expectedClass: ClassAuth,
		},
		{
			name:          "invalid api key",
			err:           errors.New("invalid api key provided"),
			expectedClass: ClassAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, hint := Classify(tt.err)
			assert.Equal(t, tt.expectedClass, class)
			assert.Equal(t, tt.expectedHint, hint)
		})
	}
}

func TestClassifyRateLimitedWrapper(t *testing.T) {
	inner := errors.New("429 too many requests")
	err := RateLimited(inner, 42*time.Second)

	class, hint := Classify(err)
	assert.Equal(t, ClassRateLimit, class)
	assert.Equal(t, 42*time.Second, hint)

	// The wrapper stays classifiable through further wrapping.
	class, hint = Classify(fmt.Errorf("analysis: %w", err))
	assert.Equal(t, ClassRateLimit, class)
	assert.Equal(t, 42*time.Second, hint)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, inner.Error(), err.Error())
}

func TestRateLimitedNil(t *testing.T) {
	assert.NoError(t, RateLimited(nil, time.Second))
}

func TestClassRetryable(t *testing.T) {
	assert.True(t, ClassTransient.Retryable())
	assert.True(t, ClassRateLimit.Retryable())
	assert.False(t, ClassInvalid.Retryable())
	assert.False(t, ClassAuth.Retryable())
	assert.False(t, ClassUnknown.Retryable())
}

func TestClassString(t *testing.T) {
	tests := []struct {
		class    Class
		expected string
	}{
		{ClassTransient, "TRANSIENT"},
		{ClassRateLimit, "RATE_LIMIT"},
		{ClassInvalid, "INVALID"},
		{ClassAuth, "AUTH"},
		{ClassUnknown, "UNKNOWN"},
		{Class(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.class.String())
		})
	}
}

func TestParseRetryAfterHint(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected time.Duration
	}{
		{"retry after seconds", "retry after 30 seconds", 30 * time.Second},
		{"retry-after colon form", "retry-after: 300", 300 * time.Second},
		{"retry_after json form", `{"error": "rate_limit", "retry_after": 600}`, 600 * time.Second},
		{"try again in", "try again in 12 seconds", 12 * time.Second},
		{"no hint", "rate limit exceeded", 0},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseRetryAfterHint(tt.message))
		})
	}
}
