package provider

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"

	"github.com/errsight/errsight/internal/retry"
	"github.com/errsight/errsight/internal/types"
)

func TestBuildPrompt(t *testing.T) {
	req := types.AnalysisRequest{Fingerprint: "abcd", Context: "POST /checkout"}
	e := types.CapturedError{
		Name:    "pq.Error",
		Message: "deadlock detected",
		Code:    "40P01",
		Stack:   "main.checkout()\nmain.main()",
	}

	prompt := buildPrompt(req, e)
	assert.Contains(t, prompt, "Error type: pq.Error")
	assert.Contains(t, prompt, "Message: deadlock detected")
	assert.Contains(t, prompt, "Code: 40P01")
	assert.Contains(t, prompt, "main.checkout()")
	assert.Contains(t, prompt, "POST /checkout")
}

func TestBuildPromptOmitsEmptySections(t *testing.T) {
	prompt := buildPrompt(types.AnalysisRequest{}, types.CapturedError{Name: "Error", Message: "boom"})
	assert.NotContains(t, prompt, "Code:")
	assert.NotContains(t, prompt, "Stack trace:")
	assert.NotContains(t, prompt, "Application context")
}

func TestBuildPromptBoundsLargeInput(t *testing.T) {
	e := types.CapturedError{Name: "Error", Message: "boom", Stack: strings.Repeat("frame\n", 10000)}
	prompt := buildPrompt(types.AnalysisRequest{Context: strings.Repeat("c", 100000)}, e)
	assert.Less(t, len(prompt), 3*maxPromptContext)
	assert.Contains(t, prompt, "... (truncated)")
}

func TestAdviceFromText(t *testing.T) {
	adv := adviceFromText("\n\nLikely a nil map write.\nInitialize the map in the constructor.\n", "anthropic", "claude-3-5-haiku-20241022")
	assert.Equal(t, "Likely a nil map write.", adv.Summary)
	assert.Contains(t, adv.Detail, "Initialize the map")
	assert.Equal(t, "anthropic", adv.Provider)
	assert.Equal(t, "claude-3-5-haiku-20241022", adv.Model)
	assert.False(t, adv.CreatedAt.IsZero())
}

func TestAdviceFromTextLongFirstLine(t *testing.T) {
	adv := adviceFromText(strings.Repeat("x", 500), "openai", "gpt-4o-mini")
	assert.LessOrEqual(t, len(adv.Summary), 200+len("... (truncated)"))
}

func TestWrapAnthropicErrorRateLimit(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "90")
	apiErr := &anthropic.Error{StatusCode: http.StatusTooManyRequests, Response: resp}

	wrapped := wrapAnthropicError(apiErr)
	class, hint := retry.Classify(wrapped)
	assert.Equal(t, retry.ClassRateLimit, class)
	assert.Equal(t, 90*time.Second, hint)
}

func TestWrapAnthropicErrorPassthrough(t *testing.T) {
	apiErr := &anthropic.Error{StatusCode: http.StatusInternalServerError}
	assert.Equal(t, error(apiErr), wrapAnthropicError(apiErr))
}

func TestRetryAfterFromResponse(t *testing.T) {
	t.Run("retry-after seconds", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Set("Retry-After", "30")
		assert.Equal(t, 30*time.Second, retryAfterFromResponse(resp))
	})

	t.Run("rate limit reset epoch", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(10*time.Minute).Unix(), 10))
		d := retryAfterFromResponse(resp)
		assert.Greater(t, d, 9*time.Minute)
		assert.Less(t, d, 11*time.Minute)
	})

	t.Run("no headers", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), retryAfterFromResponse(&http.Response{Header: http.Header{}}))
	})

	t.Run("nil response", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), retryAfterFromResponse(nil))
	})

	t.Run("past reset ignored", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(-time.Minute).Unix(), 10))
		assert.Equal(t, time.Duration(0), retryAfterFromResponse(resp))
	})
}
