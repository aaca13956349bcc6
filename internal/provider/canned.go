package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/errsight/errsight/internal/types"
)

// CannedAnalyzer produces heuristic advice without calling any external
// service. It backs the demo and REPL when no API key is configured, and
// doubles as a deterministic stand-in for local development.
type CannedAnalyzer struct {
	// Latency is an artificial per-call delay so queue and breaker
	// behavior is observable in the demo. 0 means respond immediately.
	Latency time.Duration
}

// NewCanned returns an offline analyzer.
func NewCanned(latency time.Duration) *CannedAnalyzer {
	return &CannedAnalyzer{Latency: latency}
}

func (c *CannedAnalyzer) Name() string { return "canned" }

// Analyze matches the error message against a small set of common failure
// shapes and returns generic advice for anything unrecognized.
func (c *CannedAnalyzer) Analyze(ctx context.Context, req types.AnalysisRequest, e types.CapturedError) (types.Advice, error) {
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return types.Advice{}, ctx.Err()
		}
	}

	summary, detail := cannedAdvice(e)
	return types.Advice{
		Summary:   summary,
		Detail:    detail,
		Provider:  c.Name(),
		Model:     "heuristic",
		CreatedAt: time.Now(),
	}, nil
}

func cannedAdvice(e types.CapturedError) (string, string) {
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "nil pointer") || strings.Contains(msg, "null"):
		return "Likely dereference of an uninitialized value",
			"A value was used before it was assigned. Check the code path that constructs it, especially early returns that skip initialization."
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "A downstream dependency is responding too slowly",
			"Check the latency of the service this handler calls, and verify the configured timeout matches its p99. Consider a shorter timeout with a fallback."
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset"):
		return "A downstream dependency is unreachable",
			"The target host actively refused the connection. Verify the service is running, the port is correct, and no recent deploy changed its address."
	case strings.Contains(msg, "permission") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden"):
		return "The request lacked required credentials or permissions",
			"Check that the credential used for this call is present, unexpired, and has the scope this operation requires."
	case strings.Contains(msg, "not found") || e.Code == "404":
		return "A referenced resource does not exist",
			"The identifier in this request resolved to nothing. Check for stale references or a race with a delete."
	default:
		return fmt.Sprintf("Unrecognized %s", e.Name),
			fmt.Sprintf("No heuristic matched %q. Inspect the stack trace for the first frame inside application code.", e.Message)
	}
}
