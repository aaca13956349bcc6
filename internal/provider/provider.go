// Package provider contains the adapters for the external AI analysis
// service. The pipeline only sees the Analyzer interface; which backend
// sits behind it is a deployment decision made at startup.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/errsight/errsight/internal/types"
)

// Analyzer produces debugging advice for a captured error. Implementations
// must be safe for concurrent use; the pipeline shares one instance across
// all analysis requests.
type Analyzer interface {
	// Analyze requests advice for the given error. The context carries the
	// per-attempt timeout; implementations must return promptly once it is
	// cancelled. Rate-limit errors should be wrapped with retry.RateLimited
	// so the executor can honor the provider's retry-after hint.
	Analyze(ctx context.Context, req types.AnalysisRequest, e types.CapturedError) (types.Advice, error)

	// Name identifies the adapter in logs and advice attribution.
	Name() string
}

// maxPromptContext bounds how much application context is sent upstream.
const maxPromptContext = 4096

// buildPrompt renders the analysis prompt shared by all adapters. The
// context string arrives already sanitized; the pipeline never sends raw
// request data.
func buildPrompt(req types.AnalysisRequest, e types.CapturedError) string {
	var b strings.Builder
	b.WriteString(`You are a debugging assistant embedded in an error-handling middleware. An application error was captured in production. Suggest the most likely root cause and a concrete next debugging step.

Respond with a short first line summarizing the probable cause, then a more detailed explanation.

`)
	fmt.Fprintf(&b, "Error type: %s\n", e.Name)
	fmt.Fprintf(&b, "Message: %s\n", e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, "Code: %s\n", e.Code)
	}
	if e.Stack != "" {
		fmt.Fprintf(&b, "\nStack trace:\n%s\n", truncate(e.Stack, maxPromptContext))
	}
	if req.Context != "" {
		fmt.Fprintf(&b, "\nApplication context (sanitized):\n%s\n", truncate(req.Context, maxPromptContext))
	}
	return b.String()
}

// adviceFromText converts a provider's free-form response into Advice. The
// first non-empty line becomes the summary.
func adviceFromText(text, providerName, model string) types.Advice {
	text = strings.TrimSpace(text)
	summary := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			summary = truncate(line, 200)
			break
		}
	}
	return types.Advice{
		Summary:   summary,
		Detail:    text,
		Provider:  providerName,
		Model:     model,
		CreatedAt: time.Now(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}
