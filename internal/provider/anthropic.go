package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/errsight/errsight/internal/retry"
	"github.com/errsight/errsight/internal/types"
)

const (
	// anthropicDefaultModel is the cost-efficient default: advice quality
	// does not need the top reasoning tier.
	anthropicDefaultModel = "claude-3-5-haiku-20241022"

	anthropicMaxTokens = 1024
)

// AnthropicAnalyzer requests debugging advice from the Anthropic API.
type AnthropicAnalyzer struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates the Anthropic adapter. The API key falls back to
// ANTHROPIC_API_KEY; the model falls back to ERRSIGHT_ANTHROPIC_MODEL and
// then the built-in default.
func NewAnthropic(apiKey, model string) (*AnthropicAnalyzer, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}
	if model == "" {
		model = os.Getenv("ERRSIGHT_ANTHROPIC_MODEL")
	}
	if model == "" {
		model = anthropicDefaultModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicAnalyzer{client: &client, model: model}, nil
}

// Name implements Analyzer.
func (a *AnthropicAnalyzer) Name() string { return "anthropic" }

// Analyze implements Analyzer.
func (a *AnthropicAnalyzer) Analyze(ctx context.Context, req types.AnalysisRequest, e types.CapturedError) (types.Advice, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req, e))),
		},
	})
	if err != nil {
		return types.Advice{}, wrapAnthropicError(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return types.Advice{}, fmt.Errorf("anthropic returned no text content")
	}
	return adviceFromText(text, a.Name(), a.model), nil
}

// wrapAnthropicError attaches the provider's retry-after hint to rate-limit
// failures so the executor can honor it.
func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		return retry.RateLimited(err, retryAfterFromResponse(apiErr.Response))
	}
	return err
}

// retryAfterFromResponse reads the Retry-After header (seconds form) or the
// X-RateLimit-Reset epoch header. 0 when neither is usable.
func retryAfterFromResponse(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}
