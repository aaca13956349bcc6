package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/errsight/errsight/internal/retry"
	"github.com/errsight/errsight/internal/types"
)

const openaiDefaultModel = "gpt-4o-mini"

// OpenAIAnalyzer requests debugging advice from the OpenAI API.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates the OpenAI adapter. The API key falls back to
// OPENAI_API_KEY; the model falls back to ERRSIGHT_OPENAI_MODEL and then
// the built-in default.
func NewOpenAI(apiKey, model string) (*OpenAIAnalyzer, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
	}
	if model == "" {
		model = os.Getenv("ERRSIGHT_OPENAI_MODEL")
	}
	if model == "" {
		model = openaiDefaultModel
	}
	return &OpenAIAnalyzer{client: openai.NewClient(apiKey), model: model}, nil
}

// Name implements Analyzer.
func (o *OpenAIAnalyzer) Name() string { return "openai" }

// Analyze implements Analyzer.
func (o *OpenAIAnalyzer) Analyze(ctx context.Context, req types.AnalysisRequest, e types.CapturedError) (types.Advice, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a debugging assistant embedded in an error-handling middleware."},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req, e)},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return types.Advice{}, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return types.Advice{}, fmt.Errorf("openai returned no choices")
	}
	return adviceFromText(resp.Choices[0].Message.Content, o.Name(), o.model), nil
}

// wrapOpenAIError marks rate-limit failures so the executor treats them as
// such even when the SDK error text varies.
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		// The SDK does not expose the Retry-After header; message
		// inspection in retry.Classify picks up any embedded hint.
		return retry.RateLimited(err, 0)
	}
	return err
}
