// Package providertest provides a scripted Analyzer fake for pipeline
// tests. It records every request and returns pre-arranged results, and can
// block mid-call so tests can hold analyses in flight.
package providertest

import (
	"context"
	"sync"

	"github.com/errsight/errsight/internal/provider"
	"github.com/errsight/errsight/internal/types"
)

// Scripted is a fake Analyzer. The zero value succeeds on every call with
// generated advice. Safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	calls   []types.AnalysisRequest
	results []error

	// Block, when non-nil, makes Analyze wait until the channel closes or
	// the context is cancelled. Set it before the first call.
	Block chan struct{}
}

var _ provider.Analyzer = (*Scripted)(nil)

func (s *Scripted) Name() string { return "scripted" }

// Script sets the error returned by each successive call, in order. A nil
// entry means success. Calls beyond the script repeat the last entry.
func (s *Scripted) Script(results ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = results
}

// Analyze records the request and returns the scripted result.
func (s *Scripted) Analyze(ctx context.Context, req types.AnalysisRequest, e types.CapturedError) (types.Advice, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	var res error
	if len(s.results) > 0 {
		idx := len(s.calls) - 1
		if idx >= len(s.results) {
			idx = len(s.results) - 1
		}
		res = s.results[idx]
	}
	block := s.Block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return types.Advice{}, ctx.Err()
		}
	}
	if res != nil {
		return types.Advice{}, res
	}
	return types.Advice{
		Summary:  "advice for " + e.Message,
		Detail:   "detail",
		Provider: s.Name(),
	}, nil
}

// CallCount reports how many Analyze calls have been recorded.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Calls returns a copy of the recorded requests in call order.
func (s *Scripted) Calls() []types.AnalysisRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AnalysisRequest, len(s.calls))
	copy(out, s.calls)
	return out
}
