// Package scheduler is the façade over the analysis pipeline: fingerprint,
// cache lookup, admission, retrying execution through the circuit breaker,
// and the cache write-back. Scheduling is fire-and-forget relative to the
// caller's error response; nothing here may delay or fail that response.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/errsight/errsight/internal/advicecache"
	"github.com/errsight/errsight/internal/breaker"
	"github.com/errsight/errsight/internal/fingerprint"
	"github.com/errsight/errsight/internal/provider"
	"github.com/errsight/errsight/internal/queue"
	"github.com/errsight/errsight/internal/retry"
	"github.com/errsight/errsight/internal/types"
)

// Config holds the scheduler's own tuning. The component dependencies carry
// their own configs.
type Config struct {
	// DedupWindow suppresses re-analysis of a fingerprint for this long
	// after an analysis completes, independent of the cache TTL. 0 keeps
	// only the in-flight suppression.
	DedupWindow time.Duration
}

// Deps are the pipeline components, constructed once at startup and shared
// process-wide. All fields are required except Logger.
type Deps struct {
	Cache    *advicecache.Cache
	Queue    *queue.Queue
	Executor *retry.Executor
	Breaker  *breaker.Breaker
	Analyzer provider.Analyzer
	Logger   *slog.Logger
}

// Scheduler coordinates the analysis pipeline. One instance per process;
// all methods are safe for concurrent use.
type Scheduler struct {
	cfg      Config
	cache    *advicecache.Cache
	queue    *queue.Queue
	exec     *retry.Executor
	breaker  *breaker.Breaker
	analyzer provider.Analyzer
	dedup    *dedupWindow
	log      *slog.Logger
}

// New assembles a scheduler from its dependencies.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Cache == nil || deps.Queue == nil || deps.Executor == nil || deps.Breaker == nil {
		return nil, errors.New("cache, queue, executor, and breaker are required")
	}
	if deps.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		cache:    deps.Cache,
		queue:    deps.Queue,
		exec:     deps.Executor,
		breaker:  deps.Breaker,
		analyzer: deps.Analyzer,
		dedup:    newDedupWindow(cfg.DedupWindow, nil),
		log:      log,
	}, nil
}

// ScheduleAnalysis decides whether the captured error warrants a provider
// call and, if so, enqueues one. It returns before any analysis work runs
// and never panics into the caller: every failure becomes a log event.
// Absence of advice is indistinguishable from an analysis that has not
// completed yet.
func (s *Scheduler) ScheduleAnalysis(errVal any, sanitizedContext string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("analysis scheduling panicked", "panic", r)
		}
	}()

	e := types.Normalize(errVal)
	fp := fingerprint.Fingerprint(e)

	if _, ok := s.cache.Get(fp); ok {
		s.log.Debug("advice already cached", "fingerprint", fp)
		return
	}

	if !s.dedup.tryBegin(fp) {
		s.log.Debug("analysis suppressed by dedup window", "fingerprint", fp)
		return
	}

	req := types.NewAnalysisRequest(fp, sanitizedContext)
	err := s.queue.Schedule(req, func(ctx context.Context) {
		s.runAnalysis(ctx, req, e)
	})
	if err != nil {
		// Overflow is recorded by the queue's reject counter; release the
		// fingerprint so the next occurrence may try again.
		s.dedup.abort(fp)
		if !errors.Is(err, queue.ErrQueueFull) {
			s.log.Warn("analysis admission failed", "fingerprint", fp, "error", err)
		}
	}
}

// runAnalysis executes one admitted request end to end. Runs on a queue
// worker goroutine.
func (s *Scheduler) runAnalysis(ctx context.Context, req types.AnalysisRequest, e types.CapturedError) {
	var advice types.Advice
	err := s.exec.Call(ctx, "analysis", func(callCtx context.Context) error {
		a, callErr := s.analyzer.Analyze(callCtx, req, e)
		if callErr != nil {
			return callErr
		}
		advice = a
		return nil
	})

	if err != nil {
		// Terminal failure: advice is simply omitted, no cache write. The
		// breaker and executor already logged the interesting parts.
		s.dedup.abort(req.Fingerprint)
		switch {
		case errors.Is(err, breaker.ErrCircuitOpen):
			s.log.Debug("analysis short-circuited", "request_id", req.ID, "fingerprint", req.Fingerprint)
		case errors.Is(err, retry.ErrRetryExhausted):
			s.log.Warn("analysis abandoned", "request_id", req.ID, "fingerprint", req.Fingerprint, "error", err)
		default:
			s.log.Warn("analysis failed", "request_id", req.ID, "fingerprint", req.Fingerprint, "error", err)
		}
		return
	}

	// Cache writes never propagate: Set swallows malformed payloads and
	// truncates oversized ones.
	s.cache.Set(req.Fingerprint, advice)
	s.dedup.complete(req.Fingerprint)
	s.log.Info("analysis completed",
		"request_id", req.ID,
		"fingerprint", req.Fingerprint,
		"provider", advice.Provider,
		"latency", time.Since(req.SubmittedAt),
	)
}

// AdviceFor returns cached advice for a captured error, if present. The
// middleware calls this on subsequent occurrences to enrich its logs.
func (s *Scheduler) AdviceFor(errVal any) (types.Advice, bool) {
	e := types.Normalize(errVal)
	return s.cache.Get(fingerprint.Fingerprint(e))
}

// Operational surface exposed to the embedding middleware.

// GetQueueLength returns the number of admitted requests waiting to run.
func (s *Scheduler) GetQueueLength() int { return s.queue.Len() }

// GetQueueRejectCount returns the monotonic overflow-rejection counter.
func (s *Scheduler) GetQueueRejectCount() uint64 { return s.queue.RejectCount() }

// GetAdviceCacheLimit returns the advice cache entry bound (0 = disabled).
func (s *Scheduler) GetAdviceCacheLimit() int { return s.cache.Limit() }

// ClearAdviceCache drops every cached advice entry.
func (s *Scheduler) ClearAdviceCache() { s.cache.Clear() }

// PurgeExpiredAdvice removes expired advice entries, returning how many
// were dropped.
func (s *Scheduler) PurgeExpiredAdvice() int { return s.cache.PurgeExpired() }

// StartQueueMetrics begins the periodic queue metrics log line.
func (s *Scheduler) StartQueueMetrics() { s.queue.StartMetricsReporting() }

// StopQueueMetrics halts the periodic queue metrics log line.
func (s *Scheduler) StopQueueMetrics() { s.queue.StopMetricsReporting() }

// BreakerState returns the circuit breaker's current state.
func (s *Scheduler) BreakerState() breaker.State { return s.breaker.State() }

// BreakerStats returns the circuit breaker's counters.
func (s *Scheduler) BreakerStats() breaker.Stats { return s.breaker.Stats() }

// ForceBreakerState is the operational override for the circuit breaker.
func (s *Scheduler) ForceBreakerState(state breaker.State) { s.breaker.ForceState(state) }

// Close shuts the pipeline down: pending work is dropped, running calls are
// cancelled, and the cache janitor stops.
func (s *Scheduler) Close() {
	s.queue.Close()
	s.cache.StopJanitor()
}
