package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/errsight/errsight/internal/advicecache"
	"github.com/errsight/errsight/internal/breaker"
	"github.com/errsight/errsight/internal/config"
	"github.com/errsight/errsight/internal/provider"
	"github.com/errsight/errsight/internal/queue"
	"github.com/errsight/errsight/internal/retry"
)

// Build assembles the full pipeline from configuration: one cache, one
// queue, one breaker, one executor, all shared process-wide. The analyzer
// is injected because credential and provider selection happen at the
// boundary, not in this core.
func Build(cfg config.Config, analyzer provider.Analyzer, log *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	cache := advicecache.New(cfg.CacheLimit, cfg.CacheTTL(),
		advicecache.WithLogger(log.With("component", "advicecache")),
	)
	if interval := cfg.CachePurgeInterval(); interval > 0 {
		cache.StartJanitor(interval)
	}

	q := queue.New(cfg.MaxConcurrency, cfg.MaxQueueLength,
		queue.WithLogger(log.With("component", "queue")),
	)
	q.EnableMetricsReporting(cfg.MetricsInterval())

	cb := breaker.New(breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout(),
	}, breaker.WithLogger(log.With("component", "breaker")))

	execOpts := []retry.Option{
		retry.WithLogger(log.With("component", "retry")),
	}
	if cfg.CallRateLimitRPS > 0 {
		execOpts = append(execOpts, retry.WithRateLimit(cfg.CallRateLimitRPS, cfg.CallRateLimitBurst))
	}
	if cfg.MaxProviderCalls > 0 {
		execOpts = append(execOpts, retry.WithConcurrencyLimit(cfg.MaxProviderCalls))
	}
	exec := retry.NewExecutor(retry.Policy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		BaseDelay:      cfg.RetryBaseDelay(),
		MaxDelay:       cfg.RetryMaxDelay(),
		Jitter:         cfg.RetryJitter,
		AttemptTimeout: cfg.CallTimeout(),
	}, cb, execOpts...)

	return New(Config{DedupWindow: cfg.DedupWindow()}, Deps{
		Cache:    cache,
		Queue:    q,
		Executor: exec,
		Breaker:  cb,
		Analyzer: analyzer,
		Logger:   log.With("component", "scheduler"),
	})
}

// Queue exposes the underlying admission queue, for metrics registration.
func (s *Scheduler) Queue() *queue.Queue { return s.queue }
