// Package advicecache is the bounded, TTL-based store mapping error
// fingerprints to previously computed AI advice. It exists to keep repeat
// occurrences of the same error from costing another provider call.
package advicecache

import (
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/errsight/errsight/internal/types"
)

// DefaultMaxPayloadBytes bounds the stored advice detail. Oversized payloads
// are truncated rather than rejected: partial advice still beats none.
const DefaultMaxPayloadBytes = 64 * 1024

type entry struct {
	advice    types.Advice
	createdAt time.Time
	expiresAt time.Time
}

// Cache is a process-wide advice store shared by all analysis requests.
// Entries are evicted least-recently-used when the cache is full (recency
// is bumped on both Get hits and Set) and lazily on TTL expiry.
//
// A limit of 0 disables caching entirely: every Get misses and every Set is
// a no-op. All methods are safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *entry]
	limit int
	ttl   time.Duration

	maxPayload int
	clock      func() time.Time
	log        *slog.Logger

	janitor *janitor
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithMaxPayloadBytes overrides the advice payload size bound.
func WithMaxPayloadBytes(n int) Option {
	return func(c *Cache) { c.maxPayload = n }
}

// WithLogger sets the logger used by the purge janitor.
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// New creates a cache holding at most limit entries, each live for ttl.
// limit <= 0 disables caching; ttl <= 0 means entries never expire.
func New(limit int, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		limit:      limit,
		ttl:        ttl,
		maxPayload: DefaultMaxPayloadBytes,
		clock:      time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if limit > 0 {
		// lru.New only fails on a non-positive size, which is guarded above.
		c.lru, _ = lru.New[string, *entry](limit)
	}
	return c
}

// Get returns the cached advice for a fingerprint. An expired entry behaves
// as a miss and is evicted on the spot. A hit bumps the entry's recency.
func (c *Cache) Get(fingerprint string) (types.Advice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru == nil {
		return types.Advice{}, false
	}
	e, ok := c.lru.Get(fingerprint)
	if !ok {
		return types.Advice{}, false
	}
	if c.expired(e) {
		c.lru.Remove(fingerprint)
		return types.Advice{}, false
	}
	return e.advice, true
}

// Set stores advice under a fingerprint, truncating oversized payloads and
// evicting the least-recently-used entry when at capacity. Malformed or
// empty advice is dropped silently: cache writes never fail into the
// scheduling path.
func (c *Cache) Set(fingerprint string, advice types.Advice) {
	if fingerprint == "" || advice.IsZero() {
		return
	}

	c.mu.Lock()
	if c.lru == nil {
		c.mu.Unlock()
		return
	}

	advice = c.truncate(advice)
	now := c.clock()
	e := &entry{advice: advice, createdAt: now}
	if c.ttl > 0 {
		e.expiresAt = now.Add(c.ttl)
	}
	c.lru.Add(fingerprint, e)
	c.mu.Unlock()

	// Entries now exist; make sure the purge timer is running again.
	c.resumeJanitor()
}

// PurgeExpired removes all expired entries. It is idempotent and safe to
// call from a timer. Returns the number of entries removed.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru == nil {
		return 0
	}
	removed := 0
	// Peek rather than Get so a purge scan doesn't disturb recency order.
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && c.expired(e) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru != nil {
		c.lru.Purge()
	}
}

// Size returns the number of entries currently stored, including entries
// that have expired but not yet been purged.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Limit returns the configured maximum entry count. 0 means caching is
// disabled.
func (c *Cache) Limit() int {
	if c.limit < 0 {
		return 0
	}
	return c.limit
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && !c.clock().Before(e.expiresAt)
}

// truncate bounds the advice payload. The summary is clipped hard; the
// detail keeps its head with a truncation marker, matching how provider
// responses are clipped in logs.
func (c *Cache) truncate(a types.Advice) types.Advice {
	const maxSummary = 512
	if len(a.Summary) > maxSummary {
		a.Summary = a.Summary[:maxSummary]
	}
	if c.maxPayload > 0 && len(a.Detail) > c.maxPayload {
		a.Detail = a.Detail[:c.maxPayload] + "... (truncated)"
	}
	return a
}
