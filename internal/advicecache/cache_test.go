package advicecache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/errsight/errsight/internal/types"
)

// fakeClock is a manually advanced time source for TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func adv(s string) types.Advice {
	return types.Advice{Summary: s, Detail: "detail for " + s}
}

func TestCacheRoundTrip(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("f1", adv("nil deref"))

	got, ok := c.Get("f1")
	assert.True(t, ok)
	assert.Equal(t, "nil deref", got.Summary)
	assert.Equal(t, 1, c.Size())
}

func TestCacheMiss(t *testing.T) {
	c := New(10, time.Minute)
	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestCacheTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(10, time.Minute, WithClock(clock.Now))
	c.Set("f1", adv("a"))

	_, ok := c.Get("f1")
	assert.True(t, ok)

	clock.Advance(61 * time.Second)

	// Expired entry behaves as a miss and is evicted on the spot.
	_, ok = c.Get("f1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestCacheLRUEviction(t *testing.T) {
	c := New(1, time.Minute)
	c.Set("a", adv("adv1"))
	c.Set("b", adv("adv2"))

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")

	got, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "adv2", got.Summary)
}

// A Get hit must bump recency so the hit entry survives the next eviction.
func TestCacheGetBumpsRecency(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("a", adv("a"))
	c.Set("b", adv("b"))

	_, _ = c.Get("a") // a is now most recently used

	c.Set("c", adv("c")) // evicts b, not a

	_, ok := c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCacheDisabled(t *testing.T) {
	c := New(0, time.Minute)
	c.Set("f1", adv("a"))

	_, ok := c.Get("f1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0, c.Limit())

	// Lifecycle methods must be safe no-ops when disabled.
	assert.Equal(t, 0, c.PurgeExpired())
	c.Clear()
	c.StartJanitor(time.Millisecond)
	c.StopJanitor()
}

func TestPurgeExpiredIdempotent(t *testing.T) {
	clock := newFakeClock()
	c := New(10, time.Minute, WithClock(clock.Now))
	c.Set("a", adv("a"))
	c.Set("b", adv("b"))

	clock.Advance(2 * time.Minute)
	c.Set("c", adv("c")) // fresh entry, must survive

	assert.Equal(t, 2, c.PurgeExpired())
	sizeAfterFirst := c.Size()

	// Second purge with no intervening Set changes nothing.
	assert.Equal(t, 0, c.PurgeExpired())
	assert.Equal(t, sizeAfterFirst, c.Size())
	assert.Equal(t, 1, sizeAfterFirst)
}

// Purging must not disturb LRU order: scanning entries is not a "use".
func TestPurgeDoesNotBumpRecency(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("a", adv("a"))
	c.Set("b", adv("b"))

	c.PurgeExpired()

	c.Set("c", adv("c")) // should still evict a, the least recently used

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestCacheClear(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("a", adv("a"))
	c.Set("b", adv("b"))
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCacheTruncatesOversizedPayload(t *testing.T) {
	c := New(10, time.Minute, WithMaxPayloadBytes(100))
	c.Set("f1", types.Advice{
		Summary: strings.Repeat("s", 1000),
		Detail:  strings.Repeat("d", 1000),
	})

	got, ok := c.Get("f1")
	assert.True(t, ok)
	assert.LessOrEqual(t, len(got.Summary), 512)
	assert.LessOrEqual(t, len(got.Detail), 100+len("... (truncated)"))
	assert.True(t, strings.HasSuffix(got.Detail, "... (truncated)"))
}

func TestCacheIgnoresEmptyAdvice(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("f1", types.Advice{})
	c.Set("", adv("a"))
	assert.Equal(t, 0, c.Size())
}

func TestNoExpiryWhenTTLZero(t *testing.T) {
	clock := newFakeClock()
	c := New(10, 0, WithClock(clock.Now))
	c.Set("a", adv("a"))

	clock.Advance(1000 * time.Hour)

	_, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 0, c.PurgeExpired())
}

func TestJanitorPurgesAndSuspends(t *testing.T) {
	clock := newFakeClock()
	c := New(10, time.Minute, WithClock(clock.Now))
	c.StartJanitor(5 * time.Millisecond)
	defer c.StopJanitor()

	c.Set("a", adv("a"))
	clock.Advance(2 * time.Minute)

	// The janitor should purge the expired entry shortly.
	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)

	// After draining, a new Set must resume purging without a new Start.
	c.Set("b", adv("b"))
	clock.Advance(2 * time.Minute)
	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestJanitorStopIdempotent(t *testing.T) {
	c := New(10, time.Minute)
	c.StartJanitor(time.Millisecond)
	c.StopJanitor()
	c.StopJanitor()

	// Set after stop must not panic or restart the loop.
	c.Set("a", adv("a"))
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New(64, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := string(rune('a' + (n+j)%16))
				c.Set(key, adv(key))
				c.Get(key)
				if j%50 == 0 {
					c.PurgeExpired()
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 64)
}

// A Set racing StopJanitor must never leave a detached purge loop running.
func TestJanitorNotResurrectedByConcurrentSet(t *testing.T) {
	clock := newFakeClock()
	c := New(8, time.Minute, WithClock(clock.Now))

	for i := 0; i < 50; i++ {
		c.StartJanitor(time.Millisecond)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Set("f1", adv("race"))
		}()
		go func() {
			defer wg.Done()
			c.StopJanitor()
		}()
		wg.Wait()
		c.StopJanitor()
	}

	// Let any in-flight loop iteration observe its closed stop channel.
	time.Sleep(10 * time.Millisecond)

	// With every janitor stopped, an expired entry must survive: only a
	// stray loop could purge it.
	c.Set("f1", adv("race"))
	clock.Advance(2 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, c.Size())
}
