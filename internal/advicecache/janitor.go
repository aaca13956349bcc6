package advicecache

import (
	"sync"
	"time"
)

// janitor drives periodic PurgeExpired calls. It suspends itself when a
// purge leaves the cache empty and is resumed by the next Set, so an idle
// process carries no ticking timer. Not correctness-critical: Get already
// treats expired entries as misses; the janitor only reclaims memory.
type janitor struct {
	mu       sync.Mutex
	interval time.Duration
	stop     chan struct{}
	running  bool
}

// StartJanitor begins periodic purging on the given interval. An interval
// of 0 disables the janitor. Calling it again replaces the previous
// schedule.
func (c *Cache) StartJanitor(interval time.Duration) {
	c.StopJanitor()
	if interval <= 0 || c.lru == nil {
		return
	}

	c.mu.Lock()
	c.janitor = &janitor{interval: interval}
	c.mu.Unlock()

	c.resumeJanitor()
}

// StopJanitor cancels periodic purging entirely. Idempotent.
func (c *Cache) StopJanitor() {
	c.mu.Lock()
	j := c.janitor
	c.janitor = nil
	c.mu.Unlock()

	if j != nil {
		j.suspend()
	}
}

// resumeJanitor restarts the purge loop if a janitor is configured and not
// already ticking. Called on Set so the timer only runs while there is
// something to expire.
//
// c.mu is held across the start decision so a concurrent StopJanitor
// cannot detach the janitor between the read and the launch; a loop is
// only ever started for the currently installed janitor. Lock order is
// c.mu then j.mu, and suspend/purgeLoop take j.mu alone.
func (c *Cache) resumeJanitor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := c.janitor
	if j == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true
	j.stop = make(chan struct{})
	go c.purgeLoop(j, j.stop)
}

func (c *Cache) purgeLoop(j *janitor, stop chan struct{}) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// A stop that raced this tick wins; no purge after shutdown.
			select {
			case <-stop:
				return
			default:
			}
			removed := c.PurgeExpired()
			if removed > 0 {
				c.log.Debug("advice cache purge", "removed", removed, "size", c.Size())
			}
			if c.Size() == 0 {
				// Nothing left to expire; stand down until the next Set.
				j.mu.Lock()
				if j.stop == stop {
					j.running = false
					j.stop = nil
				}
				j.mu.Unlock()
				return
			}
		case <-stop:
			return
		}
	}
}

func (j *janitor) suspend() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		close(j.stop)
		j.running = false
		j.stop = nil
	}
}
