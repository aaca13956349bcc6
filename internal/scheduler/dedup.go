package scheduler

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// dedupWindow suppresses scheduling a second analysis for a fingerprint
// while one is already in flight or completed very recently. It is separate
// from the advice cache: the cache answers "do we have advice", this
// answers "are we already paying for it". The recent-keys side is
// LRU-bounded so hostile fingerprint churn cannot grow it without limit.
//
// Contract: at most one in-flight analysis per fingerprint at a time.
type dedupWindow struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	recent   *lru.Cache[string, time.Time]
	window   time.Duration
	clock    func() time.Time
}

const recentKeysLimit = 1024

func newDedupWindow(window time.Duration, clock func() time.Time) *dedupWindow {
	if clock == nil {
		clock = time.Now
	}
	// lru.New only fails on a non-positive size; recentKeysLimit is fixed.
	recent, _ := lru.New[string, time.Time](recentKeysLimit)
	return &dedupWindow{
		inflight: make(map[string]struct{}),
		recent:   recent,
		window:   window,
		clock:    clock,
	}
}

// tryBegin claims the fingerprint for a new analysis. It refuses when one
// is already in flight, or when one completed inside the window.
func (d *dedupWindow) tryBegin(fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.inflight[fp]; busy {
		return false
	}
	if d.window > 0 {
		if completedAt, ok := d.recent.Get(fp); ok {
			if d.clock().Sub(completedAt) < d.window {
				return false
			}
			d.recent.Remove(fp)
		}
	}
	d.inflight[fp] = struct{}{}
	return true
}

// complete releases the fingerprint and starts its recent-completion
// window. Only successful analyses enter the window: a failed one may be
// retried as soon as the next occurrence arrives.
func (d *dedupWindow) complete(fp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, fp)
	if d.window > 0 {
		d.recent.Add(fp, d.clock())
	}
}

// abort releases the fingerprint without starting a window.
func (d *dedupWindow) abort(fp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, fp)
}

// inflightCount reports how many analyses are currently claimed.
func (d *dedupWindow) inflightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}
