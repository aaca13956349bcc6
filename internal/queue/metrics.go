package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// reporter logs a periodic metrics line (queue length + reject count). It
// starts when the first item is admitted and stops when the queue drains,
// so an idle process carries no ticking timer.
type reporter struct {
	interval time.Duration
	stop     chan struct{}
}

// EnableMetricsReporting configures the periodic metrics log line on the
// given interval. An interval of 0 disables reporting. The reporter itself
// starts lazily on the next admission.
func (q *Queue) EnableMetricsReporting(interval time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopReporterLocked()
	if interval > 0 {
		q.reporter = &reporter{interval: interval}
	} else {
		q.reporter = nil
	}
}

// StartMetricsReporting forces the reporter to start now regardless of
// queue occupancy. Exposed for operator use; normal operation relies on
// lazy starts.
func (q *Queue) StartMetricsReporting() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.startReporterLocked()
}

// StopMetricsReporting halts the periodic metrics line until the next
// explicit start or admission.
func (q *Queue) StopMetricsReporting() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopReporterLocked()
}

// startReporterLocked begins the reporting loop if one is configured and
// not already running. Caller must hold q.mu.
func (q *Queue) startReporterLocked() {
	r := q.reporter
	if r == nil || r.stop != nil || q.closed {
		return
	}
	r.stop = make(chan struct{})
	go q.reportLoop(r.interval, r.stop)
}

// stopReporterLocked halts the reporting loop. Caller must hold q.mu.
func (q *Queue) stopReporterLocked() {
	if q.reporter != nil && q.reporter.stop != nil {
		close(q.reporter.stop)
		q.reporter.stop = nil
	}
}

func (q *Queue) reportLoop(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := q.SnapshotState()
			q.log.Info("analysis queue metrics",
				"queue_length", snap.Pending,
				"active", snap.Active,
				"reject_count", snap.RejectCount,
			)
		case <-stop:
			return
		}
	}
}

// collectors holds the Prometheus instruments mirroring queue state.
type collectors struct {
	queueLength prometheus.Gauge
	active      prometheus.Gauge
	rejects     prometheus.Counter
}

// RegisterMetrics registers queue gauges and counters with reg. Call at
// most once per queue. Returns the registration error, if any.
func (q *Queue) RegisterMetrics(reg prometheus.Registerer) error {
	c := &collectors{
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "errsight",
			Subsystem: "queue",
			Name:      "pending",
			Help:      "Number of analysis requests waiting for a concurrency slot.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "errsight",
			Subsystem: "queue",
			Name:      "active",
			Help:      "Number of analysis requests currently running.",
		}),
		rejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "errsight",
			Subsystem: "queue",
			Name:      "rejects_total",
			Help:      "Total analysis requests rejected because the queue was full.",
		}),
	}
	for _, col := range []prometheus.Collector{c.queueLength, c.active, c.rejects} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}

	q.mu.Lock()
	q.collect = c
	q.updateGaugesLocked()
	q.mu.Unlock()
	return nil
}

// updateGaugesLocked syncs the Prometheus gauges with current counters.
// Caller must hold q.mu.
func (q *Queue) updateGaugesLocked() {
	if q.collect == nil {
		return
	}
	q.collect.queueLength.Set(float64(len(q.waiters)))
	q.collect.active.Set(float64(q.active))
}
