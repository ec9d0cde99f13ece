// Package metrics exports Prometheus instrumentation and t-digest
// percentile tracking for a single ffmpeg run's event stream (Component G).
// The Collector observes events as they are produced; it never alters or
// delays delivery to the caller.
package metrics

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrelio/ffmpegevents/internal/event"
)

// CollectorConfig names the run a Collector instruments, for the run_id
// label attached to every per-event series. run_duration_seconds and
// runs_total carry no run_id label.
type CollectorConfig struct {
	RunID string
}

// Collector observes a Run's event stream and maintains Prometheus series
// plus t-digest sketches for percentile queries outside of /metrics.
type Collector struct {
	runID string

	framesDecoded   *prometheus.CounterVec // by output index
	logLines        *prometheus.CounterVec // by level
	progressUpdates prometheus.Counter
	errorsTotal     *prometheus.CounterVec // by kind
	currentSpeed    prometheus.Gauge
	frameLatency    prometheus.Histogram
	runDuration     prometheus.Histogram
	runsTotal       *prometheus.CounterVec // by outcome

	mu            sync.Mutex
	speedDigest   *tdigest.TDigest
	latencyDigest *tdigest.TDigest
	lastFrameAt   time.Time
	runStarted    time.Time
}

// NewCollector builds a Collector registered against the default
// Prometheus registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry builds a Collector registered against registry,
// letting tests use an isolated *prometheus.Registry instead of the global
// default.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	labels := prometheus.Labels{"run_id": cfg.RunID}

	c := &Collector{
		runID: cfg.RunID,
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ffmpegevents",
			Name:        "frames_decoded_total",
			Help:        "Output frames sliced from stdout, by output index.",
			ConstLabels: labels,
		}, []string{"output"}),
		logLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ffmpegevents",
			Name:        "log_lines_total",
			Help:        "Classified stderr log lines, by level.",
			ConstLabels: labels,
		}, []string{"level"}),
		progressUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ffmpegevents",
			Name:        "progress_updates_total",
			Help:        "Progress status lines parsed from stderr.",
			ConstLabels: labels,
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ffmpegevents",
			Name:        "errors_total",
			Help:        "Error events emitted, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		currentSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ffmpegevents",
			Name:        "progress_speed_ratio",
			Help:        "Most recent progress speed multiplier (1.0 = realtime).",
			ConstLabels: labels,
		}),
		frameLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "ffmpegevents",
			Name:        "frame_interarrival_seconds",
			Help:        "Wall-clock time between consecutive OutputFrame events.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ffmpegevents",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration from the first observed event to Done.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16),
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ffmpegevents",
			Name:      "runs_total",
			Help:      "Completed runs, by outcome.",
		}, []string{"outcome"}),
		speedDigest:   tdigest.New(),
		latencyDigest: tdigest.New(),
	}

	registry.MustRegister(
		c.framesDecoded,
		c.logLines,
		c.progressUpdates,
		c.errorsTotal,
		c.currentSpeed,
		c.frameLatency,
		c.runDuration,
		c.runsTotal,
	)

	return c
}

// Observe records ev's contribution to the collector's series. Callers
// typically call this once per event as they range over a Run's iterator;
// it never blocks and never modifies ev.
func (c *Collector) Observe(ev event.Event) {
	now := time.Now()

	c.mu.Lock()
	if c.runStarted.IsZero() {
		c.runStarted = now
	}
	c.mu.Unlock()

	switch ev.Kind {
	case event.KindOutputFrame:
		c.framesDecoded.WithLabelValues(strconv.Itoa(ev.Frame.OutputIndex)).Inc()

		c.mu.Lock()
		if !c.lastFrameAt.IsZero() {
			latency := now.Sub(c.lastFrameAt)
			c.frameLatency.Observe(latency.Seconds())
			c.latencyDigest.Add(latency.Seconds(), 1)
		}
		c.lastFrameAt = now
		c.mu.Unlock()

	case event.KindLog:
		c.logLines.WithLabelValues(ev.Log.Level.String()).Inc()

	case event.KindProgress:
		c.progressUpdates.Inc()
		c.currentSpeed.Set(ev.Progress.Speed)

		c.mu.Lock()
		c.speedDigest.Add(ev.Progress.Speed, 1)
		c.mu.Unlock()

	case event.KindError:
		if ferr, ok := ev.Err.(*event.Error); ok {
			c.errorsTotal.WithLabelValues(ferr.Kind.String()).Inc()
		} else {
			c.errorsTotal.WithLabelValues("unknown").Inc()
		}

	case event.KindDone:
		outcome := "failure"
		if ev.Status.Success {
			outcome = "success"
		}
		c.runsTotal.WithLabelValues(outcome).Inc()

		c.mu.Lock()
		if !c.runStarted.IsZero() {
			c.runDuration.Observe(now.Sub(c.runStarted).Seconds())
		}
		c.mu.Unlock()
	}
}

// Percentiles reports p50/p90/p99 of the progress speed and inter-frame
// latency samples observed so far.
type Percentiles struct {
	SpeedP50, SpeedP90, SpeedP99       float64
	LatencyP50, LatencyP90, LatencyP99 time.Duration
}

// Percentiles snapshots the collector's t-digest sketches. Safe to call
// concurrently with Observe.
func (c *Collector) Percentiles() Percentiles {
	c.mu.Lock()
	defer c.mu.Unlock()

	// An empty digest reports NaN; report zero instead.
	quantile := func(d *tdigest.TDigest, q float64) float64 {
		if v := d.Quantile(q); !math.IsNaN(v) {
			return v
		}
		return 0
	}

	return Percentiles{
		SpeedP50:   quantile(c.speedDigest, 0.50),
		SpeedP90:   quantile(c.speedDigest, 0.90),
		SpeedP99:   quantile(c.speedDigest, 0.99),
		LatencyP50: time.Duration(quantile(c.latencyDigest, 0.50) * float64(time.Second)),
		LatencyP90: time.Duration(quantile(c.latencyDigest, 0.90) * float64(time.Second)),
		LatencyP99: time.Duration(quantile(c.latencyDigest, 0.99) * float64(time.Second)),
	}
}

// RunID returns the correlation ID this collector was constructed with.
func (c *Collector) RunID() string { return c.runID }
