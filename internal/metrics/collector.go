// Package metrics exposes the monitor's readings and lifecycle as
// Prometheus metrics.
//
// Every collector owns its metric objects, so several collectors can be
// registered on separate registries in one process (tests do this).
package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-workload-monitor/internal/sampler"
)

const namespace = "workload_monitor"

// Collector manages all Prometheus metrics for one monitored run.
type Collector struct {
	info          *prometheus.GaugeVec
	sampleValue   *prometheus.GaugeVec
	rollingMean   *prometheus.GaugeVec
	samplesTotal  prometheus.Counter
	unavailable   *prometheus.CounterVec
	state         *prometheus.GaugeVec
	workloadPID   prometheus.Gauge
	cleanupsTotal prometheus.Counter
	runsTotal     *prometheus.CounterVec
	exitStatus    prometheus.Gauge
	duration      prometheus.Gauge
	interval      prometheus.Gauge
	timeout       prometheus.Gauge

	mu        sync.Mutex
	lastState string
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	RunID    string
	Command  string
	Version  string
	Interval time.Duration
	Timeout  time.Duration
}

// NewCollectorWithRegistry creates a collector with a custom registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the monitored run (value always 1)",
		}, []string{"version", "run_id", "command"}),

		sampleValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_value",
			Help:      "Latest sampled value per log column (NaN when unavailable)",
		}, []string{"field"}),

		rollingMean: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rolling_mean",
			Help:      "Load-average style moving mean of available readings per window (NaN when none)",
		}, []string{"field", "window"}),

		samplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples written to the log",
		}),

		unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unavailable_total",
			Help:      "Readings recorded as N/A, by field",
		}, []string{"field"}),

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current run state (1 for the active state)",
		}, []string{"state"}),

		workloadPID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workload_pid",
			Help:      "PID of the monitored workload (0 before launch)",
		}),

		cleanupsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanups_total",
			Help:      "Process group kill sequences performed",
		}),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by termination cause",
		}, []string{"cause"}),

		exitStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exit_status",
			Help:      "Exit status of the workload (-1 while running)",
		}),

		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of the workload",
		}),

		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interval_seconds",
			Help:      "Configured sampling interval",
		}),

		timeout: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timeout_seconds",
			Help:      "Configured time budget (0 = none)",
		}),
	}

	registry.MustRegister(
		c.info,
		c.sampleValue,
		c.rollingMean,
		c.samplesTotal,
		c.unavailable,
		c.state,
		c.workloadPID,
		c.cleanupsTotal,
		c.runsTotal,
		c.exitStatus,
		c.duration,
		c.interval,
		c.timeout,
	)

	c.info.WithLabelValues(cfg.Version, cfg.RunID, cfg.Command).Set(1)
	c.interval.Set(cfg.Interval.Seconds())
	c.timeout.Set(cfg.Timeout.Seconds())
	c.exitStatus.Set(-1)

	// Pre-create every field so dashboards see all columns from the start.
	for _, f := range sampler.Fields() {
		c.sampleValue.WithLabelValues(f.String()).Set(math.NaN())
		c.unavailable.WithLabelValues(f.String())
	}

	return c
}

// =============================================================================
// Update Methods
// =============================================================================

// ObserveSample records one written sample.
func (c *Collector) ObserveSample(s sampler.Sample) {
	for _, f := range sampler.Fields() {
		v, ok := s.Get(f).Float()
		if !ok {
			c.sampleValue.WithLabelValues(f.String()).Set(math.NaN())
			c.unavailable.WithLabelValues(f.String()).Inc()
			continue
		}
		c.sampleValue.WithLabelValues(f.String()).Set(v)
	}
	c.samplesTotal.Inc()
}

// ObserveRolling records the moving means for one window label.
func (c *Collector) ObserveRolling(window string, means [sampler.NumFields]sampler.Value) {
	for _, f := range sampler.Fields() {
		v, ok := means[f].Float()
		if !ok {
			v = math.NaN()
		}
		c.rollingMean.WithLabelValues(f.String(), window).Set(v)
	}
}

// SetState marks name as the active state.
func (c *Collector) SetState(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastState != "" {
		c.state.WithLabelValues(c.lastState).Set(0)
	}
	c.state.WithLabelValues(name).Set(1)
	c.lastState = name
}

// RecordStart records the launched workload.
func (c *Collector) RecordStart(pid int) {
	c.workloadPID.Set(float64(pid))
}

// RecordCleanup records performed kill sequences.
func (c *Collector) RecordCleanup(sequences int) {
	c.cleanupsTotal.Add(float64(sequences))
}

// RecordResult records the final outcome of the run.
func (c *Collector) RecordResult(exitStatus int, d time.Duration, cause string) {
	c.exitStatus.Set(float64(exitStatus))
	c.duration.Set(d.Seconds())
	c.runsTotal.WithLabelValues(cause).Inc()
}
