// Package orchestrator wires configuration, sampling, metrics and the
// supervisor into one monitored run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-workload-monitor/internal/config"
	"github.com/randomizedcoder/go-workload-monitor/internal/metrics"
	"github.com/randomizedcoder/go-workload-monitor/internal/preflight"
	"github.com/randomizedcoder/go-workload-monitor/internal/process"
	"github.com/randomizedcoder/go-workload-monitor/internal/sampler"
	"github.com/randomizedcoder/go-workload-monitor/internal/stats"
	"github.com/randomizedcoder/go-workload-monitor/internal/supervisor"
	"github.com/randomizedcoder/go-workload-monitor/internal/timeseries"
)

// PreflightError means a required startup check failed.
type PreflightError struct {
	Result *preflight.Result
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight checks %s (use --skip-preflight to override)", e.Result.Summary())
}

// ExitCode implements the exit-code mapping used by main.
func (e *PreflightError) ExitCode() int { return 1 }

// InterruptedError reports that the monitor itself was told to stop.
// Cleanup and the trailer have already happened when it is returned.
type InterruptedError struct {
	Signal os.Signal // nil when the parent context was cancelled
}

func (e *InterruptedError) Error() string {
	if e.Signal == nil {
		return "interrupted"
	}
	return "interrupted by " + e.Signal.String()
}

// ExitCode is 128 plus the signal number, or 130 without a signal.
func (e *InterruptedError) ExitCode() int {
	if sig, ok := e.Signal.(syscall.Signal); ok {
		return 128 + int(sig)
	}
	return 128 + int(syscall.SIGINT)
}

// Orchestrator coordinates all components for a monitored run.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	version string
	runID   string

	// Report receives the preflight report and the exit summary.
	Report io.Writer

	// Launcher starts the workload (defaults to the monitor's own stdio).
	Launcher *process.Launcher

	caps          sampler.Capabilities
	sampler       *sampler.Set
	accumulator   *stats.Accumulator
	load          *timeseries.LoadAverage // nil without a metrics server
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	supervisor    *supervisor.Supervisor

	mu        sync.Mutex
	cancel    context.CancelCauseFunc
	signal    os.Signal
	monitored chan struct{}
	once      sync.Once

	result *supervisor.Result
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, version string) *Orchestrator {
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	caps := sampler.DetectCapabilities(cfg.GPUTool, cfg.GPUDevice)

	o := &Orchestrator{
		config:      cfg,
		logger:      logger,
		version:     version,
		runID:       runID,
		Report:      os.Stderr,
		caps:        caps,
		accumulator: stats.NewAccumulator(),
		monitored:   make(chan struct{}),
	}

	o.sampler = sampler.NewSet(sampler.Config{
		Caps:      caps,
		CPUWindow: cfg.EffectiveCPUWindow(),
		Logger:    logger,
	})

	// Private registry so tests and embedders can run several monitors.
	o.registry = prometheus.NewRegistry()
	o.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		RunID:    runID,
		Command:  workloadText(cfg),
		Version:  version,
		Interval: cfg.Interval,
		Timeout:  cfg.Timeout,
	}, o.registry)

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.registry, logger)
		o.load = timeseries.NewLoadAverage()
	}

	return o
}

// Run executes the monitored run. It blocks until the workload has
// finished and its process group is gone.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			Caps:    o.caps,
			GPUTool: o.config.GPUTool,
			Command: o.config.Command,
			Args:    o.config.Args,
			OutFile: o.config.OutFile,
		})
		if !o.config.Quiet || !result.Passed {
			preflight.PrintResults(o.Report, result)
		}
		if !result.Passed {
			return &PreflightError{Result: result}
		}
	}

	// Start metrics server
	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer o.shutdownMetrics()
	}

	// Setup signal handling
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	go func() {
		for {
			select {
			case sig := <-sigCh:
				o.interrupt(sig)
			case <-ctx.Done():
				return
			}
		}
	}()

	o.supervisor = supervisor.New(supervisor.Config{
		Command:  o.config.Command,
		Args:     o.config.Args,
		OutFile:  o.config.OutFile,
		Interval: o.config.Interval,
		Timeout:  o.config.Timeout,
		Grace:    o.config.Grace,
		Launcher: o.Launcher,
		Sampler:  o.sampler,
		Logger:   o.logger,
		Callbacks: supervisor.Callbacks{
			OnStateChange: o.onStateChange,
			OnStart:       o.onStart,
			OnSample:      o.onSample,
			OnCleanup:     o.onCleanup,
		},
	})

	o.logger.Info("run_starting",
		"version", o.version,
		"interval", o.config.Interval.String(),
		"timeout", o.config.Timeout.String(),
		"outfile", o.config.OutFile,
		"gpu", o.caps.GPU,
	)

	res, err := o.supervisor.Run(ctx)
	if err != nil {
		var cfgErr *supervisor.ConfigError
		if errors.As(err, &cfgErr) {
			o.logger.Error("run_not_started", "error", err, "exit_code", cfgErr.ExitCode())
		}
		return err
	}
	o.result = res

	o.metrics.RecordResult(res.ExitStatus, res.Duration, res.Cause.String())

	if !o.config.NoSummary {
		fmt.Fprint(o.Report, stats.FormatExitSummary(o.accumulator.Snapshot(), stats.SummaryConfig{
			RunID:       o.runID,
			Command:     res.Command,
			OutFile:     res.OutFile,
			Cause:       res.Cause.String(),
			ExitStatus:  res.ExitStatus,
			Duration:    res.Duration,
			Rows:        res.Rows,
			Span:        o.accumulator.Span(),
			MetricsAddr: o.metricsAddr(),
		}))
	}

	if res.Cause == supervisor.CauseInterrupted {
		o.mu.Lock()
		sig := o.signal
		o.mu.Unlock()
		return &InterruptedError{Signal: sig}
	}
	return nil
}

// interrupt records the first signal and cancels the run.
func (o *Orchestrator) interrupt(sig os.Signal) {
	o.mu.Lock()
	first := o.signal == nil
	if first {
		o.signal = sig
	}
	cancel := o.cancel
	o.mu.Unlock()

	if !first {
		o.logger.Warn("cleanup_in_progress", "signal", sig.String())
		return
	}
	o.logger.Info("received_signal", "signal", sig.String())
	if cancel != nil {
		cancel(&InterruptedError{Signal: sig})
	}
}

func (o *Orchestrator) shutdownMetrics() {
	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.metricsServer.Shutdown(ctx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

func (o *Orchestrator) metricsAddr() string {
	if o.metricsServer == nil {
		return ""
	}
	return o.metricsServer.Addr()
}

// Callback handlers

func (o *Orchestrator) onStateChange(oldState, newState supervisor.State) {
	o.metrics.SetState(newState.String())
	o.logger.Debug("state_change", "from", oldState.String(), "to", newState.String())

	if newState == supervisor.StateMonitoring {
		if o.metricsServer != nil {
			o.metricsServer.SetReady(true)
		}
		o.once.Do(func() { close(o.monitored) })
	}
	if newState == supervisor.StateTerminated && o.metricsServer != nil {
		o.metricsServer.SetReady(false)
	}
}

func (o *Orchestrator) onStart(pid int, command string) {
	o.metrics.RecordStart(pid)
}

func (o *Orchestrator) onSample(s sampler.Sample) {
	o.metrics.ObserveSample(s)
	o.accumulator.Add(s)

	if o.load != nil {
		o.load.Update(s)
		for _, w := range timeseries.Windows {
			o.metrics.ObserveRolling(timeseries.WindowLabel(w), o.load.Means(w))
		}
	}
}

func (o *Orchestrator) onCleanup(sequences int) {
	o.metrics.RecordCleanup(sequences)
}

// RunID returns the identifier attached to logs and metrics.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Result returns the run result after a successful Run.
func (o *Orchestrator) Result() *supervisor.Result {
	return o.result
}

// Registry returns the Prometheus registry backing /metrics.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// Monitoring is closed once the workload is being sampled.
func (o *Orchestrator) Monitoring() <-chan struct{} {
	return o.monitored
}

// workloadText is the command as configured, for labels and logs.
func workloadText(cfg *config.Config) string {
	if len(cfg.Args) > 0 {
		cmd, err := process.ResolveCommand("", cfg.Args)
		if err == nil {
			return cmd.Text
		}
	}
	return cfg.Command
}
