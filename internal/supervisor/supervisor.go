package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randomizedcoder/go-workload-monitor/internal/process"
	"github.com/randomizedcoder/go-workload-monitor/internal/recorder"
	"github.com/randomizedcoder/go-workload-monitor/internal/sampler"
)

// Collector produces one sample for a pid.
type Collector interface {
	Collect(ctx context.Context, pid int) sampler.Sample
}

// Callbacks contains optional callback functions for supervisor events.
// They run on the sampling loop and must not block.
type Callbacks struct {
	// OnStateChange is called when the run state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called once the workload is running.
	OnStart func(pid int, command string)

	// OnSample is called after each sample is written.
	OnSample func(s sampler.Sample)

	// OnCleanup is called after the process group has been terminated.
	OnCleanup func(sequences int)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	// Command is run through the shell; Args is exec'd directly and
	// takes precedence.
	Command string
	Args    []string

	OutFile  string
	Interval time.Duration
	Timeout  time.Duration // 0 = no budget
	Grace    time.Duration

	Launcher  *process.Launcher
	Sampler   Collector
	Logger    *slog.Logger
	Callbacks Callbacks
}

// Result is computed once at the end of Run.
type Result struct {
	Command    string
	PID        int
	ExitStatus int
	Cause      Cause
	Duration   time.Duration
	Rows       int
	Sequences  int
	OutFile    string
	StartTime  time.Time
}

// ConfigError means the run could not start. Nothing was launched and no
// trailer was written.
type ConfigError struct {
	Err error

	// Launch is set when a workload was resolved but could not be
	// started.
	Launch bool
}

func (e *ConfigError) Error() string {
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ExitCode is 127 when there is no runnable command, 1 otherwise.
func (e *ConfigError) ExitCode() int {
	if e.Launch || errors.Is(e.Err, process.ErrNoCommand) {
		return 127
	}
	return 1
}

// Supervisor manages one monitored run. A Supervisor is single-use.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	state   State
	stateMu sync.RWMutex
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Launcher == nil {
		cfg.Launcher = process.NewLauncher()
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	return &Supervisor{
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateIdle,
	}
}

// Run launches the workload, samples it until it exits, times out or ctx
// is cancelled, then terminates its process group and writes the trailer.
// The process group never outlives Run.
func (s *Supervisor) Run(ctx context.Context) (*Result, error) {
	if s.cfg.Interval <= 0 {
		return nil, &ConfigError{Err: fmt.Errorf("interval must be positive, got %v", s.cfg.Interval)}
	}
	if s.cfg.Sampler == nil {
		return nil, &ConfigError{Err: errors.New("no sampler configured")}
	}

	s.setState(StateLaunching)
	defer s.setState(StateTerminated)

	w, err := recorder.Open(s.cfg.OutFile)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	defer w.Close()

	cmd, err := process.ResolveCommand(s.cfg.Command, s.cfg.Args)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	if cmd.Fallback {
		s.logger.Warn("using_fallback_workload", "command", cmd.Text)
	}

	h, err := s.cfg.Launcher.Start(cmd)
	if err != nil {
		return nil, &ConfigError{Err: err, Launch: true}
	}

	s.logger.Info("workload_started",
		"pid", h.PID,
		"pgid", h.PGID,
		"command", h.Command,
		"program", cmd.Program(),
	)
	if s.cfg.Callbacks.OnStart != nil {
		s.cfg.Callbacks.OnStart(h.PID, h.Command)
	}

	cleanup := NewCleanup(h.PGID, s.cfg.Grace, s.logger)
	// Every path out of Run, panics included, terminates the group.
	defer cleanup.Run()

	done := newCompletion()
	stop := make(chan struct{})
	defer close(stop)

	var (
		exitStatus int
		exitedAt   time.Time
	)
	exited := make(chan struct{})
	go func() {
		code, err := h.Wait()
		exitedAt = time.Now()
		exitStatus = code
		if err != nil {
			s.logger.Debug("workload_wait", "pid", h.PID, "error", err)
		}
		close(exited)
		done.Fire(CauseCompleted)
	}()

	if s.cfg.Timeout > 0 {
		go watchTimeout(s.cfg.Timeout, exited, stop, done, cleanup, s.logger)
	}

	s.setState(StateMonitoring)
	s.monitor(ctx, w, h.PID, done)
	rows := w.Rows()

	cause := done.Cause()
	s.setState(cause.state())
	s.logger.Info("monitoring_finished", "cause", cause.String(), "rows", rows)

	s.setState(StateCleaningUp)
	cleanup.Run()
	s.awaitExit(h, exited)
	if s.cfg.Callbacks.OnCleanup != nil {
		s.cfg.Callbacks.OnCleanup(cleanup.Signals())
	}

	duration := exitedAt.Sub(h.StartTime)
	if err := w.WriteTrailer(exitStatus, duration); err != nil {
		s.logger.Error("write_trailer_failed", "error", err)
	}

	res := &Result{
		Command:    h.Command,
		PID:        h.PID,
		ExitStatus: exitStatus,
		Cause:      cause,
		Duration:   duration,
		Rows:       rows,
		Sequences:  cleanup.Signals(),
		OutFile:    w.Path(),
		StartTime:  h.StartTime,
	}

	s.logger.Info("workload_finished",
		"pid", h.PID,
		"exit_status", exitStatus,
		"cause", cause.String(),
		"duration", recorder.FormatHMS(duration),
	)
	return res, nil
}

// monitor samples immediately and then on every tick until the
// completion fires. Cancelling ctx fires it with CauseInterrupted.
func (s *Supervisor) monitor(ctx context.Context, w *recorder.Writer, pid int, done *completion) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sample(ctx, w, pid)

	for {
		select {
		case <-done.Done():
			return
		case <-ctx.Done():
			if done.Fire(CauseInterrupted) {
				s.logger.Info("interrupted", "reason", context.Cause(ctx))
			}
			return
		case <-ticker.C:
			// Exit and tick may be ready together; exit wins.
			select {
			case <-done.Done():
				return
			default:
			}
			s.sample(ctx, w, pid)
		}
	}
}

// sample collects and writes one row. Samples taken while ctx is being
// cancelled are dropped.
func (s *Supervisor) sample(ctx context.Context, w *recorder.Writer, pid int) {
	smp := s.cfg.Sampler.Collect(ctx, pid)
	if ctx.Err() != nil {
		return
	}
	if err := w.Append(smp); err != nil {
		s.logger.Error("write_sample_failed", "error", err)
		return
	}
	if s.cfg.Callbacks.OnSample != nil {
		s.cfg.Callbacks.OnSample(smp)
	}
}

// awaitExit waits for the leader to be reaped after cleanup. A leader
// that moved itself out of the group is killed directly.
func (s *Supervisor) awaitExit(h *process.Handle, exited <-chan struct{}) {
	timer := time.NewTimer(s.cfg.Grace + time.Second)
	defer timer.Stop()

	select {
	case <-exited:
		return
	case <-timer.C:
	}

	s.logger.Warn("workload_leader_survived_cleanup", "pid", h.PID)
	if err := h.Kill(); err != nil {
		s.logger.Warn("kill_leader_failed", "pid", h.PID, "error", err)
	}
	<-exited
}

// State returns the current run state (thread-safe).
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback if configured.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if s.cfg.Callbacks.OnStateChange != nil && oldState != newState {
		s.cfg.Callbacks.OnStateChange(oldState, newState)
	}
}
