package supervisor

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-workload-monitor/internal/process"
)

// DefaultGrace is the wait between SIGTERM and SIGKILL.
const DefaultGrace = 2 * time.Second

// Cleanup terminates a workload's process group exactly once. Every
// termination path calls Run; the first caller performs the kill
// sequence and the others wait for it to finish.
type Cleanup struct {
	pgid   int
	grace  time.Duration
	poll   BackoffConfig
	logger *slog.Logger

	// Replaced in tests.
	signal func(pgid int, sig syscall.Signal) error
	alive  func(pgid int) bool
	sleep  func(time.Duration)

	started   atomic.Bool
	sequences atomic.Int32
	done      chan struct{}
}

// NewCleanup creates the coordinator for one process group.
func NewCleanup(pgid int, grace time.Duration, logger *slog.Logger) *Cleanup {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cleanup{
		pgid:   pgid,
		grace:  grace,
		poll:   DefaultBackoffConfig(),
		logger: logger,
		signal: process.SignalGroup,
		alive:  process.GroupAlive,
		sleep:  time.Sleep,
		done:   make(chan struct{}),
	}
}

// Run performs the kill sequence on the first call. Later and
// concurrent calls block until it has finished and then return without
// signalling anything.
func (c *Cleanup) Run() {
	if !c.started.CompareAndSwap(false, true) {
		<-c.done
		return
	}
	defer close(c.done)

	c.sequences.Add(1)
	c.terminate()
}

// Done is closed once the kill sequence has finished.
func (c *Cleanup) Done() <-chan struct{} {
	return c.done
}

// Signals returns how many kill sequences were performed (0 or 1).
func (c *Cleanup) Signals() int {
	return int(c.sequences.Load())
}

func (c *Cleanup) terminate() {
	start := time.Now()

	if gone := c.send(syscall.SIGTERM); gone {
		c.logger.Debug("process_group_already_gone", "pgid", c.pgid)
		return
	}

	if c.waitEmpty() {
		c.logger.Debug("process_group_exited",
			"pgid", c.pgid,
			"after", time.Since(start).String(),
		)
		return
	}

	c.logger.Warn("force_killing_process_group",
		"pgid", c.pgid,
		"grace", c.grace.String(),
	)
	c.send(syscall.SIGKILL)
}

// send signals the group and reports whether it no longer exists.
func (c *Cleanup) send(sig syscall.Signal) (gone bool) {
	err := c.signal(c.pgid, sig)
	switch {
	case err == nil:
		return false
	case errors.Is(err, process.ErrGroupGone):
		return true
	default:
		c.logger.Warn("signal_process_group_failed",
			"pgid", c.pgid,
			"signal", sig.String(),
			"error", err,
		)
		return false
	}
}

// waitEmpty polls until the group is gone or the grace period ends. It
// reports whether the group drained.
func (c *Cleanup) waitEmpty() bool {
	deadline := time.Now().Add(c.grace)
	b := NewBackoff(c.poll)
	for {
		if !c.alive(c.pgid) {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		c.sleep(min(b.Next(), remaining))
	}
}
