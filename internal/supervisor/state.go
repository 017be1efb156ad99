// Package supervisor runs one workload under monitoring: it launches the
// command in its own process group, samples it on a fixed interval,
// enforces the optional time budget and guarantees the whole group is
// terminated before returning.
package supervisor

// State represents the current phase of a monitored run.
type State int

const (
	// StateIdle is the initial state before Run.
	StateIdle State = iota

	// StateLaunching covers opening the log and starting the workload.
	StateLaunching

	// StateMonitoring is the sampling loop.
	StateMonitoring

	// StateCompleted means the workload exited on its own.
	StateCompleted

	// StateTimedOut means the time budget expired first.
	StateTimedOut

	// StateInterrupted means the supervisor was asked to stop.
	StateInterrupted

	// StateCleaningUp covers terminating the process group.
	StateCleaningUp

	// StateTerminated is final.
	StateTerminated
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateMonitoring:
		return "monitoring"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateInterrupted:
		return "interrupted"
	case StateCleaningUp:
		return "cleaning_up"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// IsActive returns true while a workload may be running.
func (s State) IsActive() bool {
	return s == StateLaunching || s == StateMonitoring
}

// IsTerminal returns true once Run has finished.
func (s State) IsTerminal() bool {
	return s == StateTerminated
}

// Cause is why monitoring ended.
type Cause int

const (
	CauseNone Cause = iota
	CauseCompleted
	CauseTimedOut
	CauseInterrupted
)

// String returns the cause name used in logs and the exit report.
func (c Cause) String() string {
	switch c {
	case CauseCompleted:
		return "completed"
	case CauseTimedOut:
		return "timed_out"
	case CauseInterrupted:
		return "interrupted"
	default:
		return "none"
	}
}

// state maps a cause to the state entered when it fires.
func (c Cause) state() State {
	switch c {
	case CauseTimedOut:
		return StateTimedOut
	case CauseInterrupted:
		return StateInterrupted
	default:
		return StateCompleted
	}
}
